package store

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strings"
)

// Handle is the subset of *sql.DB / *sql.Tx the schema helpers need.
type Handle interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// IndexColumn is the reserved row key of every data table.
const IndexColumn = "index"

// Column is a non-key column of a data table.
type Column struct {
	Name string
	Type string
}

// Text returns a nullable TEXT column.
func Text(name string) Column {
	return Column{Name: name, Type: "TEXT"}
}

// Blob returns a nullable BLOB column.
func Blob(name string) Column {
	return Column{Name: name, Type: "BLOB"}
}

var segmentPattern = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

// ValidateTable checks that a generated table name only contains
// dot-separated segments of [A-Za-z0-9_] and does not use the reserved prefix.
func ValidateTable(table string) error {
	if table == "" {
		return fmt.Errorf("empty table name")
	}
	if strings.HasPrefix(table, "fieldsync_") || strings.HasPrefix(table, "sqlite_") {
		return fmt.Errorf("table %q uses a reserved prefix", table)
	}
	for _, seg := range strings.Split(table, ".") {
		if !segmentPattern.MatchString(seg) {
			return fmt.Errorf("table %q: invalid segment %q", table, seg)
		}
	}
	return nil
}

// QuoteIdent quotes an SQL identifier.
func QuoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// CreateTableSQL returns the DDL for a data table keyed by "index".
func CreateTableSQL(table string, cols []Column) string {
	var b strings.Builder
	fmt.Fprintf(&b, "CREATE TABLE IF NOT EXISTS %s (\n", QuoteIdent(table))
	fmt.Fprintf(&b, "\t%s TEXT NOT NULL UNIQUE", QuoteIdent(IndexColumn))
	for _, c := range cols {
		fmt.Fprintf(&b, ",\n\t%s %s", QuoteIdent(c.Name), c.Type)
	}
	b.WriteString("\n)")
	return b.String()
}

func addColumnSQL(table string, c Column) string {
	return fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", QuoteIdent(table), QuoteIdent(c.Name), c.Type)
}

// EnsureTable creates table if needed and adds any of cols it lacks.
// Columns are never dropped or retyped.
func EnsureTable(ctx context.Context, h Handle, table string, cols []Column) error {
	if err := ValidateTable(table); err != nil {
		return err
	}
	seen := map[string]bool{IndexColumn: true}
	for _, c := range cols {
		if seen[c.Name] {
			return fmt.Errorf("table %q: duplicate column %q", table, c.Name)
		}
		seen[c.Name] = true
	}

	if _, err := h.ExecContext(ctx, CreateTableSQL(table, cols)); err != nil {
		return fmt.Errorf("create table %q: %w", table, err)
	}

	existing, err := TableColumns(ctx, h, table)
	if err != nil {
		return err
	}
	for _, c := range cols {
		if existing[c.Name] {
			continue
		}
		if _, err := h.ExecContext(ctx, addColumnSQL(table, c)); err != nil {
			return fmt.Errorf("add column %q to %q: %w", c.Name, table, err)
		}
	}
	return nil
}

// TableColumns returns the set of column names of table.
func TableColumns(ctx context.Context, h Handle, table string) (map[string]bool, error) {
	rows, err := h.QueryContext(ctx, `SELECT name FROM pragma_table_info(?)`, table)
	if err != nil {
		return nil, fmt.Errorf("table info %q: %w", table, err)
	}
	defer rows.Close()

	cols := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan table info %q: %w", table, err)
		}
		cols[name] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate table info %q: %w", table, err)
	}
	return cols, nil
}

// TableExists reports whether table has been created.
func TableExists(ctx context.Context, h Handle, table string) (bool, error) {
	var count int
	err := h.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?`, table,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check table %q: %w", table, err)
	}
	return count > 0, nil
}

// ColumnExists reports whether table has the named column.
func ColumnExists(ctx context.Context, h Handle, table, column string) (bool, error) {
	cols, err := TableColumns(ctx, h, table)
	if err != nil {
		return false, err
	}
	return cols[column], nil
}
