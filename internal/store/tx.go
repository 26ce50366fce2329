package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// Tx is the exclusive transaction handed to a Lock callback. It embeds
// *sql.Tx, so ExecContext, QueryContext and QueryRowContext are available
// directly, and every statement of a pass goes through it.
type Tx struct {
	*sql.Tx

	// ID identifies the pass (UUIDv7) in logs and the roots registry.
	ID string

	store   *Store
	ensured map[string]bool
}

// EnsureTable is EnsureTable with a per-store cache of committed DDL, so
// steady-state passes issue no schema statements.
func (tx *Tx) EnsureTable(ctx context.Context, table string, cols []Column) error {
	key := tableKey(table, cols)
	if tx.ensured[key] || tx.store.tables.Contains(key) {
		return nil
	}
	if err := EnsureTable(ctx, tx, table, cols); err != nil {
		return err
	}
	if tx.ensured == nil {
		tx.ensured = make(map[string]bool)
	}
	tx.ensured[key] = true
	return nil
}

func tableKey(table string, cols []Column) string {
	var b strings.Builder
	b.WriteString(table)
	for _, c := range cols {
		b.WriteByte(0)
		b.WriteString(c.Name)
	}
	return b.String()
}

// RootsTable records every name a value has been synchronized under.
const RootsTable = "fieldsync_roots"

// Root is one row of the roots registry. Passes counts the committed
// passes that changed the store or the value synchronized against it.
type Root struct {
	Name     string `json:"name"`
	Shape    string `json:"shape"`
	Passes   int64  `json:"passes"`
	LastPass string `json:"last_pass"`
}

// RecordPass registers name with its shape and counts the pass. Callers
// skip it for passes that changed nothing.
func (tx *Tx) RecordPass(ctx context.Context, name, shape string) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO fieldsync_roots (name, shape, passes, last_pass)
		VALUES (?, ?, 1, ?)
		ON CONFLICT(name) DO UPDATE SET
			shape = excluded.shape,
			passes = passes + 1,
			last_pass = excluded.last_pass
	`, name, shape, tx.ID)
	if err != nil {
		return fmt.Errorf("record pass: %w", err)
	}
	return nil
}

// LookupRoot returns the registry row for name.
func LookupRoot(ctx context.Context, h Handle, name string) (Root, bool, error) {
	var r Root
	err := h.QueryRowContext(ctx, `
		SELECT name, shape, passes, last_pass FROM fieldsync_roots WHERE name = ?
	`, name).Scan(&r.Name, &r.Shape, &r.Passes, &r.LastPass)
	if errors.Is(err, sql.ErrNoRows) {
		return Root{}, false, nil
	}
	if err != nil {
		return Root{}, false, fmt.Errorf("lookup root %q: %w", name, err)
	}
	return r, true, nil
}

// Roots returns the registry ordered by name.
// Returns an empty slice (not nil) if nothing has been synchronized.
func (s *Store) Roots(ctx context.Context) ([]Root, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT name, shape, passes, last_pass FROM fieldsync_roots
		ORDER BY name COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query roots: %w", err)
	}
	defer rows.Close()

	roots := []Root{}
	for rows.Next() {
		var r Root
		if err := rows.Scan(&r.Name, &r.Shape, &r.Passes, &r.LastPass); err != nil {
			return nil, fmt.Errorf("scan root: %w", err)
		}
		roots = append(roots, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate roots: %w", err)
	}
	return roots, nil
}

// Tables returns the names of all data tables, excluding the registry.
func (s *Store) Tables(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT name FROM sqlite_master
		WHERE type = 'table' AND name NOT LIKE 'sqlite\_%' ESCAPE '\' AND name NOT LIKE 'fieldsync\_%' ESCAPE '\'
		ORDER BY name COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query tables: %w", err)
	}
	defer rows.Close()

	tables := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan table: %w", err)
		}
		tables = append(tables, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tables: %w", err)
	}
	return tables, nil
}
