package engine

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/fieldsync/internal/store"
)

func setupTestStore(t *testing.T) *store.Store {
	t.Helper()
	dir := t.TempDir()
	s, err := store.Open(dir + "/test.db")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func setupTestEngine(t *testing.T, opts ...Option) (*Engine, *store.Store) {
	t.Helper()
	s := setupTestStore(t)
	e, err := New(s, append([]Option{WithLogger(quietLogger())}, opts...)...)
	require.NoError(t, err)
	return e, s
}

// dumpStore renders the registry and every data table in a stable text
// form. Metric blobs depend on content hashes and are shown as <blob>.
func dumpStore(t *testing.T, s *store.Store) string {
	t.Helper()
	ctx := context.Background()
	var b strings.Builder

	roots, err := s.Roots(ctx)
	require.NoError(t, err)
	for _, r := range roots {
		fmt.Fprintf(&b, "root %s passes=%d shape=%s\n", r.Name, r.Passes, r.Shape)
	}

	tables, err := s.Tables(ctx)
	require.NoError(t, err)
	for _, table := range tables {
		fmt.Fprintf(&b, "table %s\n", table)
		b.WriteString(dumpTable(t, s.DB(), table))
	}
	return b.String()
}

func dumpTable(t *testing.T, db *sql.DB, table string) string {
	t.Helper()
	ctx := context.Background()

	infoRows, err := db.QueryContext(ctx, `SELECT name, type FROM pragma_table_info(?) ORDER BY cid`, table)
	require.NoError(t, err)
	var names, types []string
	for infoRows.Next() {
		var name, typ string
		require.NoError(t, infoRows.Scan(&name, &typ))
		names = append(names, name)
		types = append(types, typ)
	}
	require.NoError(t, infoRows.Err())
	infoRows.Close()

	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = store.QuoteIdent(n)
	}
	rows, err := db.QueryContext(ctx, fmt.Sprintf(`SELECT %s FROM %s ORDER BY %s COLLATE BINARY`,
		strings.Join(quoted, ", "), store.QuoteIdent(table), store.QuoteIdent(store.IndexColumn)))
	require.NoError(t, err)
	defer rows.Close()

	var b strings.Builder
	for rows.Next() {
		texts := make([]sql.NullString, len(names))
		dest := make([]any, len(names))
		for i := range names {
			dest[i] = &texts[i]
		}
		require.NoError(t, rows.Scan(dest...))

		parts := make([]string, len(names))
		for i, n := range names {
			switch {
			case !texts[i].Valid:
				parts[i] = n + "=NULL"
			case types[i] == "BLOB":
				parts[i] = n + "=<blob>"
			default:
				parts[i] = n + "=" + texts[i].String
			}
		}
		b.WriteString("\t" + strings.Join(parts, " ") + "\n")
	}
	require.NoError(t, rows.Err())
	return b.String()
}
