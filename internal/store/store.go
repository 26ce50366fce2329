package store

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru"
	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// schemaVersion is stored in PRAGMA user_version.
//
//	0: roots registry without pass bookkeeping
//	1: passes and last_pass on fieldsync_roots
const schemaVersion = 1

// DefaultTableCacheSize bounds the number of ensured tables remembered per Store.
const DefaultTableCacheSize = 1024

// connPragmas are applied to the single connection when the store opens.
var connPragmas = []struct{ name, value string }{
	{"journal_mode", "WAL"},
	{"synchronous", "NORMAL"},
	{"busy_timeout", "5000"},
	{"foreign_keys", "ON"},
}

// Store is the SQLite database synchronized values are reconciled against.
// Every sync pass runs in one exclusive transaction obtained from Lock.
type Store struct {
	db *sql.DB

	// mu serializes Lock callers in this process. The exclusive
	// transaction serializes against other processes.
	mu sync.Mutex

	// tables remembers tables whose DDL has been applied and committed.
	tables *lru.Cache

	logger *slog.Logger
}

// Option configures a Store.
type Option func(*Store) error

// WithTableCacheSize sets the capacity of the ensured-table cache.
func WithTableCacheSize(size int) Option {
	return func(s *Store) error {
		cache, err := lru.New(size)
		if err != nil {
			return fmt.Errorf("table cache: %w", err)
		}
		s.tables = cache
		return nil
	}
}

// WithLogger sets the logger used for transaction diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) error {
		s.logger = logger
		return nil
	}
}

// Open opens the database file at path, creating it if needed, and brings
// its registry schema up to date. Every transaction begun on the returned
// store is BEGIN EXCLUSIVE. Opening an existing store again is harmless.
func Open(path string, opts ...Option) (*Store, error) {
	return open(fmt.Sprintf("file:%s?_txlock=exclusive", path), opts...)
}

// OpenMemory opens a private in-memory database. Data is lost on Close.
func OpenMemory(opts ...Option) (*Store, error) {
	return open("file::memory:?_txlock=exclusive", opts...)
}

func open(dsn string, opts ...Option) (s *Store, err error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", dsn, err)
	}
	defer func() {
		if err != nil {
			db.Close()
		}
	}()

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("open %s: %w", dsn, err)
	}

	// One writer at a time, and an in-memory database lives in its connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, p := range connPragmas {
		if _, err := db.Exec(fmt.Sprintf("PRAGMA %s = %s", p.name, p.value)); err != nil {
			return nil, fmt.Errorf("pragma %s: %w", p.name, err)
		}
	}
	if err := migrate(db); err != nil {
		return nil, err
	}

	s = &Store{db: db, logger: slog.Default()}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	if s.tables == nil {
		if err := WithTableCacheSize(DefaultTableCacheSize)(s); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Close releases the database. A zero Store closes without error.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// DB exposes the underlying handle. Writes made through it bypass Lock.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Lock runs fn inside one exclusive transaction and commits if fn returns
// nil. Any error from fn, or from the commit, rolls the whole transaction
// back; a previously committed pass is unaffected.
//
// Calls are serialized: a second caller blocks until the first commits or
// rolls back.
func (s *Store) Lock(ctx context.Context, fn func(tx *Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := uuid.Must(uuid.NewV7()).String()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("lock: begin tx: %w", err)
	}
	defer sqlTx.Rollback() // No-op if committed

	tx := &Tx{Tx: sqlTx, ID: id, store: s}
	if err := fn(tx); err != nil {
		s.logger.Debug("transaction rolled back", "pass", id, "error", err)
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("lock: commit: %w", err)
	}

	// DDL is transactional in SQLite, so only committed tables are remembered.
	for key := range tx.ensured {
		s.tables.Add(key, struct{}{})
	}
	return nil
}

// Transact is Lock for callbacks that produce a value.
func Transact[T any](ctx context.Context, s *Store, fn func(tx *Tx) (T, error)) (T, error) {
	var out T
	err := s.Lock(ctx, func(tx *Tx) error {
		v, err := fn(tx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}

// migrate applies schema.sql and then every step newer than user_version.
func migrate(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("schema: %w", err)
	}

	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("schema: read user_version: %w", err)
	}
	steps := []func(*sql.DB) error{migrateToV1}
	for v := version; v < len(steps); v++ {
		if err := steps[v](db); err != nil {
			return fmt.Errorf("schema: migrate to v%d: %w", v+1, err)
		}
	}
	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", schemaVersion)); err != nil {
		return fmt.Errorf("schema: write user_version: %w", err)
	}
	return nil
}

// migrateToV1 adds the pass bookkeeping columns to registries created
// before v1. New databases get them from schema.sql.
func migrateToV1(db *sql.DB) error {
	cols, err := TableColumns(context.Background(), db, RootsTable)
	if err != nil {
		return err
	}
	for _, c := range []Column{
		{Name: "passes", Type: "INTEGER NOT NULL DEFAULT 0"},
		{Name: "last_pass", Type: "TEXT NOT NULL DEFAULT ''"},
	} {
		if cols[c.Name] {
			continue
		}
		if _, err := db.Exec(addColumnSQL(RootsTable, c)); err != nil {
			return err
		}
	}
	return nil
}

// verifyPragma reports whether pragma name currently reads expected.
func (s *Store) verifyPragma(name, expected string) error {
	var value string
	if err := s.db.QueryRow("PRAGMA " + name).Scan(&value); err != nil {
		return fmt.Errorf("pragma %s: %w", name, err)
	}
	if value != expected {
		return fmt.Errorf("pragma %s = %q, want %q", name, value, expected)
	}
	return nil
}
