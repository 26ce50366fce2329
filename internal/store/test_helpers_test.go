package store

import (
	"context"
	"path/filepath"
	"testing"
)

// createTestStore creates a new file-backed store for testing.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// mustLock runs fn in a pass and fails the test on error.
func mustLock(t *testing.T, s *Store, fn func(tx *Tx) error) {
	t.Helper()
	if err := s.Lock(context.Background(), fn); err != nil {
		t.Fatalf("Lock() failed: %v", err)
	}
}
