// Package dbtest provides a shared test-database constructor so that every
// package needing one doesn't write its own temp-file setup.
package dbtest

import (
	"path/filepath"
	"testing"

	"github.com/rjsadow/rfbgo/internal/db"
)

// NewTestDB opens a fresh SQLite database in t.TempDir() and registers
// Close via t.Cleanup.
func NewTestDB(t *testing.T) *db.DB {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	database, err := db.Open(dbPath)
	if err != nil {
		t.Fatalf("dbtest: failed to open database: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	return database
}
