// Package testutil provides helpers for tests that need a real, migrated database.
package testutil

import (
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/MrJamesThe3rd/pocketfin/internal/database"
)

// NewDB opens a fresh SQLite database in the test's temp directory with all migrations applied.
// The database is closed when the test finishes.
func NewDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := database.New("sqlite", filepath.Join(t.TempDir(), "pocketfin_test.db"))
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}

	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Errorf("failed to close test database: %v", err)
		}
	})

	return db
}
