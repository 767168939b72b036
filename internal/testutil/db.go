// Package testutil provides shared test helpers. Helpers call t.Fatalf on
// failure since setup failures are not recoverable.
package testutil

import (
	"path/filepath"
	"testing"

	"gorm.io/gorm"

	"taskapi/internal/db"
)

// NewDB returns a migrated SQLite database private to the test.
func NewDB(t testing.TB) *gorm.DB {
	t.Helper()
	gormDB, err := db.NewSQLite(filepath.Join(t.TempDir(), "tasks.db"))
	if err != nil {
		t.Fatalf("open test database: %v", err)
	}
	if err := db.Migrate(gormDB, false); err != nil {
		t.Fatalf("migrate test database: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := gormDB.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return gormDB
}
