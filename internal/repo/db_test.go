package repo

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// newTestDB returns an isolated in-memory SQLite database with the full
// schema applied. cache=shared keyed by test name keeps connections within a
// test on the same database while isolating tests from each other.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func TestOpenSQLite_CreatesFileAndMigrates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.db")
	db, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	if err := AutoMigrate(db); err != nil {
		t.Fatalf("AutoMigrate: %v", err)
	}

	// Schema present: tables accept inserts.
	if _, err := CreateSubscription(context.Background(), db, "a@example.com", "A"); err != nil {
		t.Fatalf("insert after migrate: %v", err)
	}
}

func TestOpenSQLite_MissingDirectory(t *testing.T) {
	_, err := OpenSQLite(filepath.Join(t.TempDir(), "no-such-dir", "app.db"))
	if err == nil {
		t.Fatalf("expected error for missing parent directory")
	}
}

func Test_isUniqueViolation(t *testing.T) {
	if isUniqueViolation(nil) {
		t.Fatalf("nil is not a unique violation")
	}
	if isUniqueViolation(fmt.Errorf("database is locked")) {
		t.Fatalf("unrelated error misclassified")
	}
	if !isUniqueViolation(fmt.Errorf("UNIQUE constraint failed: subscriptions.email")) {
		t.Fatalf("unique violation not detected")
	}
}
