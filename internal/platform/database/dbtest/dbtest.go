// Package dbtest opens a migrated in-memory store for package tests.
package dbtest

import (
	"testing"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"conduit/internal/platform/database"
)

// Open returns a fresh sqlite database with the full schema applied. The pool
// is pinned to one connection because every :memory: connection is its own
// database.
func Open(t testing.TB) *sqlx.DB {
	t.Helper()

	db, err := sqlx.Open(database.DriverSQLite, ":memory:")
	if err != nil {
		t.Fatalf("Failed to open db: %v", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := database.MigrateUp(db); err != nil {
		db.Close()
		t.Fatalf("Failed to migrate: %v", err)
	}

	t.Cleanup(func() { db.Close() })
	return db
}
