package db

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// TestDefaultConnectionConfig verifies default configuration values.
func TestDefaultConnectionConfig(t *testing.T) {
	config := DefaultConnectionConfig("/test/path.db")

	if config.Path != "/test/path.db" {
		t.Errorf("Path = %q, want /test/path.db", config.Path)
	}
	if config.BusyTimeout != 5*time.Second {
		t.Errorf("BusyTimeout = %v, want 5s", config.BusyTimeout)
	}
	if config.MaxOpenConns != 1 {
		t.Errorf("MaxOpenConns = %d, want 1", config.MaxOpenConns)
	}
}

// TestNewSQLiteConnection_EmptyPath verifies error on empty path.
func TestNewSQLiteConnection_EmptyPath(t *testing.T) {
	conn, err := NewSQLiteConnection(context.Background(), ConnectionConfig{})
	if err == nil {
		conn.Close()
		t.Fatal("expected error for empty path, got nil")
	}
}

// TestNewSQLiteConnection_Pragmas verifies the file is created with WAL and foreign keys.
func TestNewSQLiteConnection_Pragmas(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")

	conn, err := NewSQLiteConnection(context.Background(), DefaultConnectionConfig(dbPath))
	if err != nil {
		t.Fatalf("NewSQLiteConnection() error = %v", err)
	}
	defer conn.Close()

	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Error("database file was not created")
	}

	var journalMode string
	if err := conn.QueryRow("PRAGMA journal_mode").Scan(&journalMode); err != nil {
		t.Fatalf("failed to query journal_mode: %v", err)
	}
	if journalMode != "wal" {
		t.Errorf("journal_mode = %q, want wal", journalMode)
	}

	var fkEnabled int
	if err := conn.QueryRow("PRAGMA foreign_keys").Scan(&fkEnabled); err != nil {
		t.Fatalf("failed to query foreign_keys: %v", err)
	}
	if fkEnabled != 1 {
		t.Errorf("foreign_keys = %d, want 1", fkEnabled)
	}
}

// TestNewSQLiteConnection_InvalidPath verifies error for a path in a missing directory.
func TestNewSQLiteConnection_InvalidPath(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "missing", "dir", "test.db")
	conn, err := NewSQLiteConnection(context.Background(), DefaultConnectionConfig(dbPath))
	if err == nil {
		conn.Close()
		t.Fatal("expected error for path in nonexistent directory")
	}
}

// TestMigrations verifies the embedded schema applies, reports its version and rolls back.
func TestMigrations(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "history.db")

	// Create the file first so version can be read before any migration.
	conn, err := NewSQLiteConnection(ctx, DefaultConnectionConfig(dbPath))
	if err != nil {
		t.Fatalf("NewSQLiteConnection() error = %v", err)
	}
	conn.Close()

	version, dirty, err := MigrationVersion(ctx, dbPath)
	if err != nil {
		t.Fatalf("MigrationVersion() error = %v", err)
	}
	if version != 0 || dirty {
		t.Errorf("initial version = %d dirty=%v, want 0 clean", version, dirty)
	}

	if err := MigrateUp(ctx, dbPath); err != nil {
		t.Fatalf("MigrateUp() error = %v", err)
	}
	// A second run has nothing to do and is not an error.
	if err := MigrateUp(ctx, dbPath); err != nil {
		t.Fatalf("second MigrateUp() error = %v", err)
	}

	version, dirty, err = MigrationVersion(ctx, dbPath)
	if err != nil {
		t.Fatalf("MigrationVersion() error = %v", err)
	}
	if version != SchemaVersion || dirty {
		t.Errorf("version = %d dirty=%v, want %d clean", version, dirty, SchemaVersion)
	}

	if err := MigrateDown(ctx, dbPath); err != nil {
		t.Fatalf("MigrateDown() error = %v", err)
	}

	conn, err = NewSQLiteConnection(ctx, DefaultConnectionConfig(dbPath))
	if err != nil {
		t.Fatalf("NewSQLiteConnection() error = %v", err)
	}
	defer conn.Close()

	var count int
	if err := conn.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name IN ('runs', 'angle_results')`).Scan(&count); err != nil {
		t.Fatalf("failed to query sqlite_master: %v", err)
	}
	if count != 0 {
		t.Errorf("expected history tables to be dropped, found %d", count)
	}
}
