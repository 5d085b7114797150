package storage

import (
	"context"
	"path/filepath"
	"testing"
)

func TestOpenSQLiteBootstrapsTables(t *testing.T) {
	t.Parallel()

	dbPath := filepath.Join(t.TempDir(), "ledger.db")
	db, err := OpenSQLite(context.Background(), dbPath)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	var name string
	if err := db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?;", "processed_images").Scan(&name); err != nil {
		t.Fatalf("table processed_images missing: %v", err)
	}

	// Bootstrapping twice must be harmless.
	if err := BootstrapSQLite(context.Background(), db); err != nil {
		t.Fatalf("second bootstrap: %v", err)
	}
}

func TestOpenSQLiteEnforcesUniqueness(t *testing.T) {
	t.Parallel()

	db, err := OpenSQLite(context.Background(), ":memory:")
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	insert := `INSERT INTO processed_images(original_path, file_hash, status, created_at) VALUES(?, ?, 'processing', 'now');`
	if _, err := db.Exec(insert, "/a.jpg", "h1"); err != nil {
		t.Fatalf("first insert: %v", err)
	}
	if _, err := db.Exec(insert, "/a.jpg", "h2"); err == nil {
		t.Fatal("expected unique violation on original_path")
	}
	if _, err := db.Exec(insert, "/b.jpg", "h1"); err == nil {
		t.Fatal("expected unique violation on file_hash")
	}
}

func TestOpenSQLiteRejectsEmptyPath(t *testing.T) {
	t.Parallel()

	if _, err := OpenSQLite(context.Background(), ""); err == nil {
		t.Fatal("expected error for empty path")
	}
}
