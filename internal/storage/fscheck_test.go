package storage

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"
)

func fixedFS(name string) fsDetector {
	return func(string) (string, error) { return name, nil }
}

func TestCheckLocalFilesystemAllowsLocal(t *testing.T) {
	t.Parallel()

	dbPath := filepath.Join(t.TempDir(), "ledger.db")
	if err := checkLocalFilesystem(dbPath, fixedFS("ext4")); err != nil {
		t.Fatalf("expected local filesystem to pass, got: %v", err)
	}
}

func TestCheckLocalFilesystemRejectsNetwork(t *testing.T) {
	t.Parallel()

	dbPath := filepath.Join(t.TempDir(), "ledger.db")
	err := checkLocalFilesystem(dbPath, fixedFS("NFS"))
	if err == nil {
		t.Fatal("expected network filesystem validation error")
	}
	for _, want := range []string{"NFS", "SQLite requires a local filesystem", "state.path"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("expected error to contain %q, got %q", want, err.Error())
		}
	}
}

func TestCheckLocalFilesystemInspectsClosestAncestor(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	dbPath := filepath.Join(root, "not", "yet", "ledger.db")

	var inspected string
	err := checkLocalFilesystem(dbPath, func(path string) (string, error) {
		inspected = path
		return "apfs", nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if inspected != root {
		t.Fatalf("expected detector to inspect %q, got %q", root, inspected)
	}
}

func TestCheckLocalFilesystemDetectorError(t *testing.T) {
	t.Parallel()

	err := checkLocalFilesystem(filepath.Join(t.TempDir(), "x.db"), func(string) (string, error) {
		return "", errors.New("statfs failed")
	})
	if err == nil || !strings.Contains(err.Error(), "statfs failed") {
		t.Fatalf("expected detector error to propagate, got %v", err)
	}
}

func TestIsRemoteFilesystem(t *testing.T) {
	t.Parallel()

	cases := map[string]bool{
		"nfs":    true,
		" SMBFS": true,
		"apfs":   false,
		"0x6969": false,
		"":       false,
	}
	for in, want := range cases {
		if got := isRemoteFilesystem(in); got != want {
			t.Errorf("isRemoteFilesystem(%q)=%v, want %v", in, got, want)
		}
	}
}
