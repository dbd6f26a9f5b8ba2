package testutil

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

// WriteCorruptDB writes a page-sized file that SQLite rejects as "not a
// database" at path.
func WriteCorruptDB(t *testing.T, path string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("create fixture dir: %v", err)
	}
	garbage := bytes.Repeat([]byte("this is not a database "), 200)
	if err := os.WriteFile(path, garbage, 0o644); err != nil {
		t.Fatalf("write corrupt fixture: %v", err)
	}
}

// Backups returns the *.bak files in dir.
func Backups(t *testing.T, dir string) []string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join(dir, "*.bak"))
	if err != nil {
		t.Fatalf("glob backups: %v", err)
	}
	return matches
}
