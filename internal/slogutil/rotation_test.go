package slogutil

import (
	"os"
	"path/filepath"
	"testing"
)

func TestNewRotatingWriter_Defaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "memstore.log")

	w, err := NewRotatingWriter(RotationConfig{File: path})
	if err != nil {
		t.Fatalf("NewRotatingWriter() error = %v", err)
	}
	defer w.Close()

	if w.MaxSize != defaultMaxSizeMB {
		t.Errorf("MaxSize = %d, want %d", w.MaxSize, defaultMaxSizeMB)
	}
	if w.MaxBackups != defaultMaxFiles {
		t.Errorf("MaxBackups = %d, want %d", w.MaxBackups, defaultMaxFiles)
	}

	if _, err := w.Write([]byte("hello\n")); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("log file not created: %v", err)
	}
}

func TestNewRotatingWriter_EmptyPath(t *testing.T) {
	if _, err := NewRotatingWriter(RotationConfig{}); err == nil {
		t.Error("expected error for empty path")
	}
}
