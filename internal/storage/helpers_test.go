package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"memstore/internal/testutil"
)

func testOptions() Options {
	return Options{Clock: testutil.NewStepClock().Now}
}

func openTestDB(t *testing.T, path string, opts Options) *DB {
	t.Helper()
	db, err := Open(context.Background(), path, opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func newTestRepos(t *testing.T) (*MemoryRepository, *TemplateRepository) {
	t.Helper()
	opts := testOptions()
	db := openTestDB(t, filepath.Join(t.TempDir(), "memories.db"), opts)
	return NewMemoryRepository(db, NewCounterGenerator(opts.Clock)), NewTemplateRepository(db)
}

func readFile(t *testing.T, path string) []byte {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return data
}

func strPtr(s string) *string { return &s }

func boolPtr(b bool) *bool { return &b }

func int64Ptr(v int64) *int64 { return &v }
