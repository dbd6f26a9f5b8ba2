// Package paths maps caller-supplied scope identifiers to database files.
package paths

import (
	"fmt"
	"path/filepath"
	"strings"
)

const (
	// DefaultDBName is the database file used for the empty (default) scope.
	DefaultDBName = "memories.db"

	scopedPrefix = "memories__"
	dbSuffix     = ".db"

	// MaxScopeLen bounds the normalized scope key length.
	MaxScopeLen = 80
)

// NormalizeScope converts a raw scope identifier to its on-disk key.
// - Trims surrounding whitespace
// - Replaces every character outside [A-Za-z0-9._-] with '_'
// - Truncates to MaxScopeLen bytes
// - Strips leading and trailing '_'
//
// Two inputs that normalize identically share one database; that is the
// accepted collision policy, not an error.
func NormalizeScope(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return ""
	}

	var b strings.Builder
	b.Grow(len(trimmed))
	for _, r := range trimmed {
		if isScopeRune(r) {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}

	out := b.String()
	if len(out) > MaxScopeLen {
		out = out[:MaxScopeLen]
	}
	return strings.Trim(out, "_")
}

func isScopeRune(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return true
	case r == '-', r == '_', r == '.':
		return true
	}
	return false
}

// DBFileName returns the database file name for an already-normalized key.
func DBFileName(scopeKey string) string {
	if scopeKey == "" {
		return DefaultDBName
	}
	return scopedPrefix + scopeKey + dbSuffix
}

// DBPath returns the database path for an already-normalized key under baseDir.
func DBPath(baseDir, scopeKey string) string {
	return filepath.Join(baseDir, DBFileName(scopeKey))
}

// ResolveScope normalizes raw and returns the key together with its path.
func ResolveScope(baseDir, raw string) (string, string) {
	key := NormalizeScope(raw)
	return key, DBPath(baseDir, key)
}

// ScopeFromFileName reverses DBFileName. ok is false for files that are not
// scope databases (backups, WAL side files, unrelated files).
func ScopeFromFileName(name string) (key string, ok bool) {
	if name == DefaultDBName {
		return "", true
	}
	if !strings.HasPrefix(name, scopedPrefix) || !strings.HasSuffix(name, dbSuffix) {
		return "", false
	}
	key = strings.TrimSuffix(strings.TrimPrefix(name, scopedPrefix), dbSuffix)
	if key == "" || NormalizeScope(key) != key {
		return "", false
	}
	return key, true
}

// BackupPath returns the sibling path a snapshot of dbPath is written to:
// <original-name>.<label>.<stamp>.bak
func BackupPath(dbPath, label string, stampMillis int64) string {
	name := fmt.Sprintf("%s.%s.%d.bak", filepath.Base(dbPath), label, stampMillis)
	return filepath.Join(filepath.Dir(dbPath), name)
}

// DBGlob is the pattern matching every scope database in a directory.
func DBGlob(baseDir string) string {
	return filepath.Join(baseDir, "memories*"+dbSuffix)
}
