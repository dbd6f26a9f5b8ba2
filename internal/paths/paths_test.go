package paths

import (
	"path/filepath"
	"strings"
	"testing"
)

func TestNormalizeScope(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"empty", "", ""},
		{"whitespace only", "   \t", ""},
		{"plain", "persona_a", "persona_a"},
		{"trimmed", "  persona-a  ", "persona-a"},
		{"dots kept", "v1.2", "v1.2"},
		{"spaces replaced", "my persona", "my_persona"},
		{"path separators", "../etc/passwd", ".._etc_passwd"},
		{"leading and trailing replaced chars stripped", "@@alice!!", "alice"},
		{"only invalid chars", "!!!", ""},
		{"non-ascii", "café", "caf"},
		{"inner underscores kept", "a__b", "a__b"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NormalizeScope(tt.input); got != tt.want {
				t.Errorf("NormalizeScope(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestNormalizeScope_Truncates(t *testing.T) {
	long := strings.Repeat("a", 200)

	got := NormalizeScope(long)
	if len(got) != MaxScopeLen {
		t.Errorf("len(NormalizeScope(200 chars)) = %d, want %d", len(got), MaxScopeLen)
	}

	// Truncation happens before trimming, so a cut landing on '_' is stripped.
	edge := strings.Repeat("b", MaxScopeLen-1) + "__tail"
	got = NormalizeScope(edge)
	if got != strings.Repeat("b", MaxScopeLen-1) {
		t.Errorf("NormalizeScope(edge) = %q, want %d b's", got, MaxScopeLen-1)
	}
}

func TestNormalizeScope_Deterministic(t *testing.T) {
	a := NormalizeScope("Persona #1")
	b := NormalizeScope("Persona #1")
	if a != b {
		t.Errorf("NormalizeScope not deterministic: %q vs %q", a, b)
	}

	// Documented collision: different inputs that normalize identically.
	if NormalizeScope("a b") != NormalizeScope("a?b") {
		t.Error("expected 'a b' and 'a?b' to share a scope key")
	}
}

func TestDBPath(t *testing.T) {
	base := filepath.Join("data", "app")

	if got, want := DBPath(base, ""), filepath.Join(base, "memories.db"); got != want {
		t.Errorf("DBPath(default) = %q, want %q", got, want)
	}
	if got, want := DBPath(base, "persona_a"), filepath.Join(base, "memories__persona_a.db"); got != want {
		t.Errorf("DBPath(persona_a) = %q, want %q", got, want)
	}
}

func TestResolveScope(t *testing.T) {
	key, path := ResolveScope("/base", "  my persona ")
	if key != "my_persona" {
		t.Errorf("key = %q, want %q", key, "my_persona")
	}
	if path != filepath.Join("/base", "memories__my_persona.db") {
		t.Errorf("path = %q", path)
	}
}

func TestScopeFromFileName(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		wantKey string
		wantOK  bool
	}{
		{"default", "memories.db", "", true},
		{"scoped", "memories__persona_a.db", "persona_a", true},
		{"backup", "memories.db.corrupt.1700000000000.bak", "", false},
		{"wal", "memories__x.db-wal", "", false},
		{"empty key", "memories__.db", "", false},
		{"unrelated", "config.json", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key, ok := ScopeFromFileName(tt.file)
			if ok != tt.wantOK || key != tt.wantKey {
				t.Errorf("ScopeFromFileName(%q) = (%q, %v), want (%q, %v)", tt.file, key, ok, tt.wantKey, tt.wantOK)
			}
		})
	}
}

func TestScopeFromFileName_RoundTrip(t *testing.T) {
	for _, key := range []string{"", "a", "persona-1.v2", "x_y"} {
		got, ok := ScopeFromFileName(DBFileName(key))
		if !ok || got != key {
			t.Errorf("round trip %q -> %q (ok=%v)", key, got, ok)
		}
	}
}

func TestBackupPath(t *testing.T) {
	dbPath := filepath.Join("/data", "memories__p.db")

	got := BackupPath(dbPath, "corrupt", 1700000000123)
	want := filepath.Join("/data", "memories__p.db.corrupt.1700000000123.bak")
	if got != want {
		t.Errorf("BackupPath() = %q, want %q", got, want)
	}
}
