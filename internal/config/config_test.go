package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.DataDir == "" {
		t.Error("DataDir should not be empty")
	}
	if cfg.Connection.Strategy != StrategyAuto {
		t.Errorf("Connection.Strategy = %q, want %q", cfg.Connection.Strategy, StrategyAuto)
	}
	if cfg.Connection.BusyTimeoutMs != 5000 {
		t.Errorf("Connection.BusyTimeoutMs = %d, want 5000", cfg.Connection.BusyTimeoutMs)
	}
	if cfg.Connection.MaxOpenScopes <= 0 {
		t.Error("MaxOpenScopes should be positive")
	}
	if cfg.IDs.Strategy != IDStrategyCounter {
		t.Errorf("IDs.Strategy = %q, want %q", cfg.IDs.Strategy, IDStrategyCounter)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("Logging.Level = %q, want %q", cfg.Logging.Level, "info")
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("DefaultConfig().Validate() = %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Config)
		wantField string
	}{
		{"empty data dir", func(c *Config) { c.DataDir = " " }, "data_dir"},
		{"bad strategy", func(c *Config) { c.Connection.Strategy = "shared" }, "connection.strategy"},
		{"negative busy timeout", func(c *Config) { c.Connection.BusyTimeoutMs = -1 }, "connection.busy_timeout_ms"},
		{"zero open scopes", func(c *Config) { c.Connection.MaxOpenScopes = 0 }, "connection.max_open_scopes"},
		{"zero conns", func(c *Config) { c.Connection.MaxConnsPerScope = 0 }, "connection.max_conns_per_scope"},
		{"bad id strategy", func(c *Config) { c.IDs.Strategy = "snowflake" }, "ids.strategy"},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }, "logging.format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			var cfgErr *ConfigError
			if !errors.As(err, &cfgErr) {
				t.Fatalf("Validate() = %v, want *ConfigError", err)
			}
			if cfgErr.Field != tt.wantField {
				t.Errorf("Field = %q, want %q", cfgErr.Field, tt.wantField)
			}
		})
	}
}

func TestResolveStrategy(t *testing.T) {
	tests := []struct {
		strategy string
		goos     string
		want     string
	}{
		{StrategyAuto, "linux", StrategyPooled},
		{StrategyAuto, "darwin", StrategyPooled},
		{StrategyAuto, "android", StrategyEphemeral},
		{StrategyAuto, "ios", StrategyEphemeral},
		{"", "windows", StrategyPooled},
		{StrategyPooled, "android", StrategyPooled},
		{StrategyEphemeral, "linux", StrategyEphemeral},
	}

	for _, tt := range tests {
		t.Run(tt.strategy+"/"+tt.goos, func(t *testing.T) {
			if got := resolveStrategy(tt.strategy, tt.goos); got != tt.want {
				t.Errorf("resolveStrategy(%q, %q) = %q, want %q", tt.strategy, tt.goos, got, tt.want)
			}
		})
	}
}

func TestLoad_NoFileUsesDefaults(t *testing.T) {
	dir := t.TempDir()

	result, err := Load("", dir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !result.UsedDefaults {
		t.Error("UsedDefaults = false, want true")
	}
	if result.Config.DataDir != dir {
		t.Errorf("DataDir = %q, want %q", result.Config.DataDir, dir)
	}
	if result.Config.Connection.BusyTimeoutMs != 5000 {
		t.Errorf("BusyTimeoutMs = %d, want 5000", result.Config.Connection.BusyTimeoutMs)
	}
}

func TestSaveAndLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, FileName)

	cfg := DefaultConfig()
	cfg.DataDir = dir
	cfg.Connection.Strategy = StrategyEphemeral
	cfg.Connection.MaxOpenScopes = 8
	cfg.IDs.Strategy = IDStrategyUUID
	cfg.Logging.Level = "debug"

	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	result, err := Load("", dir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if result.UsedDefaults {
		t.Error("UsedDefaults = true, want false")
	}
	if result.ConfigPath != path {
		t.Errorf("ConfigPath = %q, want %q", result.ConfigPath, path)
	}

	got := result.Config
	if got.Connection.Strategy != StrategyEphemeral {
		t.Errorf("Strategy = %q, want %q", got.Connection.Strategy, StrategyEphemeral)
	}
	if got.Connection.MaxOpenScopes != 8 {
		t.Errorf("MaxOpenScopes = %d, want 8", got.Connection.MaxOpenScopes)
	}
	if got.IDs.Strategy != IDStrategyUUID {
		t.Errorf("IDs.Strategy = %q, want %q", got.IDs.Strategy, IDStrategyUUID)
	}
	if got.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want %q", got.Logging.Level, "debug")
	}
}

func TestLoad_EnvOverride(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("MEMSTORE_CONNECTION_STRATEGY", StrategyPooled)
	t.Setenv("MEMSTORE_IDS_STRATEGY", IDStrategyUUID)

	result, err := Load("", dir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if result.Config.Connection.Strategy != StrategyPooled {
		t.Errorf("Strategy = %q, want %q", result.Config.Connection.Strategy, StrategyPooled)
	}
	if result.Config.IDs.Strategy != IDStrategyUUID {
		t.Errorf("IDs.Strategy = %q, want %q", result.Config.IDs.Strategy, IDStrategyUUID)
	}
}

func TestLoad_InvalidFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.toml")
	if err := os.WriteFile(path, []byte("[connection]\nstrategy = \"bogus\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := Load(path, dir)
	var cfgErr *ConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("Load() = %v, want *ConfigError", err)
	}
}

func TestEnvVars(t *testing.T) {
	vars := EnvVars()
	if len(vars) != len(settingKeys) {
		t.Fatalf("EnvVars() returned %d entries, want %d", len(vars), len(settingKeys))
	}

	want := map[string]string{
		"MEMSTORE_DATA_DIR":                       "data_dir",
		"MEMSTORE_CONNECTION_MAX_CONNS_PER_SCOPE": "connection.max_conns_per_scope",
		"MEMSTORE_LOGGING_FILE":                   "logging.file",
	}
	for _, v := range vars {
		if key, ok := want[v.Name]; ok && key != v.Key {
			t.Errorf("%s maps to %q, want %q", v.Name, v.Key, key)
		}
		delete(want, v.Name)
	}
	if len(want) != 0 {
		t.Errorf("missing env vars: %v", want)
	}
}
