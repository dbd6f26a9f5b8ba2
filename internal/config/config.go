package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/spf13/viper"
)

// FileName is the config file looked up in the data directory.
const FileName = "memstore.toml"

// EnvPrefix prefixes every environment override (MEMSTORE_DATA_DIR, ...).
const EnvPrefix = "MEMSTORE"

// Connection strategies
const (
	StrategyAuto      = "auto"
	StrategyPooled    = "pooled"
	StrategyEphemeral = "ephemeral"
)

// ID strategies
const (
	IDStrategyCounter = "counter"
	IDStrategyUUID    = "uuid"
)

// Config represents the complete memstore configuration
type Config struct {
	DataDir    string           `json:"data_dir" toml:"data_dir" mapstructure:"data_dir"`
	Connection ConnectionConfig `json:"connection" toml:"connection" mapstructure:"connection"`
	IDs        IDConfig         `json:"ids" toml:"ids" mapstructure:"ids"`
	Logging    LoggingConfig    `json:"logging" toml:"logging" mapstructure:"logging"`
}

// ConnectionConfig controls how scope databases are opened and cached
type ConnectionConfig struct {
	Strategy         string `json:"strategy" toml:"strategy" mapstructure:"strategy"`
	BusyTimeoutMs    int    `json:"busy_timeout_ms" toml:"busy_timeout_ms" mapstructure:"busy_timeout_ms"`
	MaxOpenScopes    int    `json:"max_open_scopes" toml:"max_open_scopes" mapstructure:"max_open_scopes"`
	MaxConnsPerScope int    `json:"max_conns_per_scope" toml:"max_conns_per_scope" mapstructure:"max_conns_per_scope"`
}

// IDConfig selects the memory id generator
type IDConfig struct {
	Strategy string `json:"strategy" toml:"strategy" mapstructure:"strategy"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Format    string `json:"format" toml:"format" mapstructure:"format"`
	Level     string `json:"level" toml:"level" mapstructure:"level"`
	File      string `json:"file" toml:"file" mapstructure:"file"`
	MaxSizeMB int    `json:"max_size_mb" toml:"max_size_mb" mapstructure:"max_size_mb"`
	MaxFiles  int    `json:"max_files" toml:"max_files" mapstructure:"max_files"`
}

// DefaultDataDir returns <user config dir>/memstore, falling back to the
// working directory when the platform reports none.
func DefaultDataDir() string {
	dir, err := os.UserConfigDir()
	if err != nil || dir == "" {
		return filepath.Join(".", ".memstore")
	}
	return filepath.Join(dir, "memstore")
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		DataDir: DefaultDataDir(),
		Connection: ConnectionConfig{
			Strategy:         StrategyAuto,
			BusyTimeoutMs:    5000,
			MaxOpenScopes:    64,
			MaxConnsPerScope: 4,
		},
		IDs: IDConfig{
			Strategy: IDStrategyCounter,
		},
		Logging: LoggingConfig{
			Format:    "human",
			Level:     "info",
			MaxSizeMB: 10,
			MaxFiles:  5,
		},
	}
}

// LoadResult carries the loaded config and where it came from
type LoadResult struct {
	Config       *Config
	ConfigPath   string
	UsedDefaults bool
}

// Load reads configuration from configPath, or from <dataDir>/memstore.toml
// when configPath is empty. Environment variables override file values.
func Load(configPath, dataDir string) (*LoadResult, error) {
	defaults := DefaultConfig()
	if dataDir != "" {
		defaults.DataDir = dataDir
	}

	v := viper.New()
	setDefaults(v, defaults)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName(strings.TrimSuffix(FileName, filepath.Ext(FileName)))
		v.SetConfigType("toml")
		v.AddConfigPath(defaults.DataDir)
	}

	result := &LoadResult{}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		result.UsedDefaults = true
	} else {
		result.ConfigPath = v.ConfigFileUsed()
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if dataDir != "" {
		cfg.DataDir = dataDir
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	result.Config = &cfg
	return result, nil
}

func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("data_dir", d.DataDir)
	v.SetDefault("connection.strategy", d.Connection.Strategy)
	v.SetDefault("connection.busy_timeout_ms", d.Connection.BusyTimeoutMs)
	v.SetDefault("connection.max_open_scopes", d.Connection.MaxOpenScopes)
	v.SetDefault("connection.max_conns_per_scope", d.Connection.MaxConnsPerScope)
	v.SetDefault("ids.strategy", d.IDs.Strategy)
	v.SetDefault("logging.format", d.Logging.Format)
	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.file", d.Logging.File)
	v.SetDefault("logging.max_size_mb", d.Logging.MaxSizeMB)
	v.SetDefault("logging.max_files", d.Logging.MaxFiles)
}

// settingKeys lists every key that can be set in the file or environment.
var settingKeys = []string{
	"data_dir",
	"connection.strategy",
	"connection.busy_timeout_ms",
	"connection.max_open_scopes",
	"connection.max_conns_per_scope",
	"ids.strategy",
	"logging.format",
	"logging.level",
	"logging.file",
	"logging.max_size_mb",
	"logging.max_files",
}

// EnvVar maps an environment variable to the setting it overrides.
type EnvVar struct {
	Name string `json:"name"`
	Key  string `json:"key"`
}

// EnvVars returns the supported environment overrides.
func EnvVars() []EnvVar {
	out := make([]EnvVar, 0, len(settingKeys))
	for _, key := range settingKeys {
		out = append(out, EnvVar{
			Name: EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_")),
			Key:  key,
		})
	}
	return out
}

// Save writes the configuration as TOML
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	if err := toml.NewEncoder(f).Encode(c); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return f.Sync()
}

// ResolvedStrategy maps "auto" to the strategy suited to the host OS.
// Mobile hosts restrict long-lived file descriptors, so they get ephemeral
// handles; everything else pools.
func (c *Config) ResolvedStrategy() string {
	return resolveStrategy(c.Connection.Strategy, runtime.GOOS)
}

func resolveStrategy(strategy, goos string) string {
	if strategy != StrategyAuto && strategy != "" {
		return strategy
	}
	switch goos {
	case "android", "ios":
		return StrategyEphemeral
	default:
		return StrategyPooled
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if strings.TrimSpace(c.DataDir) == "" {
		return &ConfigError{Field: "data_dir", Message: "must not be empty"}
	}

	switch c.Connection.Strategy {
	case StrategyAuto, StrategyPooled, StrategyEphemeral:
	default:
		return &ConfigError{Field: "connection.strategy", Message: fmt.Sprintf("unknown strategy %q", c.Connection.Strategy)}
	}
	if c.Connection.BusyTimeoutMs < 0 {
		return &ConfigError{Field: "connection.busy_timeout_ms", Message: "must not be negative"}
	}
	if c.Connection.MaxOpenScopes <= 0 {
		return &ConfigError{Field: "connection.max_open_scopes", Message: "must be positive"}
	}
	if c.Connection.MaxConnsPerScope <= 0 {
		return &ConfigError{Field: "connection.max_conns_per_scope", Message: "must be positive"}
	}

	switch c.IDs.Strategy {
	case IDStrategyCounter, IDStrategyUUID:
	default:
		return &ConfigError{Field: "ids.strategy", Message: fmt.Sprintf("unknown strategy %q", c.IDs.Strategy)}
	}

	switch c.Logging.Format {
	case "human", "json":
	default:
		return &ConfigError{Field: "logging.format", Message: fmt.Sprintf("unknown format %q", c.Logging.Format)}
	}
	return nil
}

// ConfigError represents a configuration error
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return "config error in field '" + e.Field + "': " + e.Message
}
