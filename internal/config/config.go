// Package config loads crewkit configuration.
//
// Load order (later sources override earlier):
//  1. Built-in defaults
//  2. User config (~/.crewkit/config.yaml) - optional
//  3. Project config (.crewkit/config.yaml) - optional
//  4. Environment variables (CREWKIT_*)
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/crewkit/crewkit/internal/errors"
	"github.com/crewkit/crewkit/internal/strategy"
)

// Directory and file names.
const (
	CrewkitDir     = ".crewkit"
	ConfigFileName = "config.yaml"
)

// Config is the resolved crewkit configuration.
type Config struct {
	// Strategy selects the default execution strategy for runs.
	Strategy string `yaml:"strategy"`

	// MaxConcurrency bounds simultaneous task executions per run.
	MaxConcurrency int `yaml:"max_concurrency"`

	// Workflows is the glob pattern used to discover workflow files.
	Workflows string `yaml:"workflows"`

	Log         LogConfig         `yaml:"log"`
	Persistence PersistenceConfig `yaml:"persistence"`
	API         APIConfig         `yaml:"api"`
}

// LogConfig configures structured logging.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level"`

	// Format is "text" or "json".
	Format string `yaml:"format"`
}

// PersistenceConfig configures the optional event log audit store.
type PersistenceConfig struct {
	// Enabled turns on persisting every run's event log.
	Enabled bool `yaml:"enabled"`

	// Dialect is "sqlite" or "postgres".
	Dialect string `yaml:"dialect"`

	// DSN is a file path for sqlite or a connection string for postgres.
	DSN string `yaml:"dsn"`
}

// APIConfig configures the control API server.
type APIConfig struct {
	// Addr is the listen address for `crewkit serve`.
	Addr string `yaml:"addr"`
}

// Default returns the built-in defaults.
func Default() *Config {
	return &Config{
		Strategy:       strategy.NameDeterministic,
		MaxConcurrency: 4,
		Workflows:      filepath.Join(CrewkitDir, "workflows", "*.yaml"),
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Persistence: PersistenceConfig{
			Dialect: "sqlite",
			DSN:     filepath.Join(CrewkitDir, "crewkit.db"),
		},
		API: APIConfig{
			Addr: "127.0.0.1:7420",
		},
	}
}

// Load resolves the configuration for the current directory.
func Load() (*Config, error) {
	cfg := Default()

	if home, err := os.UserHomeDir(); err == nil {
		userPath := filepath.Join(home, CrewkitDir, ConfigFileName)
		if _, err := os.Stat(userPath); err == nil {
			if err := mergeFromFile(cfg, userPath); err != nil {
				slog.Warn("failed to load user config", "path", userPath, "error", err)
			}
		}
	}

	projectPath := filepath.Join(CrewkitDir, ConfigFileName)
	if _, err := os.Stat(projectPath); err == nil {
		if err := mergeFromFile(cfg, projectPath); err != nil {
			return nil, err
		}
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile loads a single config file over the defaults, ignoring the user
// and project search path.
func LoadFile(path string) (*Config, error) {
	cfg := Default()
	if err := mergeFromFile(cfg, path); err != nil {
		return nil, err
	}
	applyEnv(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cross-field invariants.
func (c *Config) Validate() error {
	if _, err := strategy.New(c.Strategy); err != nil {
		return errors.ErrConfigInvalid("strategy", err.Error())
	}
	if c.MaxConcurrency < 1 {
		return errors.ErrConfigInvalid("max_concurrency", "must be at least 1")
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return errors.ErrConfigInvalid("log.level", fmt.Sprintf("unknown level %q", c.Log.Level))
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return errors.ErrConfigInvalid("log.format", fmt.Sprintf("unknown format %q", c.Log.Format))
	}
	if c.Persistence.Enabled {
		switch c.Persistence.Dialect {
		case "sqlite", "postgres":
		default:
			return errors.ErrConfigInvalid("persistence.dialect",
				fmt.Sprintf("unknown dialect %q", c.Persistence.Dialect))
		}
		if c.Persistence.DSN == "" {
			return errors.ErrConfigInvalid("persistence.dsn", "required when persistence is enabled")
		}
	}
	return nil
}

// SlogLevel maps the configured level to slog.
func (c *Config) SlogLevel() slog.Level {
	switch c.Log.Level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func mergeFromFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

// applyEnv overrides config fields from CREWKIT_* environment variables.
func applyEnv(cfg *Config) {
	if v := os.Getenv("CREWKIT_STRATEGY"); v != "" {
		cfg.Strategy = v
	}
	if v := os.Getenv("CREWKIT_MAX_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MaxConcurrency = n
		}
	}
	if v := os.Getenv("CREWKIT_WORKFLOWS"); v != "" {
		cfg.Workflows = v
	}
	if v := os.Getenv("CREWKIT_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("CREWKIT_LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
	if v := os.Getenv("CREWKIT_DB_DIALECT"); v != "" {
		cfg.Persistence.Dialect = v
	}
	if v := os.Getenv("CREWKIT_DB_DSN"); v != "" {
		cfg.Persistence.DSN = v
	}
	if v := os.Getenv("CREWKIT_API_ADDR"); v != "" {
		cfg.API.Addr = v
	}
}
