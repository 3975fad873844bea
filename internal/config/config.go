// Package config reads and writes stm configuration.
//
// Values come from, in increasing precedence: built-in defaults, the YAML
// file at Path(), and STM_* environment variables (optionally loaded from a
// .env file with LoadEnv).
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

var (
	// ErrNoConfigPath is returned when the config path cannot be determined.
	ErrNoConfigPath = errors.New("cannot determine config path")
	// ErrInvalidValue is returned when a config value is invalid.
	ErrInvalidValue = errors.New("invalid config value")
)

// Environment variables that override file values
const (
	EnvDBDriver    = "STM_DB_DRIVER"
	EnvDBPath      = "STM_DB_PATH"
	EnvBusyTimeout = "STM_DB_BUSY_TIMEOUT_MS"
	EnvLogLevel    = "STM_LOG_LEVEL"
	EnvLogFormat   = "STM_LOG_FORMAT"
)

// Defaults applied when not configured.
const (
	DefaultDriver        = "sqlite3"
	DefaultBusyTimeoutMS = 5000
	DefaultLogLevel      = "info"
	DefaultLogFormat     = "text"
)

var (
	validDrivers = map[string]bool{"sqlite3": true, "sqlite": true}
	validLevels  = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	validFormats = map[string]bool{"text": true, "json": true}
)

// Database holds storage settings.
type Database struct {
	Driver        string `yaml:"driver,omitempty"`
	Path          string `yaml:"path,omitempty"`
	BusyTimeoutMS int    `yaml:"busy_timeout_ms,omitempty"`
}

// Log holds logging settings.
type Log struct {
	Level  string `yaml:"level,omitempty"`
	Format string `yaml:"format,omitempty"`
}

// Config contains configuration for stm.
type Config struct {
	Database Database `yaml:"database,omitempty"`
	Log      Log      `yaml:"log,omitempty"`

	// path is the file this config was loaded from (for Save)
	path string
}

// Default returns a configuration with every default filled in.
func Default() *Config {
	c := &Config{}
	c.applyDefaults()
	return c
}

func (c *Config) applyDefaults() {
	if c.Database.Driver == "" {
		c.Database.Driver = DefaultDriver
	}
	if c.Database.Path == "" {
		c.Database.Path = DefaultDBPath()
	}
	if c.Database.BusyTimeoutMS == 0 {
		c.Database.BusyTimeoutMS = DefaultBusyTimeoutMS
	}
	if c.Log.Level == "" {
		c.Log.Level = DefaultLogLevel
	}
	if c.Log.Format == "" {
		c.Log.Format = DefaultLogFormat
	}
}

// Validate checks that all configured values are within acceptable bounds.
func (c *Config) Validate() error {
	if !validDrivers[c.Database.Driver] {
		return fmt.Errorf("%w: database.driver must be sqlite3 or sqlite, got %q",
			ErrInvalidValue, c.Database.Driver)
	}
	if c.Database.Path == "" {
		return fmt.Errorf("%w: database.path is empty", ErrInvalidValue)
	}
	if c.Database.BusyTimeoutMS <= 0 {
		return fmt.Errorf("%w: database.busy_timeout_ms must be positive, got %d",
			ErrInvalidValue, c.Database.BusyTimeoutMS)
	}
	if !validLevels[c.Log.Level] {
		return fmt.Errorf("%w: log.level must be debug, info, warn or error, got %q",
			ErrInvalidValue, c.Log.Level)
	}
	if !validFormats[c.Log.Format] {
		return fmt.Errorf("%w: log.format must be text or json, got %q",
			ErrInvalidValue, c.Log.Format)
	}
	return nil
}

// Path returns the config file location: $XDG_CONFIG_HOME/stm/config.yaml,
// falling back to ~/.config/stm/config.yaml
func Path() string {
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		dir = filepath.Join(home, ".config")
	}
	return filepath.Join(dir, "stm", "config.yaml")
}

// DefaultDBPath returns $XDG_DATA_HOME/stm/stm.db, falling back to
// ~/.local/share/stm/stm.db
func DefaultDBPath() string {
	dir := os.Getenv("XDG_DATA_HOME")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		dir = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(dir, "stm", "stm.db")
}

// Load reads configuration from Path().
func Load() (*Config, error) {
	path := Path()
	if path == "" {
		return nil, ErrNoConfigPath
	}
	return LoadFile(path)
}

// LoadFile reads configuration from path. A missing file is not an error;
// defaults and environment overrides still apply.
func LoadFile(path string) (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("cannot read config file %s: %w", path, err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("malformed config file %s: %w", path, err)
		}
	}
	cfg.path = path

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// LoadEnv loads variables from the given .env files (".env" when none are
// given) into the process environment. Variables already set are kept.
// Missing files are ignored.
func LoadEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if _, err := os.Stat(f); errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return fmt.Errorf("loading %s: %w", f, err)
		}
	}
	return nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv(EnvDBDriver); v != "" {
		c.Database.Driver = v
	}
	if v := os.Getenv(EnvDBPath); v != "" {
		c.Database.Path = v
	}
	if v := os.Getenv(EnvBusyTimeout); v != "" {
		ms, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: %s=%q is not a number", ErrInvalidValue, EnvBusyTimeout, v)
		}
		c.Database.BusyTimeoutMS = ms
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv(EnvLogFormat); v != "" {
		c.Log.Format = v
	}
	return nil
}

// Save writes the configuration to the file it was loaded from, or Path().
func (c *Config) Save() error {
	if c.path == "" {
		c.path = Path()
	}
	if c.path == "" {
		return ErrNoConfigPath
	}
	return c.SaveFile(c.path)
}

// SaveFile writes configuration to path, creating parent directories.
func (c *Config) SaveFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshalling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}
