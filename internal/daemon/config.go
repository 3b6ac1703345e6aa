// Package daemon manages the taskd daemon lifecycle and configuration.
package daemon

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Config holds all daemon configuration.
type Config struct {
	API       APIConfig       `toml:"api"`
	Logging   LoggingConfig   `toml:"logging"`
	Telemetry TelemetryConfig `toml:"telemetry"`
	Journal   JournalConfig   `toml:"journal"`
}

// APIConfig controls the HTTP API server.
type APIConfig struct {
	Host           string   `toml:"host"`
	Port           int      `toml:"port"`
	CORSOrigins    []string `toml:"cors_origins"`
	RequestTimeout string   `toml:"request_timeout"`
	MaxBodyBytes   int64    `toml:"max_body_bytes"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	Level string `toml:"level"` // "debug" enables request logging
	File  string `toml:"file"`  // empty logs to stderr
}

// TelemetryConfig controls metrics exposure.
type TelemetryConfig struct {
	Prometheus bool `toml:"prometheus"`
}

// JournalConfig controls the SQLite task event journal.
type JournalConfig struct {
	Enabled bool   `toml:"enabled"`
	Dir     string `toml:"dir"`
	Buffer  int    `toml:"buffer"`
}

// DefaultConfig returns a sensible default configuration.
func DefaultConfig() Config {
	return Config{
		API: APIConfig{
			Host:           "127.0.0.1",
			Port:           3000,
			CORSOrigins:    []string{"*"},
			RequestTimeout: "30s",
			MaxBodyBytes:   1 << 20,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		Telemetry: TelemetryConfig{
			Prometheus: true,
		},
		Journal: JournalConfig{
			Enabled: false,
			Dir:     taskdHome(),
			Buffer:  1024,
		},
	}
}

// Addr returns the host:port listen address.
func (c Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.API.Host, c.API.Port)
}

// BaseURL returns the URL clients use to reach the API.
func (c Config) BaseURL() string {
	host := c.API.Host
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}
	return fmt.Sprintf("http://%s:%d", host, c.API.Port)
}

// Validate rejects configurations the daemon cannot start with.
func (c Config) Validate() error {
	if c.API.Port < 0 || c.API.Port > 65535 {
		return fmt.Errorf("api.port %d out of range", c.API.Port)
	}
	if c.API.RequestTimeout != "" {
		if _, err := time.ParseDuration(c.API.RequestTimeout); err != nil {
			return fmt.Errorf("api.request_timeout: %w", err)
		}
	}
	switch c.Logging.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level %q: want debug, info, warn or error", c.Logging.Level)
	}
	if c.Journal.Enabled && c.Journal.Dir == "" {
		return fmt.Errorf("journal.dir is required when the journal is enabled")
	}
	return nil
}

// ConfigPath returns the location of config.toml.
func ConfigPath() string {
	return filepath.Join(taskdHome(), "config.toml")
}

// LoadConfig reads config from ~/.taskd/config.toml, falling back to defaults.
func LoadConfig() (Config, error) {
	return LoadConfigFile(ConfigPath())
}

// LoadConfigFile reads config from path, falling back to defaults when the
// file does not exist.
func LoadConfigFile(path string) (Config, error) {
	cfg := DefaultConfig()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil // no config file yet, use defaults
	}

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// SaveConfig writes the config to path.
func SaveConfig(path string, cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	return EncodeConfig(f, cfg)
}

// EncodeConfig writes cfg as TOML.
func EncodeConfig(w io.Writer, cfg Config) error {
	return toml.NewEncoder(w).Encode(cfg)
}

// taskdHome returns the taskd data directory.
func taskdHome() string {
	if env := os.Getenv("TASKD_HOME"); env != "" {
		return env
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".taskd")
}

// parseDuration parses a duration string, returning a fallback on error.
func parseDuration(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}
