// Package config loads sleevemark configuration from a YAML file with
// environment overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"sleevemark/internal/blob"
)

// Storage drivers.
const (
	StorageMemory   = "memory"   // in-memory only (tests / ephemeral)
	StorageSQLite   = "sqlite"   // embedded sqlite file
	StoragePostgres = "postgres" // PostgreSQL server
)

// Config holds all sleevemark configuration.
type Config struct {
	Storage  StorageConfig  `yaml:"storage"`
	Blob     blob.Options   `yaml:"blob"`
	Logging  LoggingConfig  `yaml:"logging"`
	Transfer TransferConfig `yaml:"transfer"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// StorageConfig selects the zone, snapshot and document store.
type StorageConfig struct {
	Driver      string `yaml:"driver"`
	SQLitePath  string `yaml:"sqlite_path"`
	PostgresDSN string `yaml:"postgres_dsn"`
}

// LoggingConfig configures the zap logger.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
}

// TransferConfig tunes batch transfers.
type TransferConfig struct {
	// Workers bounds the parallel calculate phase when a transfer
	// configuration does not set its own; zero uses GOMAXPROCS.
	Workers int `yaml:"workers"`
}

// MetricsConfig configures metric export.
type MetricsConfig struct {
	// TextfilePath, when set, receives a Prometheus text exposition after each command.
	TextfilePath string `yaml:"textfile_path"`
	// TraceFile, when set, receives one JSON line per service operation.
	TraceFile    string `yaml:"trace_file"`
}

// DefaultConfig returns the configuration used when no file exists.
func DefaultConfig() *Config {
	return &Config{
		Storage: StorageConfig{
			Driver:     StorageSQLite,
			SQLitePath: "./sleevemark.db",
		},
		Blob: blob.Options{
			Driver: blob.DriverFilesystem,
			FSRoot: "./blobdata",
		},
		Logging: LoggingConfig{Level: "info"},
	}
}

// Load reads path, falling back to defaults when it does not exist, and
// applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config: %w", err)
			}
		case os.IsNotExist(err):
		default:
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}
	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the configuration to a YAML file.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// applyEnvOverrides applies SLEEVEMARK_* variables.
//
//	SLEEVEMARK_STORAGE_DRIVER: memory|sqlite|postgres
//	SLEEVEMARK_SQLITE_PATH, SLEEVEMARK_POSTGRES_DSN
//	SLEEVEMARK_LOG_LEVEL, SLEEVEMARK_TRANSFER_WORKERS
//	SLEEVEMARK_METRICS_TEXTFILE, SLEEVEMARK_TRACE_FILE
//	SLEEVEMARK_BLOB_* (see blob.OptionsFromEnv)
func (c *Config) applyEnvOverrides() error {
	if v := os.Getenv("SLEEVEMARK_STORAGE_DRIVER"); v != "" {
		c.Storage.Driver = strings.ToLower(v)
	}
	if v := os.Getenv("SLEEVEMARK_SQLITE_PATH"); v != "" {
		c.Storage.SQLitePath = v
	}
	if v := os.Getenv("SLEEVEMARK_POSTGRES_DSN"); v != "" {
		c.Storage.PostgresDSN = v
	}
	if v := os.Getenv("SLEEVEMARK_LOG_LEVEL"); v != "" {
		c.Logging.Level = strings.ToLower(v)
	}
	if v := os.Getenv("SLEEVEMARK_TRANSFER_WORKERS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("SLEEVEMARK_TRANSFER_WORKERS: %w", err)
		}
		c.Transfer.Workers = n
	}
	if v := os.Getenv("SLEEVEMARK_METRICS_TEXTFILE"); v != "" {
		c.Metrics.TextfilePath = v
	}
	if v := os.Getenv("SLEEVEMARK_TRACE_FILE"); v != "" {
		c.Metrics.TraceFile = v
	}
	c.Blob = blob.OptionsFromEnv(c.Blob)
	return nil
}

// Validate checks the configuration for values no component can accept.
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case StorageMemory, StorageSQLite:
	case StoragePostgres:
		if c.Storage.PostgresDSN == "" {
			return fmt.Errorf("storage: postgres driver requires a dsn")
		}
	default:
		return fmt.Errorf("storage: unknown driver %q", c.Storage.Driver)
	}
	switch c.Blob.Driver {
	case blob.DriverFilesystem, blob.DriverMemory, blob.DriverS3, "":
	default:
		return fmt.Errorf("blob: unknown driver %q", c.Blob.Driver)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error", "":
	default:
		return fmt.Errorf("logging: unknown level %q", c.Logging.Level)
	}
	if c.Transfer.Workers < 0 {
		return fmt.Errorf("transfer: workers must not be negative")
	}
	return nil
}
