// Package config loads the daemon configuration from YAML with
// environment overrides for secrets.
package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvAPIKey overrides the configured admin key when set. Keeps the
// secret out of config files checked into dotfile repos.
const EnvAPIKey = "HERALD_API_KEY"

// Storage backend selectors.
const (
	StorageFile   = "file"
	StorageSQLite = "sqlite"
	StorageMemory = "memory"
)

// Config is the daemon configuration.
type Config struct {
	Listen                  string `yaml:"listen"`
	DataDir                 string `yaml:"data_dir"`
	Storage                 string `yaml:"storage"`
	AdminKey                string `yaml:"admin_key"`
	MaxEvents               int    `yaml:"max_events"`
	MaxTelemetry            int    `yaml:"max_telemetry"`
	HeartbeatTimeoutSeconds int    `yaml:"heartbeat_timeout_seconds"`
	LogLevel                string `yaml:"log_level"`
}

// Default returns the configuration used when no config file exists.
func Default() Config {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return Config{
		Listen:                  ":8420",
		DataDir:                 filepath.Join(home, ".herald", "data"),
		Storage:                 StorageFile,
		MaxEvents:               10000,
		MaxTelemetry:            10000,
		HeartbeatTimeoutSeconds: 90,
		LogLevel:                "info",
	}
}

// Load reads the config file at path, filling unset fields from
// Default. A missing file is not an error: defaults apply. Unknown keys
// in the file are rejected.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err == nil {
			var file Config
			dec := yaml.NewDecoder(bytes.NewReader(data))
			dec.KnownFields(true)
			if err := dec.Decode(&file); err != nil {
				return Config{}, fmt.Errorf("failed to parse config %q: %w", path, err)
			}
			cfg = merge(cfg, file)
		} else if !os.IsNotExist(err) {
			return Config{}, fmt.Errorf("failed to read config %q: %w", path, err)
		}
	}

	if key := os.Getenv(EnvAPIKey); key != "" {
		cfg.AdminKey = key
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// HeartbeatTimeout returns the liveness window as a duration.
func (c Config) HeartbeatTimeout() time.Duration {
	return time.Duration(c.HeartbeatTimeoutSeconds) * time.Second
}

func (c Config) validate() error {
	switch c.Storage {
	case StorageFile, StorageSQLite, StorageMemory:
	default:
		return fmt.Errorf("unknown storage backend %q", c.Storage)
	}
	if c.MaxEvents <= 0 {
		return fmt.Errorf("max_events must be positive, got %d", c.MaxEvents)
	}
	if c.MaxTelemetry <= 0 {
		return fmt.Errorf("max_telemetry must be positive, got %d", c.MaxTelemetry)
	}
	if c.HeartbeatTimeoutSeconds <= 0 {
		return fmt.Errorf("heartbeat_timeout_seconds must be positive, got %d", c.HeartbeatTimeoutSeconds)
	}
	return nil
}

func merge(base, file Config) Config {
	if file.Listen != "" {
		base.Listen = file.Listen
	}
	if file.DataDir != "" {
		base.DataDir = file.DataDir
	}
	if file.Storage != "" {
		base.Storage = file.Storage
	}
	if file.AdminKey != "" {
		base.AdminKey = file.AdminKey
	}
	if file.MaxEvents != 0 {
		base.MaxEvents = file.MaxEvents
	}
	if file.MaxTelemetry != 0 {
		base.MaxTelemetry = file.MaxTelemetry
	}
	if file.HeartbeatTimeoutSeconds != 0 {
		base.HeartbeatTimeoutSeconds = file.HeartbeatTimeoutSeconds
	}
	if file.LogLevel != "" {
		base.LogLevel = file.LogLevel
	}
	return base
}

// DefaultPath is the conventional config file location.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "herald.yaml"
	}
	return filepath.Join(home, ".herald", "config.yaml")
}
