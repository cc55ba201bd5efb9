// Package config defines the server's application configuration.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level server configuration.
type Config struct {
	Server    ServerConfig    `json:"server" yaml:"server"`
	Database  DatabaseConfig  `json:"database" yaml:"database"`
	Scheduler SchedulerConfig `json:"scheduler" yaml:"scheduler"`
}

// ServerConfig controls the HTTP server.
type ServerConfig struct {
	Addr string `json:"addr" yaml:"addr"` // listen address, e.g., ":8080"
}

// DatabaseConfig controls SQLite storage.
type DatabaseConfig struct {
	Path string `json:"path" yaml:"path"` // database file; ":memory:" for ephemeral
}

// SchedulerConfig controls the materialization heartbeat.
type SchedulerConfig struct {
	Enabled bool `json:"enabled" yaml:"enabled"`

	// CheckInterval is a Go duration string, e.g. "1h" or "10m".
	CheckInterval string `json:"check_interval" yaml:"check_interval"`

	// HorizonDays is how many days past today an occurrence may lie and
	// still be persisted by a pass. 1 means "today or tomorrow".
	HorizonDays int `json:"horizon_days" yaml:"horizon_days"`
}

// Interval parses CheckInterval, falling back to one hour when unset or
// malformed.
func (s SchedulerConfig) Interval() time.Duration {
	d, err := time.ParseDuration(s.CheckInterval)
	if err != nil || d <= 0 {
		return 1 * time.Hour
	}
	return d
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Addr: ":8080",
		},
		Database: DatabaseConfig{
			Path: "./data/tasks.db",
		},
		Scheduler: SchedulerConfig{
			Enabled:       true,
			CheckInterval: "1h",
			HorizonDays:   1,
		},
	}
}

// Load reads a YAML config file and returns the parsed configuration.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}
