// Package config loads the runtime defaults cmd/opkitdemo and any other
// consumer of this module starts from: default retry count, backoff kind,
// the network threshold a store must observe before running, and the
// demo server's own bind address and log settings. Grounded on the
// teacher's cmd/warren flag/env layering, expressed here as a YAML file
// (gopkg.in/yaml.v3) with OPKIT_-prefixed environment overrides instead
// of cobra flags, since this package has no command of its own.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the demo binary's settings and the store defaults. Only the
// retry count and backoff reach an opkit.Client, through ClientDefaults;
// SatisfiedConnection is translated by SatisfiedConnectionStatus and is not
// applied to any store.
type Config struct {
	LogLevel  string `yaml:"log_level"`
	LogJSON   bool   `yaml:"log_json"`
	ServeAddr string `yaml:"serve_addr"`

	DefaultMaxRetries   int           `yaml:"default_max_retries"`
	DefaultBackoff      string        `yaml:"default_backoff"` // "none", "constant", "exponential"
	DefaultBackoffBase  time.Duration `yaml:"default_backoff_base"`
	SatisfiedConnection string        `yaml:"satisfied_connection"` // "disconnected", "requiresConnection", "connected"
}

// Default returns the configuration used when no file and no environment
// overrides are present.
func Default() Config {
	return Config{
		LogLevel:            "info",
		LogJSON:             false,
		ServeAddr:           ":8080",
		DefaultMaxRetries:   3,
		DefaultBackoff:      "exponential",
		DefaultBackoffBase:  200 * time.Millisecond,
		SatisfiedConnection: "requiresConnection",
	}
}

// Load reads path (if non-empty and present) over the defaults, then
// applies OPKIT_* environment overrides, in that order.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return cfg, fmt.Errorf("opkit/config: read %s: %w", path, err)
			}
		} else if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("opkit/config: parse %s: %w", path, err)
		}
	}

	applyEnv(&cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("OPKIT_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("OPKIT_LOG_JSON"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.LogJSON = b
		}
	}
	if v := os.Getenv("OPKIT_SERVE_ADDR"); v != "" {
		cfg.ServeAddr = v
	}
	if v := os.Getenv("OPKIT_DEFAULT_MAX_RETRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.DefaultMaxRetries = n
		}
	}
	if v := os.Getenv("OPKIT_DEFAULT_BACKOFF"); v != "" {
		cfg.DefaultBackoff = v
	}
	if v := os.Getenv("OPKIT_DEFAULT_BACKOFF_BASE"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.DefaultBackoffBase = d
		}
	}
	if v := os.Getenv("OPKIT_SATISFIED_CONNECTION"); v != "" {
		cfg.SatisfiedConnection = v
	}
}
