// Package config provides configuration loading and validation.
package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/artpar/entityapi/core/schema"
)

// Config is the root configuration structure.
type Config struct {
	Database DatabaseConfig `yaml:"database"`
	Schema   SchemaConfig   `yaml:"schema"`
	Logging  LoggingConfig  `yaml:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// DatabaseConfig configures the backing store of the entity hooks.
type DatabaseConfig struct {
	Driver string `yaml:"driver"` // "sqlite"
	DSN    string `yaml:"dsn"`
}

// SchemaConfig configures directive parsing.
type SchemaConfig struct {
	Prefix string `yaml:"prefix"` // Directive prefix (default: @Api\)
	Strict bool   `yaml:"strict"` // Reject unknown directives and arguments
	Dir    string `yaml:"dir"`    // Extra declaration files parsed on startup
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // "debug", "info", "warn", "error"
	Format string `yaml:"format"` // "json" or "console"
}

// MetricsConfig configures Prometheus metrics.
type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Namespace string `yaml:"namespace"`
	Textfile  string `yaml:"textfile"` // Registry dump written on exit
}

// SchemaOptions returns the parse options for the schema registry.
func (c *Config) SchemaOptions() schema.Options {
	return schema.Options{Prefix: c.Schema.Prefix, Strict: c.Schema.Strict}
}

// Load reads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	// Expand environment variables
	data = []byte(os.ExpandEnv(string(data)))

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	// Apply environment variable overrides
	applyEnvOverrides(&cfg)

	setDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

// LoadFromEnv creates configuration entirely from environment variables.
//
// Environment variables:
//
//	ENTITYAPI_DATABASE_DRIVER  - Store driver (default: sqlite)
//	ENTITYAPI_DATABASE_DSN     - Database path (default: entityapi.db)
//	ENTITYAPI_SCHEMA_PREFIX    - Directive prefix (default: @Api\)
//	ENTITYAPI_SCHEMA_STRICT    - Reject unknown directives (default: false)
//	ENTITYAPI_SCHEMA_DIR       - Declaration directory parsed on startup
//	ENTITYAPI_LOG_LEVEL        - Log level: debug, info, warn, error (default: info)
//	ENTITYAPI_LOG_FORMAT       - Log format: json or console (default: console)
//	ENTITYAPI_METRICS_ENABLED  - Collect metrics (default: false)
//	ENTITYAPI_METRICS_TEXTFILE - Write metrics to this file on exit
func LoadFromEnv() (*Config, error) {
	var cfg Config

	applyEnvOverrides(&cfg)
	setDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

// LoadWithFallback loads from file when path names an existing file,
// otherwise from environment variables and defaults.
func LoadWithFallback(path string) (*Config, error) {
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			return Load(path)
		}
	}
	return LoadFromEnv()
}

// applyEnvOverrides applies ENTITYAPI_* environment variables to the config.
// Environment variables always override file-based configuration.
func applyEnvOverrides(cfg *Config) {
	// Database configuration
	if v := os.Getenv("ENTITYAPI_DATABASE_DRIVER"); v != "" {
		cfg.Database.Driver = v
	}
	if v := os.Getenv("ENTITYAPI_DATABASE_DSN"); v != "" {
		cfg.Database.DSN = v
	}

	// Schema configuration
	if v := os.Getenv("ENTITYAPI_SCHEMA_PREFIX"); v != "" {
		cfg.Schema.Prefix = v
	}
	if v := os.Getenv("ENTITYAPI_SCHEMA_STRICT"); v != "" {
		cfg.Schema.Strict = parseBool(v)
	}
	if v := os.Getenv("ENTITYAPI_SCHEMA_DIR"); v != "" {
		cfg.Schema.Dir = v
	}

	// Logging configuration
	if v := os.Getenv("ENTITYAPI_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("ENTITYAPI_LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}

	// Metrics configuration
	if v := os.Getenv("ENTITYAPI_METRICS_ENABLED"); v != "" {
		cfg.Metrics.Enabled = parseBool(v)
	}
	if v := os.Getenv("ENTITYAPI_METRICS_NAMESPACE"); v != "" {
		cfg.Metrics.Namespace = v
	}
	if v := os.Getenv("ENTITYAPI_METRICS_TEXTFILE"); v != "" {
		cfg.Metrics.Textfile = v
	}
}

// parseBool parses a boolean from common string values.
func parseBool(v string) bool {
	v = strings.ToLower(strings.TrimSpace(v))
	return v == "true" || v == "1" || v == "yes" || v == "on"
}

func setDefaults(cfg *Config) {
	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "sqlite"
	}
	if cfg.Database.DSN == "" {
		cfg.Database.DSN = "entityapi.db"
	}

	if cfg.Schema.Prefix == "" {
		cfg.Schema.Prefix = schema.DefaultPrefix
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "console"
	}

	if cfg.Metrics.Namespace == "" {
		cfg.Metrics.Namespace = "entityapi"
	}
}

func validate(cfg *Config) error {
	if cfg.Database.Driver != "sqlite" {
		return fmt.Errorf("database.driver must be 'sqlite', got %q", cfg.Database.Driver)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(cfg.Logging.Level)] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}

	validFormats := map[string]bool{"json": true, "console": true}
	if !validFormats[cfg.Logging.Format] {
		return fmt.Errorf("logging.format must be 'json' or 'console', got %q", cfg.Logging.Format)
	}

	if strings.ContainsAny(cfg.Schema.Prefix, " \t\n(") {
		return fmt.Errorf("schema.prefix must not contain whitespace or '(', got %q", cfg.Schema.Prefix)
	}

	if cfg.Metrics.Textfile != "" && !cfg.Metrics.Enabled {
		return fmt.Errorf("metrics.textfile requires metrics.enabled")
	}

	return nil
}
