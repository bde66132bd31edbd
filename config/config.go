// Package config loads golem settings from YAML with environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Store kinds understood by Config.Driver.
const (
	DriverMongo    = "mongo"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Config holds the settings of a golem process.
//
// Example YAML:
//
//	driver: mongo
//	uri: mongodb://localhost:27017
//	database: app
//	documentPool: true
//	log:
//	  level: info
//	  debugMiddleware: false
type Config struct {
	Driver       string `yaml:"driver"`
	URI          string `yaml:"uri"`
	Database     string `yaml:"database"`
	DocumentPool bool   `yaml:"documentPool"`
	Log          Log    `yaml:"log"`
	Metrics      bool   `yaml:"metrics"`
}

// Log configures logging.
type Log struct {
	Level string `yaml:"level"`
	// DebugMiddleware logs every store operation at debug level.
	DebugMiddleware bool `yaml:"debugMiddleware"`
}

// Default returns the settings used when nothing is configured: an
// in-memory store with the document pool enabled.
func Default() Config {
	return Config{
		Driver:       DriverMemory,
		Database:     "golem",
		DocumentPool: true,
		Log:          Log{Level: "info"},
	}
}

// Load reads path over the defaults, applies GOLEM_* environment overrides
// and validates the result. An empty path skips the file.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("config: %w", err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// applyEnv overrides settings from GOLEM_DRIVER, GOLEM_URI, GOLEM_DATABASE,
// GOLEM_DOCUMENT_POOL, GOLEM_LOG_LEVEL, GOLEM_DEBUG_MIDDLEWARE and
// GOLEM_METRICS.
func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup("GOLEM_DRIVER"); ok {
		c.Driver = v
	}
	if v, ok := lookup("GOLEM_URI"); ok {
		c.URI = v
	}
	if v, ok := lookup("GOLEM_DATABASE"); ok {
		c.Database = v
	}
	if v, ok := lookup("GOLEM_LOG_LEVEL"); ok {
		c.Log.Level = v
	}
	boolList := []struct {
		name   string
		target *bool
	}{
		{"GOLEM_DOCUMENT_POOL", &c.DocumentPool},
		{"GOLEM_DEBUG_MIDDLEWARE", &c.Log.DebugMiddleware},
		{"GOLEM_METRICS", &c.Metrics},
	}
	for _, entry := range boolList {
		v, ok := lookup(entry.name)
		if !ok {
			continue
		}
		parsed, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("config: %s: %w", entry.name, err)
		}
		*entry.target = parsed
	}
	return nil
}

// Validate reports unknown drivers and missing connection settings.
func (c Config) Validate() error {
	var errList []error
	switch strings.ToLower(c.Driver) {
	case DriverMongo, DriverPostgres:
		if c.URI == "" {
			errList = append(errList, fmt.Errorf("config: driver %q requires uri", c.Driver))
		}
	case DriverMemory:
	default:
		errList = append(errList, fmt.Errorf("config: unknown driver %q", c.Driver))
	}
	if c.Driver == DriverMongo && c.Database == "" {
		errList = append(errList, errors.New("config: driver \"mongo\" requires database"))
	}
	return errors.Join(errList...)
}
