package agent

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/ethpandaops/callmetrics/internal/collector"
	"github.com/ethpandaops/callmetrics/internal/export"
	"github.com/ethpandaops/callmetrics/internal/storage"
	"github.com/ethpandaops/callmetrics/internal/telecom"
)

// Config is the top-level configuration for the callmetrics agent.
type Config struct {
	// LogLevel sets the logging verbosity (debug, info, warn, error).
	LogLevel string `yaml:"log_level"`

	// Storage configures where metric snapshots are persisted.
	Storage storage.Config `yaml:"storage"`

	// Metrics configures persistence, pull limits and route tracking.
	Metrics telecom.Config `yaml:"metrics"`

	// Health configures the Prometheus health metrics server.
	Health export.HealthConfig `yaml:"health"`

	// Collector configures the periodic local pull and NDJSON output.
	Collector collector.Config `yaml:"collector"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		LogLevel: "info",
		Storage:  storage.DefaultConfig(),
		Metrics:  telecom.DefaultConfig(),
		Health: export.HealthConfig{
			Addr: ":9090",
		},
		Collector: collector.DefaultConfig(),
	}
}

// LoadConfig reads and parses a YAML configuration file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file %s: %w", path, err)
	}

	cfg := DefaultConfig()

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Validate checks the configuration for required fields and consistency.
func (c *Config) Validate() error {
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("log_level: %w", err)
	}

	if err := c.Storage.Validate(); err != nil {
		return fmt.Errorf("storage: %w", err)
	}

	if err := c.Metrics.Validate(); err != nil {
		return fmt.Errorf("metrics: %w", err)
	}

	if c.Health.Enabled && c.Health.Addr == "" {
		return fmt.Errorf("health.addr is required when health is enabled")
	}

	if err := c.Collector.Validate(); err != nil {
		return fmt.Errorf("collector: %w", err)
	}

	return nil
}
