package collector

import (
	"errors"
	"time"
)

// Config configures the local collector.
type Config struct {
	// Enabled enables periodic local pulls.
	Enabled bool `yaml:"enabled"`

	// Interval is the time between pull rounds. Pulls inside the metrics'
	// minimum pull interval are skipped by the metrics themselves.
	// Defaults to 1h.
	Interval time.Duration `yaml:"interval"`

	// Output is the NDJSON file pulled rows are appended to.
	Output string `yaml:"output"`

	// BatchSize is the maximum number of rows per batch.
	// Defaults to 512.
	BatchSize int `yaml:"batch_size"`

	// BatchTimeout is the maximum duration to wait before writing a batch.
	// Defaults to 5s.
	BatchTimeout time.Duration `yaml:"batch_timeout"`

	// ExportTimeout is the maximum duration for a write.
	// Defaults to 30s.
	ExportTimeout time.Duration `yaml:"export_timeout"`

	// MaxQueueSize is the maximum number of rows to queue.
	// Rows are dropped if the queue is full.
	// Defaults to 8192.
	MaxQueueSize int `yaml:"max_queue_size"`

	// Workers is the number of concurrent writers.
	// Defaults to 1.
	Workers int `yaml:"workers"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Interval:      time.Hour,
		BatchSize:     512,
		BatchTimeout:  5 * time.Second,
		ExportTimeout: 30 * time.Second,
		MaxQueueSize:  8192,
		Workers:       1,
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if !c.Enabled {
		return nil
	}

	if c.Output == "" {
		return errors.New("collector output is required when enabled")
	}

	if c.Interval < 0 {
		return errors.New("collector interval must not be negative")
	}

	if c.BatchSize < 0 || c.MaxQueueSize < 0 {
		return errors.New("batch_size and max_queue_size must not be negative")
	}

	if c.BatchSize > 0 && c.MaxQueueSize > 0 && c.BatchSize > c.MaxQueueSize {
		return errors.New("batch_size cannot be greater than max_queue_size")
	}

	if c.Workers < 0 {
		return errors.New("workers must not be negative")
	}

	return nil
}

// ApplyDefaults applies default values to unset fields.
func (c *Config) ApplyDefaults() {
	defaults := DefaultConfig()

	if c.Interval <= 0 {
		c.Interval = defaults.Interval
	}

	if c.BatchSize <= 0 {
		c.BatchSize = defaults.BatchSize
	}

	if c.BatchTimeout <= 0 {
		c.BatchTimeout = defaults.BatchTimeout
	}

	if c.ExportTimeout <= 0 {
		c.ExportTimeout = defaults.ExportTimeout
	}

	if c.MaxQueueSize <= 0 {
		c.MaxQueueSize = defaults.MaxQueueSize
	}

	if c.Workers <= 0 {
		c.Workers = defaults.Workers
	}
}
