// Package pulled implements the generic pulled-metric aggregator: a
// keyed store mutated on a private task queue, persisted through a save
// coalescer, and served to a rate-limited external pull collector.
package pulled

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/sirupsen/logrus"

	"github.com/ethpandaops/callmetrics/internal/export"
	"github.com/ethpandaops/callmetrics/internal/storage"
)

// Default timings.
const (
	DefaultPersistDelay    = 30 * time.Second
	DefaultMinPullInterval = 23 * time.Hour
	DefaultQueueSize       = 1024
)

// ID identifies a pulled metric to the external collector.
type ID int32

// PullResult is the answer given to the external collector.
type PullResult int

const (
	// PullSuccess means events were appended to the sink.
	PullSuccess PullResult = iota
	// PullSkip means there is nothing to report, either because the
	// metric is empty or because it was pulled too recently. It is not
	// an error.
	PullSkip
)

// String returns the collector-facing name of the result.
func (r PullResult) String() string {
	if r == PullSuccess {
		return "success"
	}

	return "skip"
}

// Event is one pulled row: the dimension fields followed by the
// aggregate fields. Booleans are 0 or 1.
type Event struct {
	Metric ID
	Values []int64
}

// Sink receives pulled events.
type Sink interface {
	Append(event Event)
}

// SliceSink collects pulled events in memory.
type SliceSink struct {
	Events []Event
}

// Append adds event to the slice.
func (s *SliceSink) Append(event Event) {
	s.Events = append(s.Events, event)
}

// Puller is the surface the registry dispatches pulls and lifecycle
// calls to.
type Puller interface {
	ID() ID
	Name() string
	Pull(sink Sink) PullResult
	Peek() []Event
	Flush(ctx context.Context) error
	Reset(ctx context.Context) error
	Close()
}

// Config configures timings shared by every pulled metric.
type Config struct {
	// PersistDelay is the debounce window between an aggregation and the
	// write it triggers. Defaults to 30s.
	PersistDelay time.Duration `yaml:"persist_delay"`

	// MinPullInterval is the minimum time between two pulls that return
	// data. Defaults to 23h.
	MinPullInterval time.Duration `yaml:"min_pull_interval"`

	// QueueSize preallocates the task queue per metric. The queue grows
	// past it. Defaults to 1024.
	QueueSize int `yaml:"queue_size"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		PersistDelay:    DefaultPersistDelay,
		MinPullInterval: DefaultMinPullInterval,
		QueueSize:       DefaultQueueSize,
	}
}

// ApplyDefaults fills unset fields with defaults.
func (c *Config) ApplyDefaults() {
	if c.PersistDelay <= 0 {
		c.PersistDelay = DefaultPersistDelay
	}

	if c.MinPullInterval <= 0 {
		c.MinPullInterval = DefaultMinPullInterval
	}

	if c.QueueSize <= 0 {
		c.QueueSize = DefaultQueueSize
	}
}

// Options carries the collaborators a metric is built with.
type Options struct {
	Log     logrus.FieldLogger
	Clock   clock.Clock
	Storage storage.Storage
	Health  *export.HealthMetrics
	Config  Config
}
