// Package telecom holds the call-management metrics: API results, errors,
// call attributes and audio route transitions, each a pulled metric with
// its own dimension key, plus the registry the pull collector talks to.
package telecom

import (
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/sirupsen/logrus"

	"github.com/ethpandaops/callmetrics/internal/export"
	"github.com/ethpandaops/callmetrics/internal/pulled"
	"github.com/ethpandaops/callmetrics/internal/storage"
)

// Metric identifiers known to the pull collector.
const (
	IDAudioRouteStats pulled.ID = 10220
	IDCallStats       pulled.ID = 10221
	IDAPIStats        pulled.ID = 10222
	IDErrorStats      pulled.ID = 10223
)

// Metric names, also used as storage keys.
const (
	NameAudioRouteStats = "audio_route_stats"
	NameCallStats       = "call_stats"
	NameAPIStats        = "api_stats"
	NameErrorStats      = "error_stats"
)

// DefaultRevertThreshold is the window in which a route change back to the
// previous source marks the previous transition as reverted. It is also
// the finalize timeout of a pending transition.
const DefaultRevertThreshold = 5 * time.Second

// IDs lists every metric identifier in pull order.
func IDs() []pulled.ID {
	return []pulled.ID{IDAPIStats, IDAudioRouteStats, IDCallStats, IDErrorStats}
}

var (
	names = map[pulled.ID]string{
		IDAudioRouteStats: NameAudioRouteStats,
		IDCallStats:       NameCallStats,
		IDAPIStats:        NameAPIStats,
		IDErrorStats:      NameErrorStats,
	}

	columns = map[pulled.ID][]string{
		IDAudioRouteStats: {"route_source", "route_dest", "success", "revert", "count", "average_latency_ms"},
		IDCallStats: {
			"call_direction", "external_call", "emergency_call", "multiple_audio_available",
			"account_type", "uid", "count", "average_duration_ms",
		},
		IDAPIStats:   {"api_name", "uid", "api_result", "count"},
		IDErrorStats: {"sub_module", "error_name", "count"},
	}
)

// Name returns the metric name for id.
func Name(id pulled.ID) string {
	if name, ok := names[id]; ok {
		return name
	}

	return fmt.Sprintf("metric_%d", id)
}

// IDByName resolves a metric name to its identifier.
func IDByName(name string) (pulled.ID, bool) {
	for id, n := range names {
		if n == name {
			return id, true
		}
	}

	return 0, false
}

// Columns returns the pulled value names for id, in event order.
func Columns(id pulled.ID) []string {
	return columns[id]
}

// Config configures the telecom metrics.
type Config struct {
	pulled.Config `yaml:",inline"`

	// RevertThreshold is the route revert window. Defaults to 5s.
	RevertThreshold time.Duration `yaml:"revert_threshold"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Config:          pulled.DefaultConfig(),
		RevertThreshold: DefaultRevertThreshold,
	}
}

// ApplyDefaults fills unset fields with defaults.
func (c *Config) ApplyDefaults() {
	c.Config.ApplyDefaults()

	if c.RevertThreshold <= 0 {
		c.RevertThreshold = DefaultRevertThreshold
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.PersistDelay < 0 {
		return fmt.Errorf("persist_delay must not be negative")
	}

	if c.MinPullInterval < 0 {
		return fmt.Errorf("min_pull_interval must not be negative")
	}

	if c.RevertThreshold < 0 {
		return fmt.Errorf("revert_threshold must not be negative")
	}

	if c.QueueSize < 0 {
		return fmt.Errorf("queue_size must not be negative")
	}

	return nil
}

// Options carries the collaborators shared by every telecom metric.
type Options struct {
	Log     logrus.FieldLogger
	Clock   clock.Clock
	Storage storage.Storage
	Health  *export.HealthMetrics
	Config  Config
}

func (o Options) metricOptions() pulled.Options {
	return pulled.Options{
		Log:     o.Log,
		Clock:   o.Clock,
		Storage: o.Storage,
		Health:  o.Health,
		Config:  o.Config.Config,
	}
}
