package export

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/http/pprof"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// Pull result labels.
const (
	PullResultSuccess     = "success"
	PullResultEmpty       = "skip_empty"
	PullResultRateLimited = "skip_rate_limited"
	PullResultUnknown     = "skip_unknown_metric"
)

// Load result labels.
const (
	LoadResultOK      = "ok"
	LoadResultMissing = "missing"
	LoadResultCorrupt = "corrupt"
	LoadResultError   = "error"
)

// HealthConfig configures the Prometheus health metrics server.
type HealthConfig struct {
	// Enabled starts the /metrics and /healthz server.
	Enabled bool `yaml:"enabled"`

	// Addr is the listen address for the health metrics server.
	// Defaults to ":9090".
	Addr string `yaml:"addr"`
}

// HealthMetrics exposes Prometheus metrics about the aggregation layer
// itself: queue pressure, persistence, pulls. The aggregated call
// statistics are never exported here.
type HealthMetrics struct {
	log      logrus.FieldLogger
	addr     string
	server   *http.Server
	listener net.Listener
	registry *prometheus.Registry

	// Event path.
	EventsReceived *prometheus.CounterVec // metric
	EventsDropped  *prometheus.CounterVec // metric
	QueueLength    *prometheus.GaugeVec   // metric
	QueueCapacity  *prometheus.GaugeVec   // metric
	Aggregations   *prometheus.CounterVec // metric
	StoreEntries   *prometheus.GaugeVec   // metric

	// Persistence.
	Saves        *prometheus.CounterVec   // metric
	SaveErrors   *prometheus.CounterVec   // metric
	SaveDuration *prometheus.HistogramVec // metric
	SaveBytes    *prometheus.GaugeVec     // metric
	Loads        *prometheus.CounterVec   // metric, result

	// Pull path.
	Pulls *prometheus.CounterVec // metric, result

	// Route tracker.
	RouteTransitions   *prometheus.CounterVec // outcome
	PendingTransitions prometheus.Gauge

	// Local collector.
	CollectorRuns   prometheus.Counter
	CollectorRows   *prometheus.CounterVec // metric
	CollectorErrors prometheus.Counter

	running atomic.Bool
}

// NewHealthMetrics creates a new health metrics server.
func NewHealthMetrics(
	log logrus.FieldLogger,
	cfg HealthConfig,
) *HealthMetrics {
	reg := prometheus.NewRegistry()

	h := &HealthMetrics{
		log:      log.WithField("component", "health"),
		addr:     cfg.Addr,
		registry: reg,

		EventsReceived: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "callmetrics",
				Name:      "events_received_total",
				Help:      "Raw events accepted onto a metric task queue.",
			},
			[]string{"metric"},
		),
		EventsDropped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "callmetrics",
				Name:      "events_dropped_total",
				Help:      "Raw events dropped because the task queue was closed.",
			},
			[]string{"metric"},
		),
		QueueLength: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "callmetrics",
				Name:      "task_queue_length",
				Help:      "Tasks waiting on a metric task queue.",
			},
			[]string{"metric"},
		),
		QueueCapacity: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "callmetrics",
				Name:      "task_queue_capacity",
				Help:      "Preallocated size of a metric task queue.",
			},
			[]string{"metric"},
		),
		Aggregations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "callmetrics",
				Name:      "aggregations_total",
				Help:      "Snapshot rebuilds after an event updated the store.",
			},
			[]string{"metric"},
		),
		StoreEntries: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "callmetrics",
				Name:      "store_entries",
				Help:      "Distinct dimension keys held by a metric.",
			},
			[]string{"metric"},
		),
		Saves: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "callmetrics",
				Name:      "saves_total",
				Help:      "Snapshot writes to durable storage.",
			},
			[]string{"metric"},
		),
		SaveErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "callmetrics",
				Name:      "save_errors_total",
				Help:      "Snapshot writes that failed.",
			},
			[]string{"metric"},
		),
		SaveDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "callmetrics",
				Name:      "save_duration_seconds",
				Help:      "Time spent encoding and writing a snapshot.",
				Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5}, // 100us-500ms
			},
			[]string{"metric"},
		),
		SaveBytes: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "callmetrics",
				Name:      "save_bytes",
				Help:      "Encoded size of the last snapshot written.",
			},
			[]string{"metric"},
		),
		Loads: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "callmetrics",
				Name:      "loads_total",
				Help:      "Snapshot loads at construction by result.",
			},
			[]string{"metric", "result"},
		),
		Pulls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "callmetrics",
				Name:      "pulls_total",
				Help:      "Pull requests by result.",
			},
			[]string{"metric", "result"},
		),
		RouteTransitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "callmetrics",
				Name:      "route_transitions_total",
				Help:      "Finalized audio route transitions by outcome.",
			},
			[]string{"outcome"},
		),
		PendingTransitions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "callmetrics",
			Name:      "route_transition_pending",
			Help:      "Whether an audio route transition is awaiting finalization (1=yes, 0=no).",
		}),
		CollectorRuns: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "callmetrics",
			Name:      "collector_runs_total",
			Help:      "Local collector pull rounds.",
		}),
		CollectorRows: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "callmetrics",
				Name:      "collector_rows_total",
				Help:      "Rows handed to the local collector output.",
			},
			[]string{"metric"},
		),
		CollectorErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "callmetrics",
			Name:      "collector_errors_total",
			Help:      "Local collector output write failures.",
		}),
	}

	reg.MustRegister(
		h.EventsReceived,
		h.EventsDropped,
		h.QueueLength,
		h.QueueCapacity,
		h.Aggregations,
		h.StoreEntries,
	)

	reg.MustRegister(
		h.Saves,
		h.SaveErrors,
		h.SaveDuration,
		h.SaveBytes,
		h.Loads,
		h.Pulls,
	)

	reg.MustRegister(
		h.RouteTransitions,
		h.PendingTransitions,
		h.CollectorRuns,
		h.CollectorRows,
		h.CollectorErrors,
	)

	return h
}

// Registry returns the underlying Prometheus registry.
func (h *HealthMetrics) Registry() *prometheus.Registry {
	return h.registry
}

// Start begins serving the /metrics endpoint.
func (h *HealthMetrics) Start(_ context.Context) error {
	if h.addr == "" {
		h.addr = ":9090"
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(
		h.registry,
		promhttp.HandlerOpts{},
	))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, "ok")
	})

	// pprof endpoints for CPU/memory profiling.
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)

	ln, err := net.Listen("tcp", h.addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", h.addr, err)
	}

	h.listener = ln

	h.server = &http.Server{
		Handler: mux,
	}

	h.running.Store(true)

	go func() {
		h.log.WithField("addr", ln.Addr().String()).
			Info("Health metrics server started")

		if err := h.server.Serve(ln); err != nil &&
			err != http.ErrServerClosed {
			h.log.WithError(err).
				Error("Health metrics server error")
		}

		h.running.Store(false)
	}()

	return nil
}

// Addr returns the actual listener address. Useful when started
// with ":0" to get the OS-assigned port.
func (h *HealthMetrics) Addr() string {
	if h.listener != nil {
		return h.listener.Addr().String()
	}

	return h.addr
}

// Stop gracefully shuts down the health metrics server.
func (h *HealthMetrics) Stop() error {
	if h.server == nil {
		return nil
	}

	return h.server.Close()
}
