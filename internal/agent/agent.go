package agent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
	processor "github.com/ethpandaops/go-batch-processor"
	"github.com/sirupsen/logrus"

	"github.com/ethpandaops/callmetrics/internal/collector"
	"github.com/ethpandaops/callmetrics/internal/export"
	"github.com/ethpandaops/callmetrics/internal/storage"
	"github.com/ethpandaops/callmetrics/internal/telecom"
)

// shutdownTimeout bounds the final flush and export on Stop.
const shutdownTimeout = 30 * time.Second

// Agent is the top-level orchestrator for callmetrics.
type Agent interface {
	// Start initializes all components and loads persisted metrics.
	Start(ctx context.Context) error
	// Stop flushes every metric and shuts down all components.
	Stop() error
	// Registry returns the metric registry events are logged to.
	Registry() *telecom.Registry
}

type agent struct {
	log      logrus.FieldLogger
	cfg      *Config
	clock    clock.Clock
	health   *export.HealthMetrics
	storage  storage.Storage
	registry *telecom.Registry

	proc      *processor.BatchItemProcessor[collector.Row]
	collector *collector.Collector

	cancel context.CancelFunc
}

// New creates a new Agent. Storage is opened here so that a bad backend
// fails before anything starts.
func New(log logrus.FieldLogger, cfg *Config) (Agent, error) {
	return newAgent(log, cfg, clock.New())
}

func newAgent(log logrus.FieldLogger, cfg *Config, clk clock.Clock) (*agent, error) {
	health := export.NewHealthMetrics(log, cfg.Health)

	store, err := storage.New(log, cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("opening storage: %w", err)
	}

	a := &agent{
		log:     log.WithField("component", "agent"),
		cfg:     cfg,
		clock:   clk,
		health:  health,
		storage: store,
	}

	a.registry = telecom.NewRegistry(telecom.Options{
		Log:     log,
		Clock:   clk,
		Storage: store,
		Health:  health,
		Config:  cfg.Metrics,
	})

	return a, nil
}

func (a *agent) Registry() *telecom.Registry {
	return a.registry
}

func (a *agent) Start(ctx context.Context) error {
	ctx, a.cancel = context.WithCancel(ctx)

	// 1. Start health metrics server.
	if a.cfg.Health.Enabled {
		if err := a.health.Start(ctx); err != nil {
			return fmt.Errorf("starting health metrics: %w", err)
		}

		a.log.Info("Health metrics server started")
	}

	// 2. Build every metric, loading persisted snapshots.
	a.registry.Open()

	a.log.WithField("metrics", len(a.registry.Registered())).
		Info("Metrics loaded")

	// 3. Start the local collector.
	if a.cfg.Collector.Enabled {
		proc, err := collector.NewProcessor[collector.Row](
			a.log, a.cfg.Collector, "callmetrics_collector",
		)
		if err != nil {
			return fmt.Errorf("creating collector processor: %w", err)
		}

		proc.Start(ctx)

		a.proc = proc
		a.collector = collector.New(
			a.log, a.cfg.Collector, a.clock, a.registry, proc, a.health,
		)
		a.collector.Start(ctx)
	}

	a.log.Info("Agent fully started")

	return nil
}

func (a *agent) Stop() error {
	if a.cancel != nil {
		a.cancel()
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	var errs []error

	// Stop in reverse order.
	if a.collector != nil {
		a.collector.Stop()
	}

	if a.proc != nil {
		if err := a.proc.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutting down collector: %w", err))
		}
	}

	if err := a.registry.Flush(ctx); err != nil {
		errs = append(errs, fmt.Errorf("flushing metrics: %w", err))
	}

	a.registry.Destroy()

	if err := a.storage.Close(); err != nil {
		errs = append(errs, fmt.Errorf("closing storage: %w", err))
	}

	if err := a.health.Stop(); err != nil {
		a.log.WithError(err).Error("Error stopping health server")
	}

	return errors.Join(errs...)
}
