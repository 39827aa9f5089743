package collector

import (
	"context"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/sirupsen/logrus"

	"github.com/ethpandaops/callmetrics/internal/export"
	"github.com/ethpandaops/callmetrics/internal/pulled"
	"github.com/ethpandaops/callmetrics/internal/telecom"
)

// Row is one pulled event as written to the output file.
type Row struct {
	Metric   string           `json:"metric"`
	MetricID int32            `json:"metric_id"`
	PulledAt time.Time        `json:"pulled_at"`
	Fields   map[string]int64 `json:"fields"`
}

// Puller answers pulls by metric identifier.
type Puller interface {
	OnPullAtom(id pulled.ID, sink pulled.Sink) pulled.PullResult
}

// Writer accepts rows for export.
type Writer interface {
	Write(ctx context.Context, rows []*Row) error
}

// Collector pulls every metric on an interval and writes the rows.
type Collector struct {
	log    logrus.FieldLogger
	cfg    Config
	clock  clock.Clock
	puller Puller
	writer Writer
	health *export.HealthMetrics

	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a collector that writes to writer.
func New(
	log logrus.FieldLogger,
	cfg Config,
	clk clock.Clock,
	puller Puller,
	writer Writer,
	health *export.HealthMetrics,
) *Collector {
	cfg.ApplyDefaults()

	if clk == nil {
		clk = clock.New()
	}

	return &Collector{
		log:    log.WithField("component", "collector"),
		cfg:    cfg,
		clock:  clk,
		puller: puller,
		writer: writer,
		health: health,
		done:   make(chan struct{}),
	}
}

// Start runs the first pull round immediately and then one per interval.
func (c *Collector) Start(ctx context.Context) {
	ctx, c.cancel = context.WithCancel(ctx)

	go c.run(ctx)

	c.log.WithField("interval", c.cfg.Interval).Info("Collector started")
}

// Stop ends the pull loop and waits for the running round.
func (c *Collector) Stop() {
	if c.cancel == nil {
		return
	}

	c.cancel()
	<-c.done
}

func (c *Collector) run(ctx context.Context) {
	defer close(c.done)

	ticker := c.clock.Ticker(c.cfg.Interval)
	defer ticker.Stop()

	c.collect(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.collect(ctx)
		}
	}
}

func (c *Collector) collect(ctx context.Context) {
	if _, err := c.Collect(ctx); err != nil {
		c.log.WithError(err).Warn("Collection round failed")
	}
}

// Collect pulls every metric once and writes what they return. Skipped
// metrics contribute no rows.
func (c *Collector) Collect(ctx context.Context) (int, error) {
	now := c.clock.Now().UTC()
	rows := make([]*Row, 0, 64)

	for _, id := range telecom.IDs() {
		var sink pulled.SliceSink

		if c.puller.OnPullAtom(id, &sink) != pulled.PullSuccess {
			continue
		}

		name := telecom.Name(id)
		columns := telecom.Columns(id)

		for _, event := range sink.Events {
			rows = append(rows, &Row{
				Metric:   name,
				MetricID: int32(id),
				PulledAt: now,
				Fields:   fields(columns, event.Values),
			})
		}

		if c.health != nil {
			c.health.CollectorRows.WithLabelValues(name).Add(float64(len(sink.Events)))
		}
	}

	if c.health != nil {
		c.health.CollectorRuns.Inc()
	}

	if len(rows) == 0 {
		return 0, nil
	}

	if err := c.writer.Write(ctx, rows); err != nil {
		if c.health != nil {
			c.health.CollectorErrors.Inc()
		}

		return 0, fmt.Errorf("writing rows: %w", err)
	}

	c.log.WithField("rows", len(rows)).Debug("Collected pulled rows")

	return len(rows), nil
}

// fields names event values by column. Values without a column are kept
// under their index.
func fields(columns []string, values []int64) map[string]int64 {
	out := make(map[string]int64, len(values))

	for i, v := range values {
		if i < len(columns) {
			out[columns[i]] = v
		} else {
			out[fmt.Sprintf("field_%d", i)] = v
		}
	}

	return out
}
