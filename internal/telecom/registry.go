package telecom

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/ethpandaops/callmetrics/internal/export"
	"github.com/ethpandaops/callmetrics/internal/pulled"
)

// Registry owns the process-wide metric instances. Each metric is built
// on first access and answers pulls by identifier.
type Registry struct {
	log  logrus.FieldLogger
	opts Options

	mu    sync.Mutex
	stats map[pulled.ID]pulled.Puller
}

// NewRegistry creates an empty registry. No metric is loaded until it is
// first accessed.
func NewRegistry(opts Options) *Registry {
	opts.Config.ApplyDefaults()

	if opts.Log == nil {
		opts.Log = logrus.StandardLogger()
	}

	return &Registry{
		log:   opts.Log.WithField("component", "registry"),
		opts:  opts,
		stats: make(map[pulled.ID]pulled.Puller, 4),
	}
}

// APIStats returns the API stats metric.
func (r *Registry) APIStats() *APIStats {
	return lookup(r, IDAPIStats, func() *APIStats { return NewAPIStats(r.opts) })
}

// AudioRouteStats returns the audio route stats metric.
func (r *Registry) AudioRouteStats() *AudioRouteStats {
	return lookup(r, IDAudioRouteStats, func() *AudioRouteStats { return NewAudioRouteStats(r.opts) })
}

// CallStats returns the call stats metric.
func (r *Registry) CallStats() *CallStats {
	return lookup(r, IDCallStats, func() *CallStats { return NewCallStats(r.opts) })
}

// ErrorStats returns the error stats metric.
func (r *Registry) ErrorStats() *ErrorStats {
	return lookup(r, IDErrorStats, func() *ErrorStats { return NewErrorStats(r.opts) })
}

// Open builds every metric that is not built yet.
func (r *Registry) Open() {
	r.APIStats()
	r.AudioRouteStats()
	r.CallStats()
	r.ErrorStats()
}

// lookup returns the metric registered under id, building it when absent
// or when a different type was registered there.
func lookup[P pulled.Puller](r *Registry, id pulled.ID, build func() P) P {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.stats[id]; ok {
		if typed, ok := existing.(P); ok {
			return typed
		}

		r.log.WithField("metric", Name(id)).Warn("Replacing foreign metric registration")
	}

	p := build()
	r.stats[id] = p

	r.log.WithField("metric", p.Name()).Debug("Metric created")

	return p
}

// OnPullAtom answers the external collector for id. Unknown identifiers
// are skipped.
func (r *Registry) OnPullAtom(id pulled.ID, sink pulled.Sink) pulled.PullResult {
	r.mu.Lock()
	p, ok := r.stats[id]
	r.mu.Unlock()

	if !ok {
		if r.opts.Health != nil {
			r.opts.Health.Pulls.WithLabelValues(
				strconv.Itoa(int(id)), export.PullResultUnknown,
			).Inc()
		}

		return pulled.PullSkip
	}

	return p.Pull(sink)
}

// Register installs p under id, replacing any previous registration.
func (r *Registry) Register(id pulled.ID, p pulled.Puller) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.stats[id] = p
}

// Stats returns a copy of the registered metrics.
func (r *Registry) Stats() map[pulled.ID]pulled.Puller {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make(map[pulled.ID]pulled.Puller, len(r.stats))
	for id, p := range r.stats {
		out[id] = p
	}

	return out
}

// Registered returns the registered identifiers in ascending order.
func (r *Registry) Registered() []pulled.ID {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids := make([]pulled.ID, 0, len(r.stats))
	for id := range r.stats {
		ids = append(ids, id)
	}

	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	return ids
}

// Flush writes every registered metric now.
func (r *Registry) Flush(ctx context.Context) error {
	var errs []error

	for id, p := range r.Stats() {
		if err := p.Flush(ctx); err != nil {
			errs = append(errs, fmt.Errorf("flushing %s: %w", Name(id), err))
		}
	}

	return errors.Join(errs...)
}

// Reset clears every registered metric.
func (r *Registry) Reset(ctx context.Context) error {
	var errs []error

	for id, p := range r.Stats() {
		if err := p.Reset(ctx); err != nil {
			errs = append(errs, fmt.Errorf("resetting %s: %w", Name(id), err))
		}
	}

	return errors.Join(errs...)
}

// Destroy unregisters every metric and stops its queue. Unflushed
// changes are lost.
func (r *Registry) Destroy() {
	r.mu.Lock()
	stats := r.stats
	r.stats = make(map[pulled.ID]pulled.Puller, 4)
	r.mu.Unlock()

	for _, p := range stats {
		p.Close()
	}

	r.log.WithField("metrics", len(stats)).Info("Registry destroyed")
}
