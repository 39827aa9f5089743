package telecom

import (
	"time"

	"github.com/benbjohnson/clock"

	"github.com/ethpandaops/callmetrics/internal/aggregate"
	"github.com/ethpandaops/callmetrics/internal/export"
	"github.com/ethpandaops/callmetrics/internal/pulled"
)

// Route transition outcome labels.
const (
	outcomeSuccess   = "success"
	outcomeFailed    = "failed"
	outcomeReverted  = "reverted"
	outcomeDiscarded = "discarded"
)

// RouteKey is the audio route stats dimension.
type RouteKey struct {
	Source  RouteCode `cbor:"1,keyasint"`
	Dest    RouteCode `cbor:"2,keyasint"`
	Success bool      `cbor:"3,keyasint"`
	Revert  bool      `cbor:"4,keyasint"`
}

// Values returns [route_source, route_dest, success, revert].
func (k RouteKey) Values() []int64 {
	return []int64{int64(k.Source), int64(k.Dest), boolValue(k.Success), boolValue(k.Revert)}
}

// AudioRouteStats averages audio route transition latency. Route signals
// go through a RouteTracker; a finalize timer per accepted enter makes
// sure every started transition is recorded once.
type AudioRouteStats struct {
	*pulled.Metric[RouteKey, aggregate.RunningAverage]

	health    *export.HealthMetrics
	threshold time.Duration

	// Owned by the queue.
	tracker  *RouteTracker
	timer    *clock.Timer
	timerGen uint64
}

// NewAudioRouteStats creates the audio route stats metric and loads its
// snapshot.
func NewAudioRouteStats(opts Options) *AudioRouteStats {
	cfg := opts.Config
	cfg.ApplyDefaults()

	return &AudioRouteStats{
		Metric: pulled.NewMetric[RouteKey, aggregate.RunningAverage](
			IDAudioRouteStats, NameAudioRouteStats, opts.metricOptions(),
		),
		health:    opts.Health,
		threshold: cfg.RevertThreshold,
		tracker:   NewRouteTracker(cfg.RevertThreshold),
	}
}

// Log folds one transition latency into the average for its dimension.
func (s *AudioRouteStats) Log(key RouteKey, latency time.Duration) {
	key.Source = key.Source.normalize()
	key.Dest = key.Dest.normalize()

	s.Post(func() {
		s.add(key, latency)
	})
}

// OnRouteEnter starts a transition from the route's origin to its
// destination. The enter time is taken now, not when the task runs.
func (s *AudioRouteStats) OnRouteEnter(route PendingRoute) {
	source := RouteCodeOf(route.Orig)
	dest := RouteCodeOf(route.Dest)
	now := s.Clock().Now()

	s.Post(func() {
		accepted, done := s.tracker.Enter(source, dest, now)
		if done != nil {
			s.record(*done)
		}

		if accepted {
			s.armTimer()
		}

		s.observePending()
	})
}

// OnRouteExit completes the ongoing transition. The route's destination is
// authoritative and may differ from the one seen at enter.
func (s *AudioRouteStats) OnRouteExit(route PendingRoute, success bool) {
	dest := RouteCodeOf(route.Dest)
	now := s.Clock().Now()

	s.Post(func() {
		s.tracker.Exit(dest, success, now)
	})
}

// Close stops the finalize timer and closes the metric. A pending
// transition is dropped.
func (s *AudioRouteStats) Close() {
	s.Metric.Close()

	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

// armTimer replaces any armed finalize timer. Only the latest may fire.
func (s *AudioRouteStats) armTimer() {
	if s.timer != nil {
		s.timer.Stop()
	}

	s.timerGen++
	gen := s.timerGen

	// The expire task is only dropped once the metric is closed, when the
	// pending transition is discarded anyway.
	s.timer = s.PostDelayed(s.threshold, func() {
		s.expire(gen)
	}, nil)
}

func (s *AudioRouteStats) expire(gen uint64) {
	if gen != s.timerGen {
		return
	}

	s.timer = nil

	if done := s.tracker.Expire(s.Clock().Now()); done != nil {
		s.record(*done)
	}

	s.observePending()
}

func (s *AudioRouteStats) record(t Transition) {
	if t.Degenerate() {
		s.observeOutcome(outcomeDiscarded)

		return
	}

	switch {
	case t.Revert:
		s.observeOutcome(outcomeReverted)
	case t.Success:
		s.observeOutcome(outcomeSuccess)
	default:
		s.observeOutcome(outcomeFailed)
	}

	s.add(t.Key(), t.Latency)
}

func (s *AudioRouteStats) add(key RouteKey, latency time.Duration) {
	ms := latency.Milliseconds()

	s.Update(key, func(avg aggregate.RunningAverage) aggregate.RunningAverage {
		return avg.Add(ms)
	})
}

func (s *AudioRouteStats) observeOutcome(outcome string) {
	if s.health != nil {
		s.health.RouteTransitions.WithLabelValues(outcome).Inc()
	}
}

func (s *AudioRouteStats) observePending() {
	if s.health == nil {
		return
	}

	if s.tracker.Pending() {
		s.health.PendingTransitions.Set(1)
	} else {
		s.health.PendingTransitions.Set(0)
	}
}
