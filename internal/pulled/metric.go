package pulled

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/sirupsen/logrus"

	"github.com/ethpandaops/callmetrics/internal/aggregate"
	"github.com/ethpandaops/callmetrics/internal/export"
	"github.com/ethpandaops/callmetrics/internal/storage"
)

// saveTimeout bounds a single snapshot write.
const saveTimeout = 10 * time.Second

// Metric is one pulled metric: a store of K to A that is mutated only on
// its own task queue, rebuilt into a snapshot after every change, and
// persisted through a coalescer.
//
// The snapshot is the value both Pull and save read. It is guarded by mu
// so that a pull running on the collector's goroutine never observes a
// half-built snapshot.
type Metric[K Key, A Value] struct {
	log     logrus.FieldLogger
	id      ID
	name    string
	clock   clock.Clock
	storage storage.Storage
	health  *export.HealthMetrics
	cfg     Config

	queue *TaskQueue
	saver *Coalescer

	// store is owned by the queue goroutine.
	store *aggregate.Store[K, A]

	mu       sync.Mutex
	snapshot Snapshot[K, A]
	lastPull int64
}

// NewMetric builds a metric and loads its persisted snapshot under name.
// A missing or unreadable snapshot starts the metric empty.
func NewMetric[K Key, A Value](id ID, name string, opts Options) *Metric[K, A] {
	cfg := opts.Config
	cfg.ApplyDefaults()

	clk := opts.Clock
	if clk == nil {
		clk = clock.New()
	}

	log := opts.Log
	if log == nil {
		log = logrus.StandardLogger()
	}

	log = log.WithField("metric", name)

	m := &Metric[K, A]{
		log:     log,
		id:      id,
		name:    name,
		clock:   clk,
		storage: opts.Storage,
		health:  opts.Health,
		cfg:     cfg,
		queue:   NewTaskQueue(log, clk, cfg.QueueSize),
		store:   aggregate.NewStore[K, A](0),
	}

	m.saver = NewCoalescer(m.queue, m.save)

	if m.health != nil {
		m.health.QueueCapacity.WithLabelValues(name).Set(float64(m.queue.Cap()))
	}

	m.load()

	return m
}

// ID returns the collector-facing metric identifier.
func (m *Metric[K, A]) ID() ID {
	return m.id
}

// Name returns the metric name, which is also its storage key.
func (m *Metric[K, A]) Name() string {
	return m.name
}

// Clock returns the clock the metric schedules on.
func (m *Metric[K, A]) Clock() clock.Clock {
	return m.clock
}

// Post enqueues an event task. Only a closed queue drops the task, and
// the drop is counted.
func (m *Metric[K, A]) Post(task func()) bool {
	ok := m.queue.Post(task)

	if m.health != nil {
		if ok {
			m.health.EventsReceived.WithLabelValues(m.name).Inc()
		} else {
			m.health.EventsDropped.WithLabelValues(m.name).Inc()
		}

		m.health.QueueLength.WithLabelValues(m.name).Set(float64(m.queue.Len()))
	}

	return ok
}

// PostDelayed enqueues task on the metric's queue after d. dropped runs
// instead when the queue has been closed by then.
func (m *Metric[K, A]) PostDelayed(d time.Duration, task func(), dropped func()) *clock.Timer {
	return m.queue.PostDelayed(d, task, dropped)
}

// Do runs task on the queue and waits for it. Must not be called from a
// task.
func (m *Metric[K, A]) Do(ctx context.Context, task func()) error {
	return m.queue.Do(ctx, task)
}

// Update applies f to the aggregate under key, creating it from the zero
// value when absent, then re-aggregates. Must run on the queue.
func (m *Metric[K, A]) Update(key K, f func(A) A) {
	m.store.Upsert(key, f)
	m.Aggregate()
}

// Aggregate rebuilds the snapshot from the store. An empty store clears
// the snapshot and writes nothing; otherwise the snapshot carries the
// last pull time and a save is requested. Must run on the queue.
func (m *Metric[K, A]) Aggregate() {
	m.mu.Lock()

	if m.store.IsEmpty() {
		m.snapshot = Snapshot[K, A]{}
		m.mu.Unlock()
		m.observeAggregate(0)

		return
	}

	entries := make([]Entry[K, A], 0, m.store.Len())

	m.store.ForEach(func(key K, value A) {
		entries = append(entries, Entry[K, A]{Key: key, Value: value})
	})

	m.snapshot = Snapshot[K, A]{
		PullTimestampMillis: m.lastPull,
		Entries:             entries,
	}
	m.mu.Unlock()

	m.observeAggregate(len(entries))

	m.saver.Request(m.cfg.PersistDelay)
}

func (m *Metric[K, A]) observeAggregate(entries int) {
	if m.health == nil {
		return
	}

	m.health.Aggregations.WithLabelValues(m.name).Inc()
	m.health.StoreEntries.WithLabelValues(m.name).Set(float64(entries))
}

// Pull answers the external collector. A pull within the minimum pull
// interval of the last one returns PullSkip and changes nothing.
// Otherwise the pull timestamp advances to now and one event per
// snapshot entry is appended to sink, in store order. The new timestamp
// reaches storage with the next aggregation. Pull runs on the caller's
// goroutine.
func (m *Metric[K, A]) Pull(sink Sink) PullResult {
	now := m.clock.Now().UnixMilli()

	m.mu.Lock()
	defer m.mu.Unlock()

	if now-m.lastPull < m.cfg.MinPullInterval.Milliseconds() {
		m.observePull(export.PullResultRateLimited)

		return PullSkip
	}

	m.lastPull = now

	if m.snapshot.IsEmpty() {
		m.observePull(export.PullResultEmpty)

		return PullSkip
	}

	m.emit(sink)

	m.observePull(export.PullResultSuccess)

	return PullSuccess
}

// emit appends one event per snapshot entry. Caller holds mu.
func (m *Metric[K, A]) emit(sink Sink) {
	for _, entry := range m.snapshot.Entries {
		keyValues := entry.Key.Values()
		aggValues := entry.Value.Values()

		values := make([]int64, 0, len(keyValues)+len(aggValues))
		values = append(values, keyValues...)
		values = append(values, aggValues...)

		sink.Append(Event{Metric: m.id, Values: values})
	}
}

// Peek returns the events a pull would emit, ignoring the pull interval
// and leaving the pull timestamp untouched.
func (m *Metric[K, A]) Peek() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()

	var sink SliceSink

	m.emit(&sink)

	return sink.Events
}

func (m *Metric[K, A]) observePull(result string) {
	if m.health != nil {
		m.health.Pulls.WithLabelValues(m.name, result).Inc()
	}
}

// LastPull returns the last successful pull time in epoch milliseconds.
func (m *Metric[K, A]) LastPull() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.lastPull
}

// Snapshot returns a copy of the current snapshot.
func (m *Metric[K, A]) Snapshot() Snapshot[K, A] {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := Snapshot[K, A]{PullTimestampMillis: m.snapshot.PullTimestampMillis}

	if len(m.snapshot.Entries) > 0 {
		out.Entries = append([]Entry[K, A](nil), m.snapshot.Entries...)
	}

	return out
}

// Lookup returns the aggregate stored under key.
func (m *Metric[K, A]) Lookup(ctx context.Context, key K) (A, bool, error) {
	var (
		value A
		ok    bool
	)

	err := m.queue.Do(ctx, func() {
		value, ok = m.store.Get(key)
	})

	return value, ok, err
}

// Flush writes the snapshot now, cancelling any pending delayed save.
func (m *Metric[K, A]) Flush(ctx context.Context) error {
	return m.queue.Do(ctx, m.saver.FlushNow)
}

// Reset clears the store and the snapshot. Nothing is written.
func (m *Metric[K, A]) Reset(ctx context.Context) error {
	return m.queue.Do(ctx, func() {
		m.store.Clear()

		m.mu.Lock()
		m.snapshot = Snapshot[K, A]{}
		m.mu.Unlock()

		if m.health != nil {
			m.health.StoreEntries.WithLabelValues(m.name).Set(0)
		}
	})
}

// Close drains the queue and cancels any pending save. Unsaved changes
// are lost unless Flush was called first.
func (m *Metric[K, A]) Close() {
	m.queue.Close()
	m.saver.Stop()
}

// save encodes the snapshot under mu and writes it outside. Failures are
// logged and counted; the in-memory state is kept.
func (m *Metric[K, A]) save() {
	if m.storage == nil {
		return
	}

	m.mu.Lock()
	data, err := EncodeSnapshot(m.snapshot)
	m.mu.Unlock()

	if err != nil {
		m.log.WithError(err).Error("Failed to encode snapshot")
		m.observeSaveError()

		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
	defer cancel()

	start := m.clock.Now()

	if err := m.storage.Put(ctx, m.name, data); err != nil {
		m.log.WithError(err).Warn("Failed to persist snapshot")
		m.observeSaveError()

		return
	}

	if m.health != nil {
		m.health.Saves.WithLabelValues(m.name).Inc()
		m.health.SaveBytes.WithLabelValues(m.name).Set(float64(len(data)))
		m.health.SaveDuration.WithLabelValues(m.name).Observe(
			m.clock.Since(start).Seconds(),
		)
	}

	m.log.WithField("bytes", len(data)).Debug("Persisted snapshot")
}

func (m *Metric[K, A]) observeSaveError() {
	if m.health != nil {
		m.health.SaveErrors.WithLabelValues(m.name).Inc()
	}
}

// load restores the store and pull timestamp from storage. It runs once,
// before any task has been posted.
func (m *Metric[K, A]) load() {
	if m.storage == nil {
		return
	}

	data, err := m.storage.Get(context.Background(), m.name)

	switch {
	case errors.Is(err, storage.ErrNotFound):
		m.log.Debug("No persisted snapshot, starting empty")
		m.observeLoad(export.LoadResultMissing)

		return
	case errors.Is(err, storage.ErrBadFrame):
		m.log.WithError(err).Warn("Persisted snapshot is corrupt, starting empty")
		m.observeLoad(export.LoadResultCorrupt)

		return
	case err != nil:
		m.log.WithError(err).Warn("Failed to read persisted snapshot, starting empty")
		m.observeLoad(export.LoadResultError)

		return
	}

	snap, err := DecodeSnapshot[K, A](data)
	if err != nil {
		m.log.WithError(err).Warn("Persisted snapshot is corrupt, starting empty")
		m.observeLoad(export.LoadResultCorrupt)

		return
	}

	for _, entry := range snap.Entries {
		m.store.Put(entry.Key, entry.Value)
	}

	m.mu.Lock()
	m.lastPull = snap.PullTimestampMillis
	if !snap.IsEmpty() {
		m.snapshot = snap
	}
	m.mu.Unlock()

	if m.health != nil {
		m.health.StoreEntries.WithLabelValues(m.name).Set(float64(m.store.Len()))
	}

	m.observeLoad(export.LoadResultOK)

	m.log.WithFields(logrus.Fields{
		"entries":   len(snap.Entries),
		"last_pull": snap.PullTimestampMillis,
	}).Info("Loaded persisted snapshot")
}

func (m *Metric[K, A]) observeLoad(result string) {
	if m.health != nil {
		m.health.Loads.WithLabelValues(m.name, result).Inc()
	}
}
