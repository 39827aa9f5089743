package pulled

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethpandaops/callmetrics/internal/aggregate"
	"github.com/ethpandaops/callmetrics/internal/export"
	"github.com/ethpandaops/callmetrics/internal/storage"
)

type testKey struct {
	Code    int64 `cbor:"1,keyasint"`
	Enabled bool  `cbor:"2,keyasint"`
}

func (k testKey) Values() []int64 {
	var enabled int64
	if k.Enabled {
		enabled = 1
	}

	return []int64{k.Code, enabled}
}

type testMetric = Metric[testKey, aggregate.Counter]

var epoch = time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)

type metricFixture struct {
	mock    *clock.Mock
	store   *storage.Memory
	health  *export.HealthMetrics
	options Options
}

func newFixture() *metricFixture {
	mock := clock.NewMock()
	mock.Set(epoch)

	f := &metricFixture{
		mock:   mock,
		store:  storage.NewMemory(),
		health: export.NewHealthMetrics(testLog(), export.HealthConfig{}),
	}

	f.options = Options{
		Log:     testLog(),
		Clock:   mock,
		Storage: f.store,
		Health:  f.health,
		Config:  DefaultConfig(),
	}

	return f
}

func (f *metricFixture) open(t *testing.T) *testMetric {
	t.Helper()

	m := NewMetric[testKey, aggregate.Counter](42, "test_stats", f.options)
	t.Cleanup(m.Close)

	return m
}

func incr(t *testing.T, m *testMetric, key testKey) {
	t.Helper()

	require.NoError(t, m.Do(context.Background(), func() {
		m.Update(key, aggregate.Counter.Inc)
	}))
}

func TestMetric_PullEmitsInStoreOrder(t *testing.T) {
	f := newFixture()
	m := f.open(t)

	incr(t, m, testKey{Code: 3, Enabled: true})
	incr(t, m, testKey{Code: 1})
	incr(t, m, testKey{Code: 3, Enabled: true})

	var sink SliceSink

	assert.Equal(t, PullSuccess, m.Pull(&sink))
	assert.Equal(t, []Event{
		{Metric: 42, Values: []int64{3, 1, 2}},
		{Metric: 42, Values: []int64{1, 0, 1}},
	}, sink.Events)

	assert.Equal(t, epoch.UnixMilli(), m.LastPull())

	// Peek sees the same rows without being rate limited.
	assert.Equal(t, sink.Events, m.Peek())

	// The snapshot picks up the new timestamp on the next aggregation.
	assert.Equal(t, int64(0), m.Snapshot().PullTimestampMillis)

	incr(t, m, testKey{Code: 1})
	assert.Equal(t, epoch.UnixMilli(), m.Snapshot().PullTimestampMillis)
}

func TestMetric_PullEmptySkips(t *testing.T) {
	f := newFixture()
	m := f.open(t)

	var sink SliceSink

	assert.Equal(t, PullSkip, m.Pull(&sink))
	assert.Empty(t, sink.Events)
	assert.Equal(t, 1.0, testutil.ToFloat64(
		f.health.Pulls.WithLabelValues("test_stats", export.PullResultEmpty)))

	// An empty pull still restarts the interval.
	assert.Equal(t, epoch.UnixMilli(), m.LastPull())

	incr(t, m, testKey{Code: 1})
	f.mock.Add(time.Hour)

	assert.Equal(t, PullSkip, m.Pull(&sink))
	assert.Empty(t, sink.Events)
	assert.Equal(t, 1.0, testutil.ToFloat64(
		f.health.Pulls.WithLabelValues("test_stats", export.PullResultRateLimited)))
}

func TestMetric_PullRateLimited(t *testing.T) {
	f := newFixture()
	m := f.open(t)

	incr(t, m, testKey{Code: 1})

	var sink SliceSink

	require.Equal(t, PullSuccess, m.Pull(&sink))
	require.Len(t, sink.Events, 1)

	f.mock.Add(time.Hour)

	assert.Equal(t, PullSkip, m.Pull(&sink))
	assert.Len(t, sink.Events, 1)
	assert.Equal(t, epoch.UnixMilli(), m.LastPull())

	f.mock.Add(22 * time.Hour)

	assert.Equal(t, PullSuccess, m.Pull(&sink))
	assert.Len(t, sink.Events, 2)
	assert.Equal(t, epoch.Add(23*time.Hour).UnixMilli(), m.LastPull())

	assert.Equal(t, 1.0, testutil.ToFloat64(
		f.health.Pulls.WithLabelValues("test_stats", export.PullResultRateLimited)))
	assert.Equal(t, 2.0, testutil.ToFloat64(
		f.health.Pulls.WithLabelValues("test_stats", export.PullResultSuccess)))
}

func TestMetric_SaveIsDelayed(t *testing.T) {
	f := newFixture()
	m := f.open(t)

	incr(t, m, testKey{Code: 1})
	incr(t, m, testKey{Code: 2})

	assert.Equal(t, 0, f.store.Puts())

	f.mock.Add(29 * time.Second)
	assert.Equal(t, 0, f.store.Puts())

	f.mock.Add(time.Second)

	require.Eventually(t, func() bool {
		return f.store.Puts() == 1
	}, time.Second, 5*time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(f.health.Saves.WithLabelValues("test_stats")))
}

func TestMetric_FlushAndReload(t *testing.T) {
	f := newFixture()
	m := f.open(t)

	incr(t, m, testKey{Code: 7, Enabled: true})
	incr(t, m, testKey{Code: 7, Enabled: true})
	incr(t, m, testKey{Code: 8})

	var sink SliceSink
	require.Equal(t, PullSuccess, m.Pull(&sink))

	// The pull timestamp reaches storage with the next aggregation.
	incr(t, m, testKey{Code: 8})
	require.NoError(t, m.Flush(context.Background()))
	assert.Equal(t, 1, f.store.Puts())

	reloaded := f.open(t)

	assert.Equal(t, epoch.UnixMilli(), reloaded.LastPull())

	value, ok, err := reloaded.Lookup(context.Background(), testKey{Code: 7, Enabled: true})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(2), value.Count)

	snap := reloaded.Snapshot()
	require.Len(t, snap.Entries, 2)
	assert.Equal(t, testKey{Code: 7, Enabled: true}, snap.Entries[0].Key)
	assert.Equal(t, testKey{Code: 8}, snap.Entries[1].Key)
	assert.Equal(t, int64(2), snap.Entries[1].Value.Count)

	// Still inside the pull interval after restart.
	assert.Equal(t, PullSkip, reloaded.Pull(&SliceSink{}))

	assert.Equal(t, 1.0, testutil.ToFloat64(
		f.health.Loads.WithLabelValues("test_stats", export.LoadResultOK)))
}

func TestMetric_LoadMissingOrCorrupt(t *testing.T) {
	tests := []struct {
		name    string
		payload []byte
		result  string
	}{
		{name: "missing", result: export.LoadResultMissing},
		{name: "garbage", payload: []byte{0xff, 0x00, 0x13}, result: export.LoadResultCorrupt},
		{name: "wrong shape", payload: []byte{0x05}, result: export.LoadResultCorrupt},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()

			if tt.payload != nil {
				require.NoError(t, f.store.Put(context.Background(), "test_stats", tt.payload))
			}

			m := f.open(t)

			assert.True(t, m.Snapshot().IsEmpty())
			assert.Equal(t, int64(0), m.LastPull())
			assert.Equal(t, PullSkip, m.Pull(&SliceSink{}))
			assert.Equal(t, 1.0, testutil.ToFloat64(
				f.health.Loads.WithLabelValues("test_stats", tt.result)))

			// A corrupt metric still accepts new data.
			incr(t, m, testKey{Code: 1})
			assert.Len(t, m.Snapshot().Entries, 1)
		})
	}
}

func TestMetric_EmptyAggregateDoesNotSave(t *testing.T) {
	f := newFixture()
	m := f.open(t)

	require.NoError(t, m.Do(context.Background(), m.Aggregate))

	f.mock.Add(time.Minute)
	require.NoError(t, m.Do(context.Background(), func() {}))

	assert.Equal(t, 0, f.store.Puts())
	assert.True(t, m.Snapshot().IsEmpty())
}

func TestMetric_Reset(t *testing.T) {
	f := newFixture()
	m := f.open(t)

	incr(t, m, testKey{Code: 1})
	require.NoError(t, m.Reset(context.Background()))

	assert.True(t, m.Snapshot().IsEmpty())
	assert.Equal(t, PullSkip, m.Pull(&SliceSink{}))

	_, ok, err := m.Lookup(context.Background(), testKey{Code: 1})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMetric_SaveFailureKeepsState(t *testing.T) {
	f := newFixture()
	m := f.open(t)

	f.store.SetFailPuts(errors.New("disk full"))

	incr(t, m, testKey{Code: 1})
	require.NoError(t, m.Flush(context.Background()))

	assert.Equal(t, 1.0, testutil.ToFloat64(f.health.SaveErrors.WithLabelValues("test_stats")))
	assert.Len(t, m.Snapshot().Entries, 1)

	f.store.SetFailPuts(nil)
	require.NoError(t, m.Flush(context.Background()))

	_, err := f.store.Get(context.Background(), "test_stats")
	assert.NoError(t, err)
}

func TestMetric_PostCountsDrops(t *testing.T) {
	f := newFixture()
	m := NewMetric[testKey, aggregate.Counter](42, "test_stats", f.options)

	assert.True(t, m.Post(func() {}))
	m.Close()
	assert.False(t, m.Post(func() {}))

	assert.Equal(t, 1.0, testutil.ToFloat64(f.health.EventsReceived.WithLabelValues("test_stats")))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.health.EventsDropped.WithLabelValues("test_stats")))
}

func TestMetric_CompressedStorage(t *testing.T) {
	f := newFixture()

	compressor, err := storage.NewCompressor(storage.CompressionZstd)
	require.NoError(t, err)

	f.options.Storage = storage.NewCompressed(storage.NewMemory(), compressor)

	m := f.open(t)
	incr(t, m, testKey{Code: 5})
	require.NoError(t, m.Flush(context.Background()))

	reloaded := f.open(t)
	assert.Len(t, reloaded.Snapshot().Entries, 1)
}

func TestSnapshot_DeterministicEncoding(t *testing.T) {
	snap := Snapshot[testKey, aggregate.RunningAverage]{
		PullTimestampMillis: 1700000000000,
		Entries: []Entry[testKey, aggregate.RunningAverage]{
			{Key: testKey{Code: 1, Enabled: true}, Value: aggregate.RunningAverage{Count: 2, Mean: 150}},
			{Key: testKey{Code: 2}, Value: aggregate.RunningAverage{Count: 1, Mean: 9}},
		},
	}

	first, err := EncodeSnapshot(snap)
	require.NoError(t, err)

	second, err := EncodeSnapshot(snap)
	require.NoError(t, err)

	assert.Equal(t, first, second)

	decoded, err := DecodeSnapshot[testKey, aggregate.RunningAverage](first)
	require.NoError(t, err)
	assert.Equal(t, snap, decoded)
}
