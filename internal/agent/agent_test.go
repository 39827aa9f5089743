package agent

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethpandaops/callmetrics/internal/storage"
	"github.com/ethpandaops/callmetrics/internal/telecom"
)

func testConfig(t *testing.T) *Config {
	t.Helper()

	dir := t.TempDir()

	cfg := DefaultConfig()
	cfg.Storage.Dir = filepath.Join(dir, "state")
	cfg.Storage.Compression = storage.CompressionSnappy
	cfg.Collector.Enabled = true
	cfg.Collector.Output = filepath.Join(dir, "rows.ndjson")
	cfg.Collector.BatchTimeout = 10 * time.Millisecond

	require.NoError(t, cfg.Validate())

	return cfg
}

func testLog() logrus.FieldLogger {
	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)

	return log
}

func TestAgent_StopPersistsMetrics(t *testing.T) {
	cfg := testConfig(t)

	mock := clock.NewMock()
	mock.Set(time.Date(2026, time.May, 4, 12, 0, 0, 0, time.UTC))

	a, err := newAgent(testLog(), cfg, mock)
	require.NoError(t, err)
	require.NoError(t, a.Start(context.Background()))

	assert.Len(t, a.Registry().Registered(), len(telecom.IDs()))

	api := a.Registry().APIStats()
	api.Log(telecom.APIPlaceCall, 10001, telecom.ResultSuccess)
	require.NoError(t, api.Do(context.Background(), func() {}))

	require.NoError(t, a.Stop())

	// The collector output exists even when no round produced rows.
	_, err = os.Stat(cfg.Collector.Output)
	require.NoError(t, err)

	restarted, err := newAgent(testLog(), cfg, mock)
	require.NoError(t, err)
	require.NoError(t, restarted.Start(context.Background()))

	t.Cleanup(func() { _ = restarted.Stop() })

	events := restarted.Registry().APIStats().Peek()
	require.Len(t, events, 1)
	assert.Equal(t, []int64{int64(telecom.APIPlaceCall), 10001, int64(telecom.ResultSuccess), 1}, events[0].Values)
}

func TestNew_BadStorage(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Storage.Backend = "tape"

	_, err := New(testLog(), cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "opening storage")
}
