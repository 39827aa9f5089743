package telecom

import (
	"context"
	"testing"

	"github.com/benbjohnson/clock"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/ethpandaops/callmetrics/internal/export"
	"github.com/ethpandaops/callmetrics/internal/pulled"
	"github.com/ethpandaops/callmetrics/internal/storage"
)

func testLog() logrus.FieldLogger {
	log := logrus.New()
	log.SetLevel(logrus.DebugLevel)

	return log
}

type fixture struct {
	mock   *clock.Mock
	store  *storage.Memory
	health *export.HealthMetrics
	opts   Options
}

func newFixture() *fixture {
	mock := clock.NewMock()
	mock.Set(t0)

	f := &fixture{
		mock:   mock,
		store:  storage.NewMemory(),
		health: export.NewHealthMetrics(testLog(), export.HealthConfig{}),
	}

	f.opts = Options{
		Log:     testLog(),
		Clock:   mock,
		Storage: f.store,
		Health:  f.health,
		Config:  DefaultConfig(),
	}

	return f
}

func (f *fixture) registry(t *testing.T) *Registry {
	t.Helper()

	r := NewRegistry(f.opts)
	t.Cleanup(r.Destroy)

	return r
}

// drain waits until every task posted to m so far has run.
func drain(t *testing.T, m interface {
	Do(ctx context.Context, task func()) error
}) {
	t.Helper()

	require.NoError(t, m.Do(context.Background(), func() {}))
}

func pullAll(t *testing.T, p pulled.Puller) []pulled.Event {
	t.Helper()

	var sink pulled.SliceSink

	require.Equal(t, pulled.PullSuccess, p.Pull(&sink))

	return sink.Events
}
