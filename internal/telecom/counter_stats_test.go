package telecom

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethpandaops/callmetrics/internal/aggregate"
	"github.com/ethpandaops/callmetrics/internal/pulled"
)

func TestAPIStats_Log(t *testing.T) {
	f := newFixture()
	s := NewAPIStats(f.opts)
	t.Cleanup(s.Close)

	for i := 0; i < 3; i++ {
		s.Log(APIPlaceCall, 10001, ResultSuccess)
	}

	s.Log(APIPlaceCall, 10001, ResultPermission)
	s.Log(APIName(9999), 10002, APIResult(-3))
	drain(t, s)

	events := pullAll(t, s)
	assert.Equal(t, []pulled.Event{
		{Metric: IDAPIStats, Values: []int64{int64(APIPlaceCall), 10001, int64(ResultSuccess), 3}},
		{Metric: IDAPIStats, Values: []int64{int64(APIPlaceCall), 10001, int64(ResultPermission), 1}},
		{Metric: IDAPIStats, Values: []int64{int64(APIUnspecified), 10002, int64(ResultUnspecified), 1}},
	}, events)
	assert.Len(t, Columns(IDAPIStats), len(events[0].Values))
}

func TestErrorStats_Log(t *testing.T) {
	f := newFixture()
	s := NewErrorStats(f.opts)
	t.Cleanup(s.Close)

	s.Log(ModuleCallAudio, ErrorBluetoothDeviceNotFound)
	s.Log(ModuleCallAudio, ErrorBluetoothDeviceNotFound)
	s.Log(SubModule(77), ErrorName(77))
	drain(t, s)

	value, ok, err := s.Lookup(context.Background(), ErrorKey{
		Module: ModuleCallAudio,
		Error:  ErrorBluetoothDeviceNotFound,
	})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, aggregate.Counter{Count: 2}, value)

	value, ok, err = s.Lookup(context.Background(), ErrorKey{Module: ModuleUnknown, Error: ErrorUnknown})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(1), value.Count)
}

func TestCodes_String(t *testing.T) {
	assert.Equal(t, "place_call", APIPlaceCall.String())
	assert.Equal(t, "permission", ResultPermission.String())
	assert.Equal(t, "watch_speaker", RouteWatchSpeaker.String())
	assert.Equal(t, "voip_api", AccountVoIPAPI.String())
	assert.Equal(t, "outgoing", DirectionOutgoing.String())
	assert.Equal(t, "call_audio", ModuleCallAudio.String())
	assert.Equal(t, "call_not_found", ErrorCallNotFound.String())
	assert.Equal(t, "123", APIName(123).String())
}

func TestAPIStats_LogBeyondQueueSize(t *testing.T) {
	f := newFixture()
	f.opts.Config.QueueSize = 8

	s := NewAPIStats(f.opts)
	t.Cleanup(s.Close)

	const calls = 20000

	for i := 0; i < calls; i++ {
		s.Log(APIPlaceCall, 1, ResultSuccess)
	}

	value, ok, err := s.Lookup(context.Background(), APIKey{API: APIPlaceCall, UID: 1, Result: ResultSuccess})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(calls), value.Count)
	assert.Zero(t, testutil.ToFloat64(f.health.EventsDropped.WithLabelValues(NameAPIStats)))
}
