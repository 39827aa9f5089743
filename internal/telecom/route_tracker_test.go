package telecom

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, time.March, 1, 9, 0, 0, 0, time.UTC)

func at(ms int) time.Time {
	return t0.Add(time.Duration(ms) * time.Millisecond)
}

func TestRouteTracker_EnterExitExpire(t *testing.T) {
	tr := NewRouteTracker(DefaultRevertThreshold)

	accepted, done := tr.Enter(RouteEarpiece, RouteSpeaker, at(0))
	require.True(t, accepted)
	assert.Nil(t, done)
	assert.True(t, tr.Pending())
	assert.True(t, tr.Ongoing())

	assert.True(t, tr.Exit(RouteSpeaker, true, at(200)))
	assert.False(t, tr.Ongoing())
	assert.True(t, tr.Pending())

	got := tr.Expire(at(5000))
	require.NotNil(t, got)
	assert.Equal(t, Transition{
		Source:  RouteEarpiece,
		Dest:    RouteSpeaker,
		Success: true,
		Latency: 200 * time.Millisecond,
	}, *got)
	assert.False(t, tr.Pending())
}

func TestRouteTracker_RevertWithinWindow(t *testing.T) {
	tr := NewRouteTracker(DefaultRevertThreshold)

	tr.Enter(RouteEarpiece, RouteSpeaker, at(0))
	tr.Exit(RouteSpeaker, true, at(200))

	accepted, done := tr.Enter(RouteSpeaker, RouteEarpiece, at(400))
	require.True(t, accepted)
	require.NotNil(t, done)

	assert.Equal(t, Transition{
		Source:  RouteEarpiece,
		Dest:    RouteSpeaker,
		Success: true,
		Revert:  true,
		Latency: 200 * time.Millisecond,
	}, *done)

	// The back transition is a new pending record.
	assert.True(t, tr.Pending())
	assert.True(t, tr.Ongoing())
}

func TestRouteTracker_BackAfterWindowIsNotRevert(t *testing.T) {
	tr := NewRouteTracker(DefaultRevertThreshold)

	tr.Enter(RouteEarpiece, RouteSpeaker, at(0))
	tr.Exit(RouteSpeaker, true, at(200))

	_, done := tr.Enter(RouteSpeaker, RouteEarpiece, at(6000))
	require.NotNil(t, done)
	assert.False(t, done.Revert)
	assert.Equal(t, 200*time.Millisecond, done.Latency)
}

func TestRouteTracker_OtherDestinationIsNotRevert(t *testing.T) {
	tr := NewRouteTracker(DefaultRevertThreshold)

	tr.Enter(RouteEarpiece, RouteSpeaker, at(0))
	tr.Exit(RouteSpeaker, true, at(200))

	_, done := tr.Enter(RouteSpeaker, RouteBluetooth, at(400))
	require.NotNil(t, done)
	assert.False(t, done.Revert)
}

func TestRouteTracker_EnterWhileOngoingIgnored(t *testing.T) {
	tr := NewRouteTracker(DefaultRevertThreshold)

	tr.Enter(RouteEarpiece, RouteSpeaker, at(0))

	accepted, done := tr.Enter(RouteSpeaker, RouteBluetooth, at(100))
	assert.False(t, accepted)
	assert.Nil(t, done)

	// Still the first transition, nothing recorded yet.
	tr.Exit(RouteSpeaker, true, at(300))

	got := tr.Expire(at(5000))
	require.NotNil(t, got)
	assert.Equal(t, RouteEarpiece, got.Source)
	assert.Equal(t, RouteSpeaker, got.Dest)
	assert.Equal(t, 300*time.Millisecond, got.Latency)
}

func TestRouteTracker_ExitOverridesDestination(t *testing.T) {
	tr := NewRouteTracker(DefaultRevertThreshold)

	tr.Enter(RouteEarpiece, RouteSpeaker, at(0))
	tr.Exit(RouteBluetooth, false, at(150))

	got := tr.Expire(at(5000))
	require.NotNil(t, got)
	assert.Equal(t, RouteBluetooth, got.Dest)
	assert.False(t, got.Success)
}

func TestRouteTracker_ExpireWithoutExit(t *testing.T) {
	tr := NewRouteTracker(DefaultRevertThreshold)

	tr.Enter(RouteEarpiece, RouteSpeaker, at(0))

	got := tr.Expire(at(5000))
	require.NotNil(t, got)
	assert.False(t, got.Success)
	assert.Equal(t, 5*time.Second, got.Latency)

	// The enter is still waiting for its exit, so the next enter is
	// ignored until it arrives.
	assert.True(t, tr.Ongoing())

	accepted, _ := tr.Enter(RouteSpeaker, RouteEarpiece, at(6000))
	assert.False(t, accepted)

	assert.True(t, tr.Exit(RouteSpeaker, true, at(6100)))
	assert.False(t, tr.Pending())

	accepted, done := tr.Enter(RouteSpeaker, RouteEarpiece, at(7000))
	assert.True(t, accepted)
	assert.Nil(t, done)
}

func TestRouteTracker_RapidFlapMarksRevert(t *testing.T) {
	tr := NewRouteTracker(DefaultRevertThreshold)

	tr.Enter(RouteEarpiece, RouteSpeaker, at(0))
	tr.Expire(at(5000))
	tr.Exit(RouteSpeaker, true, at(5100))

	tr.Enter(RouteSpeaker, RouteBluetooth, at(6000))
	tr.Exit(RouteBluetooth, true, at(6100))

	// Rapid flap: the next enter comes before the timer expires.
	_, done := tr.Enter(RouteBluetooth, RouteSpeaker, at(6200))
	require.NotNil(t, done)
	assert.Equal(t, RouteSpeaker, done.Source)
	assert.True(t, done.Revert)
	assert.Equal(t, 100*time.Millisecond, done.Latency)
}

func TestRouteTracker_DegenerateTransition(t *testing.T) {
	tr := NewRouteTracker(DefaultRevertThreshold)

	tr.Enter(RouteSpeaker, RouteSpeaker, at(0))
	tr.Exit(RouteSpeaker, true, at(10))

	got := tr.Expire(at(5000))
	require.NotNil(t, got)
	assert.True(t, got.Degenerate())
}

func TestRouteTracker_ExitWithoutEnter(t *testing.T) {
	tr := NewRouteTracker(DefaultRevertThreshold)

	assert.False(t, tr.Exit(RouteSpeaker, true, at(0)))
	assert.Nil(t, tr.Expire(at(10)))
}
