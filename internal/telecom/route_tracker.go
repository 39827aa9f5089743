package telecom

import "time"

// Transition is a finalized audio route change.
type Transition struct {
	Source  RouteCode
	Dest    RouteCode
	Success bool
	Revert  bool
	Latency time.Duration
}

// Degenerate reports whether the route did not actually change. Such
// transitions are not recorded.
func (t Transition) Degenerate() bool {
	return t.Source == t.Dest
}

// Key returns the route stats dimension for the transition.
func (t Transition) Key() RouteKey {
	return RouteKey{Source: t.Source, Dest: t.Dest, Success: t.Success, Revert: t.Revert}
}

type pendingTransition struct {
	source  RouteCode
	dest    RouteCode
	enter   time.Time
	exit    time.Time
	exited  bool
	success bool
	revert  bool
}

// RouteTracker pairs route enter and exit signals into transitions.
//
// At most one transition is pending. It is finalized by the next accepted
// enter or by Expire, whichever comes first. An enter is accepted only
// when no enter is ongoing, that is when every earlier enter has seen its
// exit. The tracker keeps no timers; the owner arms the finalize timer
// whenever Enter accepts.
//
// RouteTracker is not safe for concurrent use.
type RouteTracker struct {
	threshold time.Duration
	ongoing   bool
	pending   *pendingTransition
}

// NewRouteTracker creates a tracker with the given revert window.
func NewRouteTracker(threshold time.Duration) *RouteTracker {
	return &RouteTracker{threshold: threshold}
}

// Enter handles a route enter at now. It reports whether the enter was
// accepted, and returns the previous pending transition if accepting
// finalized it.
//
// A previous transition whose source is the new destination, entered
// less than the revert window before now, is finalized as reverted.
func (t *RouteTracker) Enter(source, dest RouteCode, now time.Time) (bool, *Transition) {
	if t.ongoing {
		return false, nil
	}

	t.ongoing = true

	var done *Transition

	if p := t.pending; p != nil {
		if dest == p.source && now.Sub(p.enter) < t.threshold {
			p.revert = true
		}

		done = t.finalize(now)
	}

	t.pending = &pendingTransition{
		source: source,
		dest:   dest,
		enter:  now,
	}

	return true, done
}

// Exit handles a route exit at now. The exit's destination replaces the
// one seen at enter. It reports whether an enter was ongoing.
func (t *RouteTracker) Exit(dest RouteCode, success bool, now time.Time) bool {
	if !t.ongoing {
		return false
	}

	t.ongoing = false

	if p := t.pending; p != nil {
		p.dest = dest
		p.success = success
		p.exit = now
		p.exited = true
	}

	return true
}

// Expire finalizes the pending transition at now, if any.
func (t *RouteTracker) Expire(now time.Time) *Transition {
	if t.pending == nil {
		return nil
	}

	return t.finalize(now)
}

// Pending reports whether a transition awaits finalization.
func (t *RouteTracker) Pending() bool {
	return t.pending != nil
}

// Ongoing reports whether an enter is waiting for its exit.
func (t *RouteTracker) Ongoing() bool {
	return t.ongoing
}

// finalize closes the pending transition. A transition that never saw its
// exit ends at now.
func (t *RouteTracker) finalize(now time.Time) *Transition {
	p := t.pending
	t.pending = nil

	exit := p.exit
	if !p.exited {
		exit = now
	}

	return &Transition{
		Source:  p.source,
		Dest:    p.dest,
		Success: p.success,
		Revert:  p.revert,
		Latency: exit.Sub(p.enter),
	}
}
