package pulled

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// Coalescer collapses save requests into at most one pending write.
type Coalescer struct {
	queue *TaskQueue
	save  func()

	mu      sync.Mutex
	pending *clock.Timer
	gen     uint64
}

// NewCoalescer creates a Coalescer whose delayed saves run save as a
// task on queue.
func NewCoalescer(queue *TaskQueue, save func()) *Coalescer {
	return &Coalescer{queue: queue, save: save}
}

// Request asks for a save. A non-positive delay saves immediately on the
// calling goroutine. Otherwise a save is scheduled delay from now unless
// one is already pending; the pending save is never moved.
func (c *Coalescer) Request(delay time.Duration) {
	if delay <= 0 {
		c.save()

		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.pending != nil {
		return
	}

	c.gen++
	gen := c.gen

	c.pending = c.queue.PostDelayed(delay, func() { c.fire(gen) }, func() { c.drop(gen) })
}

// FlushNow cancels any pending save and saves immediately on the calling
// goroutine.
func (c *Coalescer) FlushNow() {
	c.cancel()
	c.save()
}

// Pending reports whether a delayed save is scheduled.
func (c *Coalescer) Pending() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.pending != nil
}

// Stop cancels any pending save without saving.
func (c *Coalescer) Stop() {
	c.cancel()
}

func (c *Coalescer) cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.pending != nil {
		c.pending.Stop()
		c.pending = nil
	}
}

// drop clears a pending save whose task could not be queued, so that a
// later Request schedules a new one.
func (c *Coalescer) drop(gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.gen == gen {
		c.pending = nil
	}
}

// fire runs on the queue. A timer that fired after being cancelled or
// superseded finds a different generation and does nothing.
func (c *Coalescer) fire(gen uint64) {
	c.mu.Lock()

	if c.pending == nil || c.gen != gen {
		c.mu.Unlock()

		return
	}

	c.pending = nil
	c.mu.Unlock()

	c.save()
}
