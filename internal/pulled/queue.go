package pulled

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/sirupsen/logrus"
)

// ErrQueueClosed is returned when work is submitted to a closed queue.
var ErrQueueClosed = errors.New("task queue closed")

// TaskQueue runs tasks one at a time, in submission order, on a single
// worker goroutine. It is the only place a metric's state is mutated.
// The queue is unbounded: posting never blocks and never drops while the
// queue is open.
type TaskQueue struct {
	log   logrus.FieldLogger
	clock clock.Clock
	hint  int
	wake  chan struct{}
	done  chan struct{}

	mu     sync.Mutex
	tasks  []func()
	closed bool
}

// NewTaskQueue starts a queue. size preallocates room for that many
// pending tasks; the queue grows past it as needed.
func NewTaskQueue(log logrus.FieldLogger, clk clock.Clock, size int) *TaskQueue {
	if size <= 0 {
		size = 1024
	}

	q := &TaskQueue{
		log:   log,
		clock: clk,
		hint:  size,
		wake:  make(chan struct{}, 1),
		done:  make(chan struct{}),
		tasks: make([]func(), 0, size),
	}

	go q.run()

	return q
}

func (q *TaskQueue) run() {
	defer close(q.done)

	for {
		q.mu.Lock()
		batch := q.tasks
		closed := q.closed

		if len(batch) > 0 {
			q.tasks = make([]func(), 0, q.hint)
		}
		q.mu.Unlock()

		for _, task := range batch {
			q.exec(task)
		}

		if len(batch) > 0 {
			continue
		}

		if closed {
			return
		}

		<-q.wake
	}
}

func (q *TaskQueue) exec(task func()) {
	defer func() {
		if r := recover(); r != nil {
			q.log.WithField("panic", r).Error("Task panicked")
		}
	}()

	task()
}

// Post enqueues task without blocking. It returns false only when the
// queue is closed, in which case the task is dropped.
func (q *TaskQueue) Post(task func()) bool {
	q.mu.Lock()

	if q.closed {
		q.mu.Unlock()

		return false
	}

	q.tasks = append(q.tasks, task)
	q.mu.Unlock()

	q.signal()

	return true
}

func (q *TaskQueue) signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// PostDelayed enqueues task once d has elapsed on the queue's clock. The
// returned timer can be stopped to cancel a task that has not fired yet.
// dropped, when not nil, runs on the timer goroutine if the queue was
// closed by the time the timer fired.
func (q *TaskQueue) PostDelayed(d time.Duration, task func(), dropped func()) *clock.Timer {
	return q.clock.AfterFunc(d, func() {
		if !q.Post(task) && dropped != nil {
			dropped()
		}
	})
}

// Do enqueues task and waits for it to finish. Must not be called from a
// task.
func (q *TaskQueue) Do(ctx context.Context, task func()) error {
	finished := make(chan struct{})

	if !q.Post(func() {
		defer close(finished)

		task()
	}) {
		return ErrQueueClosed
	}

	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Len returns the number of tasks waiting to run.
func (q *TaskQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	return len(q.tasks)
}

// Cap returns the preallocated queue size.
func (q *TaskQueue) Cap() int {
	return q.hint
}

// Close stops accepting tasks, runs the ones already queued and waits
// for the worker to exit. Delayed tasks that fire afterwards are dropped.
func (q *TaskQueue) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()

	q.signal()

	<-q.done
}
