package realtime

import (
	"sync"

	"github.com/roach88/notesync/internal/model"
)

// changeQueue is a thread-safe FIFO queue of changes for one subscriber.
//
// The queue is unbounded so a slow subscriber never blocks a publisher.
// A signal channel with a buffer of 1 lets the delivery goroutine wait for
// work with select, alongside its stop channel.
type changeQueue struct {
	mu      sync.Mutex
	changes []model.Change
	closed  bool
	signal  chan struct{}
}

func newChangeQueue() *changeQueue {
	return &changeQueue{
		changes: make([]model.Change, 0, 16),
		signal:  make(chan struct{}, 1),
	}
}

// Enqueue adds a change to the back of the queue.
// Returns false if the queue is closed.
func (q *changeQueue) Enqueue(c model.Change) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}

	q.changes = append(q.changes, c)

	// Non-blocking: the buffer of 1 coalesces multiple signals.
	select {
	case q.signal <- struct{}{}:
	default:
	}

	return true
}

// TryDequeue removes the front change without blocking.
func (q *changeQueue) TryDequeue() (model.Change, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.changes) == 0 {
		return model.Change{}, false
	}

	c := q.changes[0]

	// Clear the slot so the payload bytes can be collected.
	q.changes[0] = model.Change{}
	if len(q.changes) == 1 {
		q.changes = q.changes[:0]
	} else {
		q.changes = q.changes[1:]
	}

	return c, true
}

// Wait returns a channel that signals when changes may be available.
// The channel is closed when the queue is closed.
func (q *changeQueue) Wait() <-chan struct{} {
	return q.signal
}

// Len returns the current queue length.
func (q *changeQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.changes)
}

// Close stops further enqueues and wakes the waiter.
func (q *changeQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}

	q.closed = true
	close(q.signal)
}
