// Package schedule runs work later: one-shot delayed tasks with cancel
// handles, and a keyed debouncer that coalesces bursts into a single call.
package schedule

import (
	"sync"
	"time"
)

// Handle controls a task scheduled with After.
type Handle struct {
	timer *time.Timer
	mu    sync.Mutex
	fn    func()
	done  bool
}

// After runs fn on its own goroutine once delay has elapsed, unless the
// returned handle is cancelled or flushed first.
func After(delay time.Duration, fn func()) *Handle {
	h := &Handle{fn: fn}
	h.timer = time.AfterFunc(delay, h.fire)
	return h
}

// Cancel prevents the task from running. It reports whether the task was
// still pending.
func (h *Handle) Cancel() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.done {
		return false
	}
	h.done = true
	h.timer.Stop()
	return true
}

// Flush runs the task now on the calling goroutine if it is still pending.
// It reports whether the task ran.
func (h *Handle) Flush() bool {
	h.mu.Lock()
	if h.done {
		h.mu.Unlock()
		return false
	}
	h.done = true
	h.timer.Stop()
	fn := h.fn
	h.mu.Unlock()

	fn()
	return true
}

// Pending reports whether the task has neither run nor been cancelled.
func (h *Handle) Pending() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return !h.done
}

func (h *Handle) fire() {
	h.mu.Lock()
	if h.done {
		h.mu.Unlock()
		return
	}
	h.done = true
	fn := h.fn
	h.mu.Unlock()

	fn()
}
