package schedule

import (
	"sync"
	"time"
)

// DefaultQuietPeriod is the debounce delay used for editor text fields.
const DefaultQuietPeriod = 500 * time.Millisecond

// Debouncer coalesces calls per key: each Trigger cancels the pending call
// for that key and schedules fn after the quiet period.
//
// Thread-safety: safe for concurrent use.
type Debouncer struct {
	delay time.Duration

	mu      sync.Mutex
	pending map[string]*Handle
	stopped bool
}

// NewDebouncer creates a debouncer. A non-positive delay uses
// DefaultQuietPeriod.
func NewDebouncer(delay time.Duration) *Debouncer {
	if delay <= 0 {
		delay = DefaultQuietPeriod
	}
	return &Debouncer{
		delay:   delay,
		pending: make(map[string]*Handle),
	}
}

// Delay returns the quiet period.
func (d *Debouncer) Delay() time.Duration {
	return d.delay
}

// Trigger (re)schedules fn for key. Only the fn of the last Trigger within a
// quiet period runs.
func (d *Debouncer) Trigger(key string, fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}
	if h, ok := d.pending[key]; ok {
		h.Cancel()
	}

	var h *Handle
	h = After(d.delay, func() {
		d.mu.Lock()
		if d.pending[key] == h {
			delete(d.pending, key)
		}
		d.mu.Unlock()
		fn()
	})
	d.pending[key] = h
}

// Cancel drops the pending call for key. It reports whether one was pending.
func (d *Debouncer) Cancel(key string) bool {
	d.mu.Lock()
	h, ok := d.pending[key]
	delete(d.pending, key)
	d.mu.Unlock()

	return ok && h.Cancel()
}

// Flush runs the pending call for key immediately on the calling goroutine.
// It reports whether a call ran.
func (d *Debouncer) Flush(key string) bool {
	d.mu.Lock()
	h, ok := d.pending[key]
	delete(d.pending, key)
	d.mu.Unlock()

	return ok && h.Flush()
}

// Pending reports whether key has a scheduled call.
func (d *Debouncer) Pending(key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	h, ok := d.pending[key]
	return ok && h.Pending()
}

// Stop cancels every pending call and ignores later Triggers.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	pending := d.pending
	d.pending = make(map[string]*Handle)
	d.stopped = true
	d.mu.Unlock()

	for _, h := range pending {
		h.Cancel()
	}
}
