// Package clock provides the two notions of time NoteSync relies on: wall
// time for updated_at stamps and a logical sequence for change ordering.
package clock

import (
	"sync/atomic"
	"time"
)

// Clock supplies wall-clock timestamps.
type Clock interface {
	Now() time.Time
}

// System is the real wall clock, in UTC.
type System struct{}

// Now returns the current UTC time.
func (System) Now() time.Time { return time.Now().UTC() }

// Sequence is a monotonic logical clock for change ordering.
//
// Every published change is stamped with a strictly increasing seq number,
// so subscribers can tell delivery order apart from wall-clock order.
//
// Thread-safety: Sequence is safe for concurrent use (atomic operations).
type Sequence struct {
	seq atomic.Int64
}

// NewSequence creates a sequence starting at 0.
func NewSequence() *Sequence {
	return &Sequence{}
}

// NewSequenceAt creates a sequence starting at a specific number.
// Used to resume numbering after a restart.
func NewSequenceAt(start int64) *Sequence {
	s := &Sequence{}
	s.seq.Store(start)
	return s
}

// Next returns the next sequence number and increments the sequence.
func (s *Sequence) Next() int64 {
	return s.seq.Add(1)
}

// Current returns the current sequence number without incrementing.
func (s *Sequence) Current() int64 {
	return s.seq.Load()
}
