// Package listen holds the callback registry shared by the stores and views.
package listen

import "sync"

// Set is a registration-ordered set of callbacks notified with a value.
// The zero value is ready to use.
//
// Thread-safety: safe for concurrent use. Callbacks run after the internal
// lock is released, so they may register or remove callbacks themselves.
type Set[T any] struct {
	mu   sync.Mutex
	next int
	fns  map[int]func(T)
}

// Add registers fn and returns a function that removes it.
func (s *Set[T]) Add(fn func(T)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fns == nil {
		s.fns = make(map[int]func(T))
	}
	id := s.next
	s.next++
	s.fns[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.fns, id)
	}
}

// Notify calls every registered callback with v, oldest first.
func (s *Set[T]) Notify(v T) {
	s.mu.Lock()
	fns := make([]func(T), 0, len(s.fns))
	for id := 0; id < s.next; id++ {
		if fn, ok := s.fns[id]; ok {
			fns = append(fns, fn)
		}
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn(v)
	}
}

// Len returns the number of registered callbacks.
func (s *Set[T]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.fns)
}
