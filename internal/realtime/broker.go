package realtime

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/roach88/notesync/internal/clock"
	"github.com/roach88/notesync/internal/model"
)

// ErrClosed is returned when subscribing to a closed broker.
var ErrClosed = errors.New("realtime: broker closed")

// Broker fans row changes out to subscribers.
//
// Every change is published on the topic "table/owner". Subscribers register a
// glob pattern over topics ("notes/u1", "*/u1", "**") matched with doublestar.
// Publish stamps each change with the next value of the broker's sequence and
// enqueues it for every matching subscriber while holding the broker lock, so
// all subscribers observe changes in seq order.
//
// Publish never blocks on a subscriber: each one owns an unbounded queue
// drained by its own delivery goroutine.
type Broker struct {
	seq *clock.Sequence

	mu     sync.Mutex
	subs   map[uint64]*Subscriber
	nextID uint64
	closed bool
}

// NewBroker creates a broker stamping changes with seq.
// If seq is nil a fresh sequence starting at 0 is used.
func NewBroker(seq *clock.Sequence) *Broker {
	if seq == nil {
		seq = clock.NewSequence()
	}
	return &Broker{
		seq:  seq,
		subs: make(map[uint64]*Subscriber),
	}
}

// Publish stamps c with the next sequence number and delivers it to every
// subscriber whose pattern matches c's topic. Returns the stamped change.
func (b *Broker) Publish(c model.Change) model.Change {
	b.mu.Lock()
	defer b.mu.Unlock()

	c.Seq = b.seq.Next()
	if b.closed {
		return c
	}

	topic := c.Topic().String()
	delivered := 0
	for _, sub := range b.subs {
		if !sub.matches(topic) {
			continue
		}
		if sub.queue.Enqueue(c) {
			delivered++
		}
	}

	slog.Debug("change published",
		"seq", c.Seq,
		"topic", topic,
		"op", c.Op,
		"subscribers", delivered,
	)
	return c
}

// Subscribe registers a subscriber for topics matching pattern.
func (b *Broker) Subscribe(pattern string) (*Subscriber, error) {
	if !doublestar.ValidatePattern(pattern) {
		return nil, fmt.Errorf("subscribe: invalid topic pattern %q", pattern)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, ErrClosed
	}

	b.nextID++
	sub := &Subscriber{
		id:      b.nextID,
		pattern: pattern,
		broker:  b,
		queue:   newChangeQueue(),
		out:     make(chan model.Change),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	b.subs[sub.id] = sub
	go sub.run()

	slog.Debug("subscriber added", "id", sub.id, "pattern", pattern)
	return sub, nil
}

// Len returns the number of live subscribers.
func (b *Broker) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Close stops every subscriber and rejects new ones.
func (b *Broker) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	subs := make([]*Subscriber, 0, len(b.subs))
	for _, sub := range b.subs {
		subs = append(subs, sub)
	}
	b.mu.Unlock()

	for _, sub := range subs {
		_ = sub.Close()
	}
}

func (b *Broker) remove(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.subs, id)
}

// Subscriber receives the changes matching one pattern.
type Subscriber struct {
	id      uint64
	pattern string
	broker  *Broker
	queue   *changeQueue

	out  chan model.Change
	stop chan struct{}
	done chan struct{}
	once sync.Once
}

// Changes returns the delivery channel. It is closed after Close returns.
func (s *Subscriber) Changes() <-chan model.Change {
	return s.out
}

// Close stops delivery. Once Close returns no further change is sent on
// Changes. Safe to call more than once.
func (s *Subscriber) Close() error {
	s.once.Do(func() {
		s.broker.remove(s.id)
		s.queue.Close()
		close(s.stop)
	})
	<-s.done
	return nil
}

func (s *Subscriber) matches(topic string) bool {
	ok, err := doublestar.Match(s.pattern, topic)
	return err == nil && ok
}

// run forwards queued changes to out until stopped.
func (s *Subscriber) run() {
	defer close(s.done)
	defer close(s.out)

	for {
		for {
			c, ok := s.queue.TryDequeue()
			if !ok {
				break
			}
			select {
			case s.out <- c:
			case <-s.stop:
				return
			}
		}

		select {
		case <-s.stop:
			return
		case _, ok := <-s.queue.Wait():
			if !ok && s.queue.Len() == 0 {
				return
			}
		}
	}
}
