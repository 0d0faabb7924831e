package state

import "sync"

// keyedMutex serializes work per key. Holders are admitted in the order they
// reserved, which lets a caller take its place in line synchronously and
// wait for its turn on another goroutine.
type keyedMutex struct {
	mu    sync.Mutex
	tails map[string]chan struct{}
}

// ticket is a reserved place in a key's line.
type ticket struct {
	km   *keyedMutex
	key  string
	prev chan struct{}
	done chan struct{}
}

// reserve queues behind every earlier reservation of key.
func (km *keyedMutex) reserve(key string) ticket {
	km.mu.Lock()
	defer km.mu.Unlock()
	if km.tails == nil {
		km.tails = make(map[string]chan struct{})
	}
	t := ticket{km: km, key: key, prev: km.tails[key], done: make(chan struct{})}
	km.tails[key] = t.done
	return t
}

// wait blocks until every earlier holder has unlocked and returns the unlock
// function.
func (t ticket) wait() func() {
	if t.prev != nil {
		<-t.prev
	}
	return func() {
		t.km.mu.Lock()
		if t.km.tails[t.key] == t.done {
			delete(t.km.tails, t.key)
		}
		t.km.mu.Unlock()
		close(t.done)
	}
}

// lock reserves and waits in one step.
func (km *keyedMutex) lock(key string) func() {
	return km.reserve(key).wait()
}
