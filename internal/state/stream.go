package state

import (
	"github.com/roach88/notesync/internal/gateway"
	"github.com/roach88/notesync/internal/model"
)

// stream drains a subscription into an apply function on its own goroutine.
type stream struct {
	owner string
	sub   *gateway.Subscription
	done  chan struct{}
}

func startStream(owner string, sub *gateway.Subscription, apply func(model.Change)) *stream {
	st := &stream{owner: owner, sub: sub, done: make(chan struct{})}
	go func() {
		defer close(st.done)
		for c := range sub.Changes() {
			apply(c)
		}
	}()
	return st
}

// stop closes the subscription and waits until the apply goroutine has
// finished, so no change is applied after stop returns.
func (st *stream) stop() error {
	err := st.sub.Close()
	<-st.done
	return err
}
