package realtime

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/notesync/internal/model"
)

func receive(t *testing.T, sub *Subscriber) model.Change {
	t.Helper()
	select {
	case c, ok := <-sub.Changes():
		require.True(t, ok, "subscription closed unexpectedly")
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for change")
	}
	return model.Change{}
}

func assertQuiet(t *testing.T, sub *Subscriber) {
	t.Helper()
	select {
	case c := <-sub.Changes():
		t.Fatalf("unexpected change: %+v", c)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestBroker_DeliversMatchingTopics(t *testing.T) {
	b := NewBroker(nil)
	defer b.Close()

	notes, err := b.Subscribe("notes/u1")
	require.NoError(t, err)
	all, err := b.Subscribe("**")
	require.NoError(t, err)

	b.Publish(model.Change{Table: model.TableNotes, Op: model.OpInsert, OwnerID: "u1"})
	b.Publish(model.Change{Table: model.TableTasks, Op: model.OpInsert, OwnerID: "u1"})
	b.Publish(model.Change{Table: model.TableNotes, Op: model.OpInsert, OwnerID: "u2"})

	got := receive(t, notes)
	assert.Equal(t, model.TableNotes, got.Table)
	assert.Equal(t, "u1", got.OwnerID)
	assertQuiet(t, notes)

	for i := 0; i < 3; i++ {
		receive(t, all)
	}
}

func TestBroker_StampsIncreasingSeq(t *testing.T) {
	b := NewBroker(nil)
	defer b.Close()

	sub, err := b.Subscribe("*/u1")
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		b.Publish(model.Change{Table: model.TableTasks, Op: model.OpUpdate, OwnerID: "u1"})
	}

	var last int64
	for i := 0; i < 5; i++ {
		c := receive(t, sub)
		assert.Greater(t, c.Seq, last)
		last = c.Seq
	}
}

func TestBroker_PublishDoesNotBlockOnSlowSubscriber(t *testing.T) {
	b := NewBroker(nil)
	defer b.Close()

	sub, err := b.Subscribe("**")
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 1000; i++ {
			b.Publish(model.Change{Table: model.TableNotes, Op: model.OpInsert, OwnerID: "u1"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on an unread subscriber")
	}

	assert.Equal(t, int64(1), receive(t, sub).Seq)
}

func TestSubscriber_CloseStopsDelivery(t *testing.T) {
	b := NewBroker(nil)
	defer b.Close()

	sub, err := b.Subscribe("notes/u1")
	require.NoError(t, err)
	require.Equal(t, 1, b.Len())

	require.NoError(t, sub.Close())
	require.NoError(t, sub.Close(), "close is idempotent")
	assert.Equal(t, 0, b.Len())

	b.Publish(model.Change{Table: model.TableNotes, Op: model.OpInsert, OwnerID: "u1"})

	_, open := <-sub.Changes()
	assert.False(t, open, "channel is closed after Close")
}

func TestBroker_SubscribeRejectsBadPattern(t *testing.T) {
	b := NewBroker(nil)
	defer b.Close()

	_, err := b.Subscribe("notes/[u1")
	assert.Error(t, err)
}

func TestBroker_CloseRejectsNewSubscribers(t *testing.T) {
	b := NewBroker(nil)
	sub, err := b.Subscribe("**")
	require.NoError(t, err)

	b.Close()

	_, open := <-sub.Changes()
	assert.False(t, open)

	_, err = b.Subscribe("**")
	assert.ErrorIs(t, err, ErrClosed)
}
