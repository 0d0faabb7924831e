package realtime

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/notesync/internal/model"
)

func TestChangeQueue_FIFO(t *testing.T) {
	q := newChangeQueue()

	for i := int64(1); i <= 3; i++ {
		require.True(t, q.Enqueue(model.Change{Seq: i}))
	}
	assert.Equal(t, 3, q.Len())

	for i := int64(1); i <= 3; i++ {
		c, ok := q.TryDequeue()
		require.True(t, ok)
		assert.Equal(t, i, c.Seq)
	}

	_, ok := q.TryDequeue()
	assert.False(t, ok, "dequeue from empty queue should return false")
}

func TestChangeQueue_SignalCoalesces(t *testing.T) {
	q := newChangeQueue()
	q.Enqueue(model.Change{Seq: 1})
	q.Enqueue(model.Change{Seq: 2})

	select {
	case <-q.Wait():
	default:
		t.Fatal("expected a pending signal")
	}

	select {
	case <-q.Wait():
		t.Fatal("signals should coalesce into one")
	default:
	}
}

func TestChangeQueue_CloseRejectsEnqueue(t *testing.T) {
	q := newChangeQueue()
	q.Close()
	q.Close()

	assert.False(t, q.Enqueue(model.Change{Seq: 1}))

	_, open := <-q.Wait()
	assert.False(t, open, "closing must wake waiters")
}
