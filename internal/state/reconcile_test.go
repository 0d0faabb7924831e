package state

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/notesync/internal/model"
)

func noteAt(id string, sec int64) model.Note {
	return model.Note{ID: id, UpdatedAt: time.Unix(sec, 0).UTC()}
}

func TestInsertRecord(t *testing.T) {
	list := []model.Note{noteAt("a", 1)}

	out, changed := insertRecord(list, noteAt("b", 2), true)
	require.True(t, changed)
	assert.Equal(t, "b", out[0].ID)
	assert.Len(t, list, 1, "input not mutated")

	out, changed = insertRecord(out, noteAt("b", 3), false)
	assert.False(t, changed)
	assert.Len(t, out, 2)
}

func TestReplaceRecord(t *testing.T) {
	list := []model.Note{noteAt("a", 5)}

	_, res := replaceRecord(list, noteAt("a", 4), false)
	assert.Equal(t, outcomeStale, res)

	out, res := replaceRecord(list, noteAt("a", 5), false)
	assert.Equal(t, outcomeApplied, res, "equal stamps apply")
	assert.Equal(t, list[0].UpdatedAt, out[0].UpdatedAt)

	_, res = replaceRecord(list, noteAt("z", 9), false)
	assert.Equal(t, outcomeAbsent, res)

	out, res = replaceRecord(list, noteAt("z", 9), true)
	assert.Equal(t, outcomeApplied, res)
	assert.Len(t, out, 2)
}

func TestRemoveRecord(t *testing.T) {
	list := []model.Note{noteAt("a", 1), noteAt("b", 1), noteAt("c", 1)}

	out, removed := removeRecord(list, "b")
	require.True(t, removed)
	assert.Equal(t, []string{"a", "c"}, []string{out[0].ID, out[1].ID})
	assert.Equal(t, "b", list[1].ID, "input not mutated")

	_, removed = removeRecord(out, "b")
	assert.False(t, removed)
}

func TestInflight_HoldsEchoesUntilLastWriteEnds(t *testing.T) {
	var w inflight[model.Note]
	assert.False(t, w.hold(noteAt("a", 1)), "nothing in flight")

	w.begin("a")
	w.begin("a")
	assert.True(t, w.hold(noteAt("a", 3)))
	assert.True(t, w.hold(noteAt("a", 2)), "older echo is still held")
	assert.False(t, w.hold(noteAt("b", 9)), "other ids pass through")

	confirmed := noteAt("a", 2)
	_, ok := w.end("a", &confirmed)
	assert.False(t, ok, "one write still running")

	confirmed = noteAt("a", 4)
	got, ok := w.end("a", &confirmed)
	require.True(t, ok)
	assert.Equal(t, noteAt("a", 4), got)
	assert.False(t, w.hold(noteAt("a", 5)), "released after last write")
}

func TestInflight_LaterEchoBeatsConfirmedWrite(t *testing.T) {
	var w inflight[model.Note]
	w.begin("a")
	w.hold(noteAt("a", 7))

	confirmed := noteAt("a", 6)
	got, ok := w.end("a", &confirmed)
	require.True(t, ok)
	assert.Equal(t, noteAt("a", 7), got)
}

func TestInflight_FailedWriteAppliesHeldEcho(t *testing.T) {
	var w inflight[model.Note]
	w.begin("a")
	_, ok := w.end("a", nil)
	assert.False(t, ok, "nothing held, nothing confirmed")

	w.begin("a")
	w.hold(noteAt("a", 3))
	got, ok := w.end("a", nil)
	require.True(t, ok)
	assert.Equal(t, noteAt("a", 3), got)

	w.begin("a")
	w.reset()
	confirmed := noteAt("a", 8)
	got, ok = w.end("a", &confirmed)
	require.True(t, ok, "unknown id returns the confirmed record")
	assert.Equal(t, confirmed, got)
}

func TestKeyedMutex_RunsInReservationOrder(t *testing.T) {
	var km keyedMutex
	first := km.reserve("k")
	second := km.reserve("k")
	other := km.lock("other")
	other()

	var (
		mu    sync.Mutex
		order []int
	)
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		unlock := second.wait()
		mu.Lock()
		order = append(order, 2)
		mu.Unlock()
		unlock()
	}()
	time.Sleep(20 * time.Millisecond)
	go func() {
		defer wg.Done()
		unlock := first.wait()
		mu.Lock()
		order = append(order, 1)
		mu.Unlock()
		unlock()
	}()
	wg.Wait()

	assert.Equal(t, []int{1, 2}, order)
	assert.Empty(t, km.tails)
}

func TestFilterNotes_NormalizesComposition(t *testing.T) {
	notes := []model.Note{{ID: "1", Title: "café"}, {ID: "2", Body: "Tea"}}

	got := FilterNotes(notes, "Café")
	require.Len(t, got, 1)
	assert.Equal(t, "1", got[0].ID)

	assert.Len(t, FilterNotes(notes, ""), 2)
}
