package state

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/notesync/internal/model"
	"github.com/roach88/notesync/internal/store"
	"github.com/roach88/notesync/internal/testutil"
)

func newNoteStore(t *testing.T) (*NoteStore, *flakyGateway) {
	t.Helper()
	gw := newFlakyGateway(setupTestStore(t))
	return NewNoteStore(gw, testOptions()...), gw
}

func TestNoteStore_CreatePrependsDefaults(t *testing.T) {
	ns, _ := newNoteStore(t)
	ctx := context.Background()

	first, err := ns.Create(ctx, "u1")
	require.NoError(t, err)
	second, err := ns.Create(ctx, "u1")
	require.NoError(t, err)

	notes := ns.Notes()
	require.Len(t, notes, 2)
	assert.Equal(t, second.ID, notes[0].ID)
	assert.Equal(t, first.ID, notes[1].ID)
	assert.Equal(t, model.DefaultNoteTitle, first.Title)
	assert.Equal(t, model.DefaultNoteColor, first.Color)
	assert.Empty(t, first.Body)
}

func TestNoteStore_FetchAllOrdersByRecency(t *testing.T) {
	ns, gw := newNoteStore(t)
	ctx := context.Background()

	a, err := gw.InsertNote(ctx, model.NewNoteDraft("u1"))
	require.NoError(t, err)
	b, err := gw.InsertNote(ctx, model.NewNoteDraft("u1"))
	require.NoError(t, err)
	_, err = gw.InsertNote(ctx, model.NewNoteDraft("u2"))
	require.NoError(t, err)

	require.NoError(t, ns.FetchAll(ctx, "u1"))
	notes := ns.Notes()
	require.Len(t, notes, 2)
	assert.Equal(t, b.ID, notes[0].ID)
	assert.Equal(t, a.ID, notes[1].ID)
}

func TestNoteStore_FetchAllFailureKeepsList(t *testing.T) {
	ns, gw := newNoteStore(t)
	ctx := context.Background()

	_, err := ns.Create(ctx, "u1")
	require.NoError(t, err)

	gw.setFail("list notes", true)
	err = ns.FetchAll(ctx, "u1")
	require.Error(t, err)
	assert.Len(t, ns.Notes(), 1)
}

func TestNoteStore_UpdateIsOptimistic(t *testing.T) {
	ns, gw := newNoteStore(t)
	ctx := context.Background()

	n, err := ns.Create(ctx, "u1")
	require.NoError(t, err)
	ns.Select(&n)

	gw.setFail("update note", true)
	title := "Groceries"
	err = ns.Update(ctx, n.ID, model.NotePatch{Title: &title})
	require.Error(t, err)

	got, ok := ns.Note(n.ID)
	require.True(t, ok)
	assert.Equal(t, "Groceries", got.Title)
	require.NotNil(t, ns.State().Selected)
	assert.Equal(t, "Groceries", ns.State().Selected.Title)
}

func TestNoteStore_UpdateThenFetchShowsNewerStamp(t *testing.T) {
	// The backend clock never moves; stamps still grow.
	gw := newFlakyGateway(setupTestStore(t, store.WithClock(testutil.NewManualClock(0))))
	ns := NewNoteStore(gw, testOptions()...)
	ctx := context.Background()

	n, err := ns.Create(ctx, "u1")
	require.NoError(t, err)

	title := "Plans"
	require.NoError(t, ns.Update(ctx, n.ID, model.NotePatch{Title: &title}))
	require.NoError(t, ns.FetchAll(ctx, "u1"))

	got, ok := ns.Note(n.ID)
	require.True(t, ok)
	assert.Equal(t, "Plans", got.Title)
	assert.True(t, got.UpdatedAt.After(n.UpdatedAt))
}

func TestNoteStore_SessionsConvergeOnLastWrite(t *testing.T) {
	backend := setupTestStore(t, store.WithClock(testutil.NewManualClock(0)))
	a := NewNoteStore(backend, testOptions()...)
	b := NewNoteStore(backend, testOptions()...)
	ctx := context.Background()

	n, err := backend.InsertNote(ctx, model.NewNoteDraft("u1"))
	require.NoError(t, err)
	for _, ns := range []*NoteStore{a, b} {
		require.NoError(t, ns.FetchAll(ctx, "u1"))
		stop, err := ns.Subscribe(ctx, "u1")
		require.NoError(t, err)
		defer stop()
	}

	first, second := "from a", "from b"
	require.NoError(t, a.Update(ctx, n.ID, model.NotePatch{Title: &first}))
	require.NoError(t, b.Update(ctx, n.ID, model.NotePatch{Title: &second}))

	for _, ns := range []*NoteStore{a, b} {
		require.Eventually(t, func() bool {
			got, _ := ns.Note(n.ID)
			return got.Title == second
		}, time.Second, 10*time.Millisecond)
	}
	time.Sleep(100 * time.Millisecond)
	gotA, _ := a.Note(n.ID)
	gotB, _ := b.Note(n.ID)
	assert.Equal(t, second, gotA.Title)
	assert.True(t, gotA.UpdatedAt.Equal(gotB.UpdatedAt))
}

func TestNoteStore_EchoHeldWhileWriteInFlight(t *testing.T) {
	backend := setupTestStore(t)
	gw := newHeldGateway(backend)
	ns := NewNoteStore(gw, testOptions()...)
	ctx := context.Background()

	n, err := backend.InsertNote(ctx, model.NewNoteDraft("u1"))
	require.NoError(t, err)
	require.NoError(t, ns.FetchAll(ctx, "u1"))
	stop, err := ns.Subscribe(ctx, "u1")
	require.NoError(t, err)
	defer stop()

	mine := "mine"
	done := make(chan error, 1)
	go func() { done <- ns.Update(ctx, n.ID, model.NotePatch{Title: &mine}) }()
	<-gw.entered

	theirs := "theirs"
	_, err = backend.UpdateNote(ctx, n.ID, model.NotePatch{Title: &theirs})
	require.NoError(t, err)
	assert.Never(t, func() bool {
		got, _ := ns.Note(n.ID)
		return got.Title != mine
	}, 150*time.Millisecond, 10*time.Millisecond)

	close(gw.release)
	require.NoError(t, <-done)

	stored, err := backend.GetNote(ctx, n.ID)
	require.NoError(t, err)
	assert.Equal(t, mine, stored.Title)
	require.Eventually(t, func() bool {
		got, _ := ns.Note(n.ID)
		return got.Title == mine && got.UpdatedAt.Equal(stored.UpdatedAt)
	}, time.Second, 10*time.Millisecond)
}

func TestNoteStore_InsertEventIsIdempotent(t *testing.T) {
	ns, _ := newNoteStore(t)
	n := model.Note{ID: "n1", OwnerID: "u1", Title: "x", UpdatedAt: time.Now().UTC()}

	ns.Apply(model.Event[model.Note]{Op: model.OpInsert, New: &n})
	ns.Apply(model.Event[model.Note]{Op: model.OpInsert, New: &n})

	assert.Len(t, ns.Notes(), 1)
}

func TestNoteStore_CreateEchoDoesNotDuplicate(t *testing.T) {
	ns, _ := newNoteStore(t)
	ctx := context.Background()

	stop, err := ns.Subscribe(ctx, "u1")
	require.NoError(t, err)
	defer stop()

	_, err = ns.Create(ctx, "u1")
	require.NoError(t, err)

	assert.Never(t, func() bool { return len(ns.Notes()) != 1 }, 200*time.Millisecond, 10*time.Millisecond)
}

func TestNoteStore_StaleEchoIsDropped(t *testing.T) {
	ns, _ := newNoteStore(t)
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	local := model.Note{ID: "n1", OwnerID: "u1", Title: "new", UpdatedAt: base.Add(time.Second)}
	ns.Apply(model.Event[model.Note]{Op: model.OpInsert, New: &local})

	stale := local
	stale.Title = "old"
	stale.UpdatedAt = base
	ns.Apply(model.Event[model.Note]{Op: model.OpUpdate, New: &stale})

	got, _ := ns.Note("n1")
	assert.Equal(t, "new", got.Title)

	fresh := local
	fresh.Title = "newer"
	fresh.UpdatedAt = base.Add(2 * time.Second)
	ns.Apply(model.Event[model.Note]{Op: model.OpUpdate, New: &fresh})

	got, _ = ns.Note("n1")
	assert.Equal(t, "newer", got.Title)
}

func TestNoteStore_EchoNeverRevertsNewerEdit(t *testing.T) {
	ns, _ := newNoteStore(t)
	ctx := context.Background()

	n, err := ns.Create(ctx, "u1")
	require.NoError(t, err)

	var (
		mu     sync.Mutex
		titles []string
	)
	ns.Listen(func(st NoteState) {
		if i := indexOf(st.Notes, n.ID); i >= 0 {
			mu.Lock()
			titles = append(titles, st.Notes[i].Title)
			mu.Unlock()
		}
	})

	stop, err := ns.Subscribe(ctx, "u1")
	require.NoError(t, err)
	defer stop()

	a, b := "A", "B"
	require.NoError(t, ns.Update(ctx, n.ID, model.NotePatch{Title: &a}))
	require.NoError(t, ns.Update(ctx, n.ID, model.NotePatch{Title: &b}))

	require.Eventually(t, func() bool {
		got, _ := ns.Note(n.ID)
		return got.Title == "B"
	}, time.Second, 10*time.Millisecond)
	time.Sleep(100 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	seenB := false
	for _, title := range titles {
		if title == "B" {
			seenB = true
			continue
		}
		assert.False(t, seenB && title == "A", "title reverted after newer edit: %v", titles)
	}
	got, _ := ns.Note(n.ID)
	assert.Equal(t, "B", got.Title)
}

func TestNoteStore_UpdateEventForUnknownNoteIsDropped(t *testing.T) {
	ns, _ := newNoteStore(t)
	n := model.Note{ID: "ghost", OwnerID: "u1"}
	ns.Apply(model.Event[model.Note]{Op: model.OpUpdate, New: &n})
	assert.Empty(t, ns.Notes())
}

func TestNoteStore_SelectionRefreshedFromEvent(t *testing.T) {
	ns, _ := newNoteStore(t)
	n := model.Note{ID: "n1", OwnerID: "u1", Title: "one", UpdatedAt: time.Unix(100, 0).UTC()}
	ns.Apply(model.Event[model.Note]{Op: model.OpInsert, New: &n})
	ns.Select(&n)

	updated := n
	updated.Title = "two"
	updated.UpdatedAt = time.Unix(200, 0).UTC()
	ns.Apply(model.Event[model.Note]{Op: model.OpUpdate, New: &updated})

	st := ns.State()
	require.NotNil(t, st.Selected)
	assert.Equal(t, "two", st.Selected.Title)
	assert.True(t, st.EditorOpen)
}

func TestNoteStore_SelectionOutsideCollectionFollowsEvents(t *testing.T) {
	ns, _ := newNoteStore(t)
	n := model.Note{ID: "n1", OwnerID: "u1", Title: "one", UpdatedAt: time.Unix(100, 0).UTC()}
	ns.Select(&n)

	updated := n
	updated.Title = "two"
	updated.UpdatedAt = time.Unix(200, 0).UTC()
	ns.Apply(model.Event[model.Note]{Op: model.OpUpdate, New: &updated})

	st := ns.State()
	assert.Empty(t, st.Notes)
	require.NotNil(t, st.Selected)
	assert.Equal(t, "two", st.Selected.Title)

	older := n
	older.Title = "zero"
	older.UpdatedAt = time.Unix(50, 0).UTC()
	ns.Apply(model.Event[model.Note]{Op: model.OpUpdate, New: &older})
	assert.Equal(t, "two", ns.State().Selected.Title)
}

func TestNoteStore_DeleteCascades(t *testing.T) {
	gw := newFlakyGateway(setupTestStore(t))
	ns := NewNoteStore(gw, testOptions()...)
	ts := NewTaskStore(gw, nil, testOptions()...)
	ns.OnDelete(ts.ForgetNote)
	ctx := context.Background()

	n, err := ns.Create(ctx, "u1")
	require.NoError(t, err)
	_, err = ts.Create(ctx, n.ID, "u1", "milk")
	require.NoError(t, err)
	require.Len(t, ts.Tasks(n.ID), 1)

	ns.Select(&n)
	ns.OpenFloating(n)

	var deleted []string
	ns.OnDelete(func(id string) { deleted = append(deleted, id) })

	require.NoError(t, ns.Delete(ctx, n.ID))

	st := ns.State()
	assert.Empty(t, st.Notes)
	assert.Nil(t, st.Selected)
	assert.False(t, st.EditorOpen)
	assert.Empty(t, st.Floating)
	assert.Empty(t, ts.Tasks(n.ID))
	assert.Equal(t, []string{n.ID}, deleted)

	remote, err := gw.ListTasks(ctx, model.TaskQuery{NoteID: n.ID})
	require.NoError(t, err)
	assert.Empty(t, remote)
}

func TestNoteStore_DeleteFailureKeepsNote(t *testing.T) {
	ns, gw := newNoteStore(t)
	ctx := context.Background()

	n, err := ns.Create(ctx, "u1")
	require.NoError(t, err)

	gw.setFail("delete note", true)
	require.Error(t, ns.Delete(ctx, n.ID))
	assert.Len(t, ns.Notes(), 1)
}

func TestNoteStore_DeleteMissingNoteFails(t *testing.T) {
	ns, _ := newNoteStore(t)
	assert.Error(t, ns.Delete(context.Background(), "missing"))
}

func TestNoteStore_RemoteDeleteEventCascades(t *testing.T) {
	ns, _ := newNoteStore(t)
	n := model.Note{ID: "n1", OwnerID: "u1"}
	ns.Apply(model.Event[model.Note]{Op: model.OpInsert, New: &n})
	ns.Select(&n)
	ns.OpenFloating(n)

	fired := 0
	ns.OnDelete(func(string) { fired++ })
	ns.Apply(model.Event[model.Note]{Op: model.OpDelete, Old: &n})

	st := ns.State()
	assert.Empty(t, st.Notes)
	assert.Nil(t, st.Selected)
	assert.Empty(t, st.Floating)
	assert.Equal(t, 1, fired)
}

func TestNoteStore_OpenFloatingIsIdempotent(t *testing.T) {
	ns, _ := newNoteStore(t)
	n := model.Note{ID: "n1", OwnerID: "u1"}
	ns.Apply(model.Event[model.Note]{Op: model.OpInsert, New: &n})

	ns.OpenFloating(n)
	ns.OpenFloating(n)
	assert.Len(t, ns.State().Floating, 1)

	ns.CloseFloating(n.ID)
	assert.Empty(t, ns.State().Floating)
}

func TestNoteStore_FloatingViewsShareTheEntity(t *testing.T) {
	ns, _ := newNoteStore(t)
	n := model.Note{ID: "n1", OwnerID: "u1", Title: "one", UpdatedAt: time.Unix(1, 0).UTC()}
	ns.Apply(model.Event[model.Note]{Op: model.OpInsert, New: &n})
	ns.OpenFloating(n)

	updated := n
	updated.Title = "two"
	updated.UpdatedAt = time.Unix(2, 0).UTC()
	ns.Apply(model.Event[model.Note]{Op: model.OpUpdate, New: &updated})

	floating := ns.State().Floating
	require.Len(t, floating, 1)
	assert.Equal(t, "two", floating[0].Title)
}

func TestNoteStore_FloatingNoteOutsideCollection(t *testing.T) {
	ns, _ := newNoteStore(t)
	n := model.Note{ID: "n1", OwnerID: "u1", Title: "one", UpdatedAt: time.Unix(1, 0).UTC()}
	ns.OpenFloating(n)

	st := ns.State()
	assert.Empty(t, st.Notes)
	require.Len(t, st.Floating, 1)
	assert.Equal(t, "one", st.Floating[0].Title)

	updated := n
	updated.Title = "two"
	updated.UpdatedAt = time.Unix(2, 0).UTC()
	ns.Apply(model.Event[model.Note]{Op: model.OpUpdate, New: &updated})

	st = ns.State()
	assert.Empty(t, st.Notes)
	require.Len(t, st.Floating, 1)
	assert.Equal(t, "two", st.Floating[0].Title)

	ns.CloseFloating(n.ID)
	assert.Empty(t, ns.State().Floating)
}

func TestNoteStore_SearchFoldsCase(t *testing.T) {
	ns, _ := newNoteStore(t)
	for i, title := range []string{"Ärger im Büro", "Shopping", "café list"} {
		n := model.Note{ID: string(rune('a' + i)), OwnerID: "u1", Title: title}
		ns.Apply(model.Event[model.Note]{Op: model.OpInsert, New: &n})
	}

	ns.SetSearch("ärger")
	require.Len(t, ns.Filtered(), 1)
	assert.Equal(t, "Ärger im Büro", ns.Filtered()[0].Title)

	ns.SetSearch("CAFÉ")
	require.Len(t, ns.Filtered(), 1)

	ns.SetSearch("   ")
	assert.Len(t, ns.Filtered(), 3)
}

func TestNoteStore_ChangesForOtherOwnerAreDropped(t *testing.T) {
	ns, _ := newNoteStore(t)
	ctx := context.Background()

	stop, err := ns.Subscribe(ctx, "u1")
	require.NoError(t, err)
	defer stop()

	n := model.Note{ID: "n1", OwnerID: "u2"}
	c, err := model.NewChange(model.TableNotes, model.OpInsert, "u2", &n, nil)
	require.NoError(t, err)
	ns.ApplyChange(c)

	assert.Empty(t, ns.Notes())
}

func TestNoteStore_UnsubscribeStopsEvents(t *testing.T) {
	ns, gw := newNoteStore(t)
	ctx := context.Background()

	stop, err := ns.Subscribe(ctx, "u1")
	require.NoError(t, err)

	_, err = gw.InsertNote(ctx, model.NewNoteDraft("u1"))
	require.NoError(t, err)
	require.Eventually(t, func() bool { return len(ns.Notes()) == 1 }, time.Second, 10*time.Millisecond)

	require.NoError(t, stop())

	_, err = gw.InsertNote(ctx, model.NewNoteDraft("u1"))
	require.NoError(t, err)
	assert.Never(t, func() bool { return len(ns.Notes()) != 1 }, 200*time.Millisecond, 10*time.Millisecond)
}

func TestNoteStore_ResubscribeReplacesStream(t *testing.T) {
	ns, gw := newNoteStore(t)
	ctx := context.Background()

	_, err := ns.Subscribe(ctx, "u1")
	require.NoError(t, err)
	_, err = ns.Subscribe(ctx, "u2")
	require.NoError(t, err)
	defer ns.Unsubscribe()

	_, err = gw.InsertNote(ctx, model.NewNoteDraft("u1"))
	require.NoError(t, err)
	_, err = gw.InsertNote(ctx, model.NewNoteDraft("u2"))
	require.NoError(t, err)

	require.Eventually(t, func() bool { return len(ns.Notes()) == 1 }, time.Second, 10*time.Millisecond)
	assert.Equal(t, "u2", ns.Notes()[0].OwnerID)
}

func TestNoteStore_Reset(t *testing.T) {
	ns, _ := newNoteStore(t)
	n := model.Note{ID: "n1", OwnerID: "u1"}
	ns.Apply(model.Event[model.Note]{Op: model.OpInsert, New: &n})
	ns.Select(&n)
	ns.SetSearch("x")

	ns.Reset()
	st := ns.State()
	assert.Empty(t, st.Notes)
	assert.Nil(t, st.Selected)
	assert.Empty(t, st.Search)
}
