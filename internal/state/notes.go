package state

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/roach88/notesync/internal/gateway"
	"github.com/roach88/notesync/internal/listen"
	"github.com/roach88/notesync/internal/model"
)

// NoteGateway is the part of the gateway the note store needs.
type NoteGateway interface {
	gateway.Notes
	gateway.Changes
}

// NoteState is a snapshot of the note store.
type NoteState struct {
	// Notes in display order, most recently updated first at fetch time.
	Notes []model.Note
	// Search is the current list filter.
	Search string
	// Selected is the note shown in the main editor, if any.
	Selected *model.Note
	// EditorOpen reports whether the main editor panel is showing.
	EditorOpen bool
	// Floating lists the notes open in floating windows, in opening order.
	Floating []model.Note
}

// Filtered returns the notes matching Search.
func (s NoteState) Filtered() []model.Note {
	return FilterNotes(s.Notes, s.Search)
}

// NoteStore owns the notes collection, the selection and the set of notes
// open in floating windows.
type NoteStore struct {
	gw  NoteGateway
	log *slog.Logger

	mu         sync.Mutex
	notes      []model.Note
	search     string
	selected   *model.Note
	editorOpen bool
	floating   []model.Note
	stream     *stream
	writes     inflight[model.Note]

	changed listen.Set[NoteState]
	deleted listen.Set[string]
}

// NewNoteStore creates an empty note store.
func NewNoteStore(gw NoteGateway, opts ...Option) *NoteStore {
	cfg := newConfig(opts)
	return &NoteStore{
		gw:    gw,
		log:   cfg.logger.With("store", "notes"),
		notes: []model.Note{},
	}
}

// State returns a snapshot.
func (s *NoteStore) State() NoteState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Notes returns the collection in display order.
func (s *NoteStore) Notes() []model.Note {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.notes
}

// Note returns a note by id.
func (s *NoteStore) Note(id string) (model.Note, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i := indexOf(s.notes, id); i >= 0 {
		return s.notes[i], true
	}
	return model.Note{}, false
}

// Filtered returns the notes matching the current search.
func (s *NoteStore) Filtered() []model.Note {
	return s.State().Filtered()
}

// Listen registers fn to receive a snapshot after every change. It returns a
// function that unregisters fn.
func (s *NoteStore) Listen(fn func(NoteState)) func() {
	return s.changed.Add(fn)
}

// OnDelete registers fn to run whenever a note leaves the collection through
// a delete, local or remote. It returns a function that unregisters fn.
func (s *NoteStore) OnDelete(fn func(noteID string)) func() {
	return s.deleted.Add(fn)
}

// FetchAll replaces the collection with the owner's notes. On failure the
// collection is left as it was.
func (s *NoteStore) FetchAll(ctx context.Context, ownerID string) error {
	notes, err := s.gw.ListNotes(ctx, ownerID)
	if err != nil {
		s.log.Error("failed to fetch notes", "owner", ownerID, "error", err)
		return fmt.Errorf("fetch notes: %w", err)
	}

	s.mu.Lock()
	s.notes = notes
	s.refreshSelectedLocked()
	state := s.snapshotLocked()
	s.mu.Unlock()

	s.log.Debug("notes fetched", "owner", ownerID, "count", len(notes))
	s.changed.Notify(state)
	return nil
}

// Create inserts a note with the default title, empty body and default color
// and places the persisted record at the front of the collection, unless its
// insert echo already did.
func (s *NoteStore) Create(ctx context.Context, ownerID string) (model.Note, error) {
	n, err := s.gw.InsertNote(ctx, model.NewNoteDraft(ownerID))
	if err != nil {
		s.log.Error("failed to create note", "owner", ownerID, "error", err)
		return model.Note{}, fmt.Errorf("create note: %w", err)
	}

	s.mu.Lock()
	var changed bool
	s.notes, changed = insertRecord(s.notes, n, true)
	state := s.snapshotLocked()
	s.mu.Unlock()

	if changed {
		s.changed.Notify(state)
	}
	return n, nil
}

// Update merges patch into the local note, the selection and any floating
// copy, then writes it through. Echoes of the note are held until the write
// returns; then the newest of them and the stored record is applied. A
// remote failure is logged and returned; the local edit stays.
func (s *NoteStore) Update(ctx context.Context, id string, patch model.NotePatch) error {
	s.mu.Lock()
	s.notes, _ = patchRecord(s.notes, id, patch.Apply)
	if s.selected != nil && s.selected.ID == id {
		sel := patch.Apply(*s.selected)
		s.selected = &sel
	}
	s.floating, _ = patchRecord(s.floating, id, patch.Apply)
	s.writes.begin(id)
	state := s.snapshotLocked()
	s.mu.Unlock()

	s.changed.Notify(state)

	n, err := s.gw.UpdateNote(ctx, id, patch)
	if err != nil {
		s.settle(id, nil)
		s.log.Error("failed to update note", "note_id", id, "error", err)
		return fmt.Errorf("update note %s: %w", id, err)
	}
	s.settle(id, &n)
	return nil
}

// settle ends one write of id and applies whatever record it leaves behind.
func (s *NoteStore) settle(id string, confirmed *model.Note) {
	s.mu.Lock()
	rec, ok := s.writes.end(id, confirmed)
	changed := ok && s.replaceLocked(rec)
	state := s.snapshotLocked()
	s.mu.Unlock()

	if changed {
		s.changed.Notify(state)
	}
}

// Delete removes the note remotely, then locally: it leaves the collection,
// the selection and the floating set, and delete listeners run.
func (s *NoteStore) Delete(ctx context.Context, id string) error {
	if err := s.gw.DeleteNote(ctx, id); err != nil {
		s.log.Error("failed to delete note", "note_id", id, "error", err)
		return fmt.Errorf("delete note %s: %w", id, err)
	}
	s.removeLocal(id)
	return nil
}

// Select shows note in the main editor, or closes the editor for nil.
func (s *NoteStore) Select(note *model.Note) {
	s.mu.Lock()
	if note == nil {
		s.selected = nil
		s.editorOpen = false
	} else {
		sel := *note
		if i := indexOf(s.notes, note.ID); i >= 0 {
			sel = s.notes[i]
		}
		s.selected = &sel
		s.editorOpen = true
	}
	state := s.snapshotLocked()
	s.mu.Unlock()

	s.changed.Notify(state)
}

// OpenFloating adds note to the floating set. Opening a note that is already
// floating changes nothing. The collection is left alone; a note missing from
// it floats as the given snapshot and follows its change events.
func (s *NoteStore) OpenFloating(note model.Note) {
	s.mu.Lock()
	if indexOf(s.floating, note.ID) >= 0 {
		s.mu.Unlock()
		return
	}
	if i := indexOf(s.notes, note.ID); i >= 0 {
		note = s.notes[i]
	}
	s.floating, _ = insertRecord(s.floating, note, false)
	state := s.snapshotLocked()
	s.mu.Unlock()

	s.changed.Notify(state)
}

// CloseFloating removes a note from the floating set.
func (s *NoteStore) CloseFloating(id string) {
	s.mu.Lock()
	var removed bool
	s.floating, removed = removeRecord(s.floating, id)
	if !removed {
		s.mu.Unlock()
		return
	}
	state := s.snapshotLocked()
	s.mu.Unlock()

	s.changed.Notify(state)
}

// SetSearch sets the list filter.
func (s *NoteStore) SetSearch(query string) {
	s.mu.Lock()
	s.search = query
	state := s.snapshotLocked()
	s.mu.Unlock()

	s.changed.Notify(state)
}

// Reset clears every piece of state. Used when the signed-in user changes.
func (s *NoteStore) Reset() {
	s.mu.Lock()
	s.notes = []model.Note{}
	s.search = ""
	s.selected = nil
	s.editorOpen = false
	s.floating = nil
	s.writes.reset()
	state := s.snapshotLocked()
	s.mu.Unlock()

	s.changed.Notify(state)
}

// Subscribe starts applying the owner's note changes. Any previous
// subscription is torn down first. The returned function stops this
// subscription and blocks until its last change has been applied.
func (s *NoteStore) Subscribe(ctx context.Context, ownerID string) (func() error, error) {
	if err := s.Unsubscribe(); err != nil {
		s.log.Warn("error closing previous note subscription", "error", err)
	}

	sub, err := s.gw.Subscribe(ctx, model.Topic{Table: model.TableNotes, OwnerID: ownerID})
	if err != nil {
		s.log.Error("failed to subscribe to notes", "owner", ownerID, "error", err)
		return nil, fmt.Errorf("subscribe notes: %w", err)
	}

	s.mu.Lock()
	st := startStream(ownerID, sub, s.ApplyChange)
	s.stream = st
	s.mu.Unlock()

	s.log.Debug("note subscription started", "owner", ownerID)
	return func() error { return s.stopStream(st) }, nil
}

// Unsubscribe stops the current subscription, if any.
func (s *NoteStore) Unsubscribe() error {
	s.mu.Lock()
	st := s.stream
	s.mu.Unlock()
	if st == nil {
		return nil
	}
	return s.stopStream(st)
}

func (s *NoteStore) stopStream(st *stream) error {
	s.mu.Lock()
	if s.stream == st {
		s.stream = nil
	}
	s.mu.Unlock()
	return st.stop()
}

// ApplyChange decodes and applies a raw change from the notes stream.
// Changes for another owner than the subscribed one are dropped.
func (s *NoteStore) ApplyChange(c model.Change) {
	if c.Table != model.TableNotes {
		return
	}
	s.mu.Lock()
	st := s.stream
	s.mu.Unlock()
	if st == nil || st.owner != c.OwnerID {
		s.log.Debug("dropping note change", "seq", c.Seq, "owner", c.OwnerID)
		return
	}

	ev, err := model.Decode[model.Note](c)
	if err != nil {
		s.log.Warn("undecodable note change", "seq", c.Seq, "error", err)
		return
	}
	s.Apply(ev)
}

// Apply reconciles one note event with the collection.
func (s *NoteStore) Apply(ev model.Event[model.Note]) {
	rec := ev.Record()
	if rec == nil {
		return
	}

	if ev.Op == model.OpDelete {
		s.removeLocal(rec.ID)
		return
	}

	s.mu.Lock()
	changed := false
	switch ev.Op {
	case model.OpInsert:
		if ev.New != nil {
			s.notes, changed = insertRecord(s.notes, *ev.New, true)
		}
	case model.OpUpdate:
		if ev.New == nil {
			break
		}
		if s.writes.hold(*ev.New) {
			s.log.Debug("holding note change while a write is in flight", "note_id", rec.ID, "seq", ev.Seq)
			break
		}
		changed = s.replaceLocked(*ev.New)
	}
	state := s.snapshotLocked()
	s.mu.Unlock()

	if changed {
		s.changed.Notify(state)
	}
}

func (s *NoteStore) removeLocal(id string) {
	s.mu.Lock()
	var removed bool
	s.notes, removed = removeRecord(s.notes, id)
	if s.selected != nil && s.selected.ID == id {
		s.selected = nil
		s.editorOpen = false
		removed = true
	}
	var floated bool
	s.floating, floated = removeRecord(s.floating, id)
	removed = removed || floated
	state := s.snapshotLocked()
	s.mu.Unlock()

	if !removed {
		return
	}
	s.deleted.Notify(id)
	s.changed.Notify(state)
}

// replaceLocked applies a full note record to the collection, the selection
// and the floating set. Copies with a newer stamp are kept. Reports whether
// anything changed.
func (s *NoteStore) replaceLocked(rec model.Note) bool {
	var out outcome
	s.notes, out = replaceRecord(s.notes, rec, false)
	if out == outcomeStale {
		s.log.Debug("dropping stale note record", "note_id", rec.ID)
		return false
	}
	changed := out == outcomeApplied

	if sel := s.selected; sel != nil && sel.ID == rec.ID && !sel.UpdatedAt.After(rec.UpdatedAt) && *sel != rec {
		next := rec
		s.selected = &next
		changed = true
	}
	var floated outcome
	s.floating, floated = replaceRecord(s.floating, rec, false)
	return changed || floated == outcomeApplied
}

// refreshSelectedLocked re-reads the selection from the collection.
func (s *NoteStore) refreshSelectedLocked() {
	if s.selected == nil {
		return
	}
	if i := indexOf(s.notes, s.selected.ID); i >= 0 {
		sel := s.notes[i]
		s.selected = &sel
	}
}

func (s *NoteStore) snapshotLocked() NoteState {
	state := NoteState{
		Notes:      s.notes,
		Search:     s.search,
		EditorOpen: s.editorOpen,
		Floating:   make([]model.Note, 0, len(s.floating)),
	}
	if s.selected != nil {
		sel := *s.selected
		state.Selected = &sel
	}
	for _, f := range s.floating {
		if i := indexOf(s.notes, f.ID); i >= 0 {
			f = s.notes[i]
		}
		state.Floating = append(state.Floating, f)
	}
	return state
}
