package view

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/roach88/notesync/internal/model"
	"github.com/roach88/notesync/internal/schedule"
	"github.com/roach88/notesync/internal/state"
)

// View is the result of opening a note. Editor is nil for views that live in
// another window context.
type View struct {
	Mode   Mode
	Editor *Editor
}

// Option configures a Manager.
type Option func(*Manager)

// WithQuietPeriod sets the editors' debounce delay.
func WithQuietPeriod(d time.Duration) Option {
	return func(m *Manager) { m.quiet = d }
}

// WithLogger overrides the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) { m.log = l }
}

// Manager opens and closes the views of notes.
//
// There is at most one main editor and one floating editor per note. Views
// of a deleted note are closed.
type Manager struct {
	notes  *state.NoteStore
	tasks  *state.TaskStore
	opener Opener
	quiet  time.Duration
	log    *slog.Logger

	mu      sync.Mutex
	main    *Editor
	floats  map[string]*Editor
	closeFn func()
}

// NewManager creates a manager. opener may be nil when separate windows are
// not available.
func NewManager(notes *state.NoteStore, tasks *state.TaskStore, opener Opener, opts ...Option) *Manager {
	m := &Manager{
		notes:  notes,
		tasks:  tasks,
		opener: opener,
		quiet:  schedule.DefaultQuietPeriod,
		log:    slog.Default(),
		floats: make(map[string]*Editor),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.closeFn = notes.OnDelete(m.noteDeleted)
	return m
}

// Open shows note in mode and loads its tasks. A picture-in-picture request
// the opener cannot serve falls back to a popup window.
func (m *Manager) Open(ctx context.Context, note model.Note, mode Mode) (View, error) {
	var (
		v   View
		err error
	)
	switch mode {
	case ModeMain:
		v = View{Mode: ModeMain, Editor: m.openMain(note)}
	case ModeFloating:
		v = View{Mode: ModeFloating, Editor: m.openFloating(note)}
	case ModePopup:
		v, err = m.openExternal(ctx, note.ID, ModePopup)
	case ModePiP:
		v, err = m.openExternal(ctx, note.ID, ModePiP)
		if err != nil {
			m.log.Warn("picture-in-picture unavailable, falling back to popup", "note_id", note.ID, "error", err)
			v, err = m.openExternal(ctx, note.ID, ModePopup)
		}
	default:
		return View{}, fmt.Errorf("open note %s: unknown mode %q", note.ID, mode)
	}
	if err != nil {
		return View{}, err
	}

	if ferr := m.tasks.FetchForNote(ctx, note.ID); ferr != nil {
		m.log.Warn("failed to load tasks for view", "note_id", note.ID, "error", ferr)
	}
	return v, nil
}

// Editor returns the local editor of a note in mode, if open.
func (m *Manager) Editor(noteID string, mode Mode) (*Editor, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch mode {
	case ModeMain:
		if m.main != nil && m.main.NoteID() == noteID {
			return m.main, true
		}
	case ModeFloating:
		e, ok := m.floats[noteID]
		return e, ok
	}
	return nil, false
}

// Close closes a note's local view in mode. Pending edits of that view are
// dropped; other views keep theirs.
func (m *Manager) Close(noteID string, mode Mode) {
	switch mode {
	case ModeMain:
		m.mu.Lock()
		e := m.main
		if e != nil && e.NoteID() == noteID {
			m.main = nil
		} else {
			e = nil
		}
		m.mu.Unlock()
		if e != nil {
			e.Close()
			m.notes.Select(nil)
		}
	case ModeFloating:
		m.mu.Lock()
		e, ok := m.floats[noteID]
		delete(m.floats, noteID)
		m.mu.Unlock()
		if ok {
			e.Close()
		}
		m.notes.CloseFloating(noteID)
	}
}

// PopOut moves a floating view into a popup window. The floating editor's
// pending edits are written first so the popup starts from them.
func (m *Manager) PopOut(ctx context.Context, noteID string) (View, error) {
	if e, ok := m.Editor(noteID, ModeFloating); ok {
		if err := e.Flush(ctx); err != nil {
			m.log.Warn("flush before pop out failed", "note_id", noteID, "error", err)
		}
	}

	v, err := m.openExternal(ctx, noteID, ModePopup)
	if err != nil {
		return View{}, err
	}
	m.Close(noteID, ModeFloating)
	return v, nil
}

// CloseAll closes every local view and stops following deletes.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	editors := make([]*Editor, 0, len(m.floats)+1)
	if m.main != nil {
		editors = append(editors, m.main)
	}
	for _, e := range m.floats {
		editors = append(editors, e)
	}
	m.main = nil
	m.floats = make(map[string]*Editor)
	closeFn := m.closeFn
	m.closeFn = nil
	m.mu.Unlock()

	for _, e := range editors {
		e.Close()
	}
	if closeFn != nil {
		closeFn()
	}
}

func (m *Manager) openMain(note model.Note) *Editor {
	m.notes.Select(&note)

	m.mu.Lock()
	prev := m.main
	if prev != nil && prev.NoteID() == note.ID {
		m.mu.Unlock()
		return prev
	}
	e := newEditor(m.notes, m.tasks, note, ModeMain, m.quiet, m.log)
	m.main = e
	m.mu.Unlock()

	if prev != nil {
		prev.Close()
	}
	return e
}

func (m *Manager) openFloating(note model.Note) *Editor {
	m.notes.OpenFloating(note)

	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.floats[note.ID]; ok {
		return e
	}
	e := newEditor(m.notes, m.tasks, note, ModeFloating, m.quiet, m.log)
	m.floats[note.ID] = e
	return e
}

func (m *Manager) openExternal(ctx context.Context, noteID string, mode Mode) (View, error) {
	if m.opener == nil {
		return View{}, fmt.Errorf("open %s view: %w", mode, ErrUnsupported)
	}
	if err := m.opener.Open(ctx, noteID, mode); err != nil {
		if !errors.Is(err, ErrUnsupported) {
			m.log.Error("failed to open view", "note_id", noteID, "mode", string(mode), "error", err)
		}
		return View{}, fmt.Errorf("open %s view of %s: %w", mode, noteID, err)
	}
	return View{Mode: mode}, nil
}

// noteDeleted closes the local views of a deleted note. The note store has
// already cleared the selection and floating set.
func (m *Manager) noteDeleted(noteID string) {
	m.mu.Lock()
	var closing []*Editor
	if m.main != nil && m.main.NoteID() == noteID {
		closing = append(closing, m.main)
		m.main = nil
	}
	if e, ok := m.floats[noteID]; ok {
		closing = append(closing, e)
		delete(m.floats, noteID)
	}
	m.mu.Unlock()

	for _, e := range closing {
		e.Close()
	}
	if len(closing) > 0 {
		m.log.Debug("closed views of deleted note", "note_id", noteID, "count", len(closing))
	}
}
