package view

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/roach88/notesync/internal/listen"
	"github.com/roach88/notesync/internal/model"
	"github.com/roach88/notesync/internal/schedule"
	"github.com/roach88/notesync/internal/state"
)

// ErrEmptyLabel is returned when a task label is blank after trimming.
var ErrEmptyLabel = errors.New("view: task label is empty")

// ErrClosed is returned by operations on a closed editor.
var ErrClosed = errors.New("view: editor closed")

// EditorState is what an editor currently shows.
type EditorState struct {
	NoteID string
	Mode   Mode
	Title  string
	Body   string
	Color  string
	Tasks  []model.Task
	Counts model.TaskCounts
	// Dirty reports an edit not yet written to the store.
	Dirty bool
}

// Editor is one view of a note.
//
// Title and body edits update the editor's buffer at once and are written to
// the note store as a single patch once typing pauses for the quiet period.
// The buffers follow the store: when another view or session changes the
// note, fields without a pending edit are refreshed.
type Editor struct {
	notes *state.NoteStore
	tasks *state.TaskStore
	mode  Mode
	log   *slog.Logger

	noteID string
	owner  string

	debounce *schedule.Debouncer

	// ctx bounds the debounced writes; cancelled by Close.
	ctx    context.Context
	cancel context.CancelFunc

	mu           sync.Mutex
	title        string
	body         string
	color        string
	pendingTitle *string
	pendingBody  *string
	closed       bool

	unlisten []func()
	changed  listen.Set[EditorState]
}

func newEditor(notes *state.NoteStore, tasks *state.TaskStore, note model.Note, mode Mode, quiet time.Duration, log *slog.Logger) *Editor {
	ctx, cancel := context.WithCancel(context.Background())
	e := &Editor{
		notes:    notes,
		tasks:    tasks,
		mode:     mode,
		log:      log.With("note_id", note.ID, "mode", string(mode)),
		noteID:   note.ID,
		owner:    note.OwnerID,
		debounce: schedule.NewDebouncer(quiet),
		ctx:      ctx,
		cancel:   cancel,
		title:    note.Title,
		body:     note.Body,
		color:    note.Color,
	}
	if current, ok := notes.Note(note.ID); ok {
		e.title, e.body, e.color, e.owner = current.Title, current.Body, current.Color, current.OwnerID
	}

	e.unlisten = append(e.unlisten,
		notes.Listen(e.onNotes),
		tasks.Listen(func(u state.TaskUpdate) {
			if u.NoteID == e.noteID {
				e.changed.Notify(e.State())
			}
		}),
	)
	return e
}

// NoteID returns the id of the note being edited.
func (e *Editor) NoteID() string { return e.noteID }

// Mode returns where the editor is shown.
func (e *Editor) Mode() Mode { return e.mode }

// State returns what the editor shows now.
func (e *Editor) State() EditorState {
	e.mu.Lock()
	st := EditorState{
		NoteID: e.noteID,
		Mode:   e.mode,
		Title:  e.title,
		Body:   e.body,
		Color:  e.color,
		Dirty:  e.pendingTitle != nil || e.pendingBody != nil,
	}
	e.mu.Unlock()

	st.Tasks = e.tasks.Tasks(e.noteID)
	st.Counts = e.tasks.Counts(e.noteID)
	return st
}

// OnChange registers fn to receive the editor state whenever it changes. It
// returns a function that unregisters fn.
func (e *Editor) OnChange(fn func(EditorState)) func() {
	return e.changed.Add(fn)
}

// SetTitle edits the title buffer and schedules the write.
func (e *Editor) SetTitle(title string) {
	e.edit(func() { e.title = title; e.pendingTitle = &title })
}

// SetBody edits the body buffer and schedules the write.
func (e *Editor) SetBody(body string) {
	e.edit(func() { e.body = body; e.pendingBody = &body })
}

func (e *Editor) edit(fn func()) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	fn()
	e.mu.Unlock()

	e.debounce.Trigger(e.noteID, func() {
		if err := e.write(e.ctx); err != nil {
			e.log.Warn("debounced write failed", "error", err)
		}
	})
	e.changed.Notify(e.State())
}

// SetColor changes the card color right away.
func (e *Editor) SetColor(ctx context.Context, color string) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return ErrClosed
	}
	e.color = color
	e.mu.Unlock()

	return e.notes.Update(ctx, e.noteID, model.NotePatch{Color: &color})
}

// Flush writes any pending title or body edit now.
func (e *Editor) Flush(ctx context.Context) error {
	e.debounce.Cancel(e.noteID)
	return e.write(ctx)
}

// write sends the pending fields as one patch.
func (e *Editor) write(ctx context.Context) error {
	e.mu.Lock()
	patch := model.NotePatch{Title: e.pendingTitle, Body: e.pendingBody}
	e.pendingTitle, e.pendingBody = nil, nil
	e.mu.Unlock()

	if patch.IsEmpty() {
		return nil
	}
	err := e.notes.Update(ctx, e.noteID, patch)
	e.changed.Notify(e.State())
	return err
}

// Tasks returns the note's tasks.
func (e *Editor) Tasks() []model.Task {
	return e.tasks.Tasks(e.noteID)
}

// AddTask appends a task with the trimmed label.
func (e *Editor) AddTask(ctx context.Context, label string) (model.Task, error) {
	label = strings.TrimSpace(label)
	if label == "" {
		return model.Task{}, ErrEmptyLabel
	}
	return e.tasks.Create(ctx, e.noteID, e.owner, label)
}

// ToggleTask flips the completion of the task at index i.
func (e *Editor) ToggleTask(ctx context.Context, i int) error {
	t, err := e.taskAt(i)
	if err != nil {
		return err
	}
	return e.tasks.ToggleCompletion(ctx, t)
}

// SetTaskDue sets or clears the due date of the task at index i.
func (e *Editor) SetTaskDue(ctx context.Context, i int, due *time.Time) error {
	t, err := e.taskAt(i)
	if err != nil {
		return err
	}
	return e.tasks.SetDueDate(ctx, t, due)
}

// DeleteTask removes the task at index i.
func (e *Editor) DeleteTask(ctx context.Context, i int) error {
	t, err := e.taskAt(i)
	if err != nil {
		return err
	}
	return e.tasks.Delete(ctx, t.ID, e.noteID)
}

func (e *Editor) taskAt(i int) (model.Task, error) {
	tasks := e.tasks.Tasks(e.noteID)
	if i < 0 || i >= len(tasks) {
		return model.Task{}, fmt.Errorf("no task %d (note has %d)", i+1, len(tasks))
	}
	return tasks[i], nil
}

// Close detaches the editor and drops its unwritten edits. Other editors of
// the same note keep their own pending writes.
func (e *Editor) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	e.pendingTitle, e.pendingBody = nil, nil
	e.mu.Unlock()

	e.debounce.Stop()
	e.cancel()
	for _, fn := range e.unlisten {
		fn()
	}
}

// Closed reports whether Close was called.
func (e *Editor) Closed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}

// onNotes resyncs the buffers from the store, skipping pending fields.
func (e *Editor) onNotes(st state.NoteState) {
	var (
		note model.Note
		ok   bool
	)
	for _, n := range st.Notes {
		if n.ID == e.noteID {
			note, ok = n, true
			break
		}
	}
	if !ok && st.Selected != nil && st.Selected.ID == e.noteID {
		note, ok = *st.Selected, true
	}
	for _, n := range st.Floating {
		if !ok && n.ID == e.noteID {
			note, ok = n, true
		}
	}
	if !ok {
		return
	}

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	changed := false
	if e.pendingTitle == nil && note.Title != e.title {
		e.title = note.Title
		changed = true
	}
	if e.pendingBody == nil && note.Body != e.body {
		e.body = note.Body
		changed = true
	}
	if note.Color != e.color {
		e.color = note.Color
		changed = true
	}
	e.mu.Unlock()

	if changed {
		e.changed.Notify(e.State())
	}
}
