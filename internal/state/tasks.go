package state

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/roach88/notesync/internal/gateway"
	"github.com/roach88/notesync/internal/listen"
	"github.com/roach88/notesync/internal/model"
	"github.com/roach88/notesync/internal/reminder"
)

// TaskGateway is the part of the gateway the task store needs.
type TaskGateway interface {
	gateway.Tasks
	gateway.Changes
}

// TaskMap groups tasks by note id, each list in creation order.
type TaskMap map[string][]model.Task

// For returns the tasks of a note. A note never fetched yields an empty,
// non-nil slice.
func (m TaskMap) For(noteID string) []model.Task {
	if tasks, ok := m[noteID]; ok {
		return tasks
	}
	return []model.Task{}
}

// Counts returns how many of a note's tasks are completed.
func (m TaskMap) Counts(noteID string) model.TaskCounts {
	tasks := m.For(noteID)
	c := model.TaskCounts{Total: len(tasks)}
	for _, t := range tasks {
		if t.Completed {
			c.Completed++
		}
	}
	return c
}

// with returns a copy of m with noteID's list replaced. The lists themselves
// are shared; they are never mutated in place.
func (m TaskMap) with(noteID string, tasks []model.Task) TaskMap {
	out := make(TaskMap, len(m)+1)
	for k, v := range m {
		out[k] = v
	}
	out[noteID] = tasks
	return out
}

func (m TaskMap) without(noteID string) TaskMap {
	out := make(TaskMap, len(m))
	for k, v := range m {
		if k != noteID {
			out[k] = v
		}
	}
	return out
}

// TaskUpdate tells listeners that a note's task list changed.
type TaskUpdate struct {
	NoteID string
	Tasks  []model.Task
}

// TaskStore owns the tasks of every loaded note and keeps external calendar
// reminders in line with due dates and completion.
type TaskStore struct {
	gw        TaskGateway
	reminders reminder.Adapter
	log       *slog.Logger

	mu     sync.Mutex
	tasks  TaskMap
	stream *stream
	writes inflight[model.Task]

	jobs  sync.WaitGroup
	locks keyedMutex

	changed listen.Set[TaskUpdate]
}

// NewTaskStore creates an empty task store. A nil adapter disables
// reminders.
func NewTaskStore(gw TaskGateway, reminders reminder.Adapter, opts ...Option) *TaskStore {
	cfg := newConfig(opts)
	if reminders == nil {
		reminders = reminder.Disabled{}
	}
	return &TaskStore{
		gw:        gw,
		reminders: reminders,
		log:       cfg.logger.With("store", "tasks"),
		tasks:     TaskMap{},
	}
}

// Tasks returns a note's tasks in creation order.
func (s *TaskStore) Tasks(noteID string) []model.Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tasks.For(noteID)
}

// Snapshot returns the whole mapping.
func (s *TaskStore) Snapshot() TaskMap {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tasks
}

// Task returns one task.
func (s *TaskStore) Task(noteID, taskID string) (model.Task, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tasks := s.tasks.For(noteID)
	if i := indexOf(tasks, taskID); i >= 0 {
		return tasks[i], true
	}
	return model.Task{}, false
}

// Counts returns completed/total for a note.
func (s *TaskStore) Counts(noteID string) model.TaskCounts {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tasks.Counts(noteID)
}

// Listen registers fn to run after any note's task list changes. It returns
// a function that unregisters fn.
func (s *TaskStore) Listen(fn func(TaskUpdate)) func() {
	return s.changed.Add(fn)
}

// FetchForNote replaces one note's tasks with the remote list.
func (s *TaskStore) FetchForNote(ctx context.Context, noteID string) error {
	tasks, err := s.gw.ListTasks(ctx, model.TaskQuery{NoteID: noteID})
	if err != nil {
		s.log.Error("failed to fetch tasks", "note_id", noteID, "error", err)
		return fmt.Errorf("fetch tasks for %s: %w", noteID, err)
	}
	s.set(noteID, tasks)
	return nil
}

// FetchAllForOwner loads every task of the owner in one query and replaces
// the mapping with the grouped result.
func (s *TaskStore) FetchAllForOwner(ctx context.Context, ownerID string) error {
	tasks, err := s.gw.ListTasks(ctx, model.TaskQuery{OwnerID: ownerID})
	if err != nil {
		s.log.Error("failed to fetch tasks", "owner", ownerID, "error", err)
		return fmt.Errorf("fetch tasks for owner %s: %w", ownerID, err)
	}

	grouped := TaskMap{}
	for _, t := range tasks {
		grouped[t.NoteID] = append(grouped[t.NoteID], t)
	}

	s.mu.Lock()
	s.tasks = grouped
	s.mu.Unlock()

	for noteID, list := range grouped {
		s.changed.Notify(TaskUpdate{NoteID: noteID, Tasks: list})
	}
	s.log.Debug("tasks fetched", "owner", ownerID, "count", len(tasks))
	return nil
}

// Create inserts an incomplete task and appends the persisted record unless
// its insert echo already did.
func (s *TaskStore) Create(ctx context.Context, noteID, ownerID, label string) (model.Task, error) {
	label = strings.TrimSpace(label)
	if label == "" {
		return model.Task{}, fmt.Errorf("create task: label is empty")
	}

	t, err := s.gw.InsertTask(ctx, model.TaskDraft{NoteID: noteID, OwnerID: ownerID, Label: label})
	if err != nil {
		s.log.Error("failed to create task", "note_id", noteID, "error", err)
		return model.Task{}, fmt.Errorf("create task: %w", err)
	}

	s.mutate(noteID, func(list []model.Task) ([]model.Task, bool) {
		return insertRecord(list, t, false)
	})
	return t, nil
}

// Update merges patch into the local task, then writes it through. Echoes
// of the task are held until the write returns, as in NoteStore.Update. A
// remote failure is logged and returned; the local edit stays.
func (s *TaskStore) Update(ctx context.Context, taskID, noteID string, patch model.TaskPatch) error {
	s.mutate(noteID, func(list []model.Task) ([]model.Task, bool) {
		s.writes.begin(taskID)
		return patchRecord(list, taskID, patch.Apply)
	})

	t, err := s.gw.UpdateTask(ctx, taskID, patch)
	if err != nil {
		s.settle(taskID, noteID, nil)
		s.log.Error("failed to update task", "task_id", taskID, "error", err)
		return fmt.Errorf("update task %s: %w", taskID, err)
	}
	s.settle(taskID, noteID, &t)
	return nil
}

// settle ends one write of a task and applies the record it leaves behind.
func (s *TaskStore) settle(taskID, noteID string, confirmed *model.Task) {
	s.mutate(noteID, func(list []model.Task) ([]model.Task, bool) {
		rec, ok := s.writes.end(taskID, confirmed)
		if !ok {
			return list, false
		}
		out, res := replaceRecord(list, rec, false)
		return out, res == outcomeApplied
	})
}

// ToggleCompletion flips the completion flag and persists it. The reminder
// follows in the background: completing removes it, reopening a task with a
// due date creates one. Reminder failures never affect the flag.
func (s *TaskStore) ToggleCompletion(ctx context.Context, task model.Task) error {
	if current, ok := s.Task(task.NoteID, task.ID); ok {
		task = current
	}
	done := !task.Completed

	err := s.Update(ctx, task.ID, task.NoteID, model.TaskPatch{Completed: &done})
	s.syncReminderAsync(ctx, task.ID, task.NoteID, false)
	return err
}

// SetDueDate sets or clears the due date and persists it. The reminder
// follows in the background: an existing one is replaced for the new date,
// or removed when the date is cleared.
func (s *TaskStore) SetDueDate(ctx context.Context, task model.Task, due *time.Time) error {
	if due != nil {
		d := due.UTC()
		due = &d
	}

	err := s.Update(ctx, task.ID, task.NoteID, model.TaskPatch{DueAt: model.FromPtr(due)})
	s.syncReminderAsync(ctx, task.ID, task.NoteID, true)
	return err
}

// Delete removes a task. Its reminder is deleted first, best effort. Delete
// queues behind the task's running reminder jobs, so a reminder they create
// is seen and removed too.
func (s *TaskStore) Delete(ctx context.Context, taskID, noteID string) error {
	unlock := s.locks.lock(taskID)
	defer unlock()

	if t, ok := s.Task(noteID, taskID); ok && t.HasReminder() {
		if err := s.reminders.Delete(ctx, *t.ReminderID); err != nil {
			s.log.Warn("failed to delete reminder", "task_id", taskID, "event_id", *t.ReminderID, "error", err)
		}
	}

	if err := s.gw.DeleteTask(ctx, taskID); err != nil {
		s.log.Error("failed to delete task", "task_id", taskID, "error", err)
		return fmt.Errorf("delete task %s: %w", taskID, err)
	}

	s.mutate(noteID, func(list []model.Task) ([]model.Task, bool) {
		return removeRecord(list, taskID)
	})
	return nil
}

// ForgetNote drops a note's tasks from memory. Runs when the note is
// deleted.
func (s *TaskStore) ForgetNote(noteID string) {
	s.mu.Lock()
	_, ok := s.tasks[noteID]
	if ok {
		s.tasks = s.tasks.without(noteID)
	}
	s.mu.Unlock()

	if ok {
		s.changed.Notify(TaskUpdate{NoteID: noteID, Tasks: []model.Task{}})
	}
}

// Reset clears the mapping. Used when the signed-in user changes.
func (s *TaskStore) Reset() {
	s.mu.Lock()
	old := s.tasks
	s.tasks = TaskMap{}
	s.writes.reset()
	s.mu.Unlock()

	for noteID := range old {
		s.changed.Notify(TaskUpdate{NoteID: noteID, Tasks: []model.Task{}})
	}
}

// Wait blocks until every background reminder job has finished.
func (s *TaskStore) Wait() {
	s.jobs.Wait()
}

// Subscribe starts applying the owner's task changes. Any previous
// subscription is torn down first. The returned function stops this
// subscription and blocks until its last change has been applied.
func (s *TaskStore) Subscribe(ctx context.Context, ownerID string) (func() error, error) {
	if err := s.Unsubscribe(); err != nil {
		s.log.Warn("error closing previous task subscription", "error", err)
	}

	sub, err := s.gw.Subscribe(ctx, model.Topic{Table: model.TableTasks, OwnerID: ownerID})
	if err != nil {
		s.log.Error("failed to subscribe to tasks", "owner", ownerID, "error", err)
		return nil, fmt.Errorf("subscribe tasks: %w", err)
	}

	s.mu.Lock()
	st := startStream(ownerID, sub, s.ApplyChange)
	s.stream = st
	s.mu.Unlock()

	s.log.Debug("task subscription started", "owner", ownerID)
	return func() error { return s.stopStream(st) }, nil
}

// Unsubscribe stops the current subscription, if any.
func (s *TaskStore) Unsubscribe() error {
	s.mu.Lock()
	st := s.stream
	s.mu.Unlock()
	if st == nil {
		return nil
	}
	return s.stopStream(st)
}

func (s *TaskStore) stopStream(st *stream) error {
	s.mu.Lock()
	if s.stream == st {
		s.stream = nil
	}
	s.mu.Unlock()
	return st.stop()
}

// ApplyChange decodes and applies a raw change from the tasks stream.
// Changes for another owner than the subscribed one are dropped.
func (s *TaskStore) ApplyChange(c model.Change) {
	if c.Table != model.TableTasks {
		return
	}
	s.mu.Lock()
	st := s.stream
	s.mu.Unlock()
	if st == nil || st.owner != c.OwnerID {
		s.log.Debug("dropping task change", "seq", c.Seq, "owner", c.OwnerID)
		return
	}

	ev, err := model.Decode[model.Task](c)
	if err != nil {
		s.log.Warn("undecodable task change", "seq", c.Seq, "error", err)
		return
	}
	s.Apply(ev)
}

// Apply reconciles one task event. The note is taken from the new record,
// or from the old one for deletes. Updates for unknown tasks insert them.
func (s *TaskStore) Apply(ev model.Event[model.Task]) {
	rec := ev.Record()
	if rec == nil || rec.NoteID == "" {
		return
	}

	s.mutate(rec.NoteID, func(list []model.Task) ([]model.Task, bool) {
		switch ev.Op {
		case model.OpInsert:
			if ev.New != nil {
				return insertRecord(list, *ev.New, false)
			}
		case model.OpUpdate:
			if ev.New != nil {
				if s.writes.hold(*ev.New) {
					s.log.Debug("holding task change while a write is in flight", "task_id", rec.ID, "seq", ev.Seq)
					return list, false
				}
				out, res := replaceRecord(list, *ev.New, true)
				if res == outcomeStale {
					s.log.Debug("dropping stale task echo", "task_id", rec.ID, "seq", ev.Seq)
				}
				return out, res == outcomeApplied
			}
		case model.OpDelete:
			return removeRecord(list, rec.ID)
		}
		return list, false
	})
}

// mutate applies fn to one note's list and notifies listeners on change.
func (s *TaskStore) mutate(noteID string, fn func([]model.Task) ([]model.Task, bool)) {
	s.mu.Lock()
	list, changed := fn(s.tasks.For(noteID))
	if changed {
		s.tasks = s.tasks.with(noteID, list)
	}
	s.mu.Unlock()

	if changed {
		s.changed.Notify(TaskUpdate{NoteID: noteID, Tasks: list})
	}
}

func (s *TaskStore) set(noteID string, tasks []model.Task) {
	s.mu.Lock()
	s.tasks = s.tasks.with(noteID, tasks)
	s.mu.Unlock()

	s.changed.Notify(TaskUpdate{NoteID: noteID, Tasks: tasks})
}

// syncReminderAsync reconciles a task's reminder on a background goroutine.
// Jobs for the same task run one at a time, in start order.
func (s *TaskStore) syncReminderAsync(ctx context.Context, taskID, noteID string, dueChanged bool) {
	ctx = context.WithoutCancel(ctx)
	ticket := s.locks.reserve(taskID)

	s.jobs.Add(1)
	go func() {
		defer s.jobs.Done()
		unlock := ticket.wait()
		defer unlock()
		s.syncReminder(ctx, taskID, noteID, dueChanged)
	}()
}

// syncReminder makes the task's reminder match its current state.
func (s *TaskStore) syncReminder(ctx context.Context, taskID, noteID string, dueChanged bool) {
	task, ok := s.Task(noteID, taskID)
	if !ok {
		return
	}
	log := s.log.With("task_id", taskID)

	switch {
	case task.WantsReminder() && task.HasReminder() && dueChanged:
		oldID := *task.ReminderID
		oldGone := true
		if err := s.reminders.Delete(ctx, oldID); err != nil {
			oldGone = false
			log.Warn("failed to delete outdated reminder", "event_id", oldID, "error", err)
		}
		newID, err := s.reminders.Create(ctx, task)
		if err != nil {
			log.Warn("failed to create reminder", "error", err)
			if oldGone {
				s.setReminder(ctx, task, nil)
			}
			return
		}
		s.setReminder(ctx, task, &newID)

	case task.WantsReminder() && !task.HasReminder():
		newID, err := s.reminders.Create(ctx, task)
		if err != nil {
			log.Warn("failed to create reminder", "error", err)
			return
		}
		s.setReminder(ctx, task, &newID)

	case !task.WantsReminder() && task.HasReminder():
		oldID := *task.ReminderID
		if err := s.reminders.Delete(ctx, oldID); err != nil {
			log.Warn("failed to delete reminder, calendar event left orphaned", "event_id", oldID, "error", err)
		}
		s.setReminder(ctx, task, nil)
	}
}

func (s *TaskStore) setReminder(ctx context.Context, task model.Task, eventID *string) {
	patch := model.TaskPatch{ReminderID: model.FromPtr(eventID)}
	if err := s.Update(ctx, task.ID, task.NoteID, patch); err != nil {
		s.log.Warn("failed to store reminder reference", "task_id", task.ID, "error", err)
	}
}
