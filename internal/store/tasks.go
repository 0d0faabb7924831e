package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/roach88/notesync/internal/gateway"
	"github.com/roach88/notesync/internal/model"
)

// ListTasks returns the tasks of one note or of every note of an owner,
// ordered by created_at ASC, id ASC.
//
// Returns an empty slice (not nil) if no tasks match.
func (s *Store) ListTasks(ctx context.Context, q model.TaskQuery) ([]model.Task, error) {
	var (
		where string
		arg   string
	)
	switch {
	case q.NoteID != "":
		where, arg = `note_id = ?`, q.NoteID
	case q.OwnerID != "":
		where, arg = `user_id = ?`, q.OwnerID
	default:
		return nil, gateway.Invalid("list tasks", "note_id or user_id is required")
	}

	tasks, err := s.queryTasks(ctx, s.db, where, arg)
	if err != nil {
		return nil, gateway.Transport("list tasks", err)
	}
	return tasks, nil
}

// GetTask returns a single task.
func (s *Store) GetTask(ctx context.Context, id string) (model.Task, error) {
	t, err := s.getTask(ctx, s.db, id)
	if err != nil {
		return model.Task{}, rowError("get task", model.TableTasks, id, err)
	}
	return t, nil
}

// InsertTask stores a new, incomplete task and publishes an insert event.
// The owner defaults to the owner of the note.
func (s *Store) InsertTask(ctx context.Context, draft model.TaskDraft) (model.Task, error) {
	label := strings.TrimSpace(draft.Label)
	if label == "" {
		return model.Task{}, gateway.Invalid("insert task", "label is required")
	}

	var t model.Task
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		note, err := s.getNote(ctx, tx, draft.NoteID)
		if err != nil {
			return err
		}

		owner := draft.OwnerID
		if owner == "" {
			owner = note.OwnerID
		}

		now := s.clock.Now().UTC()
		t = model.Task{
			ID:        s.ids.Generate(),
			NoteID:    note.ID,
			OwnerID:   owner,
			Label:     label,
			DueAt:     draft.DueAt,
			CreatedAt: now,
			UpdatedAt: now,
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO tasks (`+taskColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`,
			t.ID,
			t.NoteID,
			t.OwnerID,
			t.Label,
			t.Completed,
			nullTime(t.DueAt),
			nullString(t.ReminderID),
			formatTime(t.CreatedAt),
			formatTime(t.UpdatedAt),
		)
		if err != nil {
			return fmt.Errorf("write task: %w", err)
		}
		return nil
	})
	if err != nil {
		return model.Task{}, rowError("insert task", model.TableNotes, draft.NoteID, err)
	}

	publish(s, model.TableTasks, model.OpInsert, t.OwnerID, &t, nil)
	return t, nil
}

// UpdateTask applies patch to the stored row, stamps a strictly newer
// updated_at and publishes an update event.
func (s *Store) UpdateTask(ctx context.Context, id string, patch model.TaskPatch) (model.Task, error) {
	if patch.Label != nil && strings.TrimSpace(*patch.Label) == "" {
		return model.Task{}, gateway.Invalid("update task", "label must not be empty")
	}

	var before, after model.Task
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		before, err = s.getTask(ctx, tx, id)
		if err != nil {
			return err
		}

		after = patch.Apply(before)
		after.UpdatedAt = s.stampAfter(before.UpdatedAt)

		_, err = tx.ExecContext(ctx, `
			UPDATE tasks
			SET label = ?, is_completed = ?, due_at = ?, gcal_event_id = ?, updated_at = ?
			WHERE id = ?
		`,
			after.Label,
			after.Completed,
			nullTime(after.DueAt),
			nullString(after.ReminderID),
			formatTime(after.UpdatedAt),
			id,
		)
		if err != nil {
			return fmt.Errorf("write task: %w", err)
		}
		return nil
	})
	if err != nil {
		return model.Task{}, rowError("update task", model.TableTasks, id, err)
	}

	publish(s, model.TableTasks, model.OpUpdate, after.OwnerID, &after, &before)
	return after, nil
}

// DeleteTask removes a task and publishes a delete event.
func (s *Store) DeleteTask(ctx context.Context, id string) error {
	var t model.Task
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		t, err = s.getTask(ctx, tx, id)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, id); err != nil {
			return fmt.Errorf("delete task: %w", err)
		}
		return nil
	})
	if err != nil {
		return rowError("delete task", model.TableTasks, id, err)
	}

	publish(s, model.TableTasks, model.OpDelete, t.OwnerID, nil, &t)
	return nil
}

func (s *Store) getTask(ctx context.Context, q queryer, id string) (model.Task, error) {
	row := q.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id)
	return scanTask(row)
}

// queryTasks returns tasks matching a single-argument WHERE clause in
// creation order.
func (s *Store) queryTasks(ctx context.Context, q queryer, where, arg string) ([]model.Task, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT `+taskColumns+`
		FROM tasks
		WHERE `+where+`
		ORDER BY created_at ASC, id COLLATE BINARY ASC
	`, arg)
	if err != nil {
		return nil, fmt.Errorf("query tasks: %w", err)
	}
	defer rows.Close()

	tasks := []model.Task{}
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tasks: %w", err)
	}
	return tasks, nil
}
