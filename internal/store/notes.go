package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/notesync/internal/gateway"
	"github.com/roach88/notesync/internal/model"
)

// ListNotes returns the owner's notes ordered by updated_at DESC, id ASC.
//
// Returns an empty slice (not nil) if the owner has no notes.
func (s *Store) ListNotes(ctx context.Context, ownerID string) ([]model.Note, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+noteColumns+`
		FROM notes
		WHERE user_id = ?
		ORDER BY updated_at DESC, id COLLATE BINARY ASC
	`, ownerID)
	if err != nil {
		return nil, gateway.Transport("list notes", fmt.Errorf("query notes: %w", err))
	}
	defer rows.Close()

	notes := []model.Note{}
	for rows.Next() {
		n, err := scanNote(rows)
		if err != nil {
			return nil, gateway.Transport("list notes", fmt.Errorf("scan note: %w", err))
		}
		notes = append(notes, n)
	}
	if err := rows.Err(); err != nil {
		return nil, gateway.Transport("list notes", fmt.Errorf("iterate notes: %w", err))
	}

	return notes, nil
}

// GetNote returns a single note.
func (s *Store) GetNote(ctx context.Context, id string) (model.Note, error) {
	n, err := s.getNote(ctx, s.db, id)
	if err != nil {
		return model.Note{}, noteError("get note", id, err)
	}
	return n, nil
}

// InsertNote stores a new note and publishes an insert event.
func (s *Store) InsertNote(ctx context.Context, draft model.NoteDraft) (model.Note, error) {
	if strings.TrimSpace(draft.OwnerID) == "" {
		return model.Note{}, gateway.Invalid("insert note", "user_id is required")
	}

	now := s.clock.Now().UTC()
	n := model.Note{
		ID:        s.ids.Generate(),
		OwnerID:   draft.OwnerID,
		Title:     draft.Title,
		Body:      draft.Body,
		Color:     draft.Color,
		CreatedAt: now,
		UpdatedAt: now,
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO notes (`+noteColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		n.ID,
		n.OwnerID,
		n.Title,
		n.Body,
		nullString(colorPtr(n.Color)),
		formatTime(n.CreatedAt),
		formatTime(n.UpdatedAt),
	)
	if err != nil {
		return model.Note{}, gateway.Transport("insert note", fmt.Errorf("write note: %w", err))
	}

	publish(s, model.TableNotes, model.OpInsert, n.OwnerID, &n, nil)
	return n, nil
}

// UpdateNote applies patch to the stored row and publishes an update event
// carrying both the old and the new record. updated_at is assigned here and
// strictly grows per row, so it orders every write to the note.
func (s *Store) UpdateNote(ctx context.Context, id string, patch model.NotePatch) (model.Note, error) {
	var before, after model.Note

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		before, err = s.getNote(ctx, tx, id)
		if err != nil {
			return err
		}

		after = patch.Apply(before)
		after.UpdatedAt = s.stampAfter(before.UpdatedAt)

		_, err = tx.ExecContext(ctx, `
			UPDATE notes
			SET title = ?, body = ?, card_color = ?, updated_at = ?
			WHERE id = ?
		`,
			after.Title,
			after.Body,
			nullString(colorPtr(after.Color)),
			formatTime(after.UpdatedAt),
			id,
		)
		if err != nil {
			return fmt.Errorf("write note: %w", err)
		}
		return nil
	})
	if err != nil {
		return model.Note{}, noteError("update note", id, err)
	}

	publish(s, model.TableNotes, model.OpUpdate, after.OwnerID, &after, &before)
	return after, nil
}

// DeleteNote removes a note. Its tasks go with it through the foreign key
// cascade; a delete event is published for each of them, then for the note.
func (s *Store) DeleteNote(ctx context.Context, id string) error {
	var (
		note  model.Note
		tasks []model.Task
	)

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		note, err = s.getNote(ctx, tx, id)
		if err != nil {
			return err
		}

		tasks, err = s.queryTasks(ctx, tx, `note_id = ?`, id)
		if err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM notes WHERE id = ?`, id); err != nil {
			return fmt.Errorf("delete note: %w", err)
		}
		return nil
	})
	if err != nil {
		return noteError("delete note", id, err)
	}

	for i := range tasks {
		publish(s, model.TableTasks, model.OpDelete, tasks[i].OwnerID, nil, &tasks[i])
	}
	publish(s, model.TableNotes, model.OpDelete, note.OwnerID, nil, &note)
	return nil
}

// queryer is satisfied by *sql.DB and *sql.Tx.
type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Store) getNote(ctx context.Context, q queryer, id string) (model.Note, error) {
	row := q.QueryRowContext(ctx, `SELECT `+noteColumns+` FROM notes WHERE id = ?`, id)
	return scanNote(row)
}

// withTx runs fn in a transaction, committing on success.
func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// noteError maps a storage error onto the gateway error codes.
func noteError(op, id string, err error) error {
	return rowError(op, model.TableNotes, id, err)
}

func rowError(op string, table model.Table, id string, err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return gateway.NotFound(op, table, id)
	}
	var ge *gateway.Error
	if errors.As(err, &ge) {
		return err
	}
	e := gateway.Transport(op, err)
	e.ID = id
	return e
}

// colorPtr maps the empty color to NULL.
func colorPtr(color string) *string {
	if color == "" {
		return nil
	}
	return &color
}
