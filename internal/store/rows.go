package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/roach88/notesync/internal/model"
)

// timeLayout is fixed width so text order matches time order.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

// stampAfter returns the store clock's time, or prev+1ns when the clock has
// not moved past prev, so a row's updated_at never goes backwards.
func (s *Store) stampAfter(prev time.Time) time.Time {
	now := s.clock.Now().UTC()
	if !now.After(prev) {
		now = prev.Add(time.Nanosecond).UTC()
	}
	return now
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", s, err)
	}
	return t, nil
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func ptrString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

func ptrTime(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid {
		return nil, nil
	}
	t, err := parseTime(ns.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

const noteColumns = `id, user_id, title, body, card_color, created_at, updated_at`

func scanNote(r rowScanner) (model.Note, error) {
	var (
		n                model.Note
		color            sql.NullString
		created, updated string
	)
	if err := r.Scan(&n.ID, &n.OwnerID, &n.Title, &n.Body, &color, &created, &updated); err != nil {
		return model.Note{}, err
	}
	n.Color = color.String

	var err error
	if n.CreatedAt, err = parseTime(created); err != nil {
		return model.Note{}, err
	}
	if n.UpdatedAt, err = parseTime(updated); err != nil {
		return model.Note{}, err
	}
	return n, nil
}

const taskColumns = `id, note_id, user_id, label, is_completed, due_at, gcal_event_id, created_at, updated_at`

func scanTask(r rowScanner) (model.Task, error) {
	var (
		t                model.Task
		due, reminder    sql.NullString
		created, updated string
	)
	if err := r.Scan(&t.ID, &t.NoteID, &t.OwnerID, &t.Label, &t.Completed, &due, &reminder, &created, &updated); err != nil {
		return model.Task{}, err
	}
	t.ReminderID = ptrString(reminder)

	var err error
	if t.DueAt, err = ptrTime(due); err != nil {
		return model.Task{}, err
	}
	if t.CreatedAt, err = parseTime(created); err != nil {
		return model.Task{}, err
	}
	if t.UpdatedAt, err = parseTime(updated); err != nil {
		return model.Task{}, err
	}
	return t, nil
}

const preferencesColumns = `user_id, theme, background_color, background_gradient, updated_at`

func scanPreferences(r rowScanner) (model.Preferences, error) {
	var (
		p               model.Preferences
		theme           string
		color, gradient sql.NullString
		updated         string
	)
	if err := r.Scan(&p.UserID, &theme, &color, &gradient, &updated); err != nil {
		return model.Preferences{}, err
	}
	p.Theme = model.Theme(theme)
	p.BackgroundColor = ptrString(color)
	p.BackgroundGradient = ptrString(gradient)

	var err error
	if p.UpdatedAt, err = parseTime(updated); err != nil {
		return model.Preferences{}, err
	}
	return p, nil
}

// publish emits a committed row change. Encoding failures are logged; the
// write itself already succeeded.
func publish[T any](s *Store, table model.Table, op model.Op, ownerID string, newRec, oldRec *T) {
	change, err := model.NewChange(table, op, ownerID, newRec, oldRec)
	if err != nil {
		slog.Error("failed to encode change", "table", table, "op", op, "error", err)
		return
	}
	s.broker.Publish(change)
}
