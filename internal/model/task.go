package model

import "time"

// Task is a checklist item attached to a note.
//
// A completed task must not hold a reminder reference. An incomplete task
// with a due date should hold one, best effort.
type Task struct {
	ID         string     `json:"id"`
	NoteID     string     `json:"note_id"`
	OwnerID    string     `json:"user_id"`
	Label      string     `json:"label"`
	Completed  bool       `json:"is_completed"`
	DueAt      *time.Time `json:"due_at"`
	ReminderID *string    `json:"gcal_event_id"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// Key returns the task id.
func (t Task) Key() string { return t.ID }

// Stamp returns the last-modified time used for recency checks.
func (t Task) Stamp() time.Time { return t.UpdatedAt }

// HasReminder reports whether the task holds an external reminder reference.
func (t Task) HasReminder() bool {
	return t.ReminderID != nil && *t.ReminderID != ""
}

// WantsReminder reports whether the task should hold a reminder.
func (t Task) WantsReminder() bool {
	return !t.Completed && t.DueAt != nil
}

// TaskDraft carries the fields supplied when inserting a task.
type TaskDraft struct {
	NoteID  string     `json:"note_id"`
	OwnerID string     `json:"user_id"`
	Label   string     `json:"label"`
	DueAt   *time.Time `json:"due_at,omitempty"`
}

// TaskPatch is a partial task update. updated_at is always assigned by the
// backend.
type TaskPatch struct {
	Label      *string             `json:"label,omitempty"`
	Completed  *bool               `json:"is_completed,omitempty"`
	DueAt      Nullable[time.Time] `json:"due_at,omitzero"`
	ReminderID Nullable[string]    `json:"gcal_event_id,omitzero"`
}

// IsEmpty reports whether the patch changes no content field.
func (p TaskPatch) IsEmpty() bool {
	return p.Label == nil && p.Completed == nil && !p.DueAt.IsSet() && !p.ReminderID.IsSet()
}

// Apply merges the patch into t and returns the result.
func (p TaskPatch) Apply(t Task) Task {
	if p.Label != nil {
		t.Label = *p.Label
	}
	if p.Completed != nil {
		t.Completed = *p.Completed
	}
	t.DueAt = p.DueAt.Apply(t.DueAt)
	t.ReminderID = p.ReminderID.Apply(t.ReminderID)
	return t
}

// TaskQuery selects tasks either for a single note or for every note of an
// owner. Exactly one field is expected to be set.
type TaskQuery struct {
	NoteID  string
	OwnerID string
}

// TaskCounts summarizes the checklist of one note.
type TaskCounts struct {
	Completed int `json:"completed"`
	Total     int `json:"total"`
}
