package model

import "time"

// Defaults for a freshly created note.
const (
	DefaultNoteTitle = "Untitled Note"
	DefaultNoteColor = "#ffffff"
)

// Note is a titled free-text document owned by one user.
type Note struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"user_id"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	Color     string    `json:"card_color"` // "" means unset
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Key returns the note id.
func (n Note) Key() string { return n.ID }

// Stamp returns the last-modified time used for recency checks.
func (n Note) Stamp() time.Time { return n.UpdatedAt }

// NoteDraft carries the fields supplied when inserting a note.
type NoteDraft struct {
	OwnerID string `json:"user_id"`
	Title   string `json:"title"`
	Body    string `json:"body"`
	Color   string `json:"card_color"`
}

// NewNoteDraft returns a draft with the default title, empty body and the
// neutral default color.
func NewNoteDraft(ownerID string) NoteDraft {
	return NoteDraft{
		OwnerID: ownerID,
		Title:   DefaultNoteTitle,
		Body:    "",
		Color:   DefaultNoteColor,
	}
}

// NotePatch is a partial note update. Nil fields are left untouched.
// updated_at is always assigned by the backend.
type NotePatch struct {
	Title *string `json:"title,omitempty"`
	Body  *string `json:"body,omitempty"`
	Color *string `json:"card_color,omitempty"`
}

// IsEmpty reports whether the patch changes no content field.
func (p NotePatch) IsEmpty() bool {
	return p.Title == nil && p.Body == nil && p.Color == nil
}

// Apply merges the patch into n and returns the result.
func (p NotePatch) Apply(n Note) Note {
	if p.Title != nil {
		n.Title = *p.Title
	}
	if p.Body != nil {
		n.Body = *p.Body
	}
	if p.Color != nil {
		n.Color = *p.Color
	}
	return n
}
