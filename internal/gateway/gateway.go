package gateway

import (
	"context"
	"sync"

	"github.com/roach88/notesync/internal/model"
)

// Notes is the notes table.
type Notes interface {
	// ListNotes returns the owner's notes, most recently updated first.
	ListNotes(ctx context.Context, ownerID string) ([]model.Note, error)
	// InsertNote persists a new note and returns the stored record.
	InsertNote(ctx context.Context, draft model.NoteDraft) (model.Note, error)
	// UpdateNote applies a patch. Missing rows report NOT_FOUND.
	UpdateNote(ctx context.Context, id string, patch model.NotePatch) (model.Note, error)
	// DeleteNote removes a note and its tasks. Missing rows report NOT_FOUND.
	DeleteNote(ctx context.Context, id string) error
}

// Tasks is the tasks table.
type Tasks interface {
	// ListTasks returns tasks in creation order.
	ListTasks(ctx context.Context, q model.TaskQuery) ([]model.Task, error)
	InsertTask(ctx context.Context, draft model.TaskDraft) (model.Task, error)
	UpdateTask(ctx context.Context, id string, patch model.TaskPatch) (model.Task, error)
	DeleteTask(ctx context.Context, id string) error
}

// Preferences is the user_preferences table.
type Preferences interface {
	// GetPreferences reports NOT_FOUND when the user has no row yet.
	GetPreferences(ctx context.Context, userID string) (model.Preferences, error)
	UpsertPreferences(ctx context.Context, prefs model.Preferences) (model.Preferences, error)
}

// Changes opens realtime change streams.
type Changes interface {
	// Subscribe streams changes on topic. An empty Table or OwnerID in the
	// topic matches every value of that segment.
	Subscribe(ctx context.Context, topic model.Topic) (*Subscription, error)
}

// Gateway is the complete remote store.
type Gateway interface {
	Notes
	Tasks
	Preferences
	Changes
}

// Subscription is a live change stream.
//
// Changes are delivered in seq order on the channel returned by Changes. The
// channel is closed when the stream ends, either because Close was called or
// because the transport went away.
type Subscription struct {
	changes <-chan model.Change
	closeFn func() error

	once sync.Once
	err  error
}

// NewSubscription wraps a change channel and the function that stops it.
// closeFn must block until no further change will be sent on changes.
func NewSubscription(changes <-chan model.Change, closeFn func() error) *Subscription {
	return &Subscription{changes: changes, closeFn: closeFn}
}

// Changes returns the delivery channel.
func (s *Subscription) Changes() <-chan model.Change {
	return s.changes
}

// Close stops delivery. Once Close returns no further change is delivered.
// Safe to call more than once.
func (s *Subscription) Close() error {
	s.once.Do(func() {
		if s.closeFn != nil {
			s.err = s.closeFn()
		}
	})
	return s.err
}
