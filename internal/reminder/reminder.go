// Package reminder mirrors task due dates into an external calendar.
//
// The task store only depends on Adapter. Calendar implements it against the
// Google Calendar v3 REST API, authorized by a TokenSource that caches the
// access token locally and falls back to an interactive Authorizer.
package reminder

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/oauth2"

	"github.com/roach88/notesync/internal/model"
)

// ErrUnavailable is returned when calendar sync is not configured or the user
// declined authorization.
var ErrUnavailable = errors.New("reminder: calendar sync unavailable")

// Adapter creates and removes calendar reminders for tasks.
type Adapter interface {
	// Create schedules a reminder at the task's due date and returns the
	// external event id.
	Create(ctx context.Context, task model.Task) (string, error)
	// Delete removes a reminder. An already-missing event is not an error.
	Delete(ctx context.Context, eventID string) error
	// EnsureAuthorized returns a usable access token, prompting if needed.
	EnsureAuthorized(ctx context.Context) (*oauth2.Token, error)
}

// SyncError wraps every failure reported by an Adapter.
type SyncError struct {
	Op     string // "create", "delete" or "authorize"
	Status int    // HTTP status, when the calendar answered
	Err    error
}

func (e *SyncError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("reminder %s: status %d: %v", e.Op, e.Status, e.Err)
	}
	return fmt.Sprintf("reminder %s: %v", e.Op, e.Err)
}

func (e *SyncError) Unwrap() error {
	return e.Err
}

// IsSyncError returns true if err came from a reminder adapter.
func IsSyncError(err error) bool {
	var se *SyncError
	return errors.As(err, &se)
}

// Disabled is the Adapter used when calendar sync is off. Every call fails
// with ErrUnavailable.
type Disabled struct{}

var _ Adapter = Disabled{}

// Create implements Adapter.
func (Disabled) Create(context.Context, model.Task) (string, error) {
	return "", &SyncError{Op: "create", Err: ErrUnavailable}
}

// Delete implements Adapter.
func (Disabled) Delete(context.Context, string) error {
	return &SyncError{Op: "delete", Err: ErrUnavailable}
}

// EnsureAuthorized implements Adapter.
func (Disabled) EnsureAuthorized(context.Context) (*oauth2.Token, error) {
	return nil, &SyncError{Op: "authorize", Err: ErrUnavailable}
}
