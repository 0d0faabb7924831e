// Package workspace wires the session to the data stores.
//
// A Workspace is the session-scoped composition root: when the signed-in
// user changes it tears down the change subscriptions of the previous user,
// clears every store, then loads and subscribes for the new user.
package workspace

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/roach88/notesync/internal/localcache"
	"github.com/roach88/notesync/internal/session"
	"github.com/roach88/notesync/internal/state"
)

// Deps are the collaborators of a Workspace.
type Deps struct {
	Session *session.Store
	Notes   *state.NoteStore
	Tasks   *state.TaskStore
	Prefs   *state.PreferenceStore
	// Cache, when set, is watched for changes made by other processes.
	Cache *localcache.FileCache
}

// Workspace follows the session and keeps the stores in step with it.
type Workspace struct {
	deps Deps

	// switchMu serializes owner changes.
	switchMu sync.Mutex

	mu        sync.Mutex
	ctx       context.Context
	owner     string
	unwatch   func()
	stopCache func()
	closed    bool
}

// New creates a workspace. Call Start to begin following the session.
func New(deps Deps) *Workspace {
	return &Workspace{deps: deps}
}

// Notes returns the note store.
func (w *Workspace) Notes() *state.NoteStore { return w.deps.Notes }

// Tasks returns the task store.
func (w *Workspace) Tasks() *state.TaskStore { return w.deps.Tasks }

// Prefs returns the preference store.
func (w *Workspace) Prefs() *state.PreferenceStore { return w.deps.Prefs }

// Session returns the session store.
func (w *Workspace) Session() *session.Store { return w.deps.Session }

// Owner returns the user the stores are loaded for, or "".
func (w *Workspace) Owner() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.owner
}

// Start links the stores, starts the cache watcher and follows identity
// changes from now on. If the session already has a user, that user is
// loaded before Start returns. ctx bounds every later load.
func (w *Workspace) Start(ctx context.Context) error {
	w.deps.Notes.OnDelete(w.deps.Tasks.ForgetNote)

	if w.deps.Cache != nil {
		stop, err := w.deps.Cache.Watch(ctx, func(keys []string) {
			for _, k := range keys {
				if k == localcache.KeyPreferences {
					w.deps.Prefs.ReloadCache()
				}
			}
		})
		if err != nil {
			return fmt.Errorf("watch local cache: %w", err)
		}
		w.mu.Lock()
		w.stopCache = stop
		w.mu.Unlock()
	}

	unwatch := w.deps.Session.OnChange(func(u *session.User) {
		owner := ""
		if u != nil {
			owner = u.ID
		}
		if err := w.SwitchTo(w.context(), owner); err != nil {
			slog.Error("failed to load workspace", "owner", owner, "error", err)
		}
	})

	w.mu.Lock()
	w.ctx = ctx
	w.unwatch = unwatch
	w.mu.Unlock()

	if w.deps.Session.Loading() {
		return nil
	}
	owner := ""
	if u := w.deps.Session.User(); u != nil {
		owner = u.ID
	}
	return w.SwitchTo(ctx, owner)
}

// SwitchTo makes owner the active user. Subscriptions of the previous owner
// are stopped and every store is reset first; an empty owner only tears
// down. Switching to the active owner is a no-op.
//
// Load failures are logged and joined into the returned error; the stores
// keep whatever did load.
func (w *Workspace) SwitchTo(ctx context.Context, owner string) error {
	w.switchMu.Lock()
	defer w.switchMu.Unlock()

	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return errors.New("workspace closed")
	}
	if owner == w.owner && owner != "" {
		w.mu.Unlock()
		return nil
	}
	previous := w.owner
	w.owner = ""
	w.mu.Unlock()

	w.teardown()
	if previous != "" {
		slog.Info("workspace torn down", "owner", previous)
	}
	if owner == "" {
		return nil
	}

	var errs []error
	if err := w.deps.Notes.FetchAll(ctx, owner); err != nil {
		errs = append(errs, err)
	}
	if err := w.deps.Tasks.FetchAllForOwner(ctx, owner); err != nil {
		errs = append(errs, err)
	}
	if err := w.deps.Prefs.Load(ctx, owner); err != nil {
		errs = append(errs, err)
	}
	if _, err := w.deps.Notes.Subscribe(ctx, owner); err != nil {
		errs = append(errs, err)
	}
	if _, err := w.deps.Tasks.Subscribe(ctx, owner); err != nil {
		errs = append(errs, err)
	}

	w.mu.Lock()
	w.owner = owner
	w.mu.Unlock()

	slog.Info("workspace loaded", "owner", owner, "notes", len(w.deps.Notes.Notes()))
	return errors.Join(errs...)
}

// Close stops following the session, tears down both subscriptions, waits
// for background reminder jobs and stops the cache watcher.
func (w *Workspace) Close() error {
	w.switchMu.Lock()
	defer w.switchMu.Unlock()

	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	unwatch, stopCache := w.unwatch, w.stopCache
	w.owner = ""
	w.mu.Unlock()

	if unwatch != nil {
		unwatch()
	}
	err := errors.Join(w.deps.Notes.Unsubscribe(), w.deps.Tasks.Unsubscribe())
	w.deps.Tasks.Wait()
	if stopCache != nil {
		stopCache()
	}
	return err
}

// teardown stops both subscriptions and clears the stores. Unsubscribe
// blocks until in-flight changes are applied, so nothing of the previous
// owner lands after the reset.
func (w *Workspace) teardown() {
	if err := w.deps.Notes.Unsubscribe(); err != nil {
		slog.Warn("error closing note subscription", "error", err)
	}
	if err := w.deps.Tasks.Unsubscribe(); err != nil {
		slog.Warn("error closing task subscription", "error", err)
	}
	w.deps.Tasks.Wait()

	w.deps.Notes.Reset()
	w.deps.Tasks.Reset()
	w.deps.Prefs.Reset()
}

func (w *Workspace) context() context.Context {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.ctx == nil {
		return context.Background()
	}
	return w.ctx
}
