package state

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/roach88/notesync/internal/gateway"
	"github.com/roach88/notesync/internal/model"
	"github.com/roach88/notesync/internal/store"
	"github.com/roach88/notesync/internal/testutil"
)

var errInjected = errors.New("injected failure")

// setupTestStore opens a SQLite backend in a temp dir. opts are applied
// after the defaults.
func setupTestStore(t *testing.T, opts ...store.Option) *store.Store {
	t.Helper()
	opts = append([]store.Option{
		store.WithClock(testutil.NewManualClock(time.Second)),
		store.WithIDGenerator(testutil.NewSequentialIDs("row")),
	}, opts...)
	s, err := store.Open(filepath.Join(t.TempDir(), "notesync.db"), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// testOptions silences store logging.
func testOptions() []Option {
	return []Option{
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	}
}

// flakyGateway wraps a store and fails the named operations on demand.
type flakyGateway struct {
	*store.Store

	mu   sync.Mutex
	fail map[string]bool
}

func newFlakyGateway(s *store.Store) *flakyGateway {
	return &flakyGateway{Store: s, fail: map[string]bool{}}
}

func (g *flakyGateway) setFail(op string, fail bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.fail[op] = fail
}

func (g *flakyGateway) check(op string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.fail[op] {
		return gateway.Transport(op, errInjected)
	}
	return nil
}

func (g *flakyGateway) ListNotes(ctx context.Context, ownerID string) ([]model.Note, error) {
	if err := g.check("list notes"); err != nil {
		return nil, err
	}
	return g.Store.ListNotes(ctx, ownerID)
}

func (g *flakyGateway) UpdateNote(ctx context.Context, id string, patch model.NotePatch) (model.Note, error) {
	if err := g.check("update note"); err != nil {
		return model.Note{}, err
	}
	return g.Store.UpdateNote(ctx, id, patch)
}

func (g *flakyGateway) DeleteNote(ctx context.Context, id string) error {
	if err := g.check("delete note"); err != nil {
		return err
	}
	return g.Store.DeleteNote(ctx, id)
}

func (g *flakyGateway) UpdateTask(ctx context.Context, id string, patch model.TaskPatch) (model.Task, error) {
	if err := g.check("update task"); err != nil {
		return model.Task{}, err
	}
	return g.Store.UpdateTask(ctx, id, patch)
}

func (g *flakyGateway) GetPreferences(ctx context.Context, userID string) (model.Preferences, error) {
	if err := g.check("get preferences"); err != nil {
		return model.Preferences{}, err
	}
	return g.Store.GetPreferences(ctx, userID)
}

func (g *flakyGateway) UpsertPreferences(ctx context.Context, prefs model.Preferences) (model.Preferences, error) {
	if err := g.check("upsert preferences"); err != nil {
		return model.Preferences{}, err
	}
	return g.Store.UpsertPreferences(ctx, prefs)
}

// heldGateway parks UpdateNote until release is closed.
type heldGateway struct {
	*store.Store

	entered chan struct{}
	release chan struct{}
}

func newHeldGateway(s *store.Store) *heldGateway {
	return &heldGateway{Store: s, entered: make(chan struct{}, 1), release: make(chan struct{})}
}

func (g *heldGateway) UpdateNote(ctx context.Context, id string, patch model.NotePatch) (model.Note, error) {
	g.entered <- struct{}{}
	<-g.release
	return g.Store.UpdateNote(ctx, id, patch)
}

// fakeReminders records calendar calls. A non-nil gate parks Create until it
// is closed.
type fakeReminders struct {
	mu         sync.Mutex
	next       int
	created    []string
	deleted    []string
	failCreate bool
	failDelete bool
	gate       chan struct{}
}

func (f *fakeReminders) Create(_ context.Context, task model.Task) (string, error) {
	f.mu.Lock()
	gate := f.gate
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failCreate {
		return "", errInjected
	}
	f.next++
	id := fmt.Sprintf("evt-%d", f.next)
	f.created = append(f.created, id)
	return id, nil
}

func (f *fakeReminders) Delete(_ context.Context, eventID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failDelete {
		return errInjected
	}
	f.deleted = append(f.deleted, eventID)
	return nil
}

func (f *fakeReminders) EnsureAuthorized(context.Context) (*oauth2.Token, error) {
	return &oauth2.Token{AccessToken: "test"}, nil
}

func (f *fakeReminders) calls() (created, deleted []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.created...), append([]string(nil), f.deleted...)
}

func (f *fakeReminders) setGate(gate chan struct{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gate = gate
}

func (f *fakeReminders) setFailures(create, del bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failCreate = create
	f.failDelete = del
}
