package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/roach88/notesync/internal/gateway"
	"github.com/roach88/notesync/internal/model"
	"github.com/roach88/notesync/internal/testutil"
)

// createTestStore opens a store in a temp dir with a stepping clock and
// readable ids.
func createTestStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	base := []Option{
		WithClock(testutil.NewManualClock(time.Second)),
		WithIDGenerator(testutil.NewSequentialIDs("row")),
	}
	s, err := Open(path, append(base, opts...)...)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// nextChange reads one change or fails after a timeout.
func nextChange(t *testing.T, sub *gateway.Subscription) model.Change {
	t.Helper()
	select {
	case c, ok := <-sub.Changes():
		require.True(t, ok, "subscription closed")
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for change")
	}
	return model.Change{}
}
