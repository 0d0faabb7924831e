package localcache

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type themeSnapshot struct {
	Theme string `json:"theme"`
}

func newFileCache(t *testing.T) *FileCache {
	t.Helper()
	c, err := OpenFile(filepath.Join(t.TempDir(), "state", "cache.json"))
	require.NoError(t, err)
	return c
}

func TestFileCache_SetGetDelete(t *testing.T) {
	c := newFileCache(t)

	_, ok, err := c.Get(KeyPreferences)
	require.NoError(t, err)
	assert.False(t, ok, "missing file reads as empty")

	require.NoError(t, SetJSON(c, KeyPreferences, themeSnapshot{Theme: "dark"}))

	var got themeSnapshot
	ok, err = GetJSON(c, KeyPreferences, &got)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "dark", got.Theme)

	require.NoError(t, c.Delete(KeyPreferences))
	require.NoError(t, c.Delete(KeyPreferences), "deleting an absent key is fine")

	_, ok, err = c.Get(KeyPreferences)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestFileCache_SharedBetweenInstances(t *testing.T) {
	a := newFileCache(t)
	b := &FileCache{path: a.Path()}

	require.NoError(t, a.Set(KeyCalendarAuth, []byte(`{"access_token":"abc"}`)))

	data, ok, err := b.Get(KeyCalendarAuth)
	require.NoError(t, err)
	require.True(t, ok)
	assert.JSONEq(t, `{"access_token":"abc"}`, string(data))
}

func TestFileCache_RejectsInvalidJSON(t *testing.T) {
	c := newFileCache(t)
	assert.Error(t, c.Set("k", []byte("not json")))
}

func TestFileCache_CorruptFile(t *testing.T) {
	c := newFileCache(t)
	require.NoError(t, os.WriteFile(c.Path(), []byte("{broken"), 0o600))

	_, _, err := c.Get("k")
	assert.Error(t, err)
}

func TestWriteFileAtomic_LeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "out.json")

	require.NoError(t, writeFileAtomic(target, []byte(`{}`), 0o600))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "out.json", entries[0].Name())
}

func TestMemory(t *testing.T) {
	m := NewMemory()
	require.NoError(t, m.Set("k", []byte(`"v"`)))

	v, ok, err := m.Get("k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, `"v"`, string(v))

	require.NoError(t, m.Delete("k"))
	_, ok, _ = m.Get("k")
	assert.False(t, ok)
}

func TestChangedKeys(t *testing.T) {
	before := map[string][]byte{"a": []byte("1"), "b": []byte("2"), "c": []byte("3")}
	after := map[string][]byte{"a": []byte("1"), "b": []byte("20"), "d": []byte("4")}

	assert.Equal(t, []string{"b", "c", "d"}, changedKeys(before, after))
	assert.Empty(t, changedKeys(before, before))
}

func TestFileCache_WatchSeesOtherWriters(t *testing.T) {
	c := newFileCache(t)
	other := &FileCache{path: c.Path()}

	var (
		mu   sync.Mutex
		seen []string
	)
	stop, err := c.Watch(context.Background(), func(keys []string) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, keys...)
	})
	require.NoError(t, err)
	defer stop()

	require.NoError(t, SetJSON(other, KeyPreferences, themeSnapshot{Theme: "dark"}))

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) > 0 && seen[0] == KeyPreferences
	}, 2*time.Second, 10*time.Millisecond)
}

func TestFileCache_WatchStop(t *testing.T) {
	c := newFileCache(t)
	stop, err := c.Watch(context.Background(), func([]string) {})
	require.NoError(t, err)

	stop()
	stop()
}
