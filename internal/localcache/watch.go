package localcache

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// watchSettle is how long the watcher waits for a burst of file events to
// end before re-reading the cache.
const watchSettle = 50 * time.Millisecond

// Watch reports keys whose value changed on disk, including changes made by
// other processes sharing the file. onChange receives the sorted changed keys
// and runs on the watcher goroutine.
//
// The watcher runs until ctx is cancelled or stop is called; stop blocks until
// the watcher goroutine has exited.
func (c *FileCache) Watch(ctx context.Context, onChange func(keys []string)) (stop func(), err error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	// Watch the directory: atomic renames replace the file's inode.
	if err := watcher.Add(filepath.Dir(c.path)); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("watch %s: %w", filepath.Dir(c.path), err)
	}

	last, err := c.Snapshot()
	if err != nil {
		watcher.Close()
		return nil, err
	}

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	go func() {
		defer close(done)
		defer watcher.Close()

		var settle <-chan time.Time
		name := filepath.Base(c.path)

		for {
			select {
			case <-runCtx.Done():
				return

			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				base := filepath.Base(event.Name)
				if base != name || strings.HasPrefix(base, tempFilePrefix) {
					continue
				}
				if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) ||
					event.Has(fsnotify.Rename) || event.Has(fsnotify.Remove) {
					settle = time.After(watchSettle)
				}

			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				slog.Error("cache watcher error", "path", c.path, "error", err)

			case <-settle:
				settle = nil
				current, err := c.Snapshot()
				if err != nil {
					slog.Warn("cache reload failed", "path", c.path, "error", err)
					continue
				}
				if keys := changedKeys(last, current); len(keys) > 0 {
					onChange(keys)
				}
				last = current
			}
		}
	}()

	var once sync.Once
	stop = func() {
		once.Do(cancel)
		<-done
	}
	return stop, nil
}

// changedKeys returns the sorted keys added, removed or modified between two
// snapshots.
func changedKeys[V ~[]byte](before, after map[string]V) []string {
	var keys []string
	for k, v := range after {
		if old, ok := before[k]; !ok || !bytes.Equal(old, v) {
			keys = append(keys, k)
		}
	}
	for k := range before {
		if _, ok := after[k]; !ok {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}
