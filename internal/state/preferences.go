package state

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/roach88/notesync/internal/gateway"
	"github.com/roach88/notesync/internal/listen"
	"github.com/roach88/notesync/internal/localcache"
	"github.com/roach88/notesync/internal/model"
)

// ThemeApplier receives the active theme whenever it takes effect.
type ThemeApplier interface {
	ApplyTheme(theme model.Theme)
}

// ThemeFunc adapts a function to ThemeApplier.
type ThemeFunc func(model.Theme)

// ApplyTheme implements ThemeApplier.
func (f ThemeFunc) ApplyTheme(t model.Theme) { f(t) }

// PreferencesState is a snapshot of the preference store.
type PreferencesState struct {
	Preferences  model.Preferences
	SettingsOpen bool
}

// PreferenceStore holds the user's display settings. The local cache is
// applied first so the theme is right before the remote answers.
type PreferenceStore struct {
	gw    gateway.Preferences
	cache localcache.Cache
	theme ThemeApplier
	log   *slog.Logger

	mu           sync.Mutex
	prefs        model.Preferences
	settingsOpen bool

	changed listen.Set[PreferencesState]
}

// NewPreferenceStore creates a store holding the defaults. theme may be nil.
func NewPreferenceStore(gw gateway.Preferences, cache localcache.Cache, theme ThemeApplier, opts ...Option) *PreferenceStore {
	cfg := newConfig(opts)
	if theme == nil {
		theme = ThemeFunc(func(model.Theme) {})
	}
	return &PreferenceStore{
		gw:    gw,
		cache: cache,
		theme: theme,
		log:   cfg.logger.With("store", "preferences"),
		prefs: model.DefaultPreferences(""),
	}
}

// Current returns the preferences in effect.
func (s *PreferenceStore) Current() model.Preferences {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.prefs
}

// State returns a snapshot including the transient settings flag.
func (s *PreferenceStore) State() PreferencesState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// SettingsOpen reports whether the settings panel is showing.
func (s *PreferenceStore) SettingsOpen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settingsOpen
}

// Listen registers fn to receive a snapshot after every change. It returns a
// function that unregisters fn.
func (s *PreferenceStore) Listen(fn func(PreferencesState)) func() {
	return s.changed.Add(fn)
}

// Load applies the cached preferences, then the remote row if one exists.
// A missing remote row keeps the cached or default values. Remote failures
// are logged and returned; the cached values stay in effect.
func (s *PreferenceStore) Load(ctx context.Context, userID string) error {
	if cached, ok := s.readCache(userID); ok {
		s.replace(cached)
	} else {
		s.replace(model.DefaultPreferences(userID))
	}

	remote, err := s.gw.GetPreferences(ctx, userID)
	switch {
	case gateway.IsNotFound(err):
		s.log.Debug("no stored preferences, keeping local values", "user_id", userID)
		return nil
	case err != nil:
		s.log.Error("failed to load preferences", "user_id", userID, "error", err)
		return fmt.Errorf("load preferences: %w", err)
	}

	s.replace(remote)
	s.writeCache(remote)
	return nil
}

// ReloadCache re-applies the cached snapshot. Another process, such as a
// popup view, may have saved preferences in the meantime.
func (s *PreferenceStore) ReloadCache() {
	s.mu.Lock()
	userID := s.prefs.UserID
	s.mu.Unlock()

	cached, ok := s.readCache(userID)
	if !ok {
		return
	}
	if samePreferences(cached, s.Current()) {
		return
	}
	s.replace(cached)
}

// Save merges update into the current preferences, caches the result, applies
// a changed theme and then upserts the row. A remote failure is logged and
// returned; the local change stays.
func (s *PreferenceStore) Save(ctx context.Context, userID string, update model.PreferencesUpdate) error {
	if update.Theme != nil {
		if _, err := model.ParseTheme(string(*update.Theme)); err != nil {
			return fmt.Errorf("save preferences: %w", err)
		}
	}

	s.mu.Lock()
	before := s.prefs
	next := update.Apply(before)
	next.UserID = userID
	s.prefs = next
	state := s.snapshotLocked()
	s.mu.Unlock()

	s.writeCache(next)
	if next.Theme != before.Theme {
		s.theme.ApplyTheme(next.Theme)
	}
	s.changed.Notify(state)

	saved, err := s.gw.UpsertPreferences(ctx, next)
	if err != nil {
		s.log.Error("failed to save preferences", "user_id", userID, "error", err)
		return fmt.Errorf("save preferences: %w", err)
	}

	// Take the backend's stamp unless another save got in first.
	s.mu.Lock()
	adopt := samePreferences(s.prefs, next)
	if adopt {
		s.prefs.UpdatedAt = saved.UpdatedAt
		next = s.prefs
	}
	s.mu.Unlock()
	if adopt {
		s.writeCache(next)
	}
	return nil
}

// ToggleSettings opens or closes the settings panel.
func (s *PreferenceStore) ToggleSettings() {
	s.setSettings(func(open bool) bool { return !open })
}

// CloseSettings closes the settings panel.
func (s *PreferenceStore) CloseSettings() {
	s.setSettings(func(bool) bool { return false })
}

// Reset restores the defaults. Used when the signed-in user changes.
func (s *PreferenceStore) Reset() {
	s.mu.Lock()
	s.settingsOpen = false
	s.mu.Unlock()
	s.replace(model.DefaultPreferences(""))
}

func (s *PreferenceStore) setSettings(fn func(bool) bool) {
	s.mu.Lock()
	open := fn(s.settingsOpen)
	if open == s.settingsOpen {
		s.mu.Unlock()
		return
	}
	s.settingsOpen = open
	state := s.snapshotLocked()
	s.mu.Unlock()

	s.changed.Notify(state)
}

// replace swaps in p and applies its theme.
func (s *PreferenceStore) replace(p model.Preferences) {
	if p.Theme == "" {
		p.Theme = model.ThemeLight
	}

	s.mu.Lock()
	s.prefs = p
	state := s.snapshotLocked()
	s.mu.Unlock()

	s.theme.ApplyTheme(p.Theme)
	s.changed.Notify(state)
}

// readCache returns the cached preferences when they belong to userID. A
// snapshot without a user is accepted for any user.
func (s *PreferenceStore) readCache(userID string) (model.Preferences, bool) {
	if s.cache == nil {
		return model.Preferences{}, false
	}
	var p model.Preferences
	ok, err := localcache.GetJSON(s.cache, localcache.KeyPreferences, &p)
	if err != nil {
		s.log.Warn("ignoring unreadable cached preferences", "error", err)
		return model.Preferences{}, false
	}
	if !ok {
		return model.Preferences{}, false
	}
	if p.UserID != "" && p.UserID != userID {
		return model.Preferences{}, false
	}
	if _, err := model.ParseTheme(string(p.Theme)); err != nil {
		s.log.Warn("ignoring cached preferences", "error", err)
		return model.Preferences{}, false
	}
	p.UserID = userID
	return p, true
}

func (s *PreferenceStore) writeCache(p model.Preferences) {
	if s.cache == nil {
		return
	}
	if err := localcache.SetJSON(s.cache, localcache.KeyPreferences, p); err != nil {
		s.log.Warn("failed to cache preferences", "error", err)
	}
}

func samePreferences(a, b model.Preferences) bool {
	return a.UserID == b.UserID &&
		a.Theme == b.Theme &&
		sameString(a.BackgroundColor, b.BackgroundColor) &&
		sameString(a.BackgroundGradient, b.BackgroundGradient) &&
		a.UpdatedAt.Equal(b.UpdatedAt)
}

func sameString(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func (s *PreferenceStore) snapshotLocked() PreferencesState {
	return PreferencesState{Preferences: s.prefs, SettingsOpen: s.settingsOpen}
}
