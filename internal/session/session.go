// Package session tracks the signed-in identity.
//
// The identity provider itself is external; Store only records what the
// provider reports and tells observers when the user changes. Data loading
// is gated on Store: nothing is fetched while Loading is true or User is nil.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/roach88/notesync/internal/listen"
	"github.com/roach88/notesync/internal/localcache"
)

// ErrNotSignedIn is returned by operations that need an identity.
var ErrNotSignedIn = errors.New("session: not signed in")

// User is an authenticated identity.
type User struct {
	ID    string `json:"id" yaml:"id" toml:"id"`
	Email string `json:"email,omitempty" yaml:"email,omitempty" toml:"email,omitempty"`
	Name  string `json:"name,omitempty" yaml:"name,omitempty" toml:"name,omitempty"`
}

// Provider is the external identity provider.
type Provider interface {
	// Current returns the active session's user, or nil when signed out.
	Current(ctx context.Context) (*User, error)
	// SignIn starts a sign-in and returns the resulting user.
	SignIn(ctx context.Context) (*User, error)
	// SignOut ends the active session.
	SignOut(ctx context.Context) error
}

// Store holds the current identity.
//
// Thread-safety: All methods are safe for concurrent use. Change callbacks run
// after the internal lock is released.
type Store struct {
	provider Provider
	cache    localcache.Cache

	mu      sync.Mutex
	user    *User
	loading bool

	changed listen.Set[*User]
}

// NewStore creates a store in the loading state. cache may be nil; when set,
// SignOut removes the cached calendar token from it.
func NewStore(provider Provider, cache localcache.Cache) *Store {
	return &Store{
		provider: provider,
		cache:    cache,
		loading:  true,
	}
}

// Initialize reads the provider's current session and leaves the loading
// state, even when the provider fails.
func (s *Store) Initialize(ctx context.Context) error {
	u, err := s.provider.Current(ctx)
	if err != nil {
		slog.Error("failed to read session", "error", err)
		s.set(nil)
		return fmt.Errorf("initialize session: %w", err)
	}
	s.set(u)
	return nil
}

// SignIn signs in through the provider.
func (s *Store) SignIn(ctx context.Context) (*User, error) {
	u, err := s.provider.SignIn(ctx)
	if err != nil {
		slog.Error("sign in failed", "error", err)
		return nil, fmt.Errorf("sign in: %w", err)
	}
	if u == nil {
		return nil, ErrNotSignedIn
	}
	slog.Info("signed in", "user_id", u.ID)
	s.set(u)
	return copyUser(u), nil
}

// SignOut ends the session and forgets the cached calendar token. The local
// identity is cleared even when the provider call fails.
func (s *Store) SignOut(ctx context.Context) error {
	err := s.provider.SignOut(ctx)
	if err != nil {
		slog.Warn("provider sign out failed", "error", err)
	}

	if s.cache != nil {
		if derr := s.cache.Delete(localcache.KeyCalendarAuth); derr != nil {
			slog.Warn("failed to remove calendar token", "error", derr)
		}
	}

	s.set(nil)
	if err != nil {
		return fmt.Errorf("sign out: %w", err)
	}
	return nil
}

// User returns the signed-in user, or nil.
func (s *Store) User() *User {
	s.mu.Lock()
	defer s.mu.Unlock()
	return copyUser(s.user)
}

// Loading reports whether the initial session read is still outstanding.
func (s *Store) Loading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loading
}

// OnChange registers fn to run whenever the identity changes, including the
// transition out of the loading state. It returns a function that
// unregisters fn.
func (s *Store) OnChange(fn func(*User)) func() {
	return s.changed.Add(func(u *User) { fn(copyUser(u)) })
}

func (s *Store) set(u *User) {
	s.mu.Lock()
	wasLoading := s.loading
	same := sameUser(s.user, u)
	s.user = copyUser(u)
	s.loading = false
	if same && !wasLoading {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	s.changed.Notify(u)
}

func sameUser(a, b *User) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.ID == b.ID
}

func copyUser(u *User) *User {
	if u == nil {
		return nil
	}
	c := *u
	return &c
}
