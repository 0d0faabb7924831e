package session

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/notesync/internal/localcache"
)

type failingProvider struct{ err error }

func (p failingProvider) Current(context.Context) (*User, error) { return nil, p.err }
func (p failingProvider) SignIn(context.Context) (*User, error)  { return nil, p.err }
func (p failingProvider) SignOut(context.Context) error          { return p.err }

func TestStore_StartsLoading(t *testing.T) {
	s := NewStore(NewStaticProvider(User{ID: "u1"}, true), nil)
	assert.True(t, s.Loading())
	assert.Nil(t, s.User())
}

func TestStore_InitializeReadsCurrentSession(t *testing.T) {
	s := NewStore(NewStaticProvider(User{ID: "u1", Email: "a@example.com"}, true), nil)

	var seen []*User
	s.OnChange(func(u *User) { seen = append(seen, u) })

	require.NoError(t, s.Initialize(context.Background()))
	assert.False(t, s.Loading())
	require.NotNil(t, s.User())
	assert.Equal(t, "u1", s.User().ID)
	require.Len(t, seen, 1)
	assert.Equal(t, "u1", seen[0].ID)
}

func TestStore_InitializeSignedOutStillNotifies(t *testing.T) {
	s := NewStore(NewStaticProvider(User{ID: "u1"}, false), nil)

	calls := 0
	s.OnChange(func(u *User) {
		calls++
		assert.Nil(t, u)
	})

	require.NoError(t, s.Initialize(context.Background()))
	assert.False(t, s.Loading())
	assert.Equal(t, 1, calls)
}

func TestStore_InitializeFailureLeavesLoading(t *testing.T) {
	s := NewStore(failingProvider{err: errors.New("offline")}, nil)

	require.Error(t, s.Initialize(context.Background()))
	assert.False(t, s.Loading())
	assert.Nil(t, s.User())
}

func TestStore_SignInAndOut(t *testing.T) {
	cache := localcache.NewMemory()
	require.NoError(t, cache.Set(localcache.KeyCalendarAuth, []byte(`{"access_token":"x"}`)))

	s := NewStore(NewStaticProvider(User{ID: "u1"}, false), cache)
	require.NoError(t, s.Initialize(context.Background()))

	var seen []string
	s.OnChange(func(u *User) {
		if u == nil {
			seen = append(seen, "")
			return
		}
		seen = append(seen, u.ID)
	})

	u, err := s.SignIn(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "u1", u.ID)

	require.NoError(t, s.SignOut(context.Background()))
	assert.Nil(t, s.User())
	assert.Equal(t, []string{"u1", ""}, seen)

	_, ok, err := cache.Get(localcache.KeyCalendarAuth)
	require.NoError(t, err)
	assert.False(t, ok, "calendar token removed on sign out")
}

func TestStore_SignOutClearsEvenWhenProviderFails(t *testing.T) {
	s := NewStore(failingProvider{err: errors.New("boom")}, nil)
	s.set(&User{ID: "u1"})

	require.Error(t, s.SignOut(context.Background()))
	assert.Nil(t, s.User())
}

func TestStore_SameUserDoesNotRenotify(t *testing.T) {
	s := NewStore(NewStaticProvider(User{ID: "u1"}, true), nil)
	require.NoError(t, s.Initialize(context.Background()))

	calls := 0
	cancel := s.OnChange(func(*User) { calls++ })
	_, err := s.SignIn(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, calls)

	cancel()
	require.NoError(t, s.SignOut(context.Background()))
	assert.Equal(t, 0, calls)
}

func TestStaticProvider_SignInWithoutIdentity(t *testing.T) {
	p := NewStaticProvider(User{}, false)
	_, err := p.SignIn(context.Background())
	assert.ErrorIs(t, err, ErrNotSignedIn)
}
