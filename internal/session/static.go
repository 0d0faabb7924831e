package session

import (
	"context"
	"sync"
)

// StaticProvider is a Provider backed by a configured identity. It stands in
// for an interactive provider in the command-line client and in tests.
type StaticProvider struct {
	mu       sync.Mutex
	user     User
	signedIn bool
}

var _ Provider = (*StaticProvider)(nil)

// NewStaticProvider returns a provider for user, initially signed in or not.
func NewStaticProvider(user User, signedIn bool) *StaticProvider {
	return &StaticProvider{user: user, signedIn: signedIn}
}

// Current implements Provider.
func (p *StaticProvider) Current(context.Context) (*User, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.signedIn {
		return nil, nil
	}
	u := p.user
	return &u, nil
}

// SignIn implements Provider.
func (p *StaticProvider) SignIn(ctx context.Context) (*User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.user.ID == "" {
		return nil, ErrNotSignedIn
	}
	p.signedIn = true
	u := p.user
	return &u, nil
}

// SignOut implements Provider.
func (p *StaticProvider) SignOut(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.signedIn = false
	return nil
}
