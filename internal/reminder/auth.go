package reminder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"

	"golang.org/x/oauth2"

	"github.com/roach88/notesync/internal/localcache"
)

// CalendarScope is the OAuth2 scope needed to manage calendar events.
const CalendarScope = "https://www.googleapis.com/auth/calendar.events"

// DefaultTokenInfoURL validates access tokens remotely.
const DefaultTokenInfoURL = "https://oauth2.googleapis.com/tokeninfo"

// GoogleEndpoint is Google's OAuth 2.0 endpoint.
var GoogleEndpoint = oauth2.Endpoint{
	AuthURL:   "https://accounts.google.com/o/oauth2/auth",
	TokenURL:  "https://oauth2.googleapis.com/token",
	AuthStyle: oauth2.AuthStyleInParams,
}

// NewOAuthConfig returns an oauth2 config requesting CalendarScope.
func NewOAuthConfig(clientID, clientSecret, redirectURL string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURL,
		Scopes:       []string{CalendarScope},
		Endpoint:     GoogleEndpoint,
	}
}

// Authorizer obtains a new token interactively.
type Authorizer interface {
	Authorize(ctx context.Context) (*oauth2.Token, error)
}

// Refresher exchanges a refresh token for a fresh access token. Authorizers
// that can refresh implement it.
type Refresher interface {
	Refresh(ctx context.Context, tok *oauth2.Token) (*oauth2.Token, error)
}

// Validator confirms that a locally valid token is still accepted remotely.
type Validator interface {
	Validate(ctx context.Context, tok *oauth2.Token) error
}

// TokenSource hands out calendar access tokens.
//
// It reuses the token cached under localcache.KeyCalendarAuth while it is
// valid, refreshes it when the authorizer supports that, and otherwise runs
// the interactive authorizer and caches the result.
//
// Thread-safety: Token serializes concurrent callers so only one prompt runs.
type TokenSource struct {
	cache     localcache.Cache
	auth      Authorizer
	validator Validator

	mu sync.Mutex
}

// NewTokenSource creates a token source. auth may be nil, in which case only
// a cached token can be used. validator may be nil to trust token expiry.
func NewTokenSource(cache localcache.Cache, auth Authorizer, validator Validator) *TokenSource {
	return &TokenSource{cache: cache, auth: auth, validator: validator}
}

// Token returns a usable access token.
func (s *TokenSource) Token(ctx context.Context) (*oauth2.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var cached oauth2.Token
	ok, err := localcache.GetJSON(s.cache, localcache.KeyCalendarAuth, &cached)
	if err != nil {
		slog.Warn("ignoring unreadable calendar token", "error", err)
		ok = false
	}

	if ok && cached.Valid() {
		if s.validator == nil {
			return &cached, nil
		}
		if err := s.validator.Validate(ctx, &cached); err == nil {
			return &cached, nil
		}
		slog.Debug("cached calendar token rejected, reauthorizing")
	}

	if ok && cached.RefreshToken != "" {
		if r, isRefresher := s.auth.(Refresher); isRefresher {
			fresh, err := r.Refresh(ctx, &cached)
			if err == nil {
				return s.store(fresh)
			}
			slog.Warn("calendar token refresh failed", "error", err)
		}
	}

	if s.auth == nil {
		return nil, &SyncError{Op: "authorize", Err: ErrUnavailable}
	}

	tok, err := s.auth.Authorize(ctx)
	if err != nil {
		return nil, &SyncError{Op: "authorize", Err: err}
	}
	return s.store(tok)
}

// Forget removes the cached token so the next Token call reauthorizes.
func (s *TokenSource) Forget() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cache.Delete(localcache.KeyCalendarAuth)
}

func (s *TokenSource) store(tok *oauth2.Token) (*oauth2.Token, error) {
	if tok == nil || tok.AccessToken == "" {
		return nil, &SyncError{Op: "authorize", Err: errors.New("authorizer returned no access token")}
	}
	if err := localcache.SetJSON(s.cache, localcache.KeyCalendarAuth, tok); err != nil {
		slog.Warn("failed to cache calendar token", "error", err)
	}
	return tok, nil
}

// OAuthAuthorizer runs the authorization-code flow of an oauth2.Config.
// Prompt shows the consent URL to the user and returns the code they paste
// back.
type OAuthAuthorizer struct {
	Config *oauth2.Config
	Prompt func(ctx context.Context, authURL string) (code string, err error)
	State  string
}

var _ Refresher = (*OAuthAuthorizer)(nil)

// Authorize implements Authorizer.
func (a *OAuthAuthorizer) Authorize(ctx context.Context) (*oauth2.Token, error) {
	if a.Config == nil || a.Prompt == nil {
		return nil, ErrUnavailable
	}
	state := a.State
	if state == "" {
		state = "notesync"
	}
	authURL := a.Config.AuthCodeURL(state, oauth2.AccessTypeOffline)

	code, err := a.Prompt(ctx, authURL)
	if err != nil {
		return nil, fmt.Errorf("prompt for authorization code: %w", err)
	}
	if code == "" {
		return nil, ErrUnavailable
	}

	tok, err := a.Config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("exchange authorization code: %w", err)
	}
	return tok, nil
}

// Refresh implements Refresher.
func (a *OAuthAuthorizer) Refresh(ctx context.Context, tok *oauth2.Token) (*oauth2.Token, error) {
	if a.Config == nil {
		return nil, ErrUnavailable
	}
	return a.Config.TokenSource(ctx, tok).Token()
}

// TokenInfoValidator checks tokens against Google's tokeninfo endpoint.
type TokenInfoValidator struct {
	URL    string
	Client *http.Client
}

// Validate implements Validator.
func (v TokenInfoValidator) Validate(ctx context.Context, tok *oauth2.Token) error {
	endpoint := v.URL
	if endpoint == "" {
		endpoint = DefaultTokenInfoURL
	}
	client := v.Client
	if client == nil {
		client = http.DefaultClient
	}

	u, err := url.Parse(endpoint)
	if err != nil {
		return fmt.Errorf("parse tokeninfo url: %w", err)
	}
	q := u.Query()
	q.Set("access_token", tok.AccessToken)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("tokeninfo: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("tokeninfo: status %d", resp.StatusCode)
	}
	return nil
}
