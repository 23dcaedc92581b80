// Package sessionauth implements a cookie/session-store backed
// authgate.Provider, generalized from the teacher's single
// pkg/auth/sessionauth adaptor into the Auth Gate's pluggable provider
// contract.
package sessionauth

import (
	"context"
	"net/http"
	"time"

	"github.com/liveframe/live/pkg/authgate"
)

// StoredSession represents a validated session from a backing store.
type StoredSession struct {
	ID          string
	UserID      string
	Roles       []string
	Permissions []string
	ExpiresAt   time.Time
	IssuedAt    time.Time
}

// Store is the backing store for session-first auth.
type Store interface {
	Get(ctx context.Context, sessionID string) (*StoredSession, error)
	Validate(ctx context.Context, session *StoredSession) error
}

// CookiePolicy applies security defaults to cookies set by the provider.
type CookiePolicy interface {
	ApplyCookiePolicy(r *http.Request, cookie *http.Cookie) (*http.Cookie, error)
}

// Provider adapts a session store to the Auth Gate's Provider contract.
// Credentials are expected to carry a "sessionId" key. The gateway does
// not add one itself: it passes an AUTH message's credentials map through
// unchanged and puts the WebSocket upgrade's token query parameter under
// "token".
type Provider struct {
	name         string
	store        Store
	cookieName   string
	cookiePolicy CookiePolicy
}

// Option configures a Provider.
type Option func(*Provider)

// WithCookieName sets the cookie name used to load session IDs over HTTP.
func WithCookieName(name string) Option {
	return func(p *Provider) {
		if name != "" {
			p.cookieName = name
		}
	}
}

// WithCookiePolicy applies a cookie policy for provider-managed cookies.
func WithCookiePolicy(policy CookiePolicy) Option {
	return func(p *Provider) {
		p.cookiePolicy = policy
	}
}

// New creates a session-first auth provider named "session".
func New(store Store, opts ...Option) *Provider {
	p := &Provider{
		name:       "session",
		store:      store,
		cookieName: "session",
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Provider) Name() string { return p.name }

// Authenticate resolves the "sessionId" credential to an AuthContext.
func (p *Provider) Authenticate(ctx context.Context, creds authgate.Credentials) (*authgate.AuthContext, error) {
	sessionID := creds["sessionId"]
	if sessionID == "" {
		return authgate.Anonymous(), nil
	}

	stored, err := p.store.Get(ctx, sessionID)
	if err != nil {
		return authgate.Anonymous(), nil
	}
	if err := p.store.Validate(ctx, stored); err != nil {
		return authgate.Anonymous(), nil
	}

	return authgate.NewAuthenticated(stored.UserID, stored.Roles, stored.Permissions, stored.IssuedAt.UnixMilli()), nil
}

// SessionIDFromCookie extracts a session id from the named cookie, for
// use building Credentials at the HTTP/WebSocket upgrade boundary.
func (p *Provider) SessionIDFromCookie(r *http.Request) string {
	cookie, err := r.Cookie(p.cookieName)
	if err != nil {
		return ""
	}
	return cookie.Value
}

// ClearCookie removes the session cookie, applying the provider's cookie
// policy if one is configured.
func (p *Provider) ClearCookie(w http.ResponseWriter, r *http.Request) {
	cookie := &http.Cookie{
		Name:     p.cookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   r != nil && r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	}
	if p.cookiePolicy != nil {
		updated, err := p.cookiePolicy.ApplyCookiePolicy(r, cookie)
		if err == nil {
			cookie = updated
		}
	}
	http.SetCookie(w, cookie)
}
