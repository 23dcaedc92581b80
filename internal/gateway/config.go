package gateway

import (
	"net/http"
	"time"
)

// Config configures the WebSocket Dispatcher and its HTTP management
// surface (spec.md §6). Mirrors the teacher's Default*Config + With*
// builder pattern.
type Config struct {
	Address string

	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	HandshakeTimeout time.Duration
	MaxMessageBytes int64
	ShutdownTimeout time.Duration

	TrustedProxies []string

	SecureCookies  bool
	SameSiteMode   http.SameSite
	CookieDomain   string
	CookieHTTPOnly bool

	// AllowedOrigins, when non-empty, restricts the WebSocket upgrade's
	// Origin header to this allowlist. Empty means same-origin only is
	// not enforced (development default).
	AllowedOrigins []string
}

// DefaultConfig returns the baseline gateway configuration.
func DefaultConfig() *Config {
	return &Config{
		Address:          ":8080",
		ReadTimeout:      60 * time.Second,
		WriteTimeout:     10 * time.Second,
		HandshakeTimeout: 10 * time.Second,
		MaxMessageBytes:  10 << 20, // binary chunk frames carry raw bytes
		ShutdownTimeout:  15 * time.Second,
		SameSiteMode:     http.SameSiteLaxMode,
		CookieHTTPOnly:   true,
		SecureCookies:    true,
	}
}

// WithAddress overrides the listen address.
func (c *Config) WithAddress(addr string) *Config { c.Address = addr; return c }

// WithTrustedProxies overrides the set of trusted proxy IPs/CIDRs used
// to resolve the real client IP from forwarded headers.
func (c *Config) WithTrustedProxies(entries ...string) *Config {
	c.TrustedProxies = entries
	return c
}

// WithSecureCookies requires TLS (directly or via a trusted proxy's
// forwarded proto) before issuing any cookie.
func (c *Config) WithSecureCookies(enabled bool) *Config { c.SecureCookies = enabled; return c }

// WithAllowedOrigins restricts the WebSocket upgrade's Origin header.
func (c *Config) WithAllowedOrigins(origins ...string) *Config {
	c.AllowedOrigins = origins
	return c
}

// CSRFCookieName is the name of the double-submit cookie that csrfCookie
// builds. No handler in this package issues that cookie or checks it on
// POST requests.
const CSRFCookieName = "live_csrf"
