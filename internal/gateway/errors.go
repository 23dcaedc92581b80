package gateway

import "errors"

// ErrSecureCookiesRequired is returned by CookiePolicy.Apply when secure
// cookies are required but the request did not arrive over TLS (directly
// or via a trusted proxy's forwarded proto).
var ErrSecureCookiesRequired = errors.New("gateway: secure cookies required but request is not secure")

// ErrOriginNotAllowed is returned when a WebSocket upgrade's Origin
// header fails the configured allowlist.
var ErrOriginNotAllowed = errors.New("gateway: origin not allowed")
