// Package liveerr defines the tagged error kinds surfaced to the wire by
// the live runtime. None of these ever carry a raw Go panic or driver
// error to the client; every subsystem translates its failures into one
// of the kinds below before a message reaches the dispatcher.
package liveerr

import "fmt"

// Kind tags a user-facing failure category. The wire value is the string
// form, optionally suffixed with context (e.g. "COMPONENT_REHYDRATION_REQUIRED:<id>").
type Kind string

const (
	KindAuthDenied              Kind = "AUTH_DENIED"
	KindRehydrationRequired     Kind = "COMPONENT_REHYDRATION_REQUIRED"
	KindComponentNotFound       Kind = "COMPONENT_NOT_FOUND"
	KindInvalidSignature        Kind = "INVALID_SIGNATURE"
	KindExpired                 Kind = "EXPIRED"
	KindReplay                  Kind = "REPLAY"
	KindKeyNotFound             Kind = "KEY_NOT_FOUND"
	KindClassMismatch           Kind = "CLASS_MISMATCH"
	KindRateLimited             Kind = "RATE_LIMITED"
	KindUploadRejected          Kind = "UPLOAD_REJECTED"
	KindPluginTimeout           Kind = "PLUGIN_TIMEOUT"
)

// Error is the concrete error type carried internally; dispatchers unwrap
// it to decide the wire-level response shape rather than stringifying a
// generic error.
type Error struct {
	Kind   Kind
	Detail string
	// ComponentID is set for kinds that embed an id in their wire form
	// (COMPONENT_REHYDRATION_REQUIRED:<id>).
	ComponentID string
	cause       error
}

func (e *Error) Error() string {
	if e.Detail == "" {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
}

func (e *Error) Unwrap() error { return e.cause }

// Wire renders the kind in the exact form the spec puts on the wire,
// including the embedded component id for rehydration-required errors.
func (e *Error) Wire() string {
	if e.Kind == KindRehydrationRequired && e.ComponentID != "" {
		return fmt.Sprintf("%s:%s", KindRehydrationRequired, e.ComponentID)
	}
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
	}
	return string(e.Kind)
}

// New builds a tagged error with an optional detail message.
func New(kind Kind, detail string) *Error {
	return &Error{Kind: kind, Detail: detail}
}

// Wrap builds a tagged error that remembers an underlying cause for
// logging, without ever exposing that cause to the wire.
func Wrap(kind Kind, detail string, cause error) *Error {
	return &Error{Kind: kind, Detail: detail, cause: cause}
}

// RehydrationRequired builds the sentinel the registry raises when an
// action targets an id with no live instance.
func RehydrationRequired(componentID string) *Error {
	return &Error{Kind: KindRehydrationRequired, ComponentID: componentID}
}

// AuthDenied builds the AUTH_DENIED kind with the given human reason.
func AuthDenied(reason string) *Error {
	return &Error{Kind: KindAuthDenied, Detail: reason}
}

// As reports whether err is a *Error of the given kind.
func As(err error, kind Kind) bool {
	le, ok := err.(*Error)
	return ok && le.Kind == kind
}
