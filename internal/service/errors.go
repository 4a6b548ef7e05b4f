package service

import "errors"

// ErrUnauthorized is the parent of every token rejection.  The specific
// reason errors below wrap it so callers can branch on either level.
var ErrUnauthorized = errors.New("unauthorized")

var (
	ErrTokenMissing   = wrap("missing token")
	ErrTokenRevoked   = wrap("token has been revoked")
	ErrTokenMalformed = wrap("invalid token")
	ErrTokenExpired   = wrap("token has expired")
	ErrMissingSubject = wrap("token has no subject")

	// ErrInvalidCredentials covers both unknown identifiers and wrong
	// passwords so the two cannot be told apart.
	ErrInvalidCredentials = wrap("incorrect credentials")

	// ErrUnknownPrincipal means a well-formed token names no usable account.
	ErrUnknownPrincipal = wrap("could not validate credentials")
)

// ErrStoreUnavailable wraps revocation store failures.  It is not an
// authorization failure: the request cannot be judged at all.
var ErrStoreUnavailable = errors.New("revocation store unavailable")

type reasonError struct{ msg string }

func (e *reasonError) Error() string { return e.msg }
func (e *reasonError) Unwrap() error { return ErrUnauthorized }

func wrap(msg string) error { return &reasonError{msg: msg} }
