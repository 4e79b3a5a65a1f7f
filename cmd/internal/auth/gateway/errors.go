package gateway

import "errors"

var (
	// ErrInvalidCredentials is returned for unknown accounts and wrong
	// passwords alike; callers must not be able to tell the two apart.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrSessionInvalidOrExpired is returned when a refresh token verifies
	// but no live session backs it.
	ErrSessionInvalidOrExpired = errors.New("session invalid or expired")

	// ErrTokenRevoked is returned when a presented token has been revoked.
	ErrTokenRevoked = errors.New("token revoked")

	// ErrNotAuthenticated is returned when a request carries no usable
	// identity.
	ErrNotAuthenticated = errors.New("not authenticated")

	// ErrForbidden is returned when an authenticated identity lacks the
	// required permission.
	ErrForbidden = errors.New("forbidden")
)
