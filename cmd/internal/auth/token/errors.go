package token

import "errors"

var (
	// ErrExpired is returned when a token's signature is valid but its expiry has passed.
	ErrExpired = errors.New("token expired")

	// ErrMalformed is returned when a token fails structural or signature verification.
	ErrMalformed = errors.New("token malformed")

	// ErrWrongPurpose is returned when a structurally valid token carries the wrong
	// purpose marker (e.g. a refresh token presented where an access token is required).
	ErrWrongPurpose = errors.New("wrong token purpose")

	// ErrConfig is returned for invalid signing configuration.
	ErrConfig = errors.New("invalid token config")
)
