// Package token issues and verifies Fleetdeck's signed credentials.
//
// Access tokens are short-lived HS256 JWTs carrying the identity claim
// (user id, email, role). Refresh tokens use the same signing scheme with a
// distinct purpose marker so the two can never be substituted for each other.
// Verification distinguishes expired, malformed, and wrong-purpose tokens so
// callers can react differently to each.
package token
