// Package session tracks refresh-token sessions in memory.
//
// Each user holds a bounded set of concurrent sessions; creating one past the
// cap evicts the oldest session and permanently revokes its token. Revocation
// is a one-way door: a revoked token never validates again, even if an
// otherwise identical session is recreated.
package session
