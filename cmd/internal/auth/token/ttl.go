package token

import (
	"strconv"
	"strings"
	"time"
)

// DefaultTTL is applied when a TTL string cannot be parsed. 900 seconds
// matches the default access-token lifetime.
const DefaultTTL = 900 * time.Second

// ParseTTL parses compact TTL strings of the form "Ns", "Nm", "Nh", or "Nd".
//
// Unlike time.ParseDuration it supports a day unit, and it never fails:
// any unrecognized unit or non-positive value falls back to DefaultTTL.
func ParseTTL(s string) time.Duration {
	s = strings.TrimSpace(s)
	if len(s) < 2 {
		return DefaultTTL
	}

	n, err := strconv.Atoi(s[:len(s)-1])
	if err != nil || n <= 0 {
		return DefaultTTL
	}

	switch s[len(s)-1] {
	case 's':
		return time.Duration(n) * time.Second
	case 'm':
		return time.Duration(n) * time.Minute
	case 'h':
		return time.Duration(n) * time.Hour
	case 'd':
		return time.Duration(n) * 24 * time.Hour
	default:
		return DefaultTTL
	}
}

// TTLSeconds returns a TTL as whole seconds for "expiresIn" style responses.
func TTLSeconds(d time.Duration) int {
	return int(d / time.Second)
}
