package session

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Meta is the client metadata captured when a session is created. It exists
// for the session-visibility UI, never for authorization decisions.
type Meta struct {
	IP        string `json:"ip,omitempty"`
	UserAgent string `json:"userAgent,omitempty"`
}

// Session binds a refresh token to a user for a bounded lifetime.
type Session struct {
	Token     string    `json:"token,omitempty"`
	UserID    string    `json:"userId"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	Client    Meta      `json:"client,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Info is a redacted view of a session, safe to return to clients. The
// refresh token itself is never included.
type Info struct {
	UserID    string    `json:"userId"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	Client    Meta      `json:"client,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Config controls store capacity and lifetimes.
type Config struct {
	// MaxPerUser caps concurrent sessions per user. Creating a session past
	// the cap evicts and revokes the user's oldest session.
	MaxPerUser int

	// TTL is the session lifetime, normally matching the refresh-token TTL.
	TTL time.Duration

	// SweepInterval is how often Run prunes expired sessions.
	SweepInterval time.Duration
}

// DefaultConfig returns the default store configuration: 5 sessions per user,
// 7-day lifetime, hourly sweep.
func DefaultConfig() Config {
	return Config{
		MaxPerUser:    5,
		TTL:           7 * 24 * time.Hour,
		SweepInterval: time.Hour,
	}
}

// LoadConfigFromEnv loads store configuration from environment variables.
//
// Optional:
//   - FLEETDECK_SESSION_MAX_PER_USER
//   - FLEETDECK_SESSION_TTL (Go duration, e.g. "168h")
//   - FLEETDECK_SESSION_SWEEP_INTERVAL (Go duration)
func LoadConfigFromEnv() Config {
	cfg := DefaultConfig()

	if v := strings.TrimSpace(os.Getenv("FLEETDECK_SESSION_MAX_PER_USER")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.MaxPerUser = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("FLEETDECK_SESSION_TTL")); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.TTL = d
		}
	}
	if v := strings.TrimSpace(os.Getenv("FLEETDECK_SESSION_SWEEP_INTERVAL")); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.SweepInterval = d
		}
	}

	return cfg
}
