package token

import (
	"errors"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	purposeAccess  = "access"
	purposeRefresh = "refresh"

	minSecretBytes = 32
)

// Identity is the claim embedded in every access token. It is immutable for
// the token's lifetime.
type Identity struct {
	UserID string
	Email  string
	Role   string
}

// Config defines signing configuration for the codec.
//
// Secret is the HS256 signing key and is the only required field; a missing or
// short secret is a startup failure, never a user-facing error.
type Config struct {
	Secret     string
	Issuer     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

// DefaultConfig returns default lifetimes: 15 minutes for access tokens and
// 7 days for refresh tokens.
func DefaultConfig() Config {
	return Config{
		Issuer:     "fleetdeck",
		AccessTTL:  15 * time.Minute,
		RefreshTTL: 7 * 24 * time.Hour,
	}
}

// LoadConfigFromEnv loads codec configuration from environment variables.
//
// Required:
//   - FLEETDECK_JWT_SECRET (>= 32 bytes)
//
// Optional (compact TTL strings, e.g. "15m", "7d"):
//   - FLEETDECK_JWT_ISSUER
//   - FLEETDECK_JWT_ACCESS_TTL
//   - FLEETDECK_JWT_REFRESH_TTL
func LoadConfigFromEnv() (Config, error) {
	cfg := DefaultConfig()

	if v := strings.TrimSpace(os.Getenv("FLEETDECK_JWT_ISSUER")); v != "" {
		cfg.Issuer = v
	}
	if v := strings.TrimSpace(os.Getenv("FLEETDECK_JWT_ACCESS_TTL")); v != "" {
		cfg.AccessTTL = ParseTTL(v)
	}
	if v := strings.TrimSpace(os.Getenv("FLEETDECK_JWT_REFRESH_TTL")); v != "" {
		cfg.RefreshTTL = ParseTTL(v)
	}

	cfg.Secret = strings.TrimSpace(os.Getenv("FLEETDECK_JWT_SECRET"))
	if len(cfg.Secret) < minSecretBytes {
		return Config{}, ErrConfig
	}

	return cfg, nil
}

// Codec issues and verifies signed access and refresh tokens.
type Codec struct {
	secret     []byte
	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration
}

// NewCodec constructs a Codec. It fails only on signing-key misconfiguration.
func NewCodec(cfg Config) (*Codec, error) {
	if len(cfg.Secret) < minSecretBytes {
		return nil, ErrConfig
	}
	if cfg.AccessTTL <= 0 {
		cfg.AccessTTL = DefaultTTL
	}
	if cfg.RefreshTTL <= 0 {
		cfg.RefreshTTL = 7 * 24 * time.Hour
	}
	return &Codec{
		secret:     []byte(cfg.Secret),
		issuer:     cfg.Issuer,
		accessTTL:  cfg.AccessTTL,
		refreshTTL: cfg.RefreshTTL,
	}, nil
}

// AccessTTL returns the configured access-token lifetime.
func (c *Codec) AccessTTL() time.Duration { return c.accessTTL }

// RefreshTTL returns the configured refresh-token lifetime.
func (c *Codec) RefreshTTL() time.Duration { return c.refreshTTL }

type accessClaims struct {
	jwt.RegisteredClaims
	UserID  string `json:"userId"`
	Email   string `json:"email"`
	Role    string `json:"role"`
	Purpose string `json:"purpose"`
}

type refreshClaims struct {
	jwt.RegisteredClaims
	UserID  string `json:"userId"`
	Purpose string `json:"purpose"`
}

// IssueAccess signs a short-lived access token carrying the identity claim.
func (c *Codec) IssueAccess(id Identity, now time.Time) (string, time.Time, error) {
	exp := now.Add(c.accessTTL)

	claims := accessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    c.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
		UserID:  id.UserID,
		Email:   id.Email,
		Role:    id.Role,
		Purpose: purposeAccess,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, exp, nil
}

// IssueRefresh signs a refresh token bound to a user id. The jti claim keeps
// every issued token unique, which the session store relies on.
func (c *Codec) IssueRefresh(userID string, now time.Time) (string, time.Time, error) {
	exp := now.Add(c.refreshTTL)

	claims := refreshClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    c.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
		UserID:  userID,
		Purpose: purposeRefresh,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, exp, nil
}

// VerifyAccess verifies an access token and returns its identity claim.
//
// Errors distinguish the caller's reaction: ErrExpired (silently refresh),
// ErrWrongPurpose (refresh token presented as access), ErrMalformed (hard failure).
func (c *Codec) VerifyAccess(tokenStr string, now time.Time) (Identity, error) {
	var claims accessClaims
	if err := c.parse(tokenStr, &claims, now); err != nil {
		return Identity{}, err
	}
	if claims.Purpose != purposeAccess {
		return Identity{}, ErrWrongPurpose
	}
	if claims.UserID == "" {
		return Identity{}, ErrMalformed
	}
	return Identity{UserID: claims.UserID, Email: claims.Email, Role: claims.Role}, nil
}

// VerifyRefresh verifies a refresh token and returns the user id it is bound to.
func (c *Codec) VerifyRefresh(tokenStr string, now time.Time) (string, error) {
	var claims refreshClaims
	if err := c.parse(tokenStr, &claims, now); err != nil {
		return "", err
	}
	if claims.Purpose != purposeRefresh {
		return "", ErrWrongPurpose
	}
	if claims.UserID == "" {
		return "", ErrMalformed
	}
	return claims.UserID, nil
}

func (c *Codec) parse(tokenStr string, claims jwt.Claims, now time.Time) error {
	tokenStr = strings.TrimSpace(tokenStr)
	if tokenStr == "" || len(tokenStr) > 4096 {
		return ErrMalformed
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(func() time.Time { return now }),
	}
	if c.issuer != "" {
		opts = append(opts, jwt.WithIssuer(c.issuer))
	}

	parsed, err := jwt.ParseWithClaims(tokenStr, claims, func(*jwt.Token) (any, error) {
		return c.secret, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return ErrExpired
		}
		return ErrMalformed
	}
	if !parsed.Valid {
		return ErrMalformed
	}
	return nil
}
