package token

import (
	"errors"
	"strings"
	"testing"
	"time"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func testCodec(t *testing.T) *Codec {
	t.Helper()

	cfg := DefaultConfig()
	cfg.Secret = testSecret

	c, err := NewCodec(cfg)
	if err != nil {
		t.Fatalf("NewCodec: %v", err)
	}
	return c
}

func TestAccessRoundTrip(t *testing.T) {
	t.Parallel()

	c := testCodec(t)
	now := time.Now().UTC()

	id := Identity{UserID: "u1", Email: "demo@example.com", Role: "admin"}
	signed, exp, err := c.IssueAccess(id, now)
	if err != nil {
		t.Fatalf("IssueAccess: %v", err)
	}
	if signed == "" {
		t.Fatal("empty token")
	}
	if want := now.Add(15 * time.Minute); !exp.Equal(want) {
		t.Fatalf("exp=%v want=%v", exp, want)
	}

	got, err := c.VerifyAccess(signed, now.Add(time.Minute))
	if err != nil {
		t.Fatalf("VerifyAccess: %v", err)
	}
	if got != id {
		t.Fatalf("claim mismatch: got=%+v want=%+v", got, id)
	}
}

func TestAccessExpired(t *testing.T) {
	t.Parallel()

	c := testCodec(t)
	now := time.Now().UTC()

	signed, _, err := c.IssueAccess(Identity{UserID: "u1", Role: "viewer"}, now)
	if err != nil {
		t.Fatalf("IssueAccess: %v", err)
	}

	if _, err := c.VerifyAccess(signed, now.Add(16*time.Minute)); !errors.Is(err, ErrExpired) {
		t.Fatalf("want ErrExpired, got %v", err)
	}
}

func TestVerifyMalformed(t *testing.T) {
	t.Parallel()

	c := testCodec(t)
	now := time.Now().UTC()

	for _, tok := range []string{"", "garbage", "a.b.c", strings.Repeat("x", 5000)} {
		if _, err := c.VerifyAccess(tok, now); !errors.Is(err, ErrMalformed) {
			t.Fatalf("token=%q want ErrMalformed, got %v", tok[:min(len(tok), 16)], err)
		}
	}
}

func TestVerifyWrongSecret(t *testing.T) {
	t.Parallel()

	c := testCodec(t)
	now := time.Now().UTC()

	other, err := NewCodec(Config{Secret: strings.Repeat("z", 32), Issuer: "fleetdeck", AccessTTL: time.Minute, RefreshTTL: time.Hour})
	if err != nil {
		t.Fatalf("NewCodec: %v", err)
	}

	signed, _, err := other.IssueAccess(Identity{UserID: "u1"}, now)
	if err != nil {
		t.Fatalf("IssueAccess: %v", err)
	}
	if _, err := c.VerifyAccess(signed, now); !errors.Is(err, ErrMalformed) {
		t.Fatalf("want ErrMalformed, got %v", err)
	}
}

func TestPurposeSeparation(t *testing.T) {
	t.Parallel()

	c := testCodec(t)
	now := time.Now().UTC()

	refresh, _, err := c.IssueRefresh("u1", now)
	if err != nil {
		t.Fatalf("IssueRefresh: %v", err)
	}
	if _, err := c.VerifyAccess(refresh, now); !errors.Is(err, ErrWrongPurpose) {
		t.Fatalf("refresh as access: want ErrWrongPurpose, got %v", err)
	}

	access, _, err := c.IssueAccess(Identity{UserID: "u1"}, now)
	if err != nil {
		t.Fatalf("IssueAccess: %v", err)
	}
	if _, err := c.VerifyRefresh(access, now); !errors.Is(err, ErrWrongPurpose) {
		t.Fatalf("access as refresh: want ErrWrongPurpose, got %v", err)
	}
}

func TestRefreshTokensUnique(t *testing.T) {
	t.Parallel()

	c := testCodec(t)
	now := time.Now().UTC()

	a, _, err := c.IssueRefresh("u1", now)
	if err != nil {
		t.Fatalf("IssueRefresh: %v", err)
	}
	b, _, err := c.IssueRefresh("u1", now)
	if err != nil {
		t.Fatalf("IssueRefresh: %v", err)
	}
	if a == b {
		t.Fatal("two refresh tokens issued at the same instant must differ")
	}
}

func TestNewCodecShortSecret(t *testing.T) {
	t.Parallel()

	if _, err := NewCodec(Config{Secret: "short"}); !errors.Is(err, ErrConfig) {
		t.Fatalf("want ErrConfig, got %v", err)
	}
}

func TestParseTTL(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want time.Duration
	}{
		{"30s", 30 * time.Second},
		{"15m", 15 * time.Minute},
		{"2h", 2 * time.Hour},
		{"7d", 7 * 24 * time.Hour},
		{"15x", DefaultTTL},
		{"", DefaultTTL},
		{"m", DefaultTTL},
		{"-5m", DefaultTTL},
		{"abc", DefaultTTL},
	}

	for _, tc := range cases {
		if got := ParseTTL(tc.in); got != tc.want {
			t.Fatalf("ParseTTL(%q)=%v want=%v", tc.in, got, tc.want)
		}
	}
}

func TestTTLSeconds(t *testing.T) {
	t.Parallel()

	if got := TTLSeconds(15 * time.Minute); got != 900 {
		t.Fatalf("TTLSeconds(15m)=%d want=900", got)
	}
}
