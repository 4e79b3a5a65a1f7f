package session

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// revokedWarnThreshold is the revoked-set size past which the sweeper starts
// warning. The set only grows, so a long-lived process should notice.
const revokedWarnThreshold = 10000

// Store is an in-memory session store safe for concurrent use.
//
// All reads and writes happen under a single mutex so check-then-act
// sequences (validate, evict, revoke) are atomic.
type Store struct {
	cfg Config
	log *slog.Logger

	mu      sync.Mutex
	byUser  map[string][]Session // oldest-first by CreatedAt
	byToken map[string]Session
	revoked map[string]struct{}
}

// NewStore constructs a Store. A nil logger falls back to slog.Default.
func NewStore(cfg Config, log *slog.Logger) *Store {
	if log == nil {
		log = slog.Default()
	}
	if cfg.MaxPerUser <= 0 {
		cfg.MaxPerUser = DefaultConfig().MaxPerUser
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultConfig().TTL
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = DefaultConfig().SweepInterval
	}
	return &Store{
		cfg:     cfg,
		log:     log,
		byUser:  make(map[string][]Session),
		byToken: make(map[string]Session),
		revoked: make(map[string]struct{}),
	}
}

// Create records a new session for the user. If the user is at capacity, the
// oldest-created session is evicted and its token revoked before the new one
// is added.
func (s *Store) Create(token, userID, email, role string, client Meta, now time.Time) Session {
	sess := Session{
		Token:     token,
		UserID:    userID,
		Email:     email,
		Role:      role,
		Client:    client,
		CreatedAt: now,
		ExpiresAt: now.Add(s.cfg.TTL),
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.pruneUserLocked(userID, now)

	list := s.byUser[userID]
	for len(list) >= s.cfg.MaxPerUser {
		oldest := list[0]
		list = list[1:]
		delete(s.byToken, oldest.Token)
		s.revoked[oldest.Token] = struct{}{}
		s.log.Info("session.evict",
			slog.String("user_id", userID),
			slog.Time("created_at", oldest.CreatedAt),
		)
	}

	// Timestamps come from the caller and can arrive out of lock order, so
	// insertion keeps the list sorted; list[0] above is always oldest-created.
	list = append(list, sess)
	for i := len(list) - 1; i > 0 && list[i].CreatedAt.Before(list[i-1].CreatedAt); i-- {
		list[i], list[i-1] = list[i-1], list[i]
	}
	s.byUser[userID] = list
	s.byToken[token] = sess
	return sess
}

// Validate reports whether the token belongs to a live session. Revoked,
// unknown, and expired tokens all fail; expired sessions are removed as a
// side effect.
func (s *Store) Validate(token string, now time.Time) (Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.revoked[token]; ok {
		return Session{}, false
	}
	sess, ok := s.byToken[token]
	if !ok {
		return Session{}, false
	}
	if !now.Before(sess.ExpiresAt) {
		s.removeLocked(sess)
		return Session{}, false
	}
	return sess, true
}

// IsRevoked reports whether the token has been explicitly revoked or evicted.
func (s *Store) IsRevoked(token string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.revoked[token]
	return ok
}

// RevokeToken permanently revokes a token and removes its session if one
// exists. It returns the removed session and whether a live one was found;
// revoking an unknown or already-revoked token is a no-op that still marks
// the token revoked.
func (s *Store) RevokeToken(token string) (Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.revoked[token] = struct{}{}
	sess, ok := s.byToken[token]
	if !ok {
		return Session{}, false
	}
	s.removeLocked(sess)
	return sess, true
}

// RevokeAllForUser revokes every session the user holds and returns the count.
func (s *Store) RevokeAllForUser(userID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	list := s.byUser[userID]
	for _, sess := range list {
		delete(s.byToken, sess.Token)
		s.revoked[sess.Token] = struct{}{}
	}
	delete(s.byUser, userID)
	return len(list)
}

// ListActiveForUser returns redacted views of the user's unexpired sessions,
// oldest first.
func (s *Store) ListActiveForUser(userID string, now time.Time) []Info {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pruneUserLocked(userID, now)

	list := s.byUser[userID]
	out := make([]Info, 0, len(list))
	for _, sess := range list {
		out = append(out, redact(sess))
	}
	return out
}

// Count returns the number of live sessions across all users.
func (s *Store) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byToken)
}

// Sweep removes expired sessions and returns how many were dropped.
func (s *Store) Sweep(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for userID := range s.byUser {
		removed += s.pruneUserLocked(userID, now)
	}
	return removed
}

// Run sweeps expired sessions on the configured interval until ctx is done.
func (s *Store) Run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if removed := s.Sweep(now); removed > 0 {
				s.log.Info("session.sweep", slog.Int("removed", removed))
			}
			s.mu.Lock()
			revoked := len(s.revoked)
			s.mu.Unlock()
			if revoked > revokedWarnThreshold {
				s.log.Warn("session.revoked_set.large", slog.Int("size", revoked))
			}
		}
	}
}

// pruneUserLocked drops the user's expired sessions. Caller holds s.mu.
func (s *Store) pruneUserLocked(userID string, now time.Time) int {
	list := s.byUser[userID]
	if len(list) == 0 {
		return 0
	}

	kept := list[:0]
	removed := 0
	for _, sess := range list {
		if now.Before(sess.ExpiresAt) {
			kept = append(kept, sess)
			continue
		}
		delete(s.byToken, sess.Token)
		removed++
	}
	if len(kept) == 0 {
		delete(s.byUser, userID)
	} else {
		s.byUser[userID] = kept
	}
	return removed
}

// removeLocked drops a single session from both indexes. Caller holds s.mu.
func (s *Store) removeLocked(target Session) {
	delete(s.byToken, target.Token)

	list := s.byUser[target.UserID]
	for i, sess := range list {
		if sess.Token == target.Token {
			list = append(list[:i], list[i+1:]...)
			break
		}
	}
	if len(list) == 0 {
		delete(s.byUser, target.UserID)
	} else {
		s.byUser[target.UserID] = list
	}
}

func redact(sess Session) Info {
	return Info{
		UserID:    sess.UserID,
		Email:     sess.Email,
		Role:      sess.Role,
		Client:    sess.Client,
		CreatedAt: sess.CreatedAt,
		ExpiresAt: sess.ExpiresAt,
	}
}
