package gateway

import (
	"context"
	"log/slog"
	"time"

	"fleetdeck/cmd/internal/audit"
	"fleetdeck/cmd/internal/auth/session"
	"fleetdeck/cmd/internal/auth/token"
	"fleetdeck/cmd/internal/directory"
)

// UserView is the client-facing account shape returned by login and refresh.
type UserView struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
	Role  string `json:"role"`
}

// LoginResult is the outcome of a successful login.
type LoginResult struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    int
	User         UserView
}

// RefreshResult is the outcome of a successful refresh. Only the access
// token is reissued; the refresh token stays as presented.
type RefreshResult struct {
	AccessToken string
	ExpiresIn   int
	User        UserView
}

// Service implements the authentication flows.
type Service struct {
	users    directory.Store
	codec    *token.Codec
	sessions *session.Store
	auditor  *audit.Recorder
	log      *slog.Logger
	now      func() time.Time
}

// NewService wires the gateway. A nil logger falls back to slog.Default.
func NewService(users directory.Store, codec *token.Codec, sessions *session.Store, auditor *audit.Recorder, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		users:    users,
		codec:    codec,
		sessions: sessions,
		auditor:  auditor,
		log:      log,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Login checks the credentials and, on success, issues an access/refresh
// token pair and records a session.
//
// Unknown account and wrong password both return ErrInvalidCredentials so
// responses cannot be used to probe which emails exist.
func (s *Service) Login(ctx context.Context, email, password string, client session.Meta) (LoginResult, error) {
	now := s.now()

	u, err := s.users.FindByEmail(email)
	if err != nil {
		s.auditor.Record(ctx, audit.Entry{
			Action:   audit.ActionLoginFailure,
			Email:    email,
			RemoteIP: client.IP,
			Detail:   "unknown account",
		})
		return LoginResult{}, ErrInvalidCredentials
	}
	if !s.users.CheckPassword(u, password) {
		s.auditor.Record(ctx, audit.Entry{
			Action:   audit.ActionLoginFailure,
			UserID:   u.ID,
			Email:    u.Email,
			RemoteIP: client.IP,
			Detail:   "bad password",
		})
		return LoginResult{}, ErrInvalidCredentials
	}

	id := token.Identity{UserID: u.ID, Email: u.Email, Role: string(u.Role)}
	access, _, err := s.codec.IssueAccess(id, now)
	if err != nil {
		return LoginResult{}, err
	}
	refresh, _, err := s.codec.IssueRefresh(u.ID, now)
	if err != nil {
		return LoginResult{}, err
	}

	s.sessions.Create(refresh, u.ID, u.Email, string(u.Role), client, now)

	s.auditor.Record(ctx, audit.Entry{
		Action:   audit.ActionLoginSuccess,
		UserID:   u.ID,
		Email:    u.Email,
		RemoteIP: client.IP,
	})
	s.log.Info("auth.login", slog.String("user_id", u.ID))

	return LoginResult{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresIn:    token.TTLSeconds(s.codec.AccessTTL()),
		User:         userView(u),
	}, nil
}

// Refresh exchanges a live refresh token for a new access token. The refresh
// token itself is not rotated.
func (s *Service) Refresh(ctx context.Context, refreshToken, remoteIP string) (RefreshResult, error) {
	now := s.now()

	// Revocation wins over every other verdict, including expiry.
	if s.sessions.IsRevoked(refreshToken) {
		s.auditor.Record(ctx, audit.Entry{
			Action:   audit.ActionRefreshFailure,
			RemoteIP: remoteIP,
			Detail:   "revoked token",
		})
		return RefreshResult{}, ErrTokenRevoked
	}

	userID, err := s.codec.VerifyRefresh(refreshToken, now)
	if err != nil {
		s.auditor.Record(ctx, audit.Entry{
			Action:   audit.ActionRefreshFailure,
			RemoteIP: remoteIP,
			Detail:   err.Error(),
		})
		return RefreshResult{}, err
	}

	sess, ok := s.sessions.Validate(refreshToken, now)
	if !ok || sess.UserID != userID {
		s.auditor.Record(ctx, audit.Entry{
			Action:   audit.ActionRefreshFailure,
			UserID:   userID,
			RemoteIP: remoteIP,
			Detail:   "no live session",
		})
		return RefreshResult{}, ErrSessionInvalidOrExpired
	}

	u, err := s.users.FindByID(userID)
	if err != nil {
		// The account vanished out from under a live session. Treat it the
		// same as an expired session rather than leaking directory state.
		return RefreshResult{}, ErrSessionInvalidOrExpired
	}

	id := token.Identity{UserID: u.ID, Email: u.Email, Role: string(u.Role)}
	access, _, err := s.codec.IssueAccess(id, now)
	if err != nil {
		return RefreshResult{}, err
	}

	s.auditor.Record(ctx, audit.Entry{
		Action:   audit.ActionRefreshSuccess,
		UserID:   u.ID,
		Email:    u.Email,
		RemoteIP: remoteIP,
	})

	return RefreshResult{
		AccessToken: access,
		ExpiresIn:   token.TTLSeconds(s.codec.AccessTTL()),
		User:        userView(u),
	}, nil
}

// Logout revokes the presented refresh token. Logging out an unknown or
// already-revoked token succeeds; the token is dead either way. The audit
// entry names the authenticated actor when one is present, falling back to
// the owner of the revoked session.
func (s *Service) Logout(ctx context.Context, refreshToken, remoteIP string, actor token.Identity) {
	sess, found := s.sessions.RevokeToken(refreshToken)

	entry := audit.Entry{
		Action:   audit.ActionLogout,
		UserID:   actor.UserID,
		Email:    actor.Email,
		RemoteIP: remoteIP,
	}
	if entry.UserID == "" && found {
		entry.UserID = sess.UserID
		entry.Email = sess.Email
	}
	s.auditor.Record(ctx, entry)
	s.log.Info("auth.logout", slog.Bool("session_found", found), slog.String("user_id", entry.UserID))
}

// Authenticate verifies a bearer access token into an identity.
func (s *Service) Authenticate(accessToken string) (token.Identity, error) {
	if accessToken == "" {
		return token.Identity{}, ErrNotAuthenticated
	}
	return s.codec.VerifyAccess(accessToken, s.now())
}

// RevokeToken revokes a single refresh token on behalf of an administrator.
func (s *Service) RevokeToken(ctx context.Context, actor token.Identity, refreshToken string) (bool, error) {
	if !directory.Role(actor.Role).Can(directory.PermRevokeTokens) {
		return false, ErrForbidden
	}

	sess, found := s.sessions.RevokeToken(refreshToken)
	entry := audit.Entry{
		Action: audit.ActionTokenRevoked,
		UserID: actor.UserID,
		Email:  actor.Email,
	}
	if found {
		entry.Detail = "target_user=" + sess.UserID
	}
	s.auditor.Record(ctx, entry)
	return found, nil
}

// RevokeAllForUser revokes every session a user holds and returns the count.
func (s *Service) RevokeAllForUser(ctx context.Context, actor token.Identity, userID string) (int, error) {
	if !directory.Role(actor.Role).Can(directory.PermRevokeTokens) {
		return 0, ErrForbidden
	}

	count := s.sessions.RevokeAllForUser(userID)
	s.auditor.Record(ctx, audit.Entry{
		Action: audit.ActionUserRevoked,
		UserID: actor.UserID,
		Email:  actor.Email,
		Detail: "target_user=" + userID,
	})
	s.log.Info("auth.revoke_all", slog.String("user_id", userID), slog.Int("count", count))
	return count, nil
}

// ActiveSessions lists a user's live sessions with tokens redacted. Users may
// list their own; listing another user's requires session management rights.
func (s *Service) ActiveSessions(actor token.Identity, userID string) ([]session.Info, error) {
	if userID == "" {
		userID = actor.UserID
	}
	if userID != actor.UserID && !directory.Role(actor.Role).Can(directory.PermManageSessions) {
		return nil, ErrForbidden
	}
	return s.sessions.ListActiveForUser(userID, s.now()), nil
}

// Me resolves the authenticated identity to its directory account.
func (s *Service) Me(id token.Identity) (UserView, error) {
	u, err := s.users.FindByID(id.UserID)
	if err != nil {
		return UserView{}, ErrNotAuthenticated
	}
	return userView(u), nil
}

func userView(u directory.User) UserView {
	return UserView{
		ID:    u.ID,
		Email: u.Email,
		Name:  u.Name,
		Role:  string(u.Role),
	}
}
