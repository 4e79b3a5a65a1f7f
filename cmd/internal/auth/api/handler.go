package api

import (
	"log/slog"
	"net"
	"net/http"
	"strings"

	"fleetdeck/cmd/internal/auth/gateway"
	"fleetdeck/cmd/internal/auth/session"
	"fleetdeck/cmd/internal/auth/token"
)

// Handler serves the /auth endpoints.
type Handler struct {
	svc *gateway.Service
	log *slog.Logger
}

// NewHandler constructs the auth handler. A nil logger falls back to
// slog.Default.
func NewHandler(svc *gateway.Service, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{svc: svc, log: log}
}

// Register mounts the auth routes on the mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /auth/login", h.login)
	mux.HandleFunc("POST /auth/refresh", h.refresh)
	mux.HandleFunc("POST /auth/logout", h.logout)
	mux.HandleFunc("POST /auth/revoke", h.revoke)
	mux.HandleFunc("GET /auth/me", h.me)
	mux.HandleFunc("GET /auth/sessions", h.sessions)
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "BadRequest", "email and password are required")
		return
	}

	res, err := h.svc.Login(r.Context(), req.Email, req.Password, session.Meta{
		IP:        remoteIP(r),
		UserAgent: r.UserAgent(),
	})
	if err != nil {
		writeAuthError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, loginResponse{
		AccessToken:  res.AccessToken,
		RefreshToken: res.RefreshToken,
		ExpiresIn:    res.ExpiresIn,
		User:         res.User,
	})
}

func (h *Handler) refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.RefreshToken == "" {
		writeError(w, http.StatusBadRequest, "BadRequest", "refreshToken is required")
		return
	}

	res, err := h.svc.Refresh(r.Context(), req.RefreshToken, remoteIP(r))
	if err != nil {
		writeAuthError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, refreshResponse{
		AccessToken: res.AccessToken,
		ExpiresIn:   res.ExpiresIn,
		User:        res.User,
	})
}

func (h *Handler) logout(w http.ResponseWriter, r *http.Request) {
	var req logoutRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	// Logout works without a bearer token; when one is present the audit
	// entry is attributed to it.
	actor, _ := h.svc.Authenticate(bearerToken(r))

	h.svc.Logout(r.Context(), req.RefreshToken, remoteIP(r), actor)
	writeJSON(w, http.StatusOK, messageResponse{Message: "logged out"})
}

func (h *Handler) revoke(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.authenticate(w, r)
	if !ok {
		return
	}

	var req revokeRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	switch {
	case req.UserID != "":
		count, err := h.svc.RevokeAllForUser(r.Context(), actor, req.UserID)
		if err != nil {
			writeAuthError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, revokeResponse{Revoked: count})
	case req.RefreshToken != "":
		found, err := h.svc.RevokeToken(r.Context(), actor, req.RefreshToken)
		if err != nil {
			writeAuthError(w, err)
			return
		}
		count := 0
		if found {
			count = 1
		}
		writeJSON(w, http.StatusOK, revokeResponse{Revoked: count})
	default:
		writeError(w, http.StatusBadRequest, "BadRequest", "refreshToken or userId is required")
	}
}

func (h *Handler) me(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.authenticate(w, r)
	if !ok {
		return
	}

	user, err := h.svc.Me(actor)
	if err != nil {
		writeAuthError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (h *Handler) sessions(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.authenticate(w, r)
	if !ok {
		return
	}

	infos, err := h.svc.ActiveSessions(actor, r.URL.Query().Get("userId"))
	if err != nil {
		writeAuthError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionsResponse{Sessions: infos})
}

// authenticate extracts and verifies the bearer token, writing the error
// response itself on failure.
func (h *Handler) authenticate(w http.ResponseWriter, r *http.Request) (token.Identity, bool) {
	actor, err := h.svc.Authenticate(bearerToken(r))
	if err != nil {
		writeAuthError(w, err)
		return token.Identity{}, false
	}
	return actor, true
}

func bearerToken(r *http.Request) string {
	const prefix = "Bearer "
	auth := r.Header.Get("Authorization")
	if len(auth) > len(prefix) && strings.EqualFold(auth[:len(prefix)], prefix) {
		return strings.TrimSpace(auth[len(prefix):])
	}
	return ""
}

func remoteIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if i := strings.IndexByte(fwd, ','); i >= 0 {
			return strings.TrimSpace(fwd[:i])
		}
		return strings.TrimSpace(fwd)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
