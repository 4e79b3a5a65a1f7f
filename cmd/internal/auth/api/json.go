package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"fleetdeck/cmd/internal/auth/gateway"
	"fleetdeck/cmd/internal/auth/token"
)

const maxBodyBytes = 1 << 20

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, errorResponse{Error: msg, Code: code})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "BadRequest", "invalid request body")
		return false
	}
	return true
}

// writeAuthError maps gateway and token sentinels to status codes and stable
// error codes. Unrecognized errors become an opaque 500.
func writeAuthError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, gateway.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, "InvalidCredentials", err.Error())
	case errors.Is(err, gateway.ErrTokenRevoked):
		writeError(w, http.StatusUnauthorized, "TokenRevoked", err.Error())
	case errors.Is(err, gateway.ErrSessionInvalidOrExpired):
		writeError(w, http.StatusUnauthorized, "SessionInvalidOrExpired", err.Error())
	case errors.Is(err, gateway.ErrNotAuthenticated):
		writeError(w, http.StatusUnauthorized, "NotAuthenticated", err.Error())
	case errors.Is(err, gateway.ErrForbidden):
		writeError(w, http.StatusForbidden, "Forbidden", err.Error())
	case errors.Is(err, token.ErrExpired):
		writeError(w, http.StatusUnauthorized, "TokenExpired", err.Error())
	case errors.Is(err, token.ErrWrongPurpose):
		writeError(w, http.StatusUnauthorized, "WrongTokenPurpose", err.Error())
	case errors.Is(err, token.ErrMalformed):
		writeError(w, http.StatusUnauthorized, "TokenMalformed", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "Internal", "internal error")
	}
}
