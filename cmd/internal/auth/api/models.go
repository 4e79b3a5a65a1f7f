package api

import (
	"fleetdeck/cmd/internal/auth/gateway"
	"fleetdeck/cmd/internal/auth/session"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type logoutRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type revokeRequest struct {
	// Exactly one of the two must be set.
	RefreshToken string `json:"refreshToken,omitempty"`
	UserID       string `json:"userId,omitempty"`
}

type loginResponse struct {
	AccessToken  string           `json:"accessToken"`
	RefreshToken string           `json:"refreshToken"`
	ExpiresIn    int              `json:"expiresIn"`
	User         gateway.UserView `json:"user"`
}

type refreshResponse struct {
	AccessToken string           `json:"accessToken"`
	ExpiresIn   int              `json:"expiresIn"`
	User        gateway.UserView `json:"user"`
}

type revokeResponse struct {
	Revoked int `json:"revoked"`
}

type messageResponse struct {
	Message string `json:"message"`
}

type sessionsResponse struct {
	Sessions []session.Info `json:"sessions"`
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}
