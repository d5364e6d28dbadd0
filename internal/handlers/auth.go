package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/abrezinsky/voterewards/internal/auth"
)

// handleLogin checks the admin password and starts a session
func (h *Handlers) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		h.respondError(w, err)
		return
	}

	token, ok := h.Auth.Login(req.Password)
	if !ok {
		h.respondError(w, Unauthorized("Invalid password"))
		return
	}

	auth.SetSessionCookie(w, token)
	respondOK(w, TokenResponse{
		Token:     token,
		ExpiresAt: time.Now().Add(auth.SessionExpiry).UTC().Format(time.RFC3339),
	})
}

// handleLogout clears the session
func (h *Handlers) handleLogout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(auth.CookieName); err == nil {
		h.Auth.Logout(cookie.Value)
	}

	auth.ClearSessionCookie(w)
	respondSuccess(w, "Logged out")
}

// handleIssueToken signs a voter token for an existing user
func (h *Handlers) handleIssueToken(w http.ResponseWriter, r *http.Request) {
	if h.Tokens == nil {
		h.respondError(w, NotFound("Voter tokens are disabled"))
		return
	}

	var req TokenRequest
	if err := decodeJSON(r, &req); err != nil {
		h.respondError(w, err)
		return
	}
	if strings.TrimSpace(req.User) == "" {
		h.respondError(w, BadRequest("User is required"))
		return
	}

	user, err := h.Admin.GetUser(r.Context(), req.User)
	if err != nil {
		h.respondError(w, err)
		return
	}

	token, expires, err := h.Tokens.Issue(*user)
	if err != nil {
		h.respondError(w, err)
		return
	}
	respondOK(w, TokenResponse{Token: token, ExpiresAt: expires.UTC().Format(time.RFC3339)})
}
