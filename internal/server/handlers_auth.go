package server

import (
	"net/http"
	"strings"
	"time"
)

// handleAuthLogin handles POST /api/auth/login.
func (s *Server) handleAuthLogin(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	var req struct {
		Password string `json:"password"`
	}
	if !DecodeJSON(w, r, &req) {
		return
	}

	if !checkPassword(&s.app.Config.Auth, req.Password) {
		s.logger.Warn().
			Str("ip", clientIP(r)).
			Msg("Failed login attempt")
		WriteError(w, http.StatusUnauthorized, "Invalid password")
		return
	}

	token, expiresAt, err := signSessionToken(&s.app.Config.Auth)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to sign session token")
		WriteError(w, http.StatusInternalServerError, "Failed to issue token")
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"token":      token,
		"expires_at": expiresAt.UTC().Format(time.RFC3339),
	})
}

// handleAuthSession reports validity and expiry of the presented token.
// The auth middleware has already rejected invalid tokens; the explicit
// check here covers direct calls to the handler.
func (s *Server) handleAuthSession(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	tokenString := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	claims, err := validateSessionToken(tokenString, []byte(s.app.Config.Auth.JWTSecret))
	if err != nil {
		WriteError(w, http.StatusUnauthorized, "Invalid or expired token")
		return
	}

	var expiresAt string
	if exp, ok := claims["exp"].(float64); ok {
		expiresAt = time.Unix(int64(exp), 0).UTC().Format(time.RFC3339)
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"valid":      true,
		"expires_at": expiresAt,
	})
}
