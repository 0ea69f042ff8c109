package server

import (
	"crypto/subtle"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/yhlin/etfwatch/internal/common"
)

// sessionSubject is the subject claim carried by dashboard session tokens.
const sessionSubject = "dashboard"

// checkPassword verifies a login attempt against the configured
// credentials. A bcrypt hash takes precedence over the plain password.
func checkPassword(cfg *common.AuthConfig, password string) bool {
	if cfg.PasswordHash != "" {
		return bcrypt.CompareHashAndPassword([]byte(cfg.PasswordHash), []byte(password)) == nil
	}
	if cfg.Password == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(cfg.Password), []byte(password)) == 1
}

// checkSchedulerToken compares a presented scheduler token against the
// configured one. An unconfigured token never matches.
func checkSchedulerToken(cfg *common.AuthConfig, token string) bool {
	if cfg.SchedulerToken == "" || token == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(cfg.SchedulerToken), []byte(token)) == 1
}

// signSessionToken issues a dashboard session JWT.
func signSessionToken(cfg *common.AuthConfig) (string, time.Time, error) {
	now := time.Now()
	expiresAt := now.Add(cfg.GetTokenExpiry())
	claims := jwt.MapClaims{
		"sub": sessionSubject,
		"iat": now.Unix(),
		"exp": expiresAt.Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(cfg.JWTSecret))
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// validateSessionToken parses and verifies a session JWT and returns its
// claims. Expired or malformed tokens fail.
func validateSessionToken(tokenString string, secret []byte) (jwt.MapClaims, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return secret, nil
	})
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}
	return claims, nil
}
