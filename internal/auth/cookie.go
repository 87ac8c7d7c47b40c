package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// CookieName carries the operator session token.
const CookieName = "csms_session"

// SessionTTL bounds how long an operator login stays valid.
const SessionTTL = 24 * time.Hour

// ErrInvalidSession covers expired, tampered and malformed session tokens.
var ErrInvalidSession = errors.New("invalid session token")

// Sessions issues and verifies operator session tokens and checks login ids
// against the configured allow-list.
type Sessions struct {
	secret  []byte
	allowed map[string]bool
}

func NewSessions(secret string, allowedUsers []string) *Sessions {
	allowed := make(map[string]bool, len(allowedUsers))
	for _, u := range allowedUsers {
		allowed[u] = true
	}
	return &Sessions{secret: []byte(secret), allowed: allowed}
}

// Allowed reports whether the login id is on the allow-list.
func (s *Sessions) Allowed(loginID string) bool {
	return s.allowed[loginID]
}

// Issue signs a session token for an allowed login id.
func (s *Sessions) Issue(loginID string) (string, error) {
	if !s.Allowed(loginID) {
		return "", fmt.Errorf("login id %q is not on the allow-list", loginID)
	}
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   loginID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(SessionTTL)),
	})
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("signing session token: %w", err)
	}
	return signed, nil
}

// Verify checks a session token and returns the login id it was issued for.
// Logins removed from the allow-list are rejected even with a valid token.
func (s *Sessions) Verify(tokenString string) (string, error) {
	token, err := jwt.ParseWithClaims(tokenString, &jwt.RegisteredClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil || !token.Valid {
		return "", ErrInvalidSession
	}
	claims, ok := token.Claims.(*jwt.RegisteredClaims)
	if !ok || claims.Subject == "" {
		return "", ErrInvalidSession
	}
	if !s.Allowed(claims.Subject) {
		return "", ErrInvalidSession
	}
	return claims.Subject, nil
}
