package api

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt"
)

const (
	tokenCookieKey = "token"
	userIdClaim    = "user-id"
	expClaim       = "exp"
)

// Session is what the client can learn from its own session token.
type Session struct {
	UserId    int
	ExpiresAt time.Time
}

func (s Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}

// ParseSession reads the claims of a session token without verifying its
// signature; the client never holds the signing key, so this is only used
// to detect an expired or foreign token before connecting.
func ParseSession(tokenString string) (Session, error) {
	token, _, err := new(jwt.Parser).ParseUnverified(tokenString, jwt.MapClaims{})
	if err != nil {
		return Session{}, fmt.Errorf("parse token: %w", err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return Session{}, fmt.Errorf("invalid token claims")
	}

	userId, ok := claims[userIdClaim].(float64)
	if !ok {
		return Session{}, fmt.Errorf("invalid user id claim")
	}

	s := Session{UserId: int(userId)}
	if exp, ok := claims[expClaim].(float64); ok {
		s.ExpiresAt = time.Unix(int64(exp), 0)
	}

	return s, nil
}
