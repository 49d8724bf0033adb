package session

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpired      = errors.New("token expired")
)

// Session holds the bearer token the client authenticates with and the
// identity claims extracted from it.
type Session struct {
	Token     string
	UserID    string
	ExpiresAt time.Time
}

// New parses a bearer token into a session. When secret is non-empty the
// signature is verified; otherwise claims are read unverified (the server
// re-checks the token on every call anyway).
func New(token, secret string) (*Session, error) {
	var claims jwt.MapClaims

	if secret != "" {
		parsed, err := jwt.Parse(token, func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, errors.New("unexpected signing method")
			}
			return []byte(secret), nil
		})
		if err != nil || !parsed.Valid {
			return nil, ErrInvalidToken
		}
		var ok bool
		claims, ok = parsed.Claims.(jwt.MapClaims)
		if !ok {
			return nil, ErrInvalidToken
		}
	} else {
		parsed, _, err := jwt.NewParser().ParseUnverified(token, jwt.MapClaims{})
		if err != nil {
			return nil, ErrInvalidToken
		}
		var ok bool
		claims, ok = parsed.Claims.(jwt.MapClaims)
		if !ok {
			return nil, ErrInvalidToken
		}
	}

	s := &Session{Token: token}

	switch v := claims["sub"].(type) {
	case string:
		s.UserID = v
	}
	if s.UserID == "" {
		if v, ok := claims["user_id"].(string); ok {
			s.UserID = v
		}
	}
	if s.UserID == "" {
		return nil, ErrInvalidToken
	}

	if exp, ok := claims["exp"].(float64); ok {
		s.ExpiresAt = time.Unix(int64(exp), 0)
		if time.Now().After(s.ExpiresAt) {
			return nil, ErrExpired
		}
	}

	return s, nil
}

// ExpiresWithin reports whether the token expires inside d. Tokens without
// an exp claim never report imminent expiry.
func (s *Session) ExpiresWithin(d time.Duration) bool {
	if s.ExpiresAt.IsZero() {
		return false
	}
	return time.Until(s.ExpiresAt) < d
}
