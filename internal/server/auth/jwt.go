// Package auth issues and parses the HS256 access tokens that identify a
// caller, and carries the resulting Session through request contexts.
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/triox/internal/common"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Claims are the registered JWT claims plus the account identity.
// RegisteredClaims.ID doubles as the session identifier.
type Claims struct {
	jwt.RegisteredClaims
	UserID   string `json:"uid"`
	UserName string `json:"name"`
}

// Session is the authenticated caller as established by a verified token.
type Session struct {
	UserID    string
	UserName  string
	TokenID   string
	ExpiresAt time.Time
}

// GenerateToken signs an access token for the account, valid for validityDuration.
func GenerateToken(userID, userName string, secretKey []byte, validityDuration time.Duration) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(validityDuration)),
		},
		UserID:   userID,
		UserName: userName,
	})

	return token.SignedString(secretKey)
}

// ParseToken validates tokenString and returns the session it describes.
// An expired token yields common.ErrTokenExpired; every other failure is
// common.ErrInvalidToken wrapping the cause.
func ParseToken(tokenString string, secretKey []byte) (*Session, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		return secretKey, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if errors.Is(err, jwt.ErrTokenExpired) {
		return nil, common.ErrTokenExpired
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrInvalidToken, err)
	}
	if !token.Valid {
		return nil, common.ErrInvalidToken
	}
	if claims.ID == "" || claims.UserName == "" {
		return nil, fmt.Errorf("%w: missing identity claims", common.ErrInvalidToken)
	}

	return &Session{
		UserID:    claims.UserID,
		UserName:  claims.UserName,
		TokenID:   claims.ID,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

type ctxKey struct{}

// WithSession returns a copy of ctx carrying s.
func WithSession(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, ctxKey{}, s)
}

// SessionFromContext returns the session stored by WithSession.
func SessionFromContext(ctx context.Context) (*Session, error) {
	s, ok := ctx.Value(ctxKey{}).(*Session)
	if !ok || s == nil {
		return nil, errors.New("no session in context")
	}
	return s, nil
}
