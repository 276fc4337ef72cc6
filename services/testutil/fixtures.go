package testutil

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// SignSessionToken forges a session token outside the codec, for tests that
// need tokens the service would never issue.
func SignSessionToken(subject uuid.UUID, method jwt.SigningMethod, secret any, ttl time.Duration, now time.Time) (string, error) {
	claims := jwt.RegisteredClaims{
		Subject:   subject.String(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(method, claims).SignedString(secret)
}
