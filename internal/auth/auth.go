// Package auth verifies the bearer credentials presented by API callers and
// push channel handshakes.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrAuthRejected is returned for missing, malformed, expired or badly signed
// credentials.
var ErrAuthRejected = errors.New("authentication error")

// Claims is the token body issued by the auth service.
type Claims struct {
	ID int `json:"id"`
	jwt.RegisteredClaims
}

// TokenValidator resolves a raw token into the authenticated user id.
type TokenValidator interface {
	ValidateToken(ctx context.Context, token string) (int, error)
}

// Verifier checks HS256 tokens against a shared secret.
type Verifier struct {
	secret []byte
	now    func() time.Time
}

// NewVerifier constructs a Verifier for the shared secret.
func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret), now: time.Now}
}

// ValidateToken verifies signature and expiry and returns the user id.
func (v *Verifier) ValidateToken(_ context.Context, token string) (int, error) {
	if token == "" {
		return 0, fmt.Errorf("%w: missing token", ErrAuthRejected)
	}

	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(v.now))
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrAuthRejected, err)
	}
	if claims.ID <= 0 {
		return 0, fmt.Errorf("%w: token has no user id", ErrAuthRejected)
	}
	return claims.ID, nil
}

// Issue signs a token for userID. Token issuance belongs to the auth service;
// this exists for local tooling and tests.
func (v *Verifier) Issue(userID int, ttl time.Duration) (string, error) {
	now := v.now()
	claims := Claims{
		ID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}

// TokenFromRequest extracts the bearer token from the Authorization header,
// falling back to the token query parameter used by browser websockets.
func TokenFromRequest(r *http.Request) string {
	if header := r.Header.Get("Authorization"); header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
			return strings.TrimSpace(parts[1])
		}
		return ""
	}
	return r.URL.Query().Get("token")
}
