package jwtmw

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken is returned for any token that fails verification.
var ErrInvalidToken = errors.New("invalid token")

// Verifier validates access tokens.
type Verifier interface {
	// Verify checks signature, algorithm and expiry, and returns the claims.
	Verify(token string) (*Claims, error)
}

type verifier struct {
	secret []byte
	settings
}

// NewVerifier creates a verifier for tokens signed with secret.
func NewVerifier(secret string, opts ...Option) Verifier {
	return &verifier{secret: []byte(secret), settings: newSettings(opts)}
}

// Verify accepts a token while now is strictly before its exp claim.
func (v *verifier) Verify(tokenStr string) (*Claims, error) {
	parserOpts := []jwt.ParserOption{
		// Only HMAC-SHA256 is allowed, which also rejects "none"
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(v.now),
	}
	if v.issuer != "" {
		parserOpts = append(parserOpts, jwt.WithIssuer(v.issuer))
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (any, error) {
		return v.secret, nil
	}, parserOpts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
