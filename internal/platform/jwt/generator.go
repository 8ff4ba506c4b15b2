package jwtmw

import (
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Claims are the claims carried by access tokens.
// Subject holds the user ID in decimal form.
type Claims struct {
	Handle string `json:"handle"`
	jwt.RegisteredClaims
}

// UserID parses the subject claim.
func (c *Claims) UserID() (uint, error) {
	id, err := strconv.ParseUint(c.Subject, 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("invalid subject %q", c.Subject)
	}
	return uint(id), nil
}

// Generator defines the interface for JWT token generation.
type Generator interface {
	// GenerateToken creates a signed JWT token for the given user and returns its expiry.
	GenerateToken(userID uint, handle string) (string, time.Time, error)
}

// Option configures generators and verifiers.
type Option func(*settings)

type settings struct {
	issuer string
	now    func() time.Time
}

func newSettings(opts []Option) settings {
	s := settings{now: time.Now}
	for _, opt := range opts {
		opt(&s)
	}
	return s
}

// WithIssuer sets the iss claim on generated tokens and requires it on verified ones.
func WithIssuer(issuer string) Option {
	return func(s *settings) { s.issuer = issuer }
}

// WithClock replaces the time source.
func WithClock(now func() time.Time) Option {
	return func(s *settings) { s.now = now }
}

// generator implements the Generator interface.
type generator struct {
	secret     []byte
	expiration time.Duration
	settings
}

// NewGenerator creates a new JWT generator with the provided secret and expiration duration.
func NewGenerator(secret string, expiration time.Duration, opts ...Option) Generator {
	return &generator{
		secret:     []byte(secret),
		expiration: expiration,
		settings:   newSettings(opts),
	}
}

// GenerateToken creates a signed HS256 token with standard claims.
// Times are truncated to whole seconds so the returned expiry matches the exp claim exactly.
func (g *generator) GenerateToken(userID uint, handle string) (string, time.Time, error) {
	issuedAt := g.now().Truncate(time.Second)
	expiresAt := issuedAt.Add(g.expiration)

	claims := Claims{
		Handle: handle,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatUint(uint64(userID), 10),
			Issuer:    g.issuer,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			ID:        uuid.NewString(),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(g.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign token: %w", err)
	}

	return signed, expiresAt, nil
}
