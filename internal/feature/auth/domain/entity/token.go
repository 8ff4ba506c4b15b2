package entity

import "time"

// TokenTypeBearer is the only token type issued.
const TokenTypeBearer = "bearer"

// Token is a signed access token issued on successful login.
type Token struct {
	AccessToken string
	TokenType   string
	ExpiresAt   time.Time
	// ExpiresIn is the remaining lifetime in seconds at issue time.
	ExpiresIn int64
}
