package jwtmw

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"auth_backend/internal/platform/logging"
	"auth_backend/internal/shared/apperr"
	"auth_backend/internal/shared/envx"
)

const (
	ContextUserID = "userID"

	EnvKeyJWTSecret = "JWT_SECRET"
	EnvKeyJWTTTL    = "JWT_TTL"
	EnvKeyJWTIssuer = "JWT_ISSUER"

	DefaultTTL = 30 * time.Minute
)

// Config holds token settings.
type Config struct {
	Secret string
	TTL    time.Duration
	Issuer string
}

// LoadConfigFromEnv reads JWT_SECRET, JWT_TTL and JWT_ISSUER.
func LoadConfigFromEnv() Config {
	return Config{
		Secret: envx.String(EnvKeyJWTSecret, ""),
		TTL:    envx.Duration(EnvKeyJWTTTL, DefaultTTL),
		Issuer: envx.String(EnvKeyJWTIssuer, ""),
	}
}

// AuthRequired returns a Gin middleware function that validates bearer tokens
// and restricts access to authenticated users only.
// Failures are pushed to c.Errors as Unauthorized and the chain is aborted.
func AuthRequired(v Verifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		// 1. Get Authorization header
		auth := c.GetHeader("Authorization")
		if !strings.HasPrefix(auth, "Bearer ") {
			abortUnauthorized(c, "missing bearer token")
			return
		}
		tokenStr := strings.TrimPrefix(auth, "Bearer ")

		// 2. Verify signature, algorithm and expiry
		claims, err := v.Verify(tokenStr)
		if err != nil {
			logging.FromContext(c.Request.Context()).Debug("token rejected", "error", err)
			abortUnauthorized(c, "invalid or expired token")
			return
		}

		// 3. Extract the user id from the subject
		userID, err := claims.UserID()
		if err != nil {
			abortUnauthorized(c, "invalid or expired token")
			return
		}
		c.Set(ContextUserID, userID)

		// 4. Pass control to the next handler
		c.Next()
	}
}

func abortUnauthorized(c *gin.Context, message string) {
	_ = c.Error(apperr.New(apperr.KindUnauthorized, message))
	c.Abort()
}
