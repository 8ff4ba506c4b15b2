package middleware

import (
	"math"
	"strconv"

	"github.com/gin-gonic/gin"

	"auth_backend/internal/platform/logging"
	"auth_backend/internal/shared/apperr"
	"auth_backend/internal/shared/ratelimiter"
)

// RateLimit limits requests per client IP and route.
// If the limiter itself fails the request is let through and a warning is logged.
func RateLimit(limiter ratelimiter.Limiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		log := logging.FromContext(c.Request.Context())
		key := c.ClientIP() + ":" + c.FullPath()

		d, err := limiter.Allow(c.Request.Context(), key)
		if err != nil {
			log.Warn("rate limit check failed, allowing request", "error", err)
			c.Next()
			return
		}
		if d.Allowed {
			c.Next()
			return
		}

		retryAfter := max(int(math.Ceil(d.RetryAfter.Seconds())), 1)
		c.Header("Retry-After", strconv.Itoa(retryAfter))
		c.Header("X-RateLimit-Limit", strconv.Itoa(d.Limit))
		log.Warn("rate limit exceeded", "key", key, "retry_after", retryAfter)

		_ = c.Error(apperr.New(apperr.KindTooManyRequests, "too many requests, please try again later"))
		c.Abort()
	}
}
