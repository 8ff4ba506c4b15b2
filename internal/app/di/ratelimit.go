// Package di provides dependency injection factories for creating application components.
package di

import (
	"github.com/redis/go-redis/v9"

	infraredis "auth_backend/internal/platform/redis"
	"auth_backend/internal/shared/ratelimiter"
)

// NewRateLimiter creates a Limiter for the auth endpoints.
// If Redis is available, it returns a Redis-backed implementation shared by all instances.
// Otherwise, it falls back to a per-process in-memory limiter.
// It returns nil when rate limiting is disabled.
func NewRateLimiter(rdb *redis.Client, cfg ratelimiter.Config) ratelimiter.Limiter {
	if !cfg.Enabled() {
		return nil
	}
	if rdb != nil {
		return infraredis.NewRateLimiterRedis(rdb, cfg, "ratelimit")
	}
	return ratelimiter.NewMemoryLimiter(cfg)
}
