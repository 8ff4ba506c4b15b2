package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"auth_backend/internal/shared/ratelimiter"
)

// rateLimiterRedis はRedisの固定ウィンドウカウンタによるLimiter実装です。
// 全インスタンスで同じカウンタを共有します。
type rateLimiterRedis struct {
	rdb       redis.Cmdable
	cfg       ratelimiter.Config
	namespace string
	now       func() time.Time
}

var _ ratelimiter.Limiter = (*rateLimiterRedis)(nil)

// NewRateLimiterRedis はRedisを使ったLimiterを生成します。
func NewRateLimiterRedis(rdb redis.Cmdable, cfg ratelimiter.Config, namespace string) *rateLimiterRedis {
	if namespace == "" {
		namespace = "ratelimit"
	}
	return &rateLimiterRedis{rdb: rdb, cfg: cfg, namespace: namespace, now: time.Now}
}

// key は "namespace:key:ウィンドウ開始unix秒" 形式のキーを生成します。
func (l *rateLimiterRedis) key(key string, window time.Time) string {
	return fmt.Sprintf("%s:%s:%d", l.namespace, key, window.Unix())
}

// Allow はウィンドウのカウンタを加算し、上限を超えたかを判定します。
// INCR と EXPIRE はトランザクションで送るため、TTLのないキーは残りません。
func (l *rateLimiterRedis) Allow(ctx context.Context, key string) (ratelimiter.Decision, error) {
	now := l.now()
	window := now.Truncate(l.cfg.Window)
	k := l.key(key, window)

	var incr *redis.IntCmd
	_, err := l.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, k)
		pipe.Expire(ctx, k, l.cfg.Window)
		return nil
	})
	if err != nil {
		return ratelimiter.Decision{}, fmt.Errorf("rate limit counter %s: %w", k, err)
	}

	if incr.Val() > int64(l.cfg.Requests) {
		return ratelimiter.Decision{
			Allowed:    false,
			Limit:      l.cfg.Requests,
			RetryAfter: window.Add(l.cfg.Window).Sub(now),
		}, nil
	}
	return ratelimiter.Decision{Allowed: true, Limit: l.cfg.Requests}, nil
}
