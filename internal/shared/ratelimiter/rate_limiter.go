package ratelimiter

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"auth_backend/internal/shared/envx"
)

// Decision は1回の判定結果です。
type Decision struct {
	Allowed bool
	// Limit はウィンドウあたりの上限です。
	Limit int
	// RetryAfter は拒否された場合に次に許可されるまでの目安です。
	RetryAfter time.Duration
}

// Limiter は、キー（クライアントIPなど）ごとに操作の頻度を制限するインターフェースです。
type Limiter interface {
	Allow(ctx context.Context, key string) (Decision, error)
}

// Config はウィンドウあたりの上限回数です。Requests が0以下なら制限しません。
type Config struct {
	Requests int
	Window   time.Duration
}

// Enabled は制限が有効かを返します。
func (c Config) Enabled() bool {
	return c.Requests > 0 && c.Window > 0
}

// LoadConfigFromEnv は RATELIMIT_REQUESTS と RATELIMIT_WINDOW を読み込みます。
func LoadConfigFromEnv() Config {
	return Config{
		Requests: envx.Int("RATELIMIT_REQUESTS", 20),
		Window:   envx.Duration("RATELIMIT_WINDOW", time.Minute),
	}
}

// memoryLimiter はプロセス内のトークンバケットによる実装です。
// サーバーレスではインスタンス間で共有されないため、Redisが使えない場合の代替です。
type memoryLimiter struct {
	cfg      Config
	limiters sync.Map // map[string]*rate.Limiter
	rate     rate.Limit

	mu          sync.Mutex
	lastCleanup time.Time
}

// NewMemoryLimiter は新しいインメモリLimiterを生成します。
func NewMemoryLimiter(cfg Config) Limiter {
	return &memoryLimiter{
		cfg:         cfg,
		rate:        rate.Limit(float64(cfg.Requests) / cfg.Window.Seconds()),
		lastCleanup: time.Now(),
	}
}

// Allow はキーのバケットからトークンを1つ消費できるかを判定します。
func (l *memoryLimiter) Allow(_ context.Context, key string) (Decision, error) {
	limiter := l.limiter(key)
	if limiter.Allow() {
		return Decision{Allowed: true, Limit: l.cfg.Requests}, nil
	}

	// 次のトークンが補充されるまでの時間。予約は消費しない
	reservation := limiter.Reserve()
	delay := reservation.Delay()
	reservation.Cancel()

	return Decision{Allowed: false, Limit: l.cfg.Requests, RetryAfter: delay}, nil
}

func (l *memoryLimiter) limiter(key string) *rate.Limiter {
	if limiter, ok := l.limiters.Load(key); ok {
		return limiter.(*rate.Limiter)
	}
	actual, _ := l.limiters.LoadOrStore(key, rate.NewLimiter(l.rate, l.cfg.Requests))
	l.maybeCleanup()
	return actual.(*rate.Limiter)
}

// maybeCleanup はバケットが満杯（しばらく使われていない）のキーを定期的に削除します。
func (l *memoryLimiter) maybeCleanup() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if time.Since(l.lastCleanup) < 5*time.Minute {
		return
	}
	l.lastCleanup = time.Now()

	l.limiters.Range(func(key, value any) bool {
		if value.(*rate.Limiter).Tokens() >= float64(l.cfg.Requests) {
			l.limiters.Delete(key)
		}
		return true
	})
}
