package redis

import (
	"context"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"

	"auth_backend/internal/shared/ratelimiter"
)

// TestRateLimiterRedis_Allow はウィンドウ内の回数に応じて許可・拒否が決まることを検証します。
func TestRateLimiterRedis_Allow(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 12, 0, 45, 0, time.UTC)
	const key = "ratelimit:10.0.0.1:/api/auth/login:1772366400"

	tests := []struct {
		name        string
		count       int64
		wantAllowed bool
	}{
		{"first request", 1, true},
		{"at the limit", 3, true},
		{"over the limit", 4, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			rdb, mock := redismock.NewClientMock()
			l := NewRateLimiterRedis(rdb, ratelimiter.Config{Requests: 3, Window: time.Minute}, "")
			l.now = func() time.Time { return now }

			mock.ExpectTxPipeline()
			mock.ExpectIncr(key).SetVal(tt.count)
			mock.ExpectExpire(key, time.Minute).SetVal(true)
			mock.ExpectTxPipelineExec()

			d, err := l.Allow(context.Background(), "10.0.0.1:/api/auth/login")
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if d.Allowed != tt.wantAllowed {
				t.Errorf("expected allowed=%v, got %v", tt.wantAllowed, d.Allowed)
			}
			if !d.Allowed && d.RetryAfter != 15*time.Second {
				t.Errorf("expected retry after 15s, got %v", d.RetryAfter)
			}
			if err := mock.ExpectationsWereMet(); err != nil {
				t.Errorf("unmet redis expectations: %v", err)
			}
		})
	}
}

// TestRateLimiterRedis_Error はRedisエラー時にエラーを返すことを検証します（判断は呼び出し側に委ねる）。
func TestRateLimiterRedis_Error(t *testing.T) {
	t.Parallel()

	rdb, _ := redismock.NewClientMock()
	l := NewRateLimiterRedis(rdb, ratelimiter.Config{Requests: 3, Window: time.Minute}, "auth")

	if _, err := l.Allow(context.Background(), "10.0.0.1"); err == nil {
		t.Error("expected error when redis command fails")
	}
}

func TestNewRedisClient_Disabled(t *testing.T) {
	t.Parallel()

	_, err := NewRedisClient(context.Background(), Config{}, nil)
	if err != ErrDisabled {
		t.Errorf("expected ErrDisabled, got %v", err)
	}
}
