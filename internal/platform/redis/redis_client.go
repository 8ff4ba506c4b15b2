package redis

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"time"

	"github.com/redis/go-redis/v9"

	"auth_backend/internal/shared/envx"
)

// ErrDisabled は REDIS_HOST が未設定でRedisを使わない場合に返されます。
var ErrDisabled = errors.New("redis is not configured")

// Config はRedis接続設定です。
type Config struct {
	Host        string
	Port        string
	Password    string
	DialTimeout time.Duration
}

// LoadConfigFromEnv は REDIS_HOST / REDIS_PORT / REDIS_PASSWORD を読み込みます。
func LoadConfigFromEnv() Config {
	return Config{
		Host:        envx.String("REDIS_HOST", ""),
		Port:        envx.String("REDIS_PORT", "6379"),
		Password:    envx.String("REDIS_PASSWORD", ""),
		DialTimeout: envx.Duration("REDIS_DIAL_TIMEOUT", 2*time.Second),
	}
}

// NewRedisClient は接続を確認したクライアントを返します。
// Host が空なら ErrDisabled、pingに失敗すればクライアントを閉じてエラーを返します。
func NewRedisClient(ctx context.Context, cfg Config, logger *slog.Logger) (*redis.Client, error) {
	if cfg.Host == "" {
		return nil, ErrDisabled
	}
	addr := net.JoinHostPort(cfg.Host, cfg.Port)

	rdb := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     cfg.Password,
		DB:           0,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.DialTimeout,
		WriteTimeout: cfg.DialTimeout,
	})

	// 接続確認
	ctx, cancel := context.WithTimeout(ctx, cfg.DialTimeout)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.Error("Redis connection failed", "address", addr, "error", err)
		_ = rdb.Close()
		return nil, err
	}

	logger.Info("Redis connection successful", "address", addr)
	return rdb, nil
}
