// Package bootstrap builds the complete HTTP application from configuration.
// Both the long-running server and the serverless entry point start from here.
package bootstrap

import (
	"context"
	"errors"
	"io"
	"log/slog"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"auth_backend/internal/app/config"
	"auth_backend/internal/app/di"
	"auth_backend/internal/app/router"
	"auth_backend/internal/feature/auth/adapters"
	"auth_backend/internal/platform/db"
	"auth_backend/internal/platform/http/handler"
	"auth_backend/internal/platform/logging"
	infraredis "auth_backend/internal/platform/redis"
)

// App holds the constructed engine and the resources it owns.
type App struct {
	Config   config.Config
	Engine   *gin.Engine
	Logger   *slog.Logger
	Provider *db.Provider
	Schema   *db.SchemaInitializer
	Redis    *redis.Client
}

type options struct {
	opener    db.Opener
	logOutput io.Writer
}

// Option customizes New.
type Option func(*options)

// WithOpener replaces the database opener.
func WithOpener(open db.Opener) Option {
	return func(o *options) { o.opener = open }
}

// WithLogOutput redirects the process logger.
func WithLogOutput(w io.Writer) Option {
	return func(o *options) { o.logOutput = w }
}

// New wires the application. A store that is unreachable at startup is not fatal:
// the schema is retried on demand and /health reports degraded in the meantime.
func New(ctx context.Context, cfg config.Config, opts ...Option) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	if o.logOutput != nil {
		cfg.Log.Output = o.logOutput
	}
	logger := logging.New(cfg.Log)
	if cfg.JWTSecretGenerated {
		logger.Warn("JWT_SECRET is not set, using a random secret for this process. Set a strong secret in production.")
	}
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	provider := db.NewProvider(cfg.DB, logger, db.WithOpener(o.opener))
	schema := db.NewSchemaInitializer(provider, logger, adapters.Models(),
		db.WithSchemaTimeout(cfg.SchemaTimeout),
		db.WithMigrations(cfg.DB.RunMigrations),
	)
	if err := schema.EnsureSchema(ctx); err != nil {
		logger.Warn("schema initialization failed at startup, will retry on demand", "error", err)
	}

	var rdb *redis.Client
	client, err := infraredis.NewRedisClient(ctx, cfg.Redis, logger)
	switch {
	case errors.Is(err, infraredis.ErrDisabled):
		logger.Info("Redis is not configured, using in-memory rate limiting and no user cache")
	case err != nil:
		logger.Warn("Redis unavailable, using in-memory rate limiting and no user cache", "error", err)
	default:
		rdb = client
	}

	users := di.NewUserRepository(provider, rdb, cfg.UserCacheTTL)

	engine := router.NewRouter(router.Deps{
		Logger:      logger,
		Auth:        di.NewAuthHandler(users, cfg.JWT, cfg.BcryptCost),
		Health:      handler.NewHealthHandler(provider, schema, cfg.Env, cfg.Version, cfg.DB.PingTimeout),
		Verifier:    di.NewVerifier(cfg.JWT),
		Schema:      schema,
		Limiter:     di.NewRateLimiter(rdb, cfg.RateLimit),
		CORSOrigins: cfg.CORSOrigins,
	})

	return &App{
		Config:   cfg,
		Engine:   engine,
		Logger:   logger,
		Provider: provider,
		Schema:   schema,
		Redis:    rdb,
	}, nil
}

// FromEnv loads the configuration from the environment and calls New.
func FromEnv(ctx context.Context, opts ...Option) (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	return New(ctx, cfg, opts...)
}

// Close releases the database pool and the Redis client.
func (a *App) Close() error {
	var errs []error
	if err := a.Provider.Close(); err != nil {
		errs = append(errs, err)
	}
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
