package di

import (
	"time"

	"github.com/redis/go-redis/v9"

	"auth_backend/internal/feature/auth/adapters"
	authhandler "auth_backend/internal/feature/auth/transport/handler"
	"auth_backend/internal/feature/auth/usecase"
	"auth_backend/internal/platform/cache"
	jwtmw "auth_backend/internal/platform/jwt"
)

// NewUserRepository creates a UserRepository implementation.
// If Redis is available, lookups by id are cached in Redis.
// Otherwise, every lookup goes to the database.
func NewUserRepository(conn adapters.ConnProvider, rdb *redis.Client, cacheTTL time.Duration) usecase.UserRepository {
	repo := adapters.NewUserRepository(conn)
	if rdb != nil {
		return cache.NewCachingUserRepository(rdb, cacheTTL, repo, "users")
	}
	return repo
}

// NewAuthHandler wires the token generator and usecase behind the auth HTTP handler.
func NewAuthHandler(users usecase.UserRepository, jwtCfg jwtmw.Config, bcryptCost int) *authhandler.AuthHandler {
	tokens := jwtmw.NewGenerator(jwtCfg.Secret, jwtCfg.TTL, jwtOptions(jwtCfg)...)
	uc := usecase.NewAuthUsecase(users, tokens, usecase.WithBcryptCost(bcryptCost))
	return authhandler.NewAuthHandler(uc)
}

// NewVerifier creates the token verifier used by the AuthRequired middleware.
func NewVerifier(jwtCfg jwtmw.Config) jwtmw.Verifier {
	return jwtmw.NewVerifier(jwtCfg.Secret, jwtOptions(jwtCfg)...)
}

func jwtOptions(cfg jwtmw.Config) []jwtmw.Option {
	var opts []jwtmw.Option
	if cfg.Issuer != "" {
		opts = append(opts, jwtmw.WithIssuer(cfg.Issuer))
	}
	return opts
}
