// Package config assembles the process configuration from the environment.
package config

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"auth_backend/internal/feature/auth/usecase"
	"auth_backend/internal/platform/db"
	jwtmw "auth_backend/internal/platform/jwt"
	"auth_backend/internal/platform/logging"
	"auth_backend/internal/platform/redis"
	"auth_backend/internal/shared/envx"
	"auth_backend/internal/shared/ratelimiter"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"

	ServiceName = "auth-backend"
)

// Config is the full process configuration.
type Config struct {
	Env     string
	Version string
	Port    string

	Log       logging.Config
	DB        db.Config
	JWT       jwtmw.Config
	Redis     redis.Config
	RateLimit ratelimiter.Config

	BcryptCost          int
	SchemaTimeout       time.Duration
	ShutdownGracePeriod time.Duration
	UserCacheTTL        time.Duration
	CORSOrigins         []string

	// JWTSecretGenerated is set when no secret was configured outside production
	// and a random one was generated for this process.
	JWTSecretGenerated bool
}

// Load reads the environment, fills derived values and validates the result.
func Load() (Config, error) {
	cfg := Config{
		Env:           envx.String("APP_ENV", EnvDevelopment),
		Version:       envx.String("APP_VERSION", "1.0.0"),
		Port:          envx.String("PORT", "8080"),
		Log:           logging.LoadConfigFromEnv(),
		DB:            db.LoadConfigFromEnv(),
		JWT:           jwtmw.LoadConfigFromEnv(),
		Redis:         redis.LoadConfigFromEnv(),
		RateLimit:     ratelimiter.LoadConfigFromEnv(),
		BcryptCost:    envx.Int("BCRYPT_COST", usecase.DefaultBcryptCost),
		SchemaTimeout: envx.Duration("SCHEMA_TIMEOUT", 15*time.Second),
		CORSOrigins:   envx.List("CORS_ALLOWED_ORIGINS"),

		ShutdownGracePeriod: envx.Duration("SHUTDOWN_GRACE_PERIOD", 10*time.Second),
		UserCacheTTL:        envx.Duration("USER_CACHE_TTL", 5*time.Minute),
	}
	// Vercel sets VERCEL=1 on every deployment
	if envx.Bool("VERCEL", false) {
		cfg.Env = EnvProduction
	}

	if err := cfg.finalize(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// IsProduction reports whether the process runs in production.
func (c Config) IsProduction() bool {
	return c.Env == EnvProduction
}

func (c *Config) finalize() error {
	c.Env = strings.ToLower(c.Env)
	c.Log.Service = ServiceName
	c.Log.Version = c.Version
	c.Log.Env = c.Env

	if c.JWT.Secret == "" {
		if c.IsProduction() {
			return errors.New("JWT_SECRET is required in production")
		}
		secret, err := randomSecret()
		if err != nil {
			return fmt.Errorf("generate jwt secret: %w", err)
		}
		c.JWT.Secret = secret
		c.JWTSecretGenerated = true
	}
	return c.Validate()
}

// Validate checks values that would otherwise fail later at request time.
func (c Config) Validate() error {
	var errs []error
	if c.Env != EnvDevelopment && c.Env != EnvProduction {
		errs = append(errs, fmt.Errorf("APP_ENV must be %q or %q, got %q", EnvDevelopment, EnvProduction, c.Env))
	}
	if c.JWT.Secret == "" {
		errs = append(errs, errors.New("JWT_SECRET is empty"))
	}
	if c.JWT.TTL <= 0 {
		errs = append(errs, fmt.Errorf("JWT_TTL must be positive, got %s", c.JWT.TTL))
	}
	if c.BcryptCost < bcrypt.MinCost || c.BcryptCost > bcrypt.MaxCost {
		errs = append(errs, fmt.Errorf("BCRYPT_COST must be between %d and %d, got %d", bcrypt.MinCost, bcrypt.MaxCost, c.BcryptCost))
	}
	if c.SchemaTimeout <= 0 {
		errs = append(errs, errors.New("SCHEMA_TIMEOUT must be positive"))
	}
	for _, origin := range c.CORSOrigins {
		if origin != "*" && !strings.HasPrefix(origin, "http://") && !strings.HasPrefix(origin, "https://") {
			errs = append(errs, fmt.Errorf("CORS_ALLOWED_ORIGINS entry %q must start with http:// or https://", origin))
		}
	}
	if err := c.DB.Validate(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func randomSecret() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
