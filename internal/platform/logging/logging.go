// Package logging builds the process logger and carries request scoped loggers in a context.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"

	"auth_backend/internal/shared/envx"
)

// Config controls logger construction.
type Config struct {
	Service string
	Version string
	Env     string // development, production
	Level   string // debug, info, warn, error
	Format  string // json, text
	Output  io.Writer
}

// LoadConfigFromEnv reads LOG_LEVEL and LOG_FORMAT.
func LoadConfigFromEnv() Config {
	return Config{
		Level:  envx.String("LOG_LEVEL", "info"),
		Format: envx.String("LOG_FORMAT", "json"),
	}
}

// New returns a configured slog.Logger. It does not replace slog's default logger.
func New(cfg Config) *slog.Logger {
	out := cfg.Output
	if out == nil {
		out = os.Stdout
	}

	opts := &slog.HandlerOptions{
		AddSource: cfg.Env == "development",
		Level:     parseLevel(cfg.Level),
	}

	var handler slog.Handler
	switch strings.ToLower(cfg.Format) {
	case "text":
		handler = slog.NewTextHandler(out, opts)
	default:
		handler = slog.NewJSONHandler(out, opts)
	}

	return slog.New(handler).With(
		"service", cfg.Service,
		"version", cfg.Version,
		"env", cfg.Env,
	)
}

// Discard returns a logger that drops everything. Useful in tests.
func Discard() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func parseLevel(lvl string) slog.Level {
	switch strings.ToLower(lvl) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

type ctxKey struct{}

// WithContext stores logger in ctx.
func WithContext(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, logger)
}

// FromContext returns the request logger, or slog.Default when none is attached.
func FromContext(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(ctxKey{}).(*slog.Logger); ok {
		return l
	}
	return slog.Default()
}
