package router

import (
	"log/slog"
	"net/http"
	"slices"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	authhandler "auth_backend/internal/feature/auth/transport/handler"
	"auth_backend/internal/platform/http/handler"
	"auth_backend/internal/platform/http/middleware"
	jwtmw "auth_backend/internal/platform/jwt"
	"auth_backend/internal/shared/ratelimiter"
)

// Deps はルータが必要とする依存関係です。
type Deps struct {
	Logger   *slog.Logger
	Auth     *authhandler.AuthHandler
	Health   *handler.HealthHandler
	Verifier jwtmw.Verifier
	Schema   middleware.SchemaEnsurer
	// Limiter が nil の場合はレート制限を行いません。
	Limiter     ratelimiter.Limiter
	CORSOrigins []string
}

func NewRouter(d Deps) *gin.Engine {
	r := gin.New()
	r.HandleMethodNotAllowed = true

	// 分離層は最初に置く。以降のミドルウェアのエラーやpanicもすべてここで受ける
	r.Use(middleware.Isolation(d.Logger))
	if len(d.CORSOrigins) > 0 {
		r.Use(cors.New(corsConfig(d.CORSOrigins)))
	}

	r.NoRoute(middleware.NotFound)
	r.NoMethod(middleware.MethodNotAllowed)

	// 認証不要
	// 生存確認（ストアに触れない）
	r.GET("/", d.Health.Live)
	r.HEAD("/", d.Health.Live)
	r.OPTIONS("/", d.Health.Live)
	// 依存先を含めた状態確認
	r.GET("/health", d.Health.Health)

	api := r.Group("/api/auth")
	if d.Limiter != nil {
		api.Use(middleware.RateLimit(d.Limiter))
	}
	requireSchema := middleware.RequireSchema(d.Schema)
	{
		// 新規ユーザー登録
		api.POST("/register", requireSchema, d.Auth.Register)
		// ログイン（JWT 発行）
		api.POST("/login", requireSchema, d.Auth.Login)
		// トークン検証はストアより先に行う
		api.GET("/me", jwtmw.AuthRequired(d.Verifier), requireSchema, d.Auth.Me)
	}

	return r
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodHead, http.MethodOptions},
		AllowHeaders:  []string{"Origin", "Content-Type", "Authorization", middleware.HeaderRequestID},
		ExposeHeaders: []string{middleware.HeaderRequestID, "Retry-After"},
		MaxAge:        12 * time.Hour,
	}
	if slices.Contains(origins, "*") {
		cfg.AllowAllOrigins = true
		return cfg
	}
	cfg.AllowOrigins = origins
	cfg.AllowWildcard = true
	return cfg
}
