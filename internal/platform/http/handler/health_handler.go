// Package handler はプラットフォームレベルのエンドポイント用HTTPハンドラーを提供します。
package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"auth_backend/internal/api"
	"auth_backend/internal/platform/db"
	"auth_backend/internal/platform/logging"
)

// Pinger はストアの到達性を確認します。
type Pinger interface {
	Ping(ctx context.Context) error
}

// SchemaReporter はスキーマ初期化の状態を返します。
type SchemaReporter interface {
	Status() db.SchemaStatus
}

// HealthHandler は生存確認とヘルスチェックを処理します。
// どちらもストアの状態に関わらず200を返します。
type HealthHandler struct {
	db          Pinger
	schema      SchemaReporter
	env         string
	version     string
	pingTimeout time.Duration
	now         func() time.Time
}

// NewHealthHandler はHealthHandlerの新しいインスタンスを生成します。
func NewHealthHandler(pinger Pinger, schema SchemaReporter, env, version string, pingTimeout time.Duration) *HealthHandler {
	return &HealthHandler{
		db:          pinger,
		schema:      schema,
		env:         env,
		version:     version,
		pingTimeout: pingTimeout,
		now:         time.Now,
	}
}

// Live は / の生存確認を処理します。ストアには一切触れません。
// HTTPメソッドに応じて適切にレスポンスし、キャッシュを防止します。
func (h *HealthHandler) Live(c *gin.Context) {
	// 明示的にキャッシュを防止
	c.Header("Cache-Control", "no-store")

	switch c.Request.Method {
	case http.MethodHead:
		c.Status(http.StatusOK)
	case http.MethodOptions:
		c.Status(http.StatusNoContent)
	default:
		c.JSON(http.StatusOK, api.RootResponse{
			Message:     "Auth API is running",
			Status:      "active",
			Version:     h.version,
			Environment: h.env,
			Timestamp:   h.now().UTC(),
		})
	}
}

// Health は /health を処理します。ストアへの到達性とスキーマ状態を本文で報告し、
// ストアが落ちていても degraded として200を返します。
func (h *HealthHandler) Health(c *gin.Context) {
	c.Header("Cache-Control", "no-store")

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.pingTimeout)
	defer cancel()

	res := api.HealthResponse{
		Status:      "healthy",
		Database:    "up",
		Schema:      string(h.schema.Status()),
		Environment: h.env,
		Timestamp:   h.now().UTC(),
	}
	if err := h.db.Ping(ctx); err != nil {
		logging.FromContext(c.Request.Context()).Warn("health check: database unreachable", "error", err)
		res.Status = "degraded"
		res.Database = "down"
	}
	if res.Schema != string(db.SchemaReady) {
		res.Status = "degraded"
	}

	c.JSON(http.StatusOK, res)
}
