// Package handler はauthフィーチャーのHTTPハンドラーを提供します。
package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"auth_backend/internal/api"
	"auth_backend/internal/feature/auth/domain"
	"auth_backend/internal/feature/auth/domain/entity"
	jwtmw "auth_backend/internal/platform/jwt"
	"auth_backend/internal/platform/logging"
	"auth_backend/internal/shared/apperr"
)

// AuthUsecase は認証操作のユースケースを定義します。
// Goの慣例に従い、インターフェースはプロバイダー（usecase）ではなくコンシューマー（handler）が定義します。
type AuthUsecase interface {
	// Register は指定されたハンドルとパスワードで新規ユーザーを登録します。
	Register(ctx context.Context, handle, password string) (*entity.User, error)
	// Login はユーザーを認証し、成功時にアクセストークンを返します。
	Login(ctx context.Context, handle, password string) (*entity.Token, error)
	// Me は認証済みユーザーを取得します。
	Me(ctx context.Context, userID uint) (*entity.User, error)
}

// AuthHandler は認証操作のHTTPリクエストを処理します。
// エラーは c.Error に積んで返すだけで、応答の組み立ては分離層が行います。
type AuthHandler struct {
	auth AuthUsecase
}

// NewAuthHandler はAuthHandlerの新しいインスタンスを生成します。
// 依存性注入用のコンストラクタで、外部からAuthUsecaseを注入します。
func NewAuthHandler(auth AuthUsecase) *AuthHandler {
	return &AuthHandler{auth: auth}
}

// Register はユーザー登録APIエンドポイントを処理します。
// - リクエストJSONをRegisterRequestにバインド
// - 不正なボディは ValidationError（400）
// - ハンドル重複は DuplicateHandle（409）
// - 成功時はユーザー概要（パスワードなし）と201を返却
func (h *AuthHandler) Register(c *gin.Context) {
	log := logging.FromContext(c.Request.Context())

	var req api.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Debug("register request rejected", "error", err)
		_ = c.Error(apperr.Wrap(apperr.KindValidation, "invalid request body", err))
		return
	}

	user, err := h.auth.Register(c.Request.Context(), string(req.Handle), req.Password)
	if err != nil {
		_ = c.Error(err)
		return
	}

	log.Info("user registered", "user_id", user.ID, "handle", user.Handle)
	c.JSON(http.StatusCreated, toUserResponse(user))
}

// Login はユーザーログインAPIエンドポイントを処理します。
// - 不正なボディのみ ValidationError（400）
// - 未登録・パスワード誤りはどちらも InvalidCredentials（401）
// - 成功時はトークンと有効期限を200で返却
func (h *AuthHandler) Login(c *gin.Context) {
	log := logging.FromContext(c.Request.Context())

	var req api.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Debug("login request rejected", "error", err)
		_ = c.Error(apperr.Wrap(apperr.KindValidation, "invalid request body", err))
		return
	}

	token, err := h.auth.Login(c.Request.Context(), req.Handle, req.Password)
	if err != nil {
		// ユーザー列挙攻撃を防止するため、ハンドルの有無はログにも区別して残さない
		if apperr.KindOf(err) == apperr.KindInvalidCredentials {
			log.Info("login failed", "remote_addr", c.ClientIP())
		}
		_ = c.Error(err)
		return
	}

	log.Info("user login successful", "remote_addr", c.ClientIP())
	c.JSON(http.StatusOK, api.TokenResponse{
		Token:     token.AccessToken,
		TokenType: token.TokenType,
		ExpiresAt: token.ExpiresAt.UTC(),
		ExpiresIn: token.ExpiresIn,
	})
}

// Me はトークンで認証済みのユーザー概要を返します。
// jwtmw.AuthRequired の後に置かれる前提です。
func (h *AuthHandler) Me(c *gin.Context) {
	userID := c.GetUint(jwtmw.ContextUserID)
	if userID == 0 {
		_ = c.Error(domain.ErrUnauthorized)
		return
	}

	user, err := h.auth.Me(c.Request.Context(), userID)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, toUserResponse(user))
}

func toUserResponse(u *entity.User) api.UserResponse {
	return api.UserResponse{
		ID:        u.ID,
		Handle:    u.Handle,
		CreatedAt: u.CreatedAt.UTC(),
	}
}
