// Package usecase はauthフィーチャーのビジネスロジックを実装します。
package usecase

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
	"unicode"

	"github.com/go-playground/validator/v10"
	"golang.org/x/crypto/bcrypt"

	"auth_backend/internal/feature/auth/domain"
	"auth_backend/internal/feature/auth/domain/entity"
)

const (
	// minPasswordLength はパスワードの最低バイト数を定義します。
	minPasswordLength = 8
	// maxPasswordLength はbcryptが扱える最大バイト数です。これを超える入力は切り詰めずに拒否します。
	maxPasswordLength = 72
	// maxHandleLength はハンドル（メールアドレス）の最大文字数です。
	maxHandleLength = 255

	// DefaultBcryptCost は本番環境で使うbcryptのコストです。
	DefaultBcryptCost = 12
)

// UserRepository はユーザーエンティティの永続化層を抽象化します。
// Goの慣例に従い、インターフェースはプロバイダー（adapters）ではなくコンシューマー（usecase）が定義します。
type UserRepository interface {
	// Create は新しいユーザーをストレージに永続化し、IDと作成日時を user に設定します。
	// 同じハンドルのユーザーが既に存在する場合、domain.ErrDuplicateHandle を返します。
	Create(ctx context.Context, user *entity.User) error

	// FindByHandle は正規化済みハンドルに一致するユーザーを取得します。
	// ユーザーが存在しない場合、ErrUserNotFound を返します。
	FindByHandle(ctx context.Context, handle string) (*entity.User, error)

	// FindByID は指定されたIDに一致するユーザーを取得します。
	// ユーザーが存在しない場合、ErrUserNotFound を返します。
	FindByID(ctx context.Context, id uint) (*entity.User, error)
}

// TokenIssuer はアクセストークン発行のインターフェースを定義します。
// Goの慣例に従い、インターフェースはプロバイダー（platform/jwt）ではなくコンシューマー（usecase）が定義します。
type TokenIssuer interface {
	// GenerateToken は署名済みトークンとその有効期限を返します。
	GenerateToken(userID uint, handle string) (string, time.Time, error)
}

// authUsecase は認証ビジネスロジックを実装します。
type authUsecase struct {
	users    UserRepository
	tokens   TokenIssuer
	cost     int
	now      func() time.Time
	validate *validator.Validate

	generate func(password []byte, cost int) ([]byte, error)
	compare  func(hashed, password []byte) error

	// dummyHash は存在しないユーザーとの比較に使うハッシュです。生成時に作成します。
	dummyHash []byte
}

// Option はauthUsecaseの生成オプションです。
type Option func(*authUsecase)

// WithBcryptCost はパスワードハッシュのコストを設定します。範囲外の値は無視されます。
func WithBcryptCost(cost int) Option {
	return func(u *authUsecase) {
		if cost >= bcrypt.MinCost && cost <= bcrypt.MaxCost {
			u.cost = cost
		}
	}
}

// WithClock は expires_in の計算に使う時刻の取得元を差し替えます。
func WithClock(now func() time.Time) Option {
	return func(u *authUsecase) { u.now = now }
}

// NewAuthUsecase はauthUsecaseの新しいインスタンスを生成します。
func NewAuthUsecase(users UserRepository, tokens TokenIssuer, opts ...Option) *authUsecase {
	u := &authUsecase{
		users:    users,
		tokens:   tokens,
		cost:     DefaultBcryptCost,
		now:      time.Now,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		generate: bcrypt.GenerateFromPassword,
		compare:  bcrypt.CompareHashAndPassword,
	}
	for _, opt := range opts {
		opt(u)
	}
	// 最初の未登録ログインだけが遅くならないよう、コスト確定後に作っておく
	u.dummyHash = newDummyHash(u.generate, u.cost)
	return u
}

// NormalizeHandle はハンドルの前後の空白を除去し、小文字化します。
func NormalizeHandle(handle string) string {
	return strings.ToLower(strings.TrimSpace(handle))
}

// validateHandle は正規化済みハンドルがメールアドレス形式かチェックします。
func (u *authUsecase) validateHandle(handle string) error {
	if handle == "" {
		return domain.NewValidationError("handle is required")
	}
	if len(handle) > maxHandleLength {
		return domain.NewValidationError(fmt.Sprintf("handle must be at most %d characters", maxHandleLength))
	}
	if err := u.validate.Var(handle, "email"); err != nil {
		return domain.NewValidationError("handle must be a valid email address")
	}
	return nil
}

// validatePassword はパスワードがセキュリティ要件を満たしているかチェックします。
func validatePassword(password string) error {
	if len(password) < minPasswordLength || len(password) > maxPasswordLength {
		return domain.NewValidationError(fmt.Sprintf("password must be between %d and %d bytes", minPasswordLength, maxPasswordLength))
	}
	var hasLetter, hasDigit bool
	for _, r := range password {
		switch {
		case unicode.IsLetter(r):
			hasLetter = true
		case unicode.IsDigit(r):
			hasDigit = true
		}
	}
	if !hasLetter || !hasDigit {
		return domain.NewValidationError("password must contain at least one letter and one digit")
	}
	return nil
}

// Register はハッシュ化されたパスワードで新規ユーザーを登録します。
// 入力検証はストレージに触れる前に行い、一意性は挿入時の制約違反で判定します。
func (u *authUsecase) Register(ctx context.Context, handle, password string) (*entity.User, error) {
	handle = NormalizeHandle(handle)
	if err := u.validateHandle(handle); err != nil {
		return nil, err
	}
	if err := validatePassword(password); err != nil {
		return nil, err
	}

	hashed, err := u.generate([]byte(password), u.cost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &entity.User{Handle: handle, PasswordHash: string(hashed)}
	if err := u.users.Create(ctx, user); err != nil {
		if errors.Is(err, domain.ErrDuplicateHandle) {
			return nil, domain.ErrDuplicateHandle
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	return user, nil
}

// Login はユーザーを認証し、成功時にアクセストークンを返します。
// タイミング攻撃を防止するため、ユーザーが存在しない場合でも同じコストのダミーハッシュでbcrypt比較を実行します。
func (u *authUsecase) Login(ctx context.Context, handle, password string) (*entity.Token, error) {
	user, err := u.users.FindByHandle(ctx, NormalizeHandle(handle))
	if err != nil && !errors.Is(err, ErrUserNotFound) {
		// 接続障害などは認証失敗ではなくそのまま上位に返す
		return nil, fmt.Errorf("failed to find user: %w", err)
	}

	passwordHash := u.dummyHash
	if user != nil {
		passwordHash = []byte(user.PasswordHash)
	}

	// 第1引数はハッシュ化パスワード、第2引数は平文パスワード
	compareErr := u.compare(passwordHash, []byte(password))
	if user == nil || compareErr != nil {
		return nil, domain.ErrInvalidCredentials
	}

	signed, expiresAt, err := u.tokens.GenerateToken(user.ID, user.Handle)
	if err != nil {
		return nil, fmt.Errorf("failed to generate token: %w", err)
	}

	return &entity.Token{
		AccessToken: signed,
		TokenType:   entity.TokenTypeBearer,
		ExpiresAt:   expiresAt,
		ExpiresIn:   int64(math.Round(expiresAt.Sub(u.now()).Seconds())),
	}, nil
}

// Me はトークンで認証済みのユーザーを取得します。
// トークン発行後にユーザーが消えている場合は ErrUnauthorized を返します。
func (u *authUsecase) Me(ctx context.Context, userID uint) (*entity.User, error) {
	user, err := u.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, domain.ErrUnauthorized
		}
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	return user, nil
}

// newDummyHash は存在しないユーザー用の比較対象ハッシュを実ユーザーと同じコストで生成します。
func newDummyHash(generate func([]byte, int) ([]byte, error), cost int) []byte {
	secret := make([]byte, 32)
	_, _ = rand.Read(secret)
	hashed, err := generate(fmt.Appendf(nil, "%x", secret), cost)
	if err != nil {
		return []byte("$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy")
	}
	return hashed
}
