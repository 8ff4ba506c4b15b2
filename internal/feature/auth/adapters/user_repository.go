// Package adapters はauthフィーチャーのリポジトリ実装を提供します。
package adapters

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	"auth_backend/internal/feature/auth/domain"
	"auth_backend/internal/feature/auth/domain/entity"
	"auth_backend/internal/feature/auth/usecase"
)

// pgUniqueViolation はpostgresの一意制約違反のSQLSTATEです。
const pgUniqueViolation = "23505"

// ConnProvider はプールから専有接続を借りて処理を実行します。*db.Provider が実装します。
type ConnProvider interface {
	WithConn(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// userRepository はUserRepositoryインターフェースのGORM実装です。
// 1回の操作ごとに接続を借り、完了時に必ず返却します。
type userRepository struct {
	conn ConnProvider
}

// userRepositoryがUserRepositoryを実装していることをコンパイル時に検証します。
var _ usecase.UserRepository = (*userRepository)(nil)

// NewUserRepository は依存性注入用のコンストラクタです。
func NewUserRepository(conn ConnProvider) *userRepository {
	return &userRepository{conn: conn}
}

// Create はユーザーをデータベースに追加し、採番されたIDと作成日時を u に反映します。
// 同じハンドルのユーザーが既に存在する場合、domain.ErrDuplicateHandleを返します。
func (r *userRepository) Create(ctx context.Context, u *entity.User) error {
	if u == nil {
		return errors.New("user is nil")
	}
	m := UserModelFromEntity(u)
	err := r.conn.WithConn(ctx, func(tx *gorm.DB) error {
		return tx.Create(m).Error
	})
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrDuplicateHandle
		}
		return err
	}
	*u = *m.ToEntity()
	return nil
}

// FindByHandle はハンドルでユーザーを取得します。
// ユーザーが存在しない場合、usecase.ErrUserNotFoundを返します。
func (r *userRepository) FindByHandle(ctx context.Context, handle string) (*entity.User, error) {
	var m UserModel
	err := r.conn.WithConn(ctx, func(tx *gorm.DB) error {
		return tx.Where("handle = ?", handle).First(&m).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, usecase.ErrUserNotFound
		}
		return nil, err
	}
	return m.ToEntity(), nil
}

// FindByID はIDでユーザーを取得します。
// ユーザーが存在しない場合、usecase.ErrUserNotFoundを返します。
func (r *userRepository) FindByID(ctx context.Context, id uint) (*entity.User, error) {
	var m UserModel
	err := r.conn.WithConn(ctx, func(tx *gorm.DB) error {
		return tx.Where("id = ?", id).First(&m).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, usecase.ErrUserNotFound
		}
		return nil, err
	}
	return m.ToEntity(), nil
}

// isUniqueViolation はドライバごとの一意制約違反を判定します。
// TranslateError が有効なら gorm.ErrDuplicatedKey に変換済みのはずですが、素のドライバエラーも受け付けます。
func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		return true
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
