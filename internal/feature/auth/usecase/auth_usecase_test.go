package usecase

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"auth_backend/internal/feature/auth/domain"
	"auth_backend/internal/feature/auth/domain/entity"
	"auth_backend/internal/shared/apperr"
)

// mockUserRepository is a mock implementation of the UserRepository interface.
type mockUserRepository struct {
	CreateFunc       func(ctx context.Context, user *entity.User) error
	FindByHandleFunc func(ctx context.Context, handle string) (*entity.User, error)
	FindByIDFunc     func(ctx context.Context, id uint) (*entity.User, error)

	mu           sync.Mutex
	createCalls  int
	findByHandle []string
}

func (m *mockUserRepository) Create(ctx context.Context, user *entity.User) error {
	m.mu.Lock()
	m.createCalls++
	m.mu.Unlock()
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, user)
	}
	user.ID = 1
	user.CreatedAt = time.Now()
	return nil
}

func (m *mockUserRepository) FindByHandle(ctx context.Context, handle string) (*entity.User, error) {
	m.mu.Lock()
	m.findByHandle = append(m.findByHandle, handle)
	m.mu.Unlock()
	if m.FindByHandleFunc != nil {
		return m.FindByHandleFunc(ctx, handle)
	}
	return nil, ErrUserNotFound
}

func (m *mockUserRepository) FindByID(ctx context.Context, id uint) (*entity.User, error) {
	if m.FindByIDFunc != nil {
		return m.FindByIDFunc(ctx, id)
	}
	return nil, ErrUserNotFound
}

// mockTokenIssuer is a mock implementation of the TokenIssuer interface.
type mockTokenIssuer struct {
	GenerateTokenFunc func(userID uint, handle string) (string, time.Time, error)
}

func (m *mockTokenIssuer) GenerateToken(userID uint, handle string) (string, time.Time, error) {
	if m.GenerateTokenFunc != nil {
		return m.GenerateTokenFunc(userID, handle)
	}
	return "mock-jwt-token", time.Date(2026, 1, 1, 0, 30, 0, 0, time.UTC), nil
}

var fixedNow = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func newTestUsecase(users UserRepository, tokens TokenIssuer) *authUsecase {
	return NewAuthUsecase(users, tokens,
		WithBcryptCost(bcrypt.MinCost),
		WithClock(func() time.Time { return fixedNow }),
	)
}

func hashFor(t *testing.T, password string) string {
	t.Helper()
	h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	return string(h)
}

func TestNewAuthUsecase(t *testing.T) {
	t.Parallel()

	uc := NewAuthUsecase(&mockUserRepository{}, &mockTokenIssuer{})
	assert.Equal(t, DefaultBcryptCost, uc.cost)

	uc = NewAuthUsecase(&mockUserRepository{}, &mockTokenIssuer{}, WithBcryptCost(99))
	assert.Equal(t, DefaultBcryptCost, uc.cost, "out of range cost must be ignored")
}

func TestAuthUsecase_Register(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		handle      string
		password    string
		createErr   error
		wantErr     error
		wantMessage string
		wantCreate  bool
	}{
		{
			name:       "success",
			handle:     "alice@example.com",
			password:   "password123",
			wantCreate: true,
		},
		{
			name:       "success: handle is normalized",
			handle:     "  Alice@Example.COM ",
			password:   "password123",
			wantCreate: true,
		},
		{
			name:        "failure: empty handle",
			handle:      "   ",
			password:    "password123",
			wantErr:     domain.ErrValidation,
			wantMessage: "handle is required",
		},
		{
			name:        "failure: handle is not an email",
			handle:      "alice",
			password:    "password123",
			wantErr:     domain.ErrValidation,
			wantMessage: "handle must be a valid email address",
		},
		{
			name:        "failure: handle too long",
			handle:      strings.Repeat("a", 250) + "@example.com",
			password:    "password123",
			wantErr:     domain.ErrValidation,
			wantMessage: "handle must be at most 255 characters",
		},
		{
			name:        "failure: short password",
			handle:      "alice@example.com",
			password:    "abc123",
			wantErr:     domain.ErrValidation,
			wantMessage: "password must be between 8 and 72 bytes",
		},
		{
			name:        "failure: password longer than bcrypt accepts",
			handle:      "alice@example.com",
			password:    strings.Repeat("a1", 37),
			wantErr:     domain.ErrValidation,
			wantMessage: "password must be between 8 and 72 bytes",
		},
		{
			name:        "failure: password without digit",
			handle:      "alice@example.com",
			password:    "passwordonly",
			wantErr:     domain.ErrValidation,
			wantMessage: "password must contain at least one letter and one digit",
		},
		{
			name:        "failure: password without letter",
			handle:      "alice@example.com",
			password:    "1234567890",
			wantErr:     domain.ErrValidation,
			wantMessage: "password must contain at least one letter and one digit",
		},
		{
			name:       "failure: duplicate handle",
			handle:     "alice@example.com",
			password:   "password123",
			createErr:  domain.ErrDuplicateHandle,
			wantErr:    domain.ErrDuplicateHandle,
			wantCreate: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var stored *entity.User
			repo := &mockUserRepository{
				CreateFunc: func(ctx context.Context, user *entity.User) error {
					if tt.createErr != nil {
						return tt.createErr
					}
					stored = user
					user.ID = 7
					user.CreatedAt = fixedNow
					return nil
				},
			}
			uc := newTestUsecase(repo, &mockTokenIssuer{})

			user, err := uc.Register(context.Background(), tt.handle, tt.password)

			if tt.wantCreate {
				assert.Equal(t, 1, repo.createCalls)
			} else {
				assert.Zero(t, repo.createCalls, "storage must not be touched on invalid input")
			}

			if tt.wantErr != nil {
				require.Error(t, err)
				assert.ErrorIs(t, err, tt.wantErr)
				if tt.wantMessage != "" {
					assert.Equal(t, tt.wantMessage, apperr.PublicMessage(err))
				}
				assert.Nil(t, user)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, uint(7), user.ID)
			assert.Equal(t, "alice@example.com", user.Handle)
			require.NotNil(t, stored)
			assert.NotEqual(t, tt.password, stored.PasswordHash, "password must be hashed")
			assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(stored.PasswordHash), []byte(tt.password)))
		})
	}
}

// TestAuthUsecase_Register_ConnectionErrorPassesThrough はストア障害がServiceUnavailableとして伝播することを検証します。
func TestAuthUsecase_Register_ConnectionErrorPassesThrough(t *testing.T) {
	t.Parallel()

	storeErr := apperr.Wrap(apperr.KindServiceUnavailable, "store down", errors.New("connection refused"))
	repo := &mockUserRepository{
		CreateFunc: func(ctx context.Context, user *entity.User) error { return storeErr },
	}
	uc := newTestUsecase(repo, &mockTokenIssuer{})

	_, err := uc.Register(context.Background(), "alice@example.com", "password123")

	require.Error(t, err)
	assert.Equal(t, apperr.KindServiceUnavailable, apperr.KindOf(err))
}

func TestAuthUsecase_Login(t *testing.T) {
	t.Parallel()

	existing := &entity.User{ID: 42, Handle: "alice@example.com", PasswordHash: hashFor(t, "password123")}

	tests := []struct {
		name      string
		handle    string
		password  string
		findFunc  func(ctx context.Context, handle string) (*entity.User, error)
		tokenFunc func(userID uint, handle string) (string, time.Time, error)
		wantErr   error
		wantKind  apperr.Kind
	}{
		{
			name:     "success",
			handle:   "alice@example.com",
			password: "password123",
			findFunc: func(ctx context.Context, handle string) (*entity.User, error) { return existing, nil },
		},
		{
			name:     "failure: unknown handle",
			handle:   "nobody@example.com",
			password: "password123",
			findFunc: func(ctx context.Context, handle string) (*entity.User, error) { return nil, ErrUserNotFound },
			wantErr:  domain.ErrInvalidCredentials,
			wantKind: apperr.KindInvalidCredentials,
		},
		{
			name:     "failure: wrong password",
			handle:   "alice@example.com",
			password: "wrongpass1",
			findFunc: func(ctx context.Context, handle string) (*entity.User, error) { return existing, nil },
			wantErr:  domain.ErrInvalidCredentials,
			wantKind: apperr.KindInvalidCredentials,
		},
		{
			name:     "failure: store unavailable",
			handle:   "alice@example.com",
			password: "password123",
			findFunc: func(ctx context.Context, handle string) (*entity.User, error) {
				return nil, context.DeadlineExceeded
			},
			wantKind: apperr.KindServiceUnavailable,
		},
		{
			name:     "failure: token signing",
			handle:   "alice@example.com",
			password: "password123",
			findFunc: func(ctx context.Context, handle string) (*entity.User, error) { return existing, nil },
			tokenFunc: func(userID uint, handle string) (string, time.Time, error) {
				return "", time.Time{}, errors.New("signing failed")
			},
			wantKind: apperr.KindUnexpected,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			repo := &mockUserRepository{FindByHandleFunc: tt.findFunc}
			uc := newTestUsecase(repo, &mockTokenIssuer{GenerateTokenFunc: tt.tokenFunc})

			token, err := uc.Login(context.Background(), tt.handle, tt.password)

			if tt.wantKind != "" {
				require.Error(t, err)
				assert.Nil(t, token)
				assert.Equal(t, tt.wantKind, apperr.KindOf(err))
				if tt.wantErr != nil {
					assert.ErrorIs(t, err, tt.wantErr)
				}
				return
			}

			require.NoError(t, err)
			assert.Equal(t, "mock-jwt-token", token.AccessToken)
			assert.Equal(t, entity.TokenTypeBearer, token.TokenType)
			assert.Equal(t, int64(1800), token.ExpiresIn)
		})
	}
}

// TestAuthUsecase_Login_UnknownAndWrongPasswordAreIndistinguishable は未登録とパスワード誤りが同じエラーになることを検証します。
func TestAuthUsecase_Login_UnknownAndWrongPasswordAreIndistinguishable(t *testing.T) {
	t.Parallel()

	existing := &entity.User{ID: 1, Handle: "alice@example.com", PasswordHash: hashFor(t, "password123")}
	repo := &mockUserRepository{
		FindByHandleFunc: func(ctx context.Context, handle string) (*entity.User, error) {
			if handle == existing.Handle {
				return existing, nil
			}
			return nil, ErrUserNotFound
		},
	}
	uc := newTestUsecase(repo, &mockTokenIssuer{})

	_, errUnknown := uc.Login(context.Background(), "nobody@example.com", "password123")
	_, errWrong := uc.Login(context.Background(), "alice@example.com", "password999")

	require.Error(t, errUnknown)
	require.Error(t, errWrong)
	assert.Equal(t, errUnknown.Error(), errWrong.Error())
	assert.Equal(t, apperr.PublicMessage(errUnknown), apperr.PublicMessage(errWrong))
}

// TestAuthUsecase_Login_DummyHashUsesConfiguredCost はダミーハッシュが実ユーザーと同じコストで生成されることを検証します。
func TestAuthUsecase_Login_DummyHashUsesConfiguredCost(t *testing.T) {
	t.Parallel()

	uc := NewAuthUsecase(&mockUserRepository{}, &mockTokenIssuer{}, WithBcryptCost(bcrypt.MinCost+1))

	_, err := uc.Login(context.Background(), "nobody@example.com", "password123")
	require.ErrorIs(t, err, domain.ErrInvalidCredentials)

	cost, err := bcrypt.Cost(uc.dummyHash)
	require.NoError(t, err)
	assert.Equal(t, bcrypt.MinCost+1, cost)
}

// TestAuthUsecase_Login_UnknownHandleDoesNotHash は未登録ハンドルのログインで新たなハッシュ生成が走らず、
// パスワード誤りと同じ回数の比較だけが行われることを検証します。
func TestAuthUsecase_Login_UnknownHandleDoesNotHash(t *testing.T) {
	t.Parallel()

	existing := &entity.User{ID: 1, Handle: "alice@example.com", PasswordHash: hashFor(t, "password123")}
	repo := &mockUserRepository{
		FindByHandleFunc: func(ctx context.Context, handle string) (*entity.User, error) {
			if handle == existing.Handle {
				return existing, nil
			}
			return nil, ErrUserNotFound
		},
	}
	uc := newTestUsecase(repo, &mockTokenIssuer{})
	require.NotEmpty(t, uc.dummyHash)

	var generated, compared int
	uc.generate = func(password []byte, cost int) ([]byte, error) {
		generated++
		return bcrypt.GenerateFromPassword(password, cost)
	}
	uc.compare = func(hashed, password []byte) error {
		compared++
		return bcrypt.CompareHashAndPassword(hashed, password)
	}

	_, err := uc.Login(context.Background(), "nobody@example.com", "password123")
	require.ErrorIs(t, err, domain.ErrInvalidCredentials)
	assert.Equal(t, 0, generated)
	unknownCompares := compared

	compared = 0
	_, err = uc.Login(context.Background(), "alice@example.com", "password999")
	require.ErrorIs(t, err, domain.ErrInvalidCredentials)
	assert.Equal(t, 0, generated)
	assert.Equal(t, unknownCompares, compared)
	assert.Equal(t, 1, compared)
}

func TestAuthUsecase_Login_NormalizesHandle(t *testing.T) {
	t.Parallel()

	repo := &mockUserRepository{}
	uc := newTestUsecase(repo, &mockTokenIssuer{})

	_, _ = uc.Login(context.Background(), "  Alice@Example.com ", "password123")

	require.Len(t, repo.findByHandle, 1)
	assert.Equal(t, "alice@example.com", repo.findByHandle[0])
}

func TestAuthUsecase_Me(t *testing.T) {
	t.Parallel()

	existing := &entity.User{ID: 3, Handle: "carol@example.com"}
	repo := &mockUserRepository{
		FindByIDFunc: func(ctx context.Context, id uint) (*entity.User, error) {
			if id == existing.ID {
				return existing, nil
			}
			return nil, ErrUserNotFound
		},
	}
	uc := newTestUsecase(repo, &mockTokenIssuer{})

	user, err := uc.Me(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, existing, user)

	_, err = uc.Me(context.Background(), 99)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
	assert.Equal(t, apperr.KindUnauthorized, apperr.KindOf(err))
}
