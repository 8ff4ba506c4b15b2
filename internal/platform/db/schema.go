package db

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"gorm.io/gorm"
)

// SchemaStatus はスキーマ初期化の状態です。
type SchemaStatus string

const (
	SchemaPending SchemaStatus = "pending"
	SchemaReady   SchemaStatus = "ready"
	SchemaFailed  SchemaStatus = "failed"
)

// Acquirer は生存確認済みの接続を返すものです。*Provider が実装します。
type Acquirer interface {
	Acquire(ctx context.Context) (*gorm.DB, error)
}

// SchemaInitializer は必要なテーブルの存在をプロセスごとに一度だけ保証します。
// DDLは冪等（存在しなければ作成）で、複数インスタンスのコールドスタートが競合しても安全です。
// 失敗してもプロセスは止めず、最小間隔をあけて次の利用時に再試行します。
type SchemaInitializer struct {
	conn          Acquirer
	models        []any
	migrate       bool
	timeout       time.Duration
	retryInterval time.Duration
	logger        *slog.Logger
	now           func() time.Time

	done  atomic.Bool
	state atomic.Value // SchemaStatus

	mu          sync.Mutex
	lastAttempt time.Time
	lastErr     error
}

// SchemaOption はSchemaInitializerの生成オプションです。
type SchemaOption func(*SchemaInitializer)

// WithSchemaTimeout は1回の初期化試行の上限時間を設定します。
func WithSchemaTimeout(d time.Duration) SchemaOption {
	return func(s *SchemaInitializer) { s.timeout = d }
}

// WithRetryInterval は失敗後に再試行を許可するまでの最小間隔を設定します。
func WithRetryInterval(d time.Duration) SchemaOption {
	return func(s *SchemaInitializer) { s.retryInterval = d }
}

// WithMigrations が false の場合、DDLは発行せず存在確認のみ行います。
func WithMigrations(enabled bool) SchemaOption {
	return func(s *SchemaInitializer) { s.migrate = enabled }
}

// WithClock は時刻の取得元を差し替えます。
func WithClock(now func() time.Time) SchemaOption {
	return func(s *SchemaInitializer) { s.now = now }
}

// NewSchemaInitializer は models のテーブルを管理するSchemaInitializerを生成します。
func NewSchemaInitializer(conn Acquirer, logger *slog.Logger, models []any, opts ...SchemaOption) *SchemaInitializer {
	s := &SchemaInitializer{
		conn:          conn,
		models:        models,
		migrate:       true,
		timeout:       15 * time.Second,
		retryInterval: 5 * time.Second,
		logger:        logger,
		now:           time.Now,
	}
	s.state.Store(SchemaPending)
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// EnsureSchema はスキーマを初期化します。成功後は何もしません。
// 直近の失敗から retryInterval 以内の呼び出しは、ストアに触れず前回のエラーを返します。
func (s *SchemaInitializer) EnsureSchema(ctx context.Context) error {
	if s.done.Load() {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done.Load() {
		return nil
	}
	if s.lastErr != nil && s.now().Sub(s.lastAttempt) < s.retryInterval {
		return s.lastErr
	}
	s.lastAttempt = s.now()

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if err := s.apply(ctx); err != nil {
		s.lastErr = &SchemaError{Cause: err}
		s.state.Store(SchemaFailed)
		return s.lastErr
	}

	s.lastErr = nil
	s.state.Store(SchemaReady)
	s.done.Store(true)
	s.logger.Info("database schema ready", "tables", len(s.models), "migrations", s.migrate)
	return nil
}

// Status は現在の初期化状態を返します。初期化中でもブロックしません。
func (s *SchemaInitializer) Status() SchemaStatus {
	return s.state.Load().(SchemaStatus)
}

// Ready は初期化が完了しているかを返します。
func (s *SchemaInitializer) Ready() bool {
	return s.done.Load()
}

func (s *SchemaInitializer) apply(ctx context.Context) error {
	db, err := s.conn.Acquire(ctx)
	if err != nil {
		return err
	}
	migrator := db.Migrator()
	for _, model := range s.models {
		if !s.migrate {
			if !migrator.HasTable(model) {
				return fmt.Errorf("table for %T is missing and migrations are disabled", model)
			}
			continue
		}
		if err := db.AutoMigrate(model); err != nil {
			// 別インスタンスが同時にCREATEした場合はここに来る。テーブルがあれば成功とみなす
			if migrator.HasTable(model) {
				s.logger.Warn("auto migrate reported an error but table exists", "model", fmt.Sprintf("%T", model), "error", err)
				continue
			}
			return fmt.Errorf("failed to migrate %T: %w", model, err)
		}
	}
	return nil
}
