// Package db はリレーショナルストアへの接続プールを管理します。
// 短命なサーバーレス実行を前提に、遅延初期化・使用前のping・失効した接続プールの再生成を行います。
package db

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"auth_backend/internal/shared/envx"
)

const (
	DialectPostgres = "postgres"
	DialectSQLite   = "sqlite"
)

// Config はデータベース接続設定です。すべて環境変数から与えられます。
type Config struct {
	// URL は DATABASE_URL。設定されていれば個別項目より優先されます。
	URL string

	User     string
	Password string
	Name     string
	Host     string
	Port     string
	SSLMode  string

	// SQLitePath は URL も Host も未設定のときに使うローカル開発用のファイルです。
	SQLitePath string

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxIdleTime time.Duration
	ConnMaxLifetime time.Duration

	// ConnectTimeout はプール生成（リトライ込み）の上限時間です。
	ConnectTimeout time.Duration
	// RetryInterval は接続リトライの間隔です。
	RetryInterval time.Duration
	// PingTimeout は使用前pingの上限時間です。
	PingTimeout time.Duration
	// QueryTimeout は1回の論理操作（WithConn）の上限時間です。
	QueryTimeout time.Duration

	// RunMigrations が false の場合、スキーマ初期化はテーブルの存在確認のみ行います。
	RunMigrations bool
}

// LoadConfigFromEnv は環境変数からデータベース設定を読み込みます。
func LoadConfigFromEnv() Config {
	return Config{
		URL:             envx.String("DATABASE_URL", ""),
		User:            envx.String("DB_USER", ""),
		Password:        envx.String("DB_PASSWORD", ""),
		Name:            envx.String("DB_NAME", ""),
		Host:            envx.String("DB_HOST", ""),
		Port:            envx.String("DB_PORT", "5432"),
		SSLMode:         envx.String("DB_SSLMODE", "require"),
		SQLitePath:      envx.String("SQLITE_PATH", "auth.db"),
		MaxOpenConns:    envx.Int("DB_MAX_OPEN_CONNS", 5),
		MaxIdleConns:    envx.Int("DB_MAX_IDLE_CONNS", 2),
		ConnMaxIdleTime: envx.Duration("DB_CONN_MAX_IDLE_TIME", 30*time.Second),
		ConnMaxLifetime: envx.Duration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
		ConnectTimeout:  envx.Duration("DB_CONNECT_TIMEOUT", 10*time.Second),
		RetryInterval:   envx.Duration("DB_RETRY_INTERVAL", 500*time.Millisecond),
		PingTimeout:     envx.Duration("DB_PING_TIMEOUT", 2*time.Second),
		QueryTimeout:    envx.Duration("DB_QUERY_TIMEOUT", 10*time.Second),
		RunMigrations:   envx.Bool("RUN_MIGRATIONS", true),
	}
}

// Dialect は接続先の種類を返します。
func (c Config) Dialect() string {
	if c.URL != "" {
		if strings.HasPrefix(c.URL, "postgres://") || strings.HasPrefix(c.URL, "postgresql://") {
			return DialectPostgres
		}
		return DialectSQLite
	}
	if c.Host != "" {
		return DialectPostgres
	}
	return DialectSQLite
}

// Validate は矛盾した設定を検出します。
func (c Config) Validate() error {
	if c.MaxOpenConns < 1 {
		return fmt.Errorf("DB_MAX_OPEN_CONNS must be positive, got %d", c.MaxOpenConns)
	}
	if c.MaxIdleConns < 0 || c.MaxIdleConns > c.MaxOpenConns {
		return fmt.Errorf("DB_MAX_IDLE_CONNS must be between 0 and %d, got %d", c.MaxOpenConns, c.MaxIdleConns)
	}
	if c.ConnectTimeout <= 0 || c.PingTimeout <= 0 || c.QueryTimeout <= 0 {
		return errors.New("database timeouts must be positive")
	}
	if c.Dialect() == DialectPostgres && c.URL == "" && (c.User == "" || c.Name == "") {
		return errors.New("DB_USER and DB_NAME are required when DB_HOST is set")
	}
	return nil
}

// BuildDSN は設定から接続文字列を組み立てます。
// postgres の場合は connect_timeout を付与し、1回の接続試行が無期限に待たないようにします。
func BuildDSN(cfg Config) string {
	switch cfg.Dialect() {
	case DialectPostgres:
		if cfg.URL != "" {
			return withConnectTimeout(cfg.URL, cfg.ConnectTimeout)
		}
		u := url.URL{
			Scheme: "postgres",
			User:   url.UserPassword(cfg.User, cfg.Password),
			Host:   net.JoinHostPort(cfg.Host, cfg.Port),
			Path:   "/" + cfg.Name,
		}
		q := url.Values{}
		if cfg.SSLMode != "" {
			q.Set("sslmode", cfg.SSLMode)
		}
		u.RawQuery = q.Encode()
		return withConnectTimeout(u.String(), cfg.ConnectTimeout)
	default:
		if cfg.URL != "" {
			return strings.TrimPrefix(cfg.URL, "sqlite://")
		}
		return cfg.SQLitePath
	}
}

func withConnectTimeout(dsn string, timeout time.Duration) string {
	if timeout <= 0 || strings.Contains(dsn, "connect_timeout=") {
		return dsn
	}
	secs := int((timeout + time.Second - 1) / time.Second)
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + "connect_timeout=" + strconv.Itoa(secs)
}

// Opener はDSNからgorm.DBを生成する関数です。ctx は1回の接続試行の期限です。
// テストではフェイクに差し替えます。
type Opener func(ctx context.Context, dsn string) (*gorm.DB, error)

func gormConfig() *gorm.Config {
	return &gorm.Config{
		// 一意制約違反などを gorm.ErrDuplicatedKey に変換する
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	}
}

// DefaultOpener はdialectに対応するgormドライバでDBを開きます。
// postgres は ctx に束縛されたpingで到達性を確認するため、到達不能なストアはここでエラーになります。
func DefaultOpener(dialect string) Opener {
	if dialect == DialectPostgres {
		return openPostgres
	}
	return func(_ context.Context, dsn string) (*gorm.DB, error) {
		return gorm.Open(sqlite.Open(dsn), gormConfig())
	}
}

func openPostgres(ctx context.Context, dsn string) (*gorm.DB, error) {
	connCfg, err := pgx.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	sqlDB := stdlib.OpenDB(*connCfg)
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}

	cfg := gormConfig()
	cfg.DisableAutomaticPing = true
	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), cfg)
	if err != nil {
		_ = sqlDB.Close()
		return nil, err
	}
	return db, nil
}

// ConnectWithRetry は timeout に達するまで interval ごとに接続を試みます。
// 各試行には残り時間を期限とする ctx が渡され、ctx がキャンセルされた場合も即座に諦めます。
func ConnectWithRetry(ctx context.Context, log *slog.Logger, dsn string, timeout, interval time.Duration, opener Opener) (*gorm.DB, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	deadline, _ := ctx.Deadline()

	for attempt := 1; ; attempt++ {
		db, err := opener(ctx, dsn)
		if err == nil {
			return db, nil
		}
		if ctx.Err() != nil {
			return nil, fmt.Errorf("connect failed after %d attempt(s): %w", attempt, errors.Join(ctx.Err(), err))
		}
		if time.Now().Add(interval).After(deadline) {
			return nil, fmt.Errorf("connect failed after %d attempt(s): %w", attempt, err)
		}
		log.Warn("database connect failed, retrying", "attempt", attempt, "error", err)

		timer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, errors.Join(ctx.Err(), err)
		case <-timer.C:
		}
	}
}

// configurePool は接続数の上限とアイドル接続の短時間での破棄を設定します。
// サーバーレスでは多数のインスタンスが同時に存在するため、上限を小さく保つことが重要です。
func configurePool(db *gorm.DB, cfg Config) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	if cfg.Dialect() == DialectSQLite && isMemoryDSN(BuildDSN(cfg)) {
		// インメモリDBは接続ごとに別DBになるため、単一接続を保持し続ける
		sqlDB.SetMaxOpenConns(1)
		sqlDB.SetMaxIdleConns(1)
		sqlDB.SetConnMaxIdleTime(0)
		sqlDB.SetConnMaxLifetime(0)
		return nil
	}
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	return nil
}

func isMemoryDSN(dsn string) bool {
	return dsn == ":memory:" || strings.Contains(dsn, "mode=memory") || strings.HasPrefix(dsn, "file::memory:")
}
