package db

import (
	"context"
	"database/sql"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
	"gorm.io/gorm"
)

// Provider は接続プールを所有するリソースマネージャです。
// プールは最初の Acquire で生成され（コールドスタートではストア不在でも起動できる）、
// 失効していれば Acquire 1回につき最大1度だけ作り直されます。
// 生成はロックの外で singleflight により1本にまとめられ、待機側は自身の ctx の期限で抜けます。
type Provider struct {
	cfg    Config
	dsn    string
	open   Opener
	logger *slog.Logger

	flight singleflight.Group

	mu sync.Mutex
	db *gorm.DB
}

// ProviderOption はProviderの生成オプションです。
type ProviderOption func(*Provider)

// WithOpener は接続関数を差し替えます。
func WithOpener(open Opener) ProviderOption {
	return func(p *Provider) {
		if open != nil {
			p.open = open
		}
	}
}

// NewProvider はProviderを生成します。この時点ではストアに接続しません。
func NewProvider(cfg Config, logger *slog.Logger, opts ...ProviderOption) *Provider {
	p := &Provider{
		cfg:    cfg,
		dsn:    BuildDSN(cfg),
		open:   DefaultOpener(cfg.Dialect()),
		logger: logger,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Acquire はpingで生存確認済みの、ctxに束縛されたgorm.DBを返します。
// ストアに到達できない場合は *ConnectionError を返します。
func (p *Provider) Acquire(ctx context.Context) (*gorm.DB, error) {
	db, err := p.current(ctx)
	if err != nil {
		return nil, &ConnectionError{Op: "open", Cause: err}
	}

	pingErr := p.ping(ctx, db)
	if pingErr == nil {
		return db.WithContext(ctx), nil
	}
	// 呼び出し側のキャンセルや期限切れはプールの失効ではない
	if ctx.Err() != nil {
		return nil, &ConnectionError{Op: "ping", Cause: pingErr}
	}

	// 失効したプールは1度だけ作り直す
	p.logger.Warn("database ping failed, recreating pool", "error", pingErr)
	db, err = p.reopen(ctx, db)
	if err != nil {
		return nil, &ConnectionError{Op: "reopen", Cause: err}
	}
	if err := p.ping(ctx, db); err != nil {
		return nil, &ConnectionError{Op: "ping", Cause: err}
	}
	return db.WithContext(ctx), nil
}

// WithConn はプールから専有接続を1本借りて fn を実行し、どの経路で抜けても必ず返却します。
// fn は渡された tx のみを使い、呼び出し後に保持してはいけません。
func (p *Provider) WithConn(ctx context.Context, fn func(tx *gorm.DB) error) error {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.QueryTimeout)
	defer cancel()

	db, err := p.Acquire(ctx)
	if err != nil {
		return err
	}
	if err := db.Connection(fn); err != nil {
		if isConnectionFailure(err) {
			return &ConnectionError{Op: "query", Cause: err}
		}
		return err
	}
	return nil
}

// Ping はヘルスチェック用にストアの到達性を確認します。
func (p *Provider) Ping(ctx context.Context) error {
	_, err := p.Acquire(ctx)
	return err
}

// Stats はプールが存在する場合にその統計を返します。
func (p *Provider) Stats() (sql.DBStats, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.db == nil {
		return sql.DBStats{}, false
	}
	sqlDB, err := p.db.DB()
	if err != nil {
		return sql.DBStats{}, false
	}
	return sqlDB.Stats(), true
}

// Close はプールを閉じます。再度 Acquire すれば新しいプールが作られます。
func (p *Provider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.db == nil {
		return nil
	}
	err := closeDB(p.db)
	p.db = nil
	return err
}

func (p *Provider) current(ctx context.Context) (*gorm.DB, error) {
	p.mu.Lock()
	db := p.db
	p.mu.Unlock()
	if db != nil {
		return db, nil
	}
	return p.reopen(ctx, nil)
}

// reopen は stale を置き換える新しいプールを返します。stale が nil なら未生成のプールを開きます。
// 同時に呼ばれた場合は1回の生成を共有し、各呼び出し側は自身の ctx が切れた時点で諦めます。
func (p *Provider) reopen(ctx context.Context, stale *gorm.DB) (*gorm.DB, error) {
	ch := p.flight.DoChan("open", func() (any, error) {
		// 生成は最初の呼び出し側のキャンセルに巻き込まれない
		return p.replace(context.WithoutCancel(ctx), stale)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*gorm.DB), nil
	}
}

func (p *Provider) replace(ctx context.Context, stale *gorm.DB) (*gorm.DB, error) {
	p.mu.Lock()
	if p.db != nil && p.db != stale {
		db := p.db
		p.mu.Unlock()
		return db, nil
	}
	p.mu.Unlock()

	db, err := ConnectWithRetry(ctx, p.logger, p.dsn, p.cfg.ConnectTimeout, p.cfg.RetryInterval, p.open)
	if err != nil {
		return nil, err
	}
	if err := configurePool(db, p.cfg); err != nil {
		_ = closeDB(db)
		return nil, err
	}

	p.mu.Lock()
	old := p.db
	p.db = db
	p.mu.Unlock()
	p.logger.Info("database pool opened", "dialect", p.cfg.Dialect(), "max_open_conns", p.cfg.MaxOpenConns)

	if old != nil {
		p.retire(old)
	}
	return db, nil
}

// retire は置き換えたプールを、借用中の呼び出しが終わる猶予を置いてから閉じます。
func (p *Provider) retire(old *gorm.DB) {
	grace := p.cfg.PingTimeout + p.cfg.QueryTimeout
	time.AfterFunc(grace, func() {
		if err := closeDB(old); err != nil {
			p.logger.Debug("closing retired pool failed", "error", err)
		}
	})
}

func (p *Provider) ping(ctx context.Context, db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, p.cfg.PingTimeout)
	defer cancel()
	return sqlDB.PingContext(ctx)
}

func closeDB(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
