package db

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"auth_backend/internal/platform/logging"
	"auth_backend/internal/shared/apperr"
)

type widget struct {
	ID   uint   `gorm:"primaryKey"`
	Name string `gorm:"uniqueIndex;size:64;not null"`
}

// flakyAcquirer は fail が true の間は接続エラーを返し、それ以外は next に委譲します。
type flakyAcquirer struct {
	next  Acquirer
	fail  atomic.Bool
	calls atomic.Int32
}

func (f *flakyAcquirer) Acquire(ctx context.Context) (*gorm.DB, error) {
	f.calls.Add(1)
	if f.fail.Load() {
		return nil, &ConnectionError{Op: "open", Cause: errors.New("connection refused")}
	}
	return f.next.Acquire(ctx)
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func TestEnsureSchema_CreatesTablesOnce(t *testing.T) {
	t.Parallel()

	p, _ := newTestProvider(t, testConfig(":memory:"))
	acq := &flakyAcquirer{next: p}
	s := NewSchemaInitializer(acq, logging.Discard(), []any{&widget{}})

	assert.Equal(t, SchemaPending, s.Status())
	require.NoError(t, s.EnsureSchema(context.Background()))
	require.NoError(t, s.EnsureSchema(context.Background()))

	assert.Equal(t, SchemaReady, s.Status())
	assert.True(t, s.Ready())
	assert.Equal(t, int32(1), acq.calls.Load(), "a completed initializer must not touch the store again")

	db, err := p.Acquire(context.Background())
	require.NoError(t, err)
	assert.True(t, db.Migrator().HasTable(&widget{}))
}

// TestEnsureSchema_ThrottlesRetries は失敗直後の再試行がストアに触れず、間隔経過後に再試行されることを検証します。
func TestEnsureSchema_ThrottlesRetries(t *testing.T) {
	t.Parallel()

	p, _ := newTestProvider(t, testConfig(":memory:"))
	acq := &flakyAcquirer{next: p}
	acq.fail.Store(true)
	clock := &fakeClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	s := NewSchemaInitializer(acq, logging.Discard(), []any{&widget{}},
		WithRetryInterval(5*time.Second), WithClock(clock.Now))

	err := s.EnsureSchema(context.Background())
	require.Error(t, err)
	var schemaErr *SchemaError
	require.ErrorAs(t, err, &schemaErr)
	assert.Equal(t, apperr.KindServiceUnavailable, apperr.KindOf(err))
	assert.Equal(t, SchemaFailed, s.Status())

	clock.Advance(time.Second)
	require.Error(t, s.EnsureSchema(context.Background()))
	assert.Equal(t, int32(1), acq.calls.Load())

	acq.fail.Store(false)
	clock.Advance(5 * time.Second)
	require.NoError(t, s.EnsureSchema(context.Background()))
	assert.Equal(t, int32(2), acq.calls.Load())
	assert.Equal(t, SchemaReady, s.Status())
}

// TestEnsureSchema_MigrationsDisabled はマイグレーション無効時にテーブル不在を失敗として報告することを検証します。
func TestEnsureSchema_MigrationsDisabled(t *testing.T) {
	t.Parallel()

	p, _ := newTestProvider(t, testConfig(":memory:"))
	s := NewSchemaInitializer(p, logging.Discard(), []any{&widget{}}, WithMigrations(false), WithRetryInterval(0))

	err := s.EnsureSchema(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "migrations are disabled")
	assert.Equal(t, SchemaFailed, s.Status())

	db, err := p.Acquire(context.Background())
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&widget{}))

	require.NoError(t, s.EnsureSchema(context.Background()))
	assert.Equal(t, SchemaReady, s.Status())
}

// TestEnsureSchema_Concurrent は同時に呼ばれても全員が成功を観測することを検証します。
func TestEnsureSchema_Concurrent(t *testing.T) {
	t.Parallel()

	p, _ := newTestProvider(t, testConfig(":memory:"))
	acq := &flakyAcquirer{next: p}
	s := NewSchemaInitializer(acq, logging.Discard(), []any{&widget{}})

	var wg sync.WaitGroup
	errs := make(chan error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- s.EnsureSchema(context.Background())
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, int32(1), acq.calls.Load())
}
