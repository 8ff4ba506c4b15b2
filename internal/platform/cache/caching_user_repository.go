// Package cache provides caching implementations for repository interfaces.
package cache

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"auth_backend/internal/feature/auth/domain/entity"
	"auth_backend/internal/feature/auth/usecase"
)

// CachingUserRepository decorates a UserRepository with Redis caching of lookups by id.
// Users are never updated after creation, so a cached entry cannot go stale.
// Lookups by handle always reach the store because login needs the password hash,
// which is never written to the cache.
type CachingUserRepository struct {
	inner     usecase.UserRepository
	rdb       *redis.Client
	ttl       time.Duration
	namespace string
}

var _ usecase.UserRepository = (*CachingUserRepository)(nil)

// cachedUser is the cached projection of a user. It has no password field.
type cachedUser struct {
	ID        uint      `json:"id"`
	Handle    string    `json:"handle"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewCachingUserRepository decorates a UserRepository with Redis caching.
// If ttl is 0, it defaults to 5 minutes. If namespace is empty, it uses "users".
func NewCachingUserRepository(rdb *redis.Client, ttl time.Duration, inner usecase.UserRepository, namespace string) *CachingUserRepository {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	if namespace == "" {
		namespace = "users"
	}
	return &CachingUserRepository{
		inner:     inner,
		rdb:       rdb,
		ttl:       ttl,
		namespace: namespace,
	}
}

// Create stores the user in the underlying repository.
func (c *CachingUserRepository) Create(ctx context.Context, u *entity.User) error {
	return c.inner.Create(ctx, u)
}

// FindByHandle always reads from the underlying repository.
func (c *CachingUserRepository) FindByHandle(ctx context.Context, handle string) (*entity.User, error) {
	return c.inner.FindByHandle(ctx, handle)
}

// FindByID retrieves a user, checking cache first then falling back to the database.
// The returned user has an empty PasswordHash when it came from the cache.
func (c *CachingUserRepository) FindByID(ctx context.Context, id uint) (*entity.User, error) {
	// Bypass cache if Redis is not configured
	if c.rdb == nil {
		return c.inner.FindByID(ctx, id)
	}

	key := c.cacheKey(id)

	// 1) Check cache
	if b, err := c.rdb.Get(ctx, key).Bytes(); err == nil && len(b) > 0 {
		var cu cachedUser
		if err := json.Unmarshal(b, &cu); err == nil && cu.ID == id {
			return &entity.User{ID: cu.ID, Handle: cu.Handle, CreatedAt: cu.CreatedAt, UpdatedAt: cu.UpdatedAt}, nil
		}
		// Delete corrupted cache entry
		_ = c.rdb.Del(ctx, key).Err()
	}

	// 2) Fallback to database (not-found results are not cached)
	u, err := c.inner.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	// 3) Store in cache (best effort)
	if b, err := json.Marshal(toCached(u)); err == nil {
		_ = c.rdb.Set(ctx, key, b, c.ttl).Err()
	}
	return u, nil
}

func toCached(u *entity.User) cachedUser {
	return cachedUser{ID: u.ID, Handle: u.Handle, CreatedAt: u.CreatedAt, UpdatedAt: u.UpdatedAt}
}

// cacheKey generates a cache key for a user id.
func (c *CachingUserRepository) cacheKey(id uint) string {
	return c.namespace + ":id:" + strconv.FormatUint(uint64(id), 10)
}
