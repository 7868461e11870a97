package redis

import (
	"context"
	"errors"
	"time"

	"github.com/idorecall/referral-service/internal/domain/user"
)

// UserCache implements the user.Cache interface using the generic Redis Cache.
// Records are stored twice: under their ID and under their referral code.
type UserCache struct {
	cache *Cache
}

// NewUserCache creates a new UserCache.
func NewUserCache(cache *Cache) *UserCache {
	return &UserCache{
		cache: cache,
	}
}

// Get gets a user from cache by ID.
func (c *UserCache) Get(ctx context.Context, userID string) (*user.User, error) {
	var u user.User
	if err := c.cache.Get(ctx, UserKey(userID), &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// Set stores a user in cache under their ID.
func (c *UserCache) Set(ctx context.Context, u *user.User, ttl time.Duration) error {
	if u == nil {
		return nil
	}
	return c.cache.Set(ctx, UserKey(u.ID), u, ttl)
}

// GetByCode gets a user from cache by referral code.
func (c *UserCache) GetByCode(ctx context.Context, code user.ReferralCode) (*user.User, error) {
	var u user.User
	if err := c.cache.Get(ctx, CodeKey(code.String()), &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// SetByCode stores a user in cache keyed by their referral code.
func (c *UserCache) SetByCode(ctx context.Context, u *user.User, ttl time.Duration) error {
	if u == nil {
		return nil
	}
	return c.cache.Set(ctx, CodeKey(u.ReferralCode.String()), u, ttl)
}

// Invalidate removes all entries for a user. The code key is discovered
// from the cached record itself; if the ID entry already expired the
// code entry is left to its own TTL.
func (c *UserCache) Invalidate(ctx context.Context, userID string) error {
	keys := []string{UserKey(userID)}

	cached, err := c.Get(ctx, userID)
	if err == nil && cached != nil {
		keys = append(keys, CodeKey(cached.ReferralCode.String()))
	} else if err != nil && !errors.Is(err, ErrCacheMiss) {
		return err
	}

	return c.cache.Delete(ctx, keys...)
}

// InvalidateAll clears all user cache entries.
func (c *UserCache) InvalidateAll(ctx context.Context) error {
	if err := c.cache.DeleteByPattern(ctx, PrefixUser+"*"); err != nil {
		return err
	}
	return c.cache.DeleteByPattern(ctx, PrefixCode+"*")
}

var _ user.Cache = (*UserCache)(nil)
