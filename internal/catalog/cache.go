package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/joao-fontenele/catering-orders/internal/domain"
)

const activeMenusKey = "catalog:menus:active"

type MenuReader interface {
	Get(ctx context.Context, id int64) (*domain.Menu, error)
	ListActive(ctx context.Context) ([]domain.Menu, error)
}

// CachedMenus serves the public active-menu listing from Redis, falling
// back to the underlying reader on a miss or when Redis misbehaves.
// Pricing never reads through this cache.
type CachedMenus struct {
	next   MenuReader
	rdb    redis.Cmdable
	ttl    time.Duration
	logger *zap.Logger
}

func NewCachedMenus(next MenuReader, rdb redis.Cmdable, ttl time.Duration, logger *zap.Logger) *CachedMenus {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &CachedMenus{next: next, rdb: rdb, ttl: ttl, logger: logger}
}

func (c *CachedMenus) Get(ctx context.Context, id int64) (*domain.Menu, error) {
	return c.next.Get(ctx, id)
}

func (c *CachedMenus) ListActive(ctx context.Context) ([]domain.Menu, error) {
	raw, err := c.rdb.Get(ctx, activeMenusKey).Bytes()
	switch {
	case err == nil:
		var menus []domain.Menu
		if jsonErr := json.Unmarshal(raw, &menus); jsonErr == nil {
			return menus, nil
		}
		c.logger.Warn("discarding unreadable menu cache entry")
	case !errors.Is(err, redis.Nil):
		c.logger.Warn("menu cache read failed", zap.Error(err))
	}

	menus, err := c.next.ListActive(ctx)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(menus); err == nil {
		if err := c.rdb.Set(ctx, activeMenusKey, data, c.ttl).Err(); err != nil {
			c.logger.Warn("menu cache write failed", zap.Error(err))
		}
	}
	return menus, nil
}

// Invalidate drops the cached listing.
func (c *CachedMenus) Invalidate(ctx context.Context) error {
	return c.rdb.Del(ctx, activeMenusKey).Err()
}
