package redis

import (
	"context"
	"time"

	"github.com/robertarktes/tour-checkout/internal/domain"
	"github.com/robertarktes/tour-checkout/internal/observability"
)

type Catalog interface {
	FindBySlug(ctx context.Context, slug string) (*domain.CheckoutPackage, error)
	FindDepartureBySlug(ctx context.Context, slug string) (*domain.DepartureBatch, error)
}

// CachedCatalog serves package lookups from Redis and falls through to next
// on a miss. Lookup errors are never cached and a broken cache never fails a
// lookup.
type CachedCatalog struct {
	next   Catalog
	cache  *Cache
	ttl    time.Duration
	logger observability.Logger
}

func NewCachedCatalog(next Catalog, cache *Cache, ttl time.Duration, logger observability.Logger) *CachedCatalog {
	return &CachedCatalog{next: next, cache: cache, ttl: ttl, logger: logger}
}

func (c *CachedCatalog) FindBySlug(ctx context.Context, slug string) (*domain.CheckoutPackage, error) {
	key := "catalog:pkg:" + slug
	var pkg domain.CheckoutPackage
	if ok := c.lookup(ctx, key, &pkg); ok {
		return &pkg, nil
	}

	found, err := c.next.FindBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}
	c.store(ctx, key, found)
	return found, nil
}

func (c *CachedCatalog) FindDepartureBySlug(ctx context.Context, slug string) (*domain.DepartureBatch, error) {
	key := "catalog:fd:" + slug
	var batch domain.DepartureBatch
	if ok := c.lookup(ctx, key, &batch); ok {
		return &batch, nil
	}

	found, err := c.next.FindDepartureBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}
	c.store(ctx, key, found)
	return found, nil
}

func (c *CachedCatalog) lookup(ctx context.Context, key string, dst any) bool {
	ok, err := c.cache.GetJSON(ctx, key, dst)
	if err != nil {
		c.logger.WithField("key", key).WithField("error", err.Error()).Warn("catalog cache read failed")
		return false
	}
	return ok
}

func (c *CachedCatalog) store(ctx context.Context, key string, v any) {
	if err := c.cache.SetJSON(ctx, key, v, c.ttl); err != nil {
		c.logger.WithField("key", key).WithField("error", err.Error()).Warn("catalog cache write failed")
	}
}
