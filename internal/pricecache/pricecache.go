// Package pricecache implements the process-wide Shared Price Cache (C3): a
// TTL cache over token prices with single-flight coalescing so concurrent
// misses for the same token issue exactly one underlying fetch.
package pricecache

import (
	"context"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"trading-core/pkg/cache"
)

// Loader fetches a fresh price for a token identifier.
type Loader func(ctx context.Context, token string) (float64, error)

// Cache is a TTL-bounded, single-flight-coalesced price cache shared by
// every user's scan in a cycle. Storage is a sharded map (pkg/cache) so
// concurrent scans across many users reading different tokens don't
// serialize on one lock; the TTL and single-flight coalescing live here.
type Cache struct {
	ttl     time.Duration
	storage *cache.ShardedPriceCache
	group   singleflight.Group

	// hits/misses are plain counters for observability; not part of any
	// correctness invariant.
	hits, misses int64
}

// New builds a Cache with the given freshness window.
func New(ttl time.Duration) *Cache {
	return &Cache{ttl: ttl, storage: cache.NewShardedPriceCache()}
}

// Get returns the cached price for token if fresh, otherwise fetches
// through load exactly once even under concurrent callers for the same
// token.
func (c *Cache) Get(ctx context.Context, token string, load Loader) (float64, error) {
	if price, ok := c.lookup(token); ok {
		atomic.AddInt64(&c.hits, 1)
		return price, nil
	}

	atomic.AddInt64(&c.misses, 1)

	v, err, _ := c.group.Do(token, func() (any, error) {
		// Re-check: another caller may have just populated this while we
		// were waiting to enter the singleflight group.
		if price, ok := c.lookup(token); ok {
			return price, nil
		}
		price, err := load(ctx, token)
		if err != nil {
			return 0.0, err
		}
		c.storage.Set(token, price)
		return price, nil
	})
	if err != nil {
		return 0, err
	}
	return v.(float64), nil
}

func (c *Cache) lookup(token string) (float64, bool) {
	price, age, ok := c.storage.GetWithAge(token)
	if !ok || age > c.ttl {
		return 0, false
	}
	return price, true
}

// Stats returns (hits, misses) since process start, for operator logging.
func (c *Cache) Stats() (hits, misses int64) {
	return atomic.LoadInt64(&c.hits), atomic.LoadInt64(&c.misses)
}
