// Package tiered layers the per-instance L1 cache over the shared L2 bucket.
package tiered

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/Strob0t/StockForge/internal/port/cache"
	"github.com/Strob0t/StockForge/internal/resilience"
)

// Cache reads L1 then L2 (backfilling L1 on an L2 hit) and writes both.
// L2 calls go through a circuit breaker: while NATS is unreachable the cache
// behaves as L1-only instead of paying a timeout on every lookup.
type Cache struct {
	l1       cache.Cache
	l2       cache.Cache
	l1Expire time.Duration
	breaker  *resilience.Breaker
}

// New creates a tiered cache. l1Expire bounds how long any entry lives in L1,
// which is also how long another instance's invalidation can go unseen here.
// breaker may be nil.
func New(l1, l2 cache.Cache, l1Expire time.Duration, breaker *resilience.Breaker) *Cache {
	return &Cache{l1: l1, l2: l2, l1Expire: l1Expire, breaker: breaker}
}

func (c *Cache) callL2(fn func() error) error {
	if c.breaker == nil {
		return fn()
	}
	return c.breaker.Execute(fn)
}

// Get checks L1, then L2. An L2 failure reads as a miss.
func (c *Cache) Get(ctx context.Context, key string) (data []byte, ok bool, err error) {
	if val, found, err := c.l1.Get(ctx, key); err != nil || found {
		return val, found, err
	}

	var val []byte
	var found bool
	err = c.callL2(func() error {
		var err error
		val, found, err = c.l2.Get(ctx, key)
		return err
	})
	if err != nil {
		if !errors.Is(err, resilience.ErrCircuitOpen) {
			slog.WarnContext(ctx, "l2 cache get failed, treating as miss", "key", key, "error", err)
		}
		return nil, false, nil
	}
	if !found {
		return nil, false, nil
	}
	_ = c.l1.Set(ctx, key, val, c.l1Expire)
	return val, true, nil
}

// Set writes L1 and then L2. Only an L1 failure is returned.
func (c *Cache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	l1TTL := c.l1Expire
	if ttl > 0 && ttl < l1TTL {
		l1TTL = ttl
	}
	if err := c.l1.Set(ctx, key, value, l1TTL); err != nil {
		return err
	}
	if err := c.callL2(func() error { return c.l2.Set(ctx, key, value, ttl) }); err != nil && !errors.Is(err, resilience.ErrCircuitOpen) {
		slog.WarnContext(ctx, "l2 cache set failed", "key", key, "error", err)
	}
	return nil
}

// Delete removes key from L2 first and then from L1, so a concurrent Get
// cannot backfill L1 from the stale L2 entry after L1 was cleared. The L1
// delete runs even when L2 fails; the L2 error is still returned because the
// remote entry outlives the invalidation on other instances.
func (c *Cache) Delete(ctx context.Context, key string) error {
	l2Err := c.callL2(func() error { return c.l2.Delete(ctx, key) })
	if err := c.l1.Delete(ctx, key); err != nil {
		return errors.Join(err, l2Err)
	}
	return l2Err
}
