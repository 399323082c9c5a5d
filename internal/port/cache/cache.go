// Package cache defines the port for the metadata caches: the active-location
// directory and idempotency records. Stock quantities are never cached.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Cache is a byte-oriented key-value store with per-entry expiry.
// A miss is (nil, false, nil); err is reserved for backend failures.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// TenantKey builds a dot-separated key under namespace for one tenant.
func TenantKey(namespace, tenantID string, parts ...string) string {
	return strings.Join(append([]string{namespace, tenantID}, parts...), ".")
}

// GetJSON reads key and decodes it into a T. An entry that no longer decodes
// is reported as a miss so callers fall back to the source of truth.
func GetJSON[T any](ctx context.Context, c Cache, key string) (T, bool, error) {
	var v T
	data, ok, err := c.Get(ctx, key)
	if err != nil || !ok {
		return v, false, err
	}
	if err := json.Unmarshal(data, &v); err != nil {
		return v, false, nil
	}
	return v, true, nil
}

// SetJSON encodes v and stores it under key.
func SetJSON(ctx context.Context, c Cache, key string, v any, ttl time.Duration) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode cache entry %s: %w", key, err)
	}
	return c.Set(ctx, key, data, ttl)
}
