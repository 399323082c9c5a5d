// Package natskv implements the cache port on a NATS JetStream KV bucket.
// It is the shared L2 behind the per-instance ristretto cache and the
// idempotency record store.
package natskv

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"
)

// encodedPrefix marks keys that were rewritten to satisfy the KV key grammar.
const encodedPrefix = "b64."

// Cache wraps a JetStream KeyValue bucket. Entry expiry is configured on the
// bucket (max age); the ttl passed to Set is ignored.
type Cache struct {
	kv jetstream.KeyValue
}

// New creates a NATS KV-backed cache.
func New(kv jetstream.KeyValue) *Cache {
	return &Cache{kv: kv}
}

// Get returns the value stored under key.
func (c *Cache) Get(ctx context.Context, key string) (data []byte, ok bool, err error) {
	entry, err := c.kv.Get(ctx, storeKey(key))
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("kv get %s: %w", c.kv.Bucket(), err)
	}
	return entry.Value(), true, nil
}

// Set stores value under key.
func (c *Cache) Set(ctx context.Context, key string, value []byte, _ time.Duration) error {
	if _, err := c.kv.Put(ctx, storeKey(key), value); err != nil {
		return fmt.Errorf("kv put %s: %w", c.kv.Bucket(), err)
	}
	return nil
}

// Delete removes key. A missing key is not an error.
func (c *Cache) Delete(ctx context.Context, key string) error {
	err := c.kv.Delete(ctx, storeKey(key))
	if err != nil && !errors.Is(err, jetstream.ErrKeyNotFound) {
		return fmt.Errorf("kv delete %s: %w", c.kv.Bucket(), err)
	}
	return nil
}

// storeKey maps an arbitrary cache key onto the KV key grammar
// ([-/_=.A-Za-z0-9], no leading or trailing dot). Tenant IDs come from request
// headers in development mode, so they cannot be trusted to fit it.
func storeKey(key string) string {
	if validKey(key) {
		return key
	}
	return encodedPrefix + base64.RawURLEncoding.EncodeToString([]byte(key))
}

func validKey(key string) bool {
	if key == "" || key[0] == '.' || key[len(key)-1] == '.' {
		return false
	}
	if len(key) >= len(encodedPrefix) && key[:len(encodedPrefix)] == encodedPrefix {
		// Would be indistinguishable from an encoded key.
		return false
	}
	for i := 0; i < len(key); i++ {
		switch c := key[i]; {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		case c == '-', c == '/', c == '_', c == '=', c == '.':
		default:
			return false
		}
	}
	return true
}
