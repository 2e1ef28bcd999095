// Package cache defines the byte cache used for query responses and
// idempotent replays.
package cache

import (
	"context"
	"time"
)

// Cache stores opaque values under string keys. Get returns ok=false with a
// nil error on a miss. A zero ttl means the entry only leaves on eviction.
type Cache interface {
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}
