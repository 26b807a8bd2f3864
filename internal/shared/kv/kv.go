package kv

import (
	"context"
	"time"
)

// Store is the shared fast key-value contract used by the circuit breaker,
// the rate limiter, and acceleration in front of expensive lookups.
// Implementations must provide atomic Increment and set-with-expiry so
// concurrent workers never corrupt counters.
type Store interface {
	// Get returns the value for key and whether it exists.
	Get(ctx context.Context, key string) (string, bool, error)
	// SetWithTTL stores value under key. A ttl <= 0 means no expiry.
	SetWithTTL(ctx context.Context, key, value string, ttl time.Duration) error
	// Increment atomically increments the counter at key and returns the new
	// value. The ttl is applied only when the counter is created.
	Increment(ctx context.Context, key string, ttl time.Duration) (int64, error)
	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
}
