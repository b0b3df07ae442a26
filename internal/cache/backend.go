// Package cache provides the key-value store shared by the admission layer.
//
// Two backends satisfy the same Backend contract: a redis backend visible to
// every instance and a process-local memory backend. The backend is chosen
// once at startup by Open and never re-selected. Callers normally go through
// Cache, which swallows backend errors and treats them as a miss or a no-op.
package cache

import (
	"context"
	"time"
)

// Backend is the raw store contract. Implementations return errors; the Cache
// facade decides what a failure means for the caller.
type Backend interface {
	// Get returns the stored value and whether it was present and unexpired.
	Get(ctx context.Context, key string) (string, bool, error)
	// Set stores value. A ttl <= 0 stores without expiry.
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	// Clear removes every key matching the glob pattern and returns how many were removed.
	Clear(ctx context.Context, pattern string) (int, error)
	Exists(ctx context.Context, key string) (bool, error)
	// Increment atomically adds amount to the integer at key, creating it at 0 first.
	Increment(ctx context.Context, key string, amount int64) (int64, error)
	// Expire sets a ttl on an existing key. Missing keys are not an error.
	Expire(ctx context.Context, key string, ttl time.Duration) error
	Ping(ctx context.Context) error
	Name() string
}

// Mode records which backend was selected at startup.
type Mode string

const (
	ModeRedis  Mode = "redis"
	ModeMemory Mode = "memory"
)

// Degraded reports whether the process runs on the local fallback.
// Under more than one instance every instance then counts on its own.
func (m Mode) Degraded() bool {
	return m == ModeMemory
}
