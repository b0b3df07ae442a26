package cache

import (
	"context"
	"errors"
	"time"

	"github.com/aman-churiwal/governance-api/internal/circuitbreaker"
	"github.com/redis/go-redis/v9"
)

const scanBatch = 100

// RedisBackend talks to the shared store. Every call is bounded by opTimeout
// and detached from the caller's cancellation, so a client disconnect never
// rolls back a counter that was already sent. Calls go through the breaker;
// a missing key (redis.Nil) is not a failure.
type RedisBackend struct {
	client    redis.Cmdable
	opTimeout time.Duration
	breaker   *circuitbreaker.CircuitBreaker
}

func NewRedisBackend(client redis.Cmdable, opTimeout time.Duration, breaker *circuitbreaker.CircuitBreaker) *RedisBackend {
	if opTimeout <= 0 {
		opTimeout = 200 * time.Millisecond
	}
	if breaker == nil {
		breaker = circuitbreaker.New(circuitbreaker.Config{})
	}
	return &RedisBackend{
		client:    client,
		opTimeout: opTimeout,
		breaker:   breaker,
	}
}

func (r *RedisBackend) Name() string { return string(ModeRedis) }

// Breaker exposes the breaker for status reporting.
func (r *RedisBackend) Breaker() *circuitbreaker.CircuitBreaker { return r.breaker }

func (r *RedisBackend) call(parent context.Context, fn func(ctx context.Context) error) error {
	return r.breaker.Call(func() error {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), r.opTimeout)
		defer cancel()
		return fn(ctx)
	})
}

func (r *RedisBackend) Ping(ctx context.Context) error {
	return r.call(ctx, func(ctx context.Context) error {
		return r.client.Ping(ctx).Err()
	})
}

func (r *RedisBackend) Get(ctx context.Context, key string) (string, bool, error) {
	var (
		value string
		found bool
	)
	err := r.call(ctx, func(ctx context.Context) error {
		v, err := r.client.Get(ctx, key).Result()
		if errors.Is(err, redis.Nil) {
			return nil
		}
		if err != nil {
			return err
		}
		value, found = v, true
		return nil
	})
	if err != nil {
		return "", false, err
	}
	return value, found, nil
}

func (r *RedisBackend) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if ttl < 0 {
		ttl = 0
	}
	return r.call(ctx, func(ctx context.Context) error {
		return r.client.Set(ctx, key, value, ttl).Err()
	})
}

func (r *RedisBackend) Delete(ctx context.Context, key string) error {
	return r.call(ctx, func(ctx context.Context) error {
		return r.client.Del(ctx, key).Err()
	})
}

// Clear walks the keyspace with SCAN MATCH so a large namespace never blocks
// the server the way KEYS would. Each page gets its own timeout.
func (r *RedisBackend) Clear(ctx context.Context, pattern string) (int, error) {
	var (
		cursor  uint64
		removed int
	)
	for {
		var keys []string
		err := r.call(ctx, func(ctx context.Context) error {
			var err error
			keys, cursor, err = r.client.Scan(ctx, cursor, pattern, scanBatch).Result()
			return err
		})
		if err != nil {
			return removed, err
		}

		if len(keys) > 0 {
			var n int64
			err = r.call(ctx, func(ctx context.Context) error {
				var err error
				n, err = r.client.Del(ctx, keys...).Result()
				return err
			})
			if err != nil {
				return removed, err
			}
			removed += int(n)
		}

		if cursor == 0 {
			return removed, nil
		}
	}
}

func (r *RedisBackend) Exists(ctx context.Context, key string) (bool, error) {
	var n int64
	err := r.call(ctx, func(ctx context.Context) error {
		var err error
		n, err = r.client.Exists(ctx, key).Result()
		return err
	})
	return n > 0, err
}

func (r *RedisBackend) Increment(ctx context.Context, key string, amount int64) (int64, error) {
	var n int64
	err := r.call(ctx, func(ctx context.Context) error {
		var err error
		n, err = r.client.IncrBy(ctx, key, amount).Result()
		return err
	})
	return n, err
}

func (r *RedisBackend) Expire(ctx context.Context, key string, ttl time.Duration) error {
	return r.call(ctx, func(ctx context.Context) error {
		return r.client.Expire(ctx, key, ttl).Err()
	})
}
