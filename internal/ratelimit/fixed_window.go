package ratelimit

import (
	"context"
	"strconv"
	"time"

	"github.com/aman-churiwal/governance-api/internal/cache"
	"k8s.io/utils/clock"
)

const AlgorithmFixedWindow = "fixed_window"

// FixedWindowLimiter counts requests in aligned windows:
// window start = floor(now / period) * period. Past windows are abandoned and
// expire after one period.
type FixedWindowLimiter struct {
	backend cache.Backend
	clock   clock.PassiveClock
}

func NewFixedWindow(backend cache.Backend, clk clock.PassiveClock) *FixedWindowLimiter {
	if clk == nil {
		clk = clock.RealClock{}
	}
	return &FixedWindowLimiter{
		backend: backend,
		clock:   clk,
	}
}

func (f *FixedWindowLimiter) Name() string { return AlgorithmFixedWindow }

func (f *FixedWindowLimiter) Allow(ctx context.Context, key string, rate Rate) (Result, error) {
	period := rate.periodSeconds()
	windowStart := f.clock.Now().Unix() / period * period
	counterKey := windowKey("fixed", key, period, windowStart)

	count, err := countRequest(ctx, f.backend, counterKey, rate, rate.Period)
	if err != nil {
		return Result{}, err
	}

	return result(count, rate, time.Unix(windowStart+period, 0)), nil
}

// windowKey is "ratelimit:{algorithm}:{key}:{period}:{window start}".
func windowKey(algorithm, key string, period, windowStart int64) string {
	return cache.Key(cache.NamespaceRateLimit, algorithm, key,
		strconv.FormatInt(period, 10), strconv.FormatInt(windowStart, 10))
}

// countRequest increments the window counter and keeps it at most limit+1:
// the request that trips the limit is counted, later rejected requests are
// taken back out. Under concurrency the stored value may overshoot briefly.
func countRequest(ctx context.Context, backend cache.Backend, key string, rate Rate, ttl time.Duration) (int64, error) {
	count, err := backend.Increment(ctx, key, 1)
	if err != nil {
		return 0, err
	}

	if count == 1 {
		// The key embeds its window start, so a failed expire leaks one key
		// but never affects a later window.
		_ = backend.Expire(ctx, key, ttl)
	}

	if count > int64(rate.Limit)+1 {
		if _, err := backend.Increment(ctx, key, -1); err == nil {
			count = int64(rate.Limit) + 1
		}
	}

	return count, nil
}

func result(count int64, rate Rate, resetAt time.Time) Result {
	remaining := rate.Limit - int(count)
	if remaining < 0 {
		remaining = 0
	}
	return Result{
		Allowed:   count <= int64(rate.Limit),
		Count:     count,
		Limit:     rate.Limit,
		Remaining: remaining,
		ResetAt:   resetAt,
	}
}
