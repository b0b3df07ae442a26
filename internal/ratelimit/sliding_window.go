package ratelimit

import (
	"context"
	"math"
	"strconv"
	"time"

	"github.com/aman-churiwal/governance-api/internal/cache"
	"k8s.io/utils/clock"
)

const AlgorithmSlidingWindow = "sliding_window"

// SlidingWindowLimiter approximates a rolling window from two fixed-window
// counters: the previous window's count is weighted by how much of it still
// overlaps the rolling period. This removes the 2N burst at a window seam
// while keeping one atomic increment per request.
type SlidingWindowLimiter struct {
	backend cache.Backend
	clock   clock.PassiveClock
}

func NewSlidingWindow(backend cache.Backend, clk clock.PassiveClock) *SlidingWindowLimiter {
	if clk == nil {
		clk = clock.RealClock{}
	}
	return &SlidingWindowLimiter{
		backend: backend,
		clock:   clk,
	}
}

func (s *SlidingWindowLimiter) Name() string { return AlgorithmSlidingWindow }

func (s *SlidingWindowLimiter) Allow(ctx context.Context, key string, rate Rate) (Result, error) {
	now := s.clock.Now()
	period := rate.periodSeconds()
	windowStart := now.Unix() / period * period

	currentKey := windowKey("sliding", key, period, windowStart)

	// The current counter must outlive its window to serve as the previous one.
	current, err := s.backend.Increment(ctx, currentKey, 1)
	if err != nil {
		return Result{}, err
	}
	if current == 1 {
		_ = s.backend.Expire(ctx, currentKey, 2*rate.Period)
	}

	previous, err := s.previousCount(ctx, key, period, windowStart)
	if err != nil {
		return Result{}, err
	}

	elapsed := now.Sub(time.Unix(windowStart, 0))
	weight := 1 - float64(elapsed)/float64(rate.Period)
	estimated := int64(math.Floor(float64(previous)*weight)) + current

	// Only admitted requests stay counted. A rejected request left in the
	// counter would carry into the next window's estimate and keep a client
	// that is steadily over its rate locked out.
	if estimated > int64(rate.Limit) {
		_, _ = s.backend.Increment(ctx, currentKey, -1)
	}

	// The window end is an upper bound on when the estimate drops below the limit.
	return result(estimated, rate, time.Unix(windowStart+period, 0)), nil
}

func (s *SlidingWindowLimiter) previousCount(ctx context.Context, key string, period, windowStart int64) (int64, error) {
	v, ok, err := s.backend.Get(ctx, windowKey("sliding", key, period, windowStart-period))
	if err != nil || !ok {
		return 0, err
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, nil
	}
	return n, nil
}
