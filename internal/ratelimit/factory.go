package ratelimit

import (
	"fmt"

	"github.com/aman-churiwal/governance-api/internal/cache"
	"k8s.io/utils/clock"
)

func NewLimiter(algorithm string, backend cache.Backend, clk clock.PassiveClock) (Limiter, error) {
	switch algorithm {
	case AlgorithmFixedWindow, "":
		return NewFixedWindow(backend, clk), nil
	case AlgorithmSlidingWindow:
		return NewSlidingWindow(backend, clk), nil
	default:
		return nil, fmt.Errorf("unknown rate limit algorithm: %s", algorithm)
	}
}
