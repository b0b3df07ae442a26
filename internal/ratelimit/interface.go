package ratelimit

import (
	"context"
	"time"
)

// Result is the outcome of one counter for one rate tuple.
type Result struct {
	Allowed   bool
	Count     int64
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// Limiter counts one request for key against rate. An error means the
// counter store could not be reached and nothing is known about the count.
type Limiter interface {
	Allow(ctx context.Context, key string, rate Rate) (Result, error)

	Name() string
}
