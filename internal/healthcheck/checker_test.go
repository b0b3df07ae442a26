package healthcheck

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aman-churiwal/governance-api/internal/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	testclock "k8s.io/utils/clock/testing"
)

func newTestChecker(probes map[string]ProbeFunc) *Checker {
	return NewChecker(Config{
		Probes:      probes,
		MaxFailures: 2,
		Timeout:     50 * time.Millisecond,
		Clock:       testclock.NewFakeClock(time.Now()),
		Logger:      logger.Discard(),
	})
}

func TestChecker_MarksUnhealthyAfterMaxFailures(t *testing.T) {
	var down atomic.Bool
	c := newTestChecker(map[string]ProbeFunc{
		"redis": func(context.Context) error {
			if down.Load() {
				return errors.New("connection refused")
			}
			return nil
		},
		"postgres": func(context.Context) error { return nil },
	})

	c.CheckAll()
	assert.Equal(t, Healthy, c.OverallHealth())

	down.Store(true)
	c.CheckAll()
	assert.True(t, c.GetStatus("redis").IsHealthy, "one failure is tolerated")

	c.CheckAll()
	status := c.GetStatus("redis")
	require.NotNil(t, status)
	assert.False(t, status.IsHealthy)
	assert.Equal(t, 2, status.FailureCount)
	assert.Equal(t, "connection refused", status.LastError)
	assert.Equal(t, Degraded, c.OverallHealth())

	down.Store(false)
	c.CheckAll()
	assert.True(t, c.GetStatus("redis").IsHealthy)
	assert.Equal(t, Healthy, c.OverallHealth())
}

func TestChecker_ProbeTimeoutIsFailure(t *testing.T) {
	c := newTestChecker(map[string]ProbeFunc{
		"postgres": func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		},
	})

	c.CheckAll()
	c.CheckAll()

	assert.Equal(t, Unhealthy, c.OverallHealth())
	assert.Contains(t, c.GetStatus("postgres").LastError, "deadline")
}

func TestChecker_NoProbesIsHealthy(t *testing.T) {
	c := newTestChecker(nil)
	assert.Equal(t, Healthy, c.OverallHealth())
	assert.Empty(t, c.GetAllStatus())
	assert.Nil(t, c.GetStatus("redis"))
}

func TestChecker_GetAllStatusSorted(t *testing.T) {
	ok := func(context.Context) error { return nil }
	c := newTestChecker(map[string]ProbeFunc{"redis": ok, "postgres": ok})

	all := c.GetAllStatus()
	require.Len(t, all, 2)
	assert.Equal(t, "postgres", all[0].Name)
	assert.Equal(t, "redis", all[1].Name)
}

func TestHealthStatusText(t *testing.T) {
	b, err := Degraded.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "degraded", string(b))
}
