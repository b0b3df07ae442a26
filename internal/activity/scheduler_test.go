package activity

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	testclock "k8s.io/utils/clock/testing"
)

func TestScheduler_ShutdownAfterDelay(t *testing.T) {
	clk := testclock.NewFakeClock(t0)
	s := NewScheduler(clk)

	s.Schedule(60 * time.Second)

	clk.Step(59 * time.Second)
	assert.False(t, s.ShouldShutdownNow())
	left, ok := s.TimeRemaining()
	require.True(t, ok)
	assert.Equal(t, time.Second, left)

	clk.Step(2 * time.Second)
	assert.True(t, s.ShouldShutdownNow())
	left, _ = s.TimeRemaining()
	assert.Zero(t, left)
}

func TestScheduler_DueExactlyAtDelay(t *testing.T) {
	clk := testclock.NewFakeClock(t0)
	s := NewScheduler(clk)

	s.Schedule(time.Minute)
	clk.Step(time.Minute)
	assert.True(t, s.ShouldShutdownNow())
}

func TestScheduler_CancelIsIdempotent(t *testing.T) {
	s := NewScheduler(testclock.NewFakeClock(t0))

	assert.False(t, s.Cancel())
	assert.False(t, s.IsScheduled())
	assert.False(t, s.ShouldShutdownNow())

	_, ok := s.TimeRemaining()
	assert.False(t, ok)

	s.Schedule(time.Minute)
	assert.True(t, s.IsScheduled())
	assert.True(t, s.Cancel())
	assert.False(t, s.Cancel())
	assert.False(t, s.IsScheduled())
}

func TestScheduler_RescheduleReplaces(t *testing.T) {
	clk := testclock.NewFakeClock(t0)
	s := NewScheduler(clk)

	s.Schedule(10 * time.Second)
	clk.Step(5 * time.Second)
	s.Schedule(60 * time.Second)

	clk.Step(10 * time.Second)
	assert.False(t, s.ShouldShutdownNow(), "the first schedule no longer exists")

	status, ok := s.Status()
	require.True(t, ok)
	assert.Equal(t, t0.Add(5*time.Second), status.ScheduledAt)
	assert.Equal(t, 60*time.Second, status.Delay)
	assert.Equal(t, 50*time.Second, status.Remaining)
}
