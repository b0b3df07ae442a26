package activity

import (
	"sync"
	"time"

	"github.com/aman-churiwal/governance-api/internal/metrics"
	"k8s.io/utils/clock"
)

// Schedule is a snapshot of the pending shutdown.
type Schedule struct {
	ScheduledAt time.Time
	Delay       time.Duration
	Remaining   time.Duration
}

// Scheduler holds at most one pending shutdown. It never stops the process
// itself; the host polls ShouldShutdownNow.
type Scheduler struct {
	mu          sync.Mutex
	pending     bool
	scheduledAt time.Time
	delay       time.Duration
	clock       clock.PassiveClock
}

func NewScheduler(clk clock.PassiveClock) *Scheduler {
	if clk == nil {
		clk = clock.RealClock{}
	}
	return &Scheduler{clock: clk}
}

// Schedule sets the pending shutdown, replacing any existing one.
func (s *Scheduler) Schedule(delay time.Duration) Schedule {
	if delay < 0 {
		delay = 0
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.pending = true
	s.scheduledAt = s.clock.Now()
	s.delay = delay
	metrics.SetShutdownScheduled(true)

	return s.snapshot()
}

// Cancel clears the pending shutdown. Safe when nothing is pending; reports
// whether anything was cancelled.
func (s *Scheduler) Cancel() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	was := s.pending
	s.pending = false
	s.scheduledAt = time.Time{}
	s.delay = 0
	metrics.SetShutdownScheduled(false)

	return was
}

func (s *Scheduler) IsScheduled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending
}

// TimeRemaining is zero once the delay has elapsed; ok is false when idle.
func (s *Scheduler) TimeRemaining() (time.Duration, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.pending {
		return 0, false
	}
	return s.remaining(), true
}

func (s *Scheduler) ShouldShutdownNow() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.pending && s.clock.Since(s.scheduledAt) >= s.delay
}

// Status returns the pending schedule, if any.
func (s *Scheduler) Status() (Schedule, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.pending {
		return Schedule{}, false
	}
	return s.snapshot(), true
}

// Must be called with mu held.
func (s *Scheduler) remaining() time.Duration {
	left := s.delay - s.clock.Since(s.scheduledAt)
	if left < 0 {
		return 0
	}
	return left
}

// Must be called with mu held.
func (s *Scheduler) snapshot() Schedule {
	return Schedule{
		ScheduledAt: s.scheduledAt,
		Delay:       s.delay,
		Remaining:   s.remaining(),
	}
}
