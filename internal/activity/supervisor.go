package activity

import (
	"sync"
	"time"

	"github.com/aman-churiwal/governance-api/internal/metrics"
	"github.com/sirupsen/logrus"
	"k8s.io/utils/clock"
)

type SupervisorConfig struct {
	IdleTimeout   time.Duration // No activity for this long schedules a shutdown
	ShutdownDelay time.Duration // Delay of the schedule it creates
	PollInterval  time.Duration // How often to reconcile (default: 30s)
	// CancelOnActivity cancels a schedule the supervisor created once
	// activity resumes. Schedules set by an operator are never cancelled.
	CancelOnActivity bool
	// OnShutdown runs once when the pending schedule is due.
	OnShutdown func()
}

// Supervisor is the host loop reconciling the Tracker and the Scheduler.
type Supervisor struct {
	mu        sync.Mutex
	tracker   *Tracker
	scheduler *Scheduler
	cfg       SupervisorConfig
	clock     clock.WithTicker
	log       *logrus.Logger
	startedAt time.Time
	owned     time.Time // ScheduledAt of the schedule this supervisor created
	fired     bool
	running   bool
	stopChan  chan struct{}
}

func NewSupervisor(tracker *Tracker, scheduler *Scheduler, cfg SupervisorConfig, clk clock.WithTicker, log *logrus.Logger) *Supervisor {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 30 * time.Second
	}
	if clk == nil {
		clk = clock.RealClock{}
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Supervisor{
		tracker:   tracker,
		scheduler: scheduler,
		cfg:       cfg,
		clock:     clk,
		log:       log,
		startedAt: clk.Now(),
	}
}

// Begins periodic reconciliation
func (s *Supervisor) Start() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.startedAt = s.clock.Now()
	stop := make(chan struct{})
	s.stopChan = stop
	s.mu.Unlock()

	s.log.WithFields(logrus.Fields{
		"idle_timeout":   s.cfg.IdleTimeout.String(),
		"shutdown_delay": s.cfg.ShutdownDelay.String(),
		"poll_interval":  s.cfg.PollInterval.String(),
	}).Info("Starting idle shutdown supervisor")

	ticker := s.clock.NewTicker(s.cfg.PollInterval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C():
				s.tick()
			case <-stop:
				return
			}
		}
	}()
}

// Stops the supervisor loop
func (s *Supervisor) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		close(s.stopChan)
		s.running = false
	}
}

func (s *Supervisor) tick() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.fired {
		return
	}

	now := s.clock.Now()
	recent := s.tracker.HasRecentActivity(s.cfg.IdleTimeout)
	metrics.SetActiveUsers(len(s.tracker.ActiveUsers(s.cfg.IdleTimeout)))

	current, scheduled := s.scheduler.Status()
	ours := scheduled && current.ScheduledAt.Equal(s.owned)

	if recent && ours && s.cfg.CancelOnActivity {
		s.scheduler.Cancel()
		s.owned = time.Time{}
		s.log.Info("Activity resumed, idle shutdown cancelled")
		return
	}

	if s.scheduler.ShouldShutdownNow() {
		s.fired = true
		s.log.Warn("Idle shutdown is due, stopping the process")
		if s.cfg.OnShutdown != nil {
			go s.cfg.OnShutdown()
		}
		return
	}

	idleSinceStart := now.Sub(s.startedAt) >= s.cfg.IdleTimeout
	if !scheduled && !recent && idleSinceStart {
		sched := s.scheduler.Schedule(s.cfg.ShutdownDelay)
		s.owned = sched.ScheduledAt
		s.log.WithField("delay", s.cfg.ShutdownDelay.String()).Warn("No activity within idle timeout, shutdown scheduled")
	}
}

// Fired reports whether the shutdown callback has been triggered.
func (s *Supervisor) Fired() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fired
}
