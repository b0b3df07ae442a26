package healthcheck

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"k8s.io/utils/clock"
)

// ProbeFunc checks one dependency. A nil error is healthy.
type ProbeFunc func(ctx context.Context) error

// Probes dependencies in the background for reporting. It never changes
// which cache backend the process uses.
type Checker struct {
	mu          sync.RWMutex
	probes      map[string]ProbeFunc
	status      map[string]*Status
	interval    time.Duration
	timeout     time.Duration
	maxFailures int
	clock       clock.WithTicker
	log         *logrus.Logger
	stopChan    chan struct{}
	running     bool
}

// Holds health checker configuration
type Config struct {
	Probes      map[string]ProbeFunc
	Interval    time.Duration // How often to check (default: 15s)
	Timeout     time.Duration // Per probe timeout (default: 2s)
	MaxFailures int           // Failures before marking unhealthy (default: 2)
	Clock       clock.WithTicker
	Logger      *logrus.Logger
}

func NewChecker(cfg Config) *Checker {
	if cfg.Interval <= 0 {
		cfg.Interval = 15 * time.Second
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Second
	}
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 2
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.RealClock{}
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.StandardLogger()
	}

	checker := &Checker{
		probes:      cfg.Probes,
		status:      make(map[string]*Status, len(cfg.Probes)),
		interval:    cfg.Interval,
		timeout:     cfg.Timeout,
		maxFailures: cfg.MaxFailures,
		clock:       cfg.Clock,
		log:         cfg.Logger,
	}

	// Assume healthy until proven otherwise
	for name := range cfg.Probes {
		checker.status[name] = &Status{
			Name:      name,
			IsHealthy: true,
			LastCheck: cfg.Clock.Now(),
		}
	}

	return checker
}

// Begins periodic checks
func (c *Checker) Start() {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return
	}
	c.running = true
	stop := make(chan struct{})
	c.stopChan = stop
	c.mu.Unlock()

	c.log.WithFields(logrus.Fields{
		"dependencies": len(c.probes),
		"interval":     c.interval.String(),
	}).Info("Starting dependency health checks")

	// Run initial check immediately
	c.CheckAll()

	ticker := c.clock.NewTicker(c.interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C():
				c.CheckAll()
			case <-stop:
				return
			}
		}
	}()
}

// Stops the health checker
func (c *Checker) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running {
		close(c.stopChan)
		c.running = false
		c.log.Info("Health checker stopped")
	}
}

// CheckAll probes every dependency concurrently and waits for all of them.
func (c *Checker) CheckAll() {
	var wg sync.WaitGroup

	for name, probe := range c.probes {
		wg.Add(1)
		go func(name string, probe ProbeFunc) {
			defer wg.Done()
			c.check(name, probe)
		}(name, probe)
	}

	wg.Wait()
}

func (c *Checker) check(name string, probe ProbeFunc) {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	if err := probe(ctx); err != nil {
		c.recordFailure(name, err)
		return
	}
	c.recordSuccess(name)
}

// Records a successful check
func (c *Checker) recordSuccess(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now()
	status := c.status[name]
	status.LastCheck = now
	status.LastSuccess = now
	status.FailureCount = 0
	status.LastError = ""

	if !status.IsHealthy {
		c.log.WithField("dependency", name).Info("Dependency is healthy again")
		status.IsHealthy = true
	}
}

// Records a failed check
func (c *Checker) recordFailure(name string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now()
	status := c.status[name]
	status.LastCheck = now
	status.LastFailure = now
	status.FailureCount++
	status.LastError = err.Error()

	if status.IsHealthy && status.FailureCount >= c.maxFailures {
		c.log.WithFields(logrus.Fields{
			"dependency": name,
			"failures":   status.FailureCount,
			"error":      err.Error(),
		}).Warn("Dependency is unhealthy")
		status.IsHealthy = false
	}
}

// Return the status of one dependency
func (c *Checker) GetStatus(name string) *Status {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if status, exists := c.status[name]; exists {
		statusCopy := *status
		return &statusCopy
	}

	return nil
}

// Returns copies of every dependency status, sorted by name
func (c *Checker) GetAllStatus() []Status {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]Status, 0, len(c.status))
	for _, status := range c.status {
		out = append(out, *status)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Returns the overall health status
func (c *Checker) OverallHealth() HealthStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()

	total := len(c.status)
	healthy := 0
	for _, status := range c.status {
		if status.IsHealthy {
			healthy++
		}
	}

	if total == 0 || healthy == total {
		return Healthy
	}
	if healthy == 0 {
		return Unhealthy
	}
	return Degraded
}
