package cache

import (
	"time"

	"github.com/aman-churiwal/governance-api/internal/circuitbreaker"
	"github.com/aman-churiwal/governance-api/internal/metrics"
	"github.com/aman-churiwal/governance-api/internal/storage"
	"github.com/sirupsen/logrus"
	"k8s.io/utils/clock"
)

type Options struct {
	// Empty URL selects the memory backend without probing.
	URL             string
	OpTimeout       time.Duration
	ProbeTimeout    time.Duration
	BreakerFailures int
	BreakerTimeout  time.Duration
	Clock           clock.PassiveClock
	Logger          *logrus.Logger
}

// Selection is the startup decision. Client is nil in memory mode.
type Selection struct {
	Backend Backend
	Mode    Mode
	Client  *storage.RedisClient
}

// Open probes the distributed backend once. On failure the process runs on
// the memory backend for its whole lifetime; there is no inline reconnect.
func Open(opts Options) Selection {
	log := opts.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}

	if opts.URL == "" {
		log.Warn("No REDIS_URL configured, using in-process cache. Limits and presence are per instance.")
		return memorySelection(opts.Clock)
	}

	client, err := storage.NewRedis(opts.URL, opts.OpTimeout, opts.ProbeTimeout)
	if err != nil {
		log.WithError(err).Warn("Redis unavailable at startup, using in-process cache for the process lifetime. Limits and presence are per instance.")
		return memorySelection(opts.Clock)
	}

	breaker := circuitbreaker.New(circuitbreaker.Config{
		MaxFailures: opts.BreakerFailures,
		Timeout:     opts.BreakerTimeout,
		Clock:       opts.Clock,
		OnStateChange: func(from, to circuitbreaker.State) {
			log.WithFields(logrus.Fields{
				"backend": ModeRedis,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("Cache circuit breaker changed state")
		},
	})

	log.WithField("backend", ModeRedis).Info("Connected to redis")
	metrics.SetCacheMode(string(ModeRedis))

	return Selection{
		Backend: NewRedisBackend(client.Client, opts.OpTimeout, breaker),
		Mode:    ModeRedis,
		Client:  client,
	}
}

func memorySelection(clk clock.PassiveClock) Selection {
	metrics.SetCacheMode(string(ModeMemory))
	return Selection{
		Backend: NewMemoryBackend(clk),
		Mode:    ModeMemory,
	}
}
