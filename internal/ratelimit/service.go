package ratelimit

import (
	"context"
	"math"
	"time"

	"github.com/aman-churiwal/governance-api/internal/metrics"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
	"k8s.io/utils/clock"
)

// Decision is the admission answer for one request. Limit is 0 for an
// unlimited class. On rejection the fields describe the tuple that rejected;
// on admission, the tuple closest to its limit.
type Decision struct {
	Allowed    bool
	Class      Class
	Rate       Rate
	Limit      int
	Remaining  int
	ResetAt    time.Time
	RetryAfter time.Duration
	// Degraded is set when the counter store failed and the request was
	// admitted without being counted.
	Degraded bool
}

// Service evaluates every tuple of a class against one Limiter.
type Service struct {
	limiter Limiter
	policy  Policy
	clock   clock.PassiveClock
	log     *logrus.Logger
	warn    *rate.Sometimes
}

func NewService(limiter Limiter, policy Policy, clk clock.PassiveClock, log *logrus.Logger) *Service {
	if clk == nil {
		clk = clock.RealClock{}
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Service{
		limiter: limiter,
		policy:  policy,
		clock:   clk,
		log:     log,
		warn:    &rate.Sometimes{First: 1, Interval: 30 * time.Second},
	}
}

func (s *Service) Policy() Policy { return s.policy }

// Decide counts the request against every tuple of class, in order, and
// rejects on the first exceeded tuple. Tuples after a rejection are not
// counted. If the counter store fails the request is admitted.
func (s *Service) Decide(ctx context.Context, class Class, identity string) Decision {
	rates := s.policy.Rates(class)
	if len(rates) == 0 {
		return Decision{Allowed: true, Class: class}
	}

	key := string(class) + ":" + identity
	var closest *Decision

	for _, r := range rates {
		res, err := s.limiter.Allow(ctx, key, r)
		if err != nil {
			s.degraded(class, identity, err)
			metrics.RecordAdmission(metrics.LayerRateLimit, metrics.OutcomeDegraded)
			return Decision{Allowed: true, Class: class, Rate: r, Limit: r.Limit, Remaining: r.Limit, Degraded: true}
		}

		d := Decision{
			Allowed:   res.Allowed,
			Class:     class,
			Rate:      r,
			Limit:     res.Limit,
			Remaining: res.Remaining,
			ResetAt:   res.ResetAt,
		}

		if !res.Allowed {
			d.RetryAfter = s.retryAfter(res.ResetAt, r)
			metrics.RecordAdmission(metrics.LayerRateLimit, metrics.OutcomeRejected)
			s.log.WithFields(logrus.Fields{
				"class":    class,
				"identity": identity,
				"rate":     r.String(),
			}).Debug("Rate limit exceeded")
			return d
		}

		if closest == nil || d.Remaining < closest.Remaining {
			closest = &d
		}
	}

	metrics.RecordAdmission(metrics.LayerRateLimit, metrics.OutcomeAdmitted)
	return *closest
}

// retryAfter rounds up to whole seconds and never exceeds the period.
func (s *Service) retryAfter(resetAt time.Time, r Rate) time.Duration {
	wait := resetAt.Sub(s.clock.Now())
	secs := time.Duration(math.Ceil(wait.Seconds())) * time.Second
	if secs < time.Second {
		secs = time.Second
	}
	if secs > r.Period {
		secs = r.Period
	}
	return secs
}

func (s *Service) degraded(class Class, identity string, err error) {
	s.warn.Do(func() {
		s.log.WithFields(logrus.Fields{
			"class":    class,
			"identity": identity,
			"error":    err.Error(),
		}).Warn("Rate limit backend unavailable, admitting requests unthrottled")
	})
}
