// Package metrics holds the prometheus collectors for the admission layer.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const subsystem = "governance"

// Admission layers and outcomes used as label values.
const (
	LayerRateLimit = "ratelimit"
	LayerQuota     = "quota"

	OutcomeAdmitted = "admitted"
	OutcomeRejected = "rejected"
	OutcomeDegraded = "degraded" // admitted because the backing store failed
	OutcomeFailed   = "failed"   // denied because the backing store failed
)

var (
	admissionDecisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Subsystem: subsystem,
			Name:      "admission_decisions_total",
			Help:      "Admission decisions broken out by layer and outcome.",
		},
		[]string{"layer", "outcome"},
	)

	cacheBackendErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Subsystem: subsystem,
			Name:      "cache_backend_errors_total",
			Help:      "Cache backend operations that failed and were treated as a miss or no-op.",
		},
		[]string{"op"},
	)

	cacheMode = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Subsystem: subsystem,
			Name:      "cache_mode",
			Help:      "1 for the cache backend selected at startup.",
		},
		[]string{"mode"},
	)

	activeUsers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Subsystem: subsystem,
			Name:      "active_users",
			Help:      "Users with activity inside the supervisor idle window.",
		},
	)

	shutdownScheduled = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Subsystem: subsystem,
			Name:      "shutdown_scheduled",
			Help:      "1 while an idle shutdown is pending.",
		},
	)
)

var registerOnce sync.Once

// Register adds the collectors to the given registerer. Safe to call more than once.
func Register(reg prometheus.Registerer) {
	registerOnce.Do(func() {
		reg.MustRegister(admissionDecisions, cacheBackendErrors, cacheMode, activeUsers, shutdownScheduled)
	})
}

func RecordAdmission(layer, outcome string) {
	admissionDecisions.WithLabelValues(layer, outcome).Inc()
}

func RecordCacheError(op string) {
	cacheBackendErrors.WithLabelValues(op).Inc()
}

func SetCacheMode(mode string) {
	cacheMode.Reset()
	cacheMode.WithLabelValues(mode).Set(1)
}

func SetActiveUsers(n int) {
	activeUsers.Set(float64(n))
}

func SetShutdownScheduled(scheduled bool) {
	if scheduled {
		shutdownScheduled.Set(1)
		return
	}
	shutdownScheduled.Set(0)
}
