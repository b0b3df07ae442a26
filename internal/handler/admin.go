package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/aman-churiwal/governance-api/internal/activity"
	"github.com/aman-churiwal/governance-api/internal/cache"
	"github.com/aman-churiwal/governance-api/internal/circuitbreaker"
	"github.com/aman-churiwal/governance-api/internal/middleware"
	"github.com/aman-churiwal/governance-api/internal/quota"
	"github.com/aman-churiwal/governance-api/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"k8s.io/utils/clock"
)

// RejectionCounter reports how many admissions each layer rejected.
type RejectionCounter interface {
	CountByLayerSince(ctx context.Context, since time.Time) (map[string]int64, error)
}

// TierChanger moves a user between plans.
type TierChanger interface {
	ChangeTier(ctx context.Context, userID string, tier quota.Tier) error
}

type AdminDeps struct {
	Cache     *cache.Cache
	Breaker   *circuitbreaker.CircuitBreaker // nil in memory mode
	Tracker   *activity.Tracker
	Scheduler *activity.Scheduler
	Counter   RejectionCounter
	Tiers     TierChanger
	Clock     clock.PassiveClock
	Logger    *logrus.Logger
	// ActiveWindow is how recent activity must be to count a user as active.
	ActiveWindow time.Duration
}

// Handles operator endpoints under /admin
type AdminHandler struct {
	deps    AdminDeps
	started time.Time
}

func NewAdminHandler(deps AdminDeps) *AdminHandler {
	if deps.Clock == nil {
		deps.Clock = clock.RealClock{}
	}
	if deps.Logger == nil {
		deps.Logger = logrus.StandardLogger()
	}
	if deps.ActiveWindow <= 0 {
		deps.ActiveWindow = 30 * time.Minute
	}
	return &AdminHandler{
		deps:    deps,
		started: deps.Clock.Now(),
	}
}

func (h *AdminHandler) Status(c *gin.Context) {
	ctx := c.Request.Context()
	now := h.deps.Clock.Now()

	status := gin.H{
		"uptime":       now.Sub(h.started).Seconds(),
		"timestamp":    now.Unix(),
		"cache":        h.cacheStatus(),
		"active_users": len(h.deps.Tracker.ActiveUsers(h.deps.ActiveWindow)),
		"shutdown":     shutdownBody(h.deps.Scheduler),
	}

	if h.deps.Counter != nil {
		counts, err := h.deps.Counter.CountByLayerSince(ctx, now.Add(-24*time.Hour))
		if err != nil {
			h.deps.Logger.WithError(err).Warn("Failed to count rejections")
		} else {
			status["rejections_24h"] = counts
		}
	}

	c.JSON(http.StatusOK, status)
}

func (h *AdminHandler) cacheStatus() gin.H {
	body := gin.H{
		"mode":     h.deps.Cache.Mode(),
		"degraded": h.deps.Cache.Mode().Degraded(),
	}
	if h.deps.Breaker != nil {
		m := h.deps.Breaker.Metrics()
		body["circuit_breaker"] = gin.H{
			"state":             m.State.String(),
			"failure_count":     m.FailureCount,
			"success_count":     m.SuccessCount,
			"last_failure_time": m.LastFailureTime,
			"last_state_change": m.LastStateChange,
		}
	}
	return body
}

func shutdownBody(s *activity.Scheduler) gin.H {
	schedule, ok := s.Status()
	if !ok {
		return gin.H{"scheduled": false}
	}
	return gin.H{
		"scheduled":         true,
		"scheduled_at":      schedule.ScheduledAt,
		"delay_seconds":     int(schedule.Delay.Seconds()),
		"remaining_seconds": int(schedule.Remaining.Seconds()),
	}
}

func (h *AdminHandler) ScheduleShutdown(c *gin.Context) {
	var req struct {
		DelaySeconds int `json:"delay_seconds" binding:"required,min=1"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	h.deps.Scheduler.Schedule(time.Duration(req.DelaySeconds) * time.Second)
	h.deps.Logger.WithFields(logrus.Fields{
		"delay_seconds": req.DelaySeconds,
		"user_id":       c.GetString(middleware.ContextUserID),
	}).Warn("Shutdown scheduled by operator")

	c.JSON(http.StatusAccepted, shutdownBody(h.deps.Scheduler))
}

func (h *AdminHandler) CancelShutdown(c *gin.Context) {
	cancelled := h.deps.Scheduler.Cancel()
	if cancelled {
		h.deps.Logger.Info("Shutdown cancelled by operator")
	}

	c.JSON(http.StatusOK, gin.H{"cancelled": cancelled})
}

// ClearCache deletes every key matching ?pattern=. An empty pattern is
// refused so a typo cannot flush the whole store.
func (h *AdminHandler) ClearCache(c *gin.Context) {
	pattern := c.Query("pattern")
	if pattern == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "pattern query parameter is required"})
		return
	}

	removed := h.deps.Cache.Clear(c.Request.Context(), pattern)
	c.JSON(http.StatusOK, gin.H{
		"pattern": pattern,
		"removed": removed,
	})
}

// Manually resets the cache circuit breaker
func (h *AdminHandler) ResetBreaker(c *gin.Context) {
	if h.deps.Breaker == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "No distributed cache configured"})
		return
	}

	h.deps.Breaker.Reset()
	c.JSON(http.StatusOK, gin.H{"message": "Circuit breaker reset successfully"})
}

func (h *AdminHandler) ChangeTier(c *gin.Context) {
	var req struct {
		Tier string `json:"tier" binding:"required"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	tier, err := quota.ParseTier(req.Tier)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userID := c.Param("id")
	err = h.deps.Tiers.ChangeTier(c.Request.Context(), userID, tier)
	switch {
	case errors.Is(err, service.ErrUserNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		return
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"user_id": userID,
		"tier":    tier,
	})
}
