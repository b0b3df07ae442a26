package handler

import (
	"net/http"

	"github.com/aman-churiwal/governance-api/internal/activity"
	"github.com/aman-churiwal/governance-api/internal/middleware"
	"github.com/aman-churiwal/governance-api/internal/quota"
	"github.com/gin-gonic/gin"
)

// Handles endpoints about the caller's own session and plan
type SessionHandler struct {
	tracker *activity.Tracker
	store   quota.SubscriptionStore
	matrix  quota.Matrix
}

func NewSessionHandler(tracker *activity.Tracker, store quota.SubscriptionStore, matrix quota.Matrix) *SessionHandler {
	return &SessionHandler{
		tracker: tracker,
		store:   store,
		matrix:  matrix,
	}
}

// Logout drops the caller from presence tracking. Token revocation is the
// identity provider's job.
func (h *SessionHandler) Logout(c *gin.Context) {
	h.tracker.Forget(c.GetString(middleware.ContextUserID))
	c.JSON(http.StatusOK, gin.H{"message": "Logged out"})
}

// Subscription returns the caller's tier, usage, limits and features so a
// client can render plan state without probing gated routes.
func (h *SessionHandler) Subscription(c *gin.Context) {
	sub, err := h.store.Subscription(c.Request.Context(), c.GetString(middleware.ContextUserID))
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error":   quota.CodeSubscriptionUnavailable,
			"message": "Unable to load your subscription right now. Please try again.",
		})
		return
	}

	def, err := h.matrix.Definition(sub.Tier)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"tier":     sub.Tier,
		"limits":   def.Limits,
		"features": def.Features.Enabled(),
		"usage":    sub.Usage,
	})
}

// Admitted answers routes whose business logic lives in another service.
// Reaching it means every admission layer let the request through.
func Admitted(c *gin.Context) {
	c.JSON(http.StatusAccepted, gin.H{
		"status":     "admitted",
		"request_id": c.GetString(middleware.ContextRequestID),
	})
}
