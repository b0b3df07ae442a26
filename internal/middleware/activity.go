package middleware

import (
	"github.com/aman-churiwal/governance-api/internal/activity"
	"github.com/gin-gonic/gin"
)

// ActivityTracker records liveness for authenticated callers before any
// admission decision, so throttled users still count as present.
func ActivityTracker(tracker *activity.Tracker) gin.HandlerFunc {
	return func(c *gin.Context) {
		if userID := c.GetString(ContextUserID); userID != "" {
			tracker.RecordActivity(userID)
		}
		c.Next()
	}
}
