package middleware

import (
	"net/http"

	"github.com/aman-churiwal/governance-api/internal/metrics"
	"github.com/aman-churiwal/governance-api/internal/quota"
	"github.com/gin-gonic/gin"
)

// Require runs the gate for a route's declared requirement. Plan rejections
// are 403; an unresolvable subscription is 503 and still denies.
func Require(gate *quota.Gate, req quota.Requirement) gin.HandlerFunc {
	return func(c *gin.Context) {
		if req.IsZero() {
			c.Next()
			return
		}

		decision := gate.Check(c.Request.Context(), c.GetString(ContextUserID), req)
		if decision.Allowed {
			c.Next()
			return
		}

		c.Set(ContextRejectedLayer, metrics.LayerQuota)
		c.Set(ContextRejectedCode, string(decision.Rejection.Code))
		c.AbortWithStatusJSON(RejectionStatus(decision.Rejection), decision.Rejection)
	}
}

func RequireFeature(gate *quota.Gate, f quota.Feature) gin.HandlerFunc {
	return Require(gate, quota.NeedsFeature(f))
}

func RequireTier(gate *quota.Gate, t quota.Tier) gin.HandlerFunc {
	return Require(gate, quota.NeedsTier(t))
}

func RequireQuota(gate *quota.Gate, r quota.Resource) gin.HandlerFunc {
	return Require(gate, quota.NeedsQuota(r))
}

// RejectionStatus maps a gate rejection to its HTTP status.
func RejectionStatus(rej *quota.Rejection) int {
	if rej.Code == quota.CodeSubscriptionUnavailable {
		return http.StatusServiceUnavailable
	}
	return http.StatusForbidden
}
