package middleware

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/aman-churiwal/governance-api/internal/metrics"
	"github.com/aman-churiwal/governance-api/internal/ratelimit"
	"github.com/gin-gonic/gin"
)

// RateLimitIdentity is the authenticated user id, else the client address.
func RateLimitIdentity(c *gin.Context) string {
	if userID := c.GetString(ContextUserID); userID != "" {
		return "user:" + userID
	}
	return "ip:" + c.ClientIP()
}

// effectiveClass swaps the default class for the caller's tier session class.
// The tier comes from the token claim, so a plan change applies to rate
// classes only once the token is reissued.
func effectiveClass(c *gin.Context, class ratelimit.Class) ratelimit.Class {
	if class != ratelimit.ClassDefault {
		return class
	}
	if tierClass, ok := ratelimit.TierClass(c.GetString(ContextTier)); ok {
		return tierClass
	}
	return class
}

// RateLimit throttles a route with the tuples of class.
func RateLimit(svc *ratelimit.Service, class ratelimit.Class) gin.HandlerFunc {
	return func(c *gin.Context) {
		effective := effectiveClass(c, class)
		decision := svc.Decide(c.Request.Context(), effective, RateLimitIdentity(c))

		if decision.Limit > 0 && !decision.Degraded {
			c.Header("X-RateLimit-Limit", strconv.Itoa(decision.Limit))
			c.Header("X-RateLimit-Remaining", strconv.Itoa(decision.Remaining))
			c.Header("X-RateLimit-Reset", strconv.FormatInt(decision.ResetAt.Unix(), 10))
			c.Header("X-RateLimit-Class", string(decision.Class))
		}

		if !decision.Allowed {
			retryAfter := int(decision.RetryAfter.Seconds())

			c.Set(ContextRejectedLayer, metrics.LayerRateLimit)
			c.Set(ContextRejectedCode, "rate_limit_exceeded")
			c.Header("Retry-After", strconv.Itoa(retryAfter))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":       "rate_limit_exceeded",
				"message":     fmt.Sprintf("Rate limit exceeded: %s. Retry in %d seconds.", decision.Rate, retryAfter),
				"class":       decision.Class,
				"limit":       decision.Limit,
				"retry_after": retryAfter,
			})
			return
		}

		c.Next()
	}
}
