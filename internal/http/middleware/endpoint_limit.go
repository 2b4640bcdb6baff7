package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/btasarimambalaj-afk/adminara-sub000/internal/ratelimit"
)

// EndpointLimit gates one route through the shared limiter, keyed per client
// IP. OTP lockouts are per subject and enforced inside verification, not
// here. Backend failures fail closed with a 503: a broken limiter must never
// be treated as a passed check.
func EndpointLimit(limiter *ratelimit.Limiter, name string, limit int64, window time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := name + ":" + c.ClientIP()
		result, err := limiter.Check(c.Request.Context(), key, limit, window)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "server_error", "error_description": "Rate check unavailable."})
			return
		}
		if result.Limited {
			c.Header("Retry-After", strconv.Itoa(result.RetryAfterSeconds()))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":             "rate_limited",
				"error_description": "Too many requests.",
				"retry_after":       result.RetryAfterSeconds(),
			})
			return
		}
		c.Next()
	}
}
