package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

// UserRateLimit limits game commands per user (not per IP) using Redis.
// Requires JWT middleware to run before this.
func UserRateLimit(maxCommands int, window time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		if redisClient == nil {
			// Redis not configured, fail-open
			c.Next()
			return
		}

		userID := c.GetString("user_id")
		if userID == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		key := "cmd_rl:" + userID + ":" + strconv.FormatInt(int64(window.Seconds()), 10)
		allowed, err := hit(c.Request.Context(), key, maxCommands, window)
		if err != nil {
			c.Header("X-CommandRateLimit-Error", "redis-error")
			c.Next()
			return
		}

		if !allowed {
			RLBlocked.WithLabelValues("user:" + c.FullPath()).Inc()
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":       "command rate limit exceeded",
				"retry_after": int(window.Seconds()),
			})
			return
		}

		RLRequests.WithLabelValues("user:" + c.FullPath()).Inc()
		c.Next()
	}
}
