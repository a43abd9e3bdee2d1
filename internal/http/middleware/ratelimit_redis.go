package middleware

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	redis "github.com/redis/go-redis/v9"
)

var redisClient *redis.Client

// UseRedis sets the shared client the limiters count in. A nil client makes
// them fall back to per-process counting.
func UseRedis(client *redis.Client) {
	redisClient = client
}

// RateLimit picks the Redis limiter when a client is configured and the
// in-process one otherwise.
func RateLimit(maxRequests int, window time.Duration) gin.HandlerFunc {
	redisRL := RedisRateLimit(maxRequests, window)
	localRL := SimpleRateLimit(maxRequests, window)
	return func(c *gin.Context) {
		if redisClient == nil {
			localRL(c)
			return
		}
		redisRL(c)
	}
}

// RedisRateLimit implements a simple fixed-window rate limiter using Redis INCR/EXPIRE.
// key format: rl:<window_seconds>:<identifier>
func RedisRateLimit(maxRequests int, window time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		if redisClient == nil {
			// fallback to allowing requests if Redis not configured
			c.Next()
			return
		}

		key := "rl:" + strconv.FormatInt(int64(window.Seconds()), 10) + ":" + c.ClientIP()
		allowed, err := hit(c.Request.Context(), key, maxRequests, window)
		if err != nil {
			// on Redis error, fail-open (allow) but set header
			c.Header("X-RateLimit-Error", "redis-error")
			c.Next()
			return
		}

		if !allowed {
			RLBlocked.WithLabelValues(c.FullPath()).Inc()
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
			return
		}

		RLRequests.WithLabelValues(c.FullPath()).Inc()
		c.Next()
	}
}

// hit counts one request against key and reports whether it is within max.
func hit(ctx context.Context, key string, max int, window time.Duration) (bool, error) {
	val, err := redisClient.Incr(ctx, key).Result()
	if err != nil {
		return false, err
	}
	if val == 1 {
		// first increment, set expiry
		redisClient.Expire(ctx, key, window)
	}
	return val <= int64(max), nil
}
