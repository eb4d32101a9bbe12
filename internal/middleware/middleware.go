// Package middleware holds the coordination core's generic gin middleware:
// recovery, request IDs, CORS, security headers, and a per-IP rate limiter
// with an optional Redis-backed counter. Adapted from the teacher's
// internal/middleware/common.go and internal/middleware/rate_limiter.go —
// the auth-specific middleware (JWT verification) and the DDoS/endpoint/user
// tiering in that package have no home here (Non-goal: authenticating end
// users) and are not carried over.
package middleware

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Recovery converts a panic in a downstream handler into a 500 response
// instead of crashing the process.
func Recovery(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				logger.Error("panic recovered", zap.Any("error", err), zap.String("path", c.Request.URL.Path))
				c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
				c.Abort()
			}
		}()
		c.Next()
	}
}

// RequestID stamps every request/response pair with a correlation id.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		c.Set("request_id", id)
		c.Writer.Header().Set("X-Request-ID", id)
		c.Next()
	}
}

// CORS allows the browser UI (an out-of-scope collaborator, §1) to call
// this API from a different origin during development.
func CORS() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-Requested-With")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// SecurityHeaders sets the same defensive header set the teacher applies
// to every response.
func SecurityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("X-Content-Type-Options", "nosniff")
		c.Writer.Header().Set("X-Frame-Options", "DENY")
		c.Writer.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Next()
	}
}

// tokenBucket is a minimal fixed-window counter per client IP. Grounded on
// the teacher's utils.NewRateLimiter usage (RateLimiterAdvanced), simplified
// to a single limit/window pair since this API has no differentiated
// per-route auth limits (Non-goal: authenticating end users).
type tokenBucket struct {
	mu       sync.Mutex
	counts   map[string]int
	resetAt  time.Time
	limit    int
	window   time.Duration
}

func newTokenBucket(limit int, window time.Duration) *tokenBucket {
	return &tokenBucket{counts: make(map[string]int), resetAt: time.Now().Add(window), limit: limit, window: window}
}

func (b *tokenBucket) allow(key string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if time.Now().After(b.resetAt) {
		b.counts = make(map[string]int)
		b.resetAt = time.Now().Add(b.window)
	}
	b.counts[key]++
	return b.counts[key] <= b.limit
}

// RateLimit rejects requests beyond limit-per-window from a single client
// IP. When rdb is non-nil the counter lives in Redis (INCR+EXPIRE, mirroring
// the teacher's DistributedRateLimiter.checkGlobalLimits), so multiple
// coordinator replicas behind the same Redis share one limit; when rdb is
// nil it falls back to the in-process tokenBucket.
func RateLimit(limit int, window time.Duration, rdb *redis.Client) gin.HandlerFunc {
	bucket := newTokenBucket(limit, window)
	return func(c *gin.Context) {
		key := c.ClientIP()

		var allowed bool
		if rdb != nil {
			var err error
			allowed, err = redisAllow(c.Request.Context(), rdb, key, limit, window)
			if err != nil {
				allowed = bucket.allow(key)
			}
		} else {
			allowed = bucket.allow(key)
		}

		if !allowed {
			c.JSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
			c.Abort()
			return
		}
		c.Next()
	}
}

// redisAllow increments the per-client counter for the current window and
// arms its expiry on the first hit, same shape as the teacher's
// checkGlobalLimits/Incr+Expire pair.
func redisAllow(ctx context.Context, rdb *redis.Client, key string, limit int, window time.Duration) (bool, error) {
	counterKey := "aircast:ratelimit:" + key
	count, err := rdb.Incr(ctx, counterKey).Result()
	if err != nil {
		return false, err
	}
	if count == 1 {
		rdb.Expire(ctx, counterKey, window)
	}
	return count <= int64(limit), nil
}
