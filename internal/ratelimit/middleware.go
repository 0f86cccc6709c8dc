package ratelimit

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

// IPRateLimitMiddleware creates middleware for IP-based rate limiting.
// Limiter failures log and let the request through; the gateway must not
// refuse predictions because Redis is having a bad day.
func (rl *RateLimiter) IPRateLimitMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		ip := c.ClientIP()

		result, err := rl.AllowIP(ctx, ip)
		if err != nil {
			slog.Error("Rate limit check failed", "ip", ip, "error", err)
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(result.Limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))

		if !result.Allowed {
			if rl.metrics != nil {
				rl.metrics.IncrementRateLimitIPBlock()
			}

			c.Header("Retry-After", strconv.Itoa(int(result.RetryAfter.Seconds())))
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error":       "rate limit exceeded for IP",
				"message":     fmt.Sprintf("You have exceeded the rate limit of %d requests per minute", result.Limit),
				"retry_after": int(result.RetryAfter.Seconds()),
				"reset_at":    result.ResetAt.Unix(),
			})
			c.Abort()
			return
		}

		c.Next()
	}
}

// ModelQuotaCheck enforces the outbound quota for one model backend. It is
// called by prediction handlers before dispatch, once the target model is
// known. Returns false after writing the 429 response; the handler must not
// dispatch in that case.
func (rl *RateLimiter) ModelQuotaCheck(c *gin.Context, modelID string) bool {
	result, err := rl.AllowModel(c.Request.Context(), modelID)
	if err != nil {
		slog.Error("Model rate limit check failed", "model", modelID, "error", err)
		return true
	}

	c.Header("X-RateLimit-Model-Limit", strconv.Itoa(result.Limit))
	c.Header("X-RateLimit-Model-Remaining", strconv.Itoa(result.Remaining))

	if !result.Allowed {
		if rl.metrics != nil {
			rl.metrics.IncrementRateLimitModelBlock()
		}

		c.Header("Retry-After", strconv.Itoa(int(result.RetryAfter.Seconds())))
		c.JSON(http.StatusTooManyRequests, gin.H{
			"error":       fmt.Sprintf("rate limit exceeded for model: %s", modelID),
			"message":     fmt.Sprintf("The %s backend accepts at most %d gateway calls per minute", modelID, result.Limit),
			"retry_after": int(result.RetryAfter.Seconds()),
			"reset_at":    result.ResetAt.Unix(),
		})
		c.Abort()
		return false
	}

	return true
}

// EndpointRateLimitMiddleware creates middleware with a custom per-minute
// limit for a single endpoint. Used on /predict/compare, where one request
// fans out to every model backend.
func (rl *RateLimiter) EndpointRateLimitMiddleware(endpoint string, limit int) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		ip := c.ClientIP()

		key := fmt.Sprintf("ratelimit:endpoint:%s:%s", endpoint, ip)

		result, err := rl.Allow(ctx, key, Rate{Limit: limit, Period: time.Minute})
		if err != nil {
			slog.Error("Endpoint rate limit check failed", "endpoint", endpoint, "ip", ip, "error", err)
			c.Next()
			return
		}

		c.Header("X-RateLimit-Endpoint-Limit", strconv.Itoa(result.Limit))
		c.Header("X-RateLimit-Endpoint-Remaining", strconv.Itoa(result.Remaining))

		if !result.Allowed {
			if rl.metrics != nil {
				rl.metrics.IncrementRateLimitEndpoint(endpoint)
			}

			c.Header("Retry-After", strconv.Itoa(int(result.RetryAfter.Seconds())))
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error":       fmt.Sprintf("rate limit exceeded for endpoint: %s", endpoint),
				"message":     fmt.Sprintf("You have exceeded the rate limit of %d requests per minute for this endpoint", result.Limit),
				"retry_after": int(result.RetryAfter.Seconds()),
			})
			c.Abort()
			return
		}

		c.Next()
	}
}
