package ratelimit

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// ResetRequest selects what to invalidate. Exactly one of the fields should
// be set; BumpVersion restarts every window at once.
type ResetRequest struct {
	IP          string `json:"ip"`
	Model       string `json:"model"`
	BumpVersion bool   `json:"bump_version"`
}

// HandleAdminRateLimitStatus returns limiter configuration and backend state
func (rl *RateLimiter) HandleAdminRateLimitStatus() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()

		keyCount, err := rl.GetKeyCount(ctx)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "failed to get key count",
			})
			return
		}

		version, err := rl.GetVersion(ctx)
		if err != nil {
			version = -1
		}

		var rateLimitMetrics map[string]interface{}
		if rl.metrics != nil {
			rateLimitMetrics = rl.metrics.GetRateLimitStats()
		}

		c.JSON(http.StatusOK, gin.H{
			"total_keys":     keyCount,
			"window_version": version,
			"limiter_stats":  rl.GetStats(),
			"metrics":        rateLimitMetrics,
			"timestamp":      time.Now().Format(time.RFC3339),
		})
	}
}

// HandleAdminRateLimitReset invalidates limits for an IP or a model backend
func (rl *RateLimiter) HandleAdminRateLimitReset() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()

		var req ResetRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "invalid reset request body",
			})
			return
		}

		switch {
		case req.BumpVersion:
			version, err := rl.BumpVersion(ctx)
			if err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{
					"error":   "failed to bump window version",
					"details": err.Error(),
				})
				return
			}
			c.JSON(http.StatusOK, gin.H{
				"message":   "all limit windows restarted",
				"version":   version,
				"timestamp": time.Now().Format(time.RFC3339),
			})

		case req.IP != "":
			if err := rl.InvalidateIP(ctx, req.IP); err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{
					"error":   "failed to reset IP rate limits",
					"details": err.Error(),
				})
				return
			}
			c.JSON(http.StatusOK, gin.H{
				"message":   "IP rate limits reset",
				"ip":        req.IP,
				"timestamp": time.Now().Format(time.RFC3339),
			})

		case req.Model != "":
			if err := rl.InvalidateModel(ctx, req.Model); err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{
					"error":   "failed to reset model rate limits",
					"details": err.Error(),
				})
				return
			}
			c.JSON(http.StatusOK, gin.H{
				"message":   "model rate limits reset",
				"model":     req.Model,
				"timestamp": time.Now().Format(time.RFC3339),
			})

		default:
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "reset request must name an ip, a model, or bump_version",
			})
		}
	}
}
