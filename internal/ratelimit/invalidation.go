package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"
)

// InvalidateIP removes the rate limit state for a specific IP address,
// including any endpoint-scoped keys for that IP. Used for manual limit
// resets by operators.
func (rl *RateLimiter) InvalidateIP(ctx context.Context, ip string) error {
	ipKey := fmt.Sprintf("ratelimit:ip:%s", ip)

	if !rl.redisClient.IsEnabled() {
		rl.fallbackMutex.Lock()
		defer rl.fallbackMutex.Unlock()

		delete(rl.fallbackLimiters, ipKey)
		for key := range rl.fallbackLimiters {
			if strings.HasPrefix(key, "ratelimit:endpoint:") && strings.HasSuffix(key, ":"+ip) {
				delete(rl.fallbackLimiters, key)
			}
		}

		slog.Info("Invalidated IP rate limits (in-memory)", "ip", ip)
		return nil
	}

	// Exact DEL for the per-minute key; the endpoint pattern pins the IP as
	// the final segment so 10.0.0.1 never matches 10.0.0.10.
	if err := rl.redisClient.GetClient().Del(ctx, ipKey).Err(); err != nil {
		return fmt.Errorf("failed to delete IP key: %w", err)
	}
	return rl.deleteByPattern(ctx, fmt.Sprintf("ratelimit:endpoint:*:%s", ip))
}

// InvalidateModel resets the outbound quota for one model backend
func (rl *RateLimiter) InvalidateModel(ctx context.Context, modelID string) error {
	key := fmt.Sprintf("ratelimit:model:%s", modelID)

	if !rl.redisClient.IsEnabled() {
		rl.fallbackMutex.Lock()
		defer rl.fallbackMutex.Unlock()

		delete(rl.fallbackLimiters, key)
		slog.Info("Invalidated model rate limits (in-memory)", "model", modelID)
		return nil
	}

	if err := rl.redisClient.GetClient().Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("failed to delete model key: %w", err)
	}

	slog.Info("Invalidated model rate limits", "model", modelID)
	return nil
}

// InvalidateAll removes all rate limit keys (emergency use only)
func (rl *RateLimiter) InvalidateAll(ctx context.Context) error {
	if !rl.redisClient.IsEnabled() {
		rl.fallbackMutex.Lock()
		defer rl.fallbackMutex.Unlock()

		count := len(rl.fallbackLimiters)
		rl.fallbackLimiters = make(map[string]*rate.Limiter)

		slog.Warn("Invalidated all rate limits (in-memory)", "count", count)
		return nil
	}

	slog.Warn("Invalidating ALL rate limits")
	return rl.deleteByPattern(ctx, "ratelimit:*")
}

// BumpVersion forces every active limit window to restart. Used for
// emergency policy changes; the version counter survives as an audit trail.
func (rl *RateLimiter) BumpVersion(ctx context.Context) (int64, error) {
	if !rl.redisClient.IsEnabled() {
		rl.fallbackMutex.Lock()
		rl.fallbackLimiters = make(map[string]*rate.Limiter)
		rl.fallbackMutex.Unlock()

		version := rl.localVersion.Add(1)
		slog.Info("Bumped rate limit version (in-memory)", "version", version)
		return version, nil
	}

	for _, pattern := range []string{"ratelimit:ip:*", "ratelimit:model:*", "ratelimit:endpoint:*"} {
		if err := rl.deleteByPattern(ctx, pattern); err != nil {
			return 0, err
		}
	}

	result := rl.redisClient.GetClient().Incr(ctx, "ratelimit:version")
	if result.Err() != nil {
		return 0, fmt.Errorf("failed to bump version: %w", result.Err())
	}

	version := result.Val()
	slog.Info("Bumped rate limit version", "version", version)
	return version, nil
}

// GetVersion returns the current limit-window version
func (rl *RateLimiter) GetVersion(ctx context.Context) (int64, error) {
	if !rl.redisClient.IsEnabled() {
		return rl.localVersion.Load(), nil
	}

	result := rl.redisClient.GetClient().Get(ctx, "ratelimit:version")
	if result.Err() == redis.Nil {
		return 0, nil
	}
	if result.Err() != nil {
		return 0, fmt.Errorf("failed to get version: %w", result.Err())
	}

	version, err := result.Int64()
	if err != nil {
		return 0, fmt.Errorf("failed to parse version: %w", err)
	}
	return version, nil
}

// GetKeyCount returns the number of live rate limit keys
func (rl *RateLimiter) GetKeyCount(ctx context.Context) (int, error) {
	if !rl.redisClient.IsEnabled() {
		rl.fallbackMutex.RLock()
		defer rl.fallbackMutex.RUnlock()
		return len(rl.fallbackLimiters), nil
	}

	client := rl.redisClient.GetClient()

	var cursor uint64
	var count int
	for {
		keys, nextCursor, err := client.Scan(ctx, cursor, "ratelimit:*", 100).Result()
		if err != nil {
			return 0, fmt.Errorf("failed to scan keys: %w", err)
		}
		count += len(keys)

		cursor = nextCursor
		if cursor == 0 {
			break
		}
	}

	return count, nil
}

// deleteByPattern deletes all Redis keys matching a pattern using SCAN
func (rl *RateLimiter) deleteByPattern(ctx context.Context, pattern string) error {
	client := rl.redisClient.GetClient()

	var cursor uint64
	var deletedCount int

	for {
		keys, nextCursor, err := client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return fmt.Errorf("failed to scan keys: %w", err)
		}

		if len(keys) > 0 {
			deleted, err := client.Del(ctx, keys...).Result()
			if err != nil {
				return fmt.Errorf("failed to delete keys: %w", err)
			}
			deletedCount += int(deleted)
		}

		cursor = nextCursor
		if cursor == 0 {
			break
		}
	}

	slog.Info("Deleted rate limit keys by pattern", "pattern", pattern, "count", deletedCount)
	return nil
}
