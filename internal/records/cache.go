package records

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/renalworks/ckd-gateway/internal/cache"
)

// RecentCache keeps the recent-records listing hot between saves. Entries
// expire on TTL and the whole cache is dropped whenever a new record lands,
// so readers never see a listing missing the latest outcome for longer than
// one request.
type RecentCache struct {
	cache *cache.Cache
}

// NewRecentCache creates a recent-records cache with the given TTL
func NewRecentCache(ttl time.Duration) *RecentCache {
	return &RecentCache{
		cache: cache.NewCache(ttl),
	}
}

func (rc *RecentCache) generateCacheKey(limit int) string {
	return fmt.Sprintf("recent:%d", limit)
}

// Get retrieves a cached recent listing for the given limit
func (rc *RecentCache) Get(limit int) ([]Record, bool) {
	cacheKey := rc.generateCacheKey(limit)

	data, found := rc.cache.Get(cacheKey)
	if !found {
		return nil, false
	}

	var records []Record
	if err := json.Unmarshal(data, &records); err != nil {
		slog.Error("Failed to unmarshal cached records", "error", err, "key", cacheKey)
		return nil, false
	}

	slog.Debug("Recent records cache hit", "limit", limit, "records", len(records))
	return records, true
}

// Set caches a recent listing for the given limit
func (rc *RecentCache) Set(limit int, records []Record) {
	cacheKey := rc.generateCacheKey(limit)

	data, err := json.Marshal(records)
	if err != nil {
		slog.Error("Failed to marshal records for cache", "error", err, "limit", limit)
		return
	}

	rc.cache.Set(cacheKey, data)
}

// Invalidate drops every cached listing. Called after each successful save
// so reads reflect the new record immediately.
func (rc *RecentCache) Invalidate() {
	rc.cache.Clear()
}

// GetStats returns cache statistics
func (rc *RecentCache) GetStats() map[string]interface{} {
	return rc.cache.Stats()
}

// Close stops the cache's expiry sweeper
func (rc *RecentCache) Close() {
	rc.cache.Close()
}
