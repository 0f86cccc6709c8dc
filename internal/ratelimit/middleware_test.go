package ratelimit

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/renalworks/ckd-gateway/internal/monitoring"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRouter(t *testing.T, config Config) (*gin.Engine, *RateLimiter, *monitoring.Metrics) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	metrics := monitoring.NewMetrics()
	limiter := NewRateLimiter(&RedisClient{enabled: false}, config, metrics)
	t.Cleanup(limiter.Close)

	return gin.New(), limiter, metrics
}

func TestIPRateLimitMiddleware(t *testing.T) {
	config := DefaultConfig()
	config.IPLimitPerMin = 2
	router, limiter, metrics := newTestRouter(t, config)

	router.Use(limiter.IPRateLimitMiddleware())
	router.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// First two requests pass with standard headers
	for i := 0; i < 2; i++ {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/ping", nil)
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "2", w.Header().Get("X-RateLimit-Limit"))
		assert.NotEmpty(t, w.Header().Get("X-RateLimit-Reset"))
	}

	// Third request is blocked
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "rate limit exceeded for IP", body["error"])
	assert.Contains(t, body, "retry_after")

	assert.Equal(t, int64(1), metrics.GetRateLimitStats()["ip_blocks"])
}

func TestModelQuotaCheck(t *testing.T) {
	config := DefaultConfig()
	config.ModelLimitPerMin = 1
	router, limiter, metrics := newTestRouter(t, config)

	router.POST("/random_forest/predict", func(c *gin.Context) {
		if !limiter.ModelQuotaCheck(c, "random_forest") {
			return
		}
		c.JSON(http.StatusOK, gin.H{"model": "random_forest"})
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/random_forest/predict", strings.NewReader("{}"))
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "1", w.Header().Get("X-RateLimit-Model-Limit"))

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/random_forest/predict", strings.NewReader("{}"))
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Contains(t, w.Body.String(), "random_forest")
	assert.Equal(t, int64(1), metrics.GetRateLimitStats()["model_blocks"])
}

func TestEndpointRateLimitMiddleware(t *testing.T) {
	router, limiter, metrics := newTestRouter(t, DefaultConfig())

	router.POST("/predict/compare",
		limiter.EndpointRateLimitMiddleware("/predict/compare", 1),
		func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"status": "ok"})
		})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/predict/compare", strings.NewReader("{}"))
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/predict/compare", strings.NewReader("{}"))
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Contains(t, w.Body.String(), "/predict/compare")

	blocks := metrics.GetRateLimitStats()["endpoint_blocks"].(map[string]int64)
	assert.Equal(t, int64(1), blocks["/predict/compare"])
}

func TestAdminRateLimitStatusHandler(t *testing.T) {
	router, limiter, _ := newTestRouter(t, DefaultConfig())

	router.GET("/admin/ratelimit/status", limiter.HandleAdminRateLimitStatus())

	_, err := limiter.AllowIP(context.Background(), "203.0.113.50")
	require.NoError(t, err)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/admin/ratelimit/status", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, float64(1), body["total_keys"])
	assert.Equal(t, float64(0), body["window_version"])
	assert.Contains(t, body, "limiter_stats")
	assert.Contains(t, body, "metrics")
}

func TestAdminRateLimitResetHandler(t *testing.T) {
	config := DefaultConfig()
	config.IPLimitPerMin = 1
	router, limiter, _ := newTestRouter(t, config)

	// Admin routes are registered before the limiter middleware so a blocked
	// operator can still reach them.
	router.POST("/admin/ratelimit/reset", limiter.HandleAdminRateLimitReset())

	router.Use(limiter.IPRateLimitMiddleware())
	router.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
	require.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
	require.Equal(t, http.StatusTooManyRequests, w.Code)

	// gin's test client IP resolves to 192.0.2.1
	w = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/admin/ratelimit/reset",
		strings.NewReader(`{"ip":"192.0.2.1"}`))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
	assert.Equal(t, http.StatusOK, w.Code, "IP should be fresh after admin reset")
}

func TestAdminRateLimitResetRejectsEmptyRequest(t *testing.T) {
	router, limiter, _ := newTestRouter(t, DefaultConfig())
	router.POST("/admin/ratelimit/reset", limiter.HandleAdminRateLimitReset())

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/admin/ratelimit/reset", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "must name an ip, a model, or bump_version")
}

func TestAdminRateLimitResetByModel(t *testing.T) {
	config := DefaultConfig()
	config.ModelLimitPerMin = 1
	router, limiter, _ := newTestRouter(t, config)
	router.POST("/admin/ratelimit/reset", limiter.HandleAdminRateLimitReset())

	ctx := context.Background()

	_, err := limiter.AllowModel(ctx, "svm")
	require.NoError(t, err)

	result, err := limiter.AllowModel(ctx, "svm")
	require.NoError(t, err)
	require.False(t, result.Allowed)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/admin/ratelimit/reset",
		strings.NewReader(`{"model":"svm"}`))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	result, err = limiter.AllowModel(ctx, "svm")
	require.NoError(t, err)
	assert.True(t, result.Allowed)
}

func TestAdminRateLimitResetBumpVersion(t *testing.T) {
	config := DefaultConfig()
	config.IPLimitPerMin = 1
	router, limiter, _ := newTestRouter(t, config)
	router.POST("/admin/ratelimit/reset", limiter.HandleAdminRateLimitReset())

	ctx := context.Background()
	exhaustIP(t, limiter, "198.51.100.9")

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/admin/ratelimit/reset",
		strings.NewReader(`{"bump_version":true}`))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, float64(1), body["version"])

	result, err := limiter.AllowIP(ctx, "198.51.100.9")
	require.NoError(t, err)
	assert.True(t, result.Allowed)
}
