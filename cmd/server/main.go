package main

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/renalworks/ckd-gateway/internal/adapters"
	"github.com/renalworks/ckd-gateway/internal/analysis"
	"github.com/renalworks/ckd-gateway/internal/cache"
	"github.com/renalworks/ckd-gateway/internal/database"
	"github.com/renalworks/ckd-gateway/internal/dispatch"
	"github.com/renalworks/ckd-gateway/internal/encoding"
	"github.com/renalworks/ckd-gateway/internal/errors"
	"github.com/renalworks/ckd-gateway/internal/frontend"
	"github.com/renalworks/ckd-gateway/internal/middleware"
	"github.com/renalworks/ckd-gateway/internal/monitoring"
	"github.com/renalworks/ckd-gateway/internal/privacy"
	"github.com/renalworks/ckd-gateway/internal/ratelimit"
	"github.com/renalworks/ckd-gateway/internal/records"
	"github.com/renalworks/ckd-gateway/internal/registry"
	"github.com/renalworks/ckd-gateway/internal/resilience"
	"github.com/renalworks/ckd-gateway/internal/security"
	"github.com/renalworks/ckd-gateway/internal/types"
)

const serverVersion = "1.0.0"

const (
	storagePersisted = "persisted"
	storageDegraded  = "saved locally only"
)

func main() {
	// Structured logging setup
	logLevel := parseLogLevel(getEnvOrDefault("LOG_LEVEL", "info"))
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	// Configuration from environment with defaults
	port := getEnvOrDefault("PORT", "8080")
	dataDir := getEnvOrDefault("DATA_DIR", "./data")
	modelTimeout := getEnvDuration("MODEL_TIMEOUT", 10*time.Second)
	cacheTTL := getEnvDuration("CACHE_TTL", 5*time.Minute)
	retentionDays := getEnvInt("RETENTION_DAYS", privacy.DefaultRetentionDays)
	alertWebhookURL := os.Getenv("ALERT_WEBHOOK_URL")

	// Model catalog: built-in ranking with per-model endpoint overrides
	// from MODEL_<ID>_URL.
	modelRegistry := registry.Default()
	if modelRegistry.Size() == 0 {
		slog.Error("Model catalog is empty, nothing to serve")
		os.Exit(1)
	}
	for _, m := range modelRegistry.List() {
		slog.Info("Model registered",
			"model", m.Identifier,
			"accuracy", m.AccuracyPercent(),
			"endpoint", m.Endpoint,
			"remote", m.HasEndpoint())
	}

	// Initialize prediction record storage
	db, err := database.NewDB(dataDir)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	repo := database.NewRepository(db)
	codec := encoding.NewCodec(10)
	recordsService := records.NewService(repo, codec)

	// Privacy service owns hashing and the retention sweep
	privacyService := privacy.NewService(repo, retentionDays)
	privacyService.ScheduleDataCleanup(24 * time.Hour)

	// Model transport and dispatch
	modelClient := adapters.NewModelClient(modelTimeout)
	dispatcher := dispatch.NewDispatcher(modelRegistry, modelClient)

	// Initialize monitoring system
	appMetrics := monitoring.NewMetrics()
	appLogger := monitoring.NewLogger()
	appLogger.SetLevel(logLevel)

	// Initialize memory monitor
	memoryMonitor := monitoring.NewMemoryMonitor(5*time.Second, 50*1024*1024, appLogger, appMetrics) // 50MB GC threshold
	memoryMonitor.Start()

	// Initialize request tracing
	monitoring.InitGlobalTracer("ckd-gateway", appLogger)

	// Initialize alerting system with one failure-rate rule per model
	monitoring.InitGlobalAlertManager(appLogger, appMetrics, 30*time.Second)
	alertManager := monitoring.GetGlobalAlertManager()
	if alertWebhookURL != "" {
		alertManager.AddNotifier(monitoring.NewWebhookNotifier(alertWebhookURL))
	}
	for _, m := range modelRegistry.List() {
		if m.HasEndpoint() {
			alertManager.AddRule(monitoring.ModelFailureRule(m.Identifier))
		}
	}
	monitoring.StartGlobalAlerting(context.Background())

	// Register model backends for degradation tracking. Probes are
	// observational: a degraded backend is still dispatched to.
	for _, m := range modelRegistry.List() {
		if !m.HasEndpoint() {
			continue
		}
		endpoint := m.Endpoint
		resilience.RegisterService(m.Identifier, func(ctx context.Context) error {
			return modelClient.HealthCheck(ctx, endpoint)
		})
	}
	resilience.StartHealthChecks(context.Background())

	// Rate limiting: Redis-backed GCRA with in-memory fallback
	rateLimitConfig := ratelimit.DefaultConfig()
	rateLimitConfig.Enabled = getEnvBool("RATE_LIMIT_ENABLED", true)
	rateLimitConfig.IPLimitPerMin = getEnvInt("RATE_LIMIT_PER_MINUTE", rateLimitConfig.IPLimitPerMin)
	rateLimitConfig.ModelLimitPerMin = getEnvInt("MODEL_RATE_LIMIT_PER_MINUTE", rateLimitConfig.ModelLimitPerMin)

	redisClient, err := ratelimit.NewRedisClient(os.Getenv("REDIS_ADDRESS"), os.Getenv("REDIS_PASSWORD"), 0)
	if err != nil {
		slog.Warn("Redis unavailable, limit windows run in memory", "error", err)
	}
	limiter := ratelimit.NewRateLimiter(redisClient, rateLimitConfig, appMetrics)

	// Response cache for the prediction endpoints
	appCache := cache.NewCache(cacheTTL)

	// Compression middleware
	compressionMiddleware := middleware.NewCompressionMiddleware(middleware.DefaultCompressionConfig())

	// Security middleware setup
	securityConfig := security.DefaultSecurityConfig()
	securityConfig.EnableHSTS = getEnvBool("ENABLE_HSTS", false)
	if proxies := splitCSV(os.Getenv("TRUSTED_PROXIES")); len(proxies) > 0 {
		securityConfig.TrustedProxies = proxies
	}
	securityMiddleware := security.NewSecurityMiddleware(securityConfig)

	// Embedded demo console
	consoleFS, err := frontend.GetDistFS()
	if err != nil {
		slog.Error("Failed to open embedded console assets", "error", err)
		os.Exit(1)
	}
	indexTemplate, err := frontend.LoadIndexTemplate(consoleFS)
	if err != nil {
		slog.Error("Failed to load console template", "error", err)
		os.Exit(1)
	}
	consoleHandler := frontend.NewConsoleHandler(consoleFS, indexTemplate)

	r := gin.New()

	if err := r.SetTrustedProxies(securityConfig.TrustedProxies); err != nil {
		slog.Error("Invalid trusted proxy configuration", "error", err)
		os.Exit(1)
	}

	// Add monitoring middleware first (to capture all requests)
	r.Use(monitoring.MonitoringMiddleware(appMetrics, appLogger))
	r.Use(monitoring.TracingMiddleware(monitoring.GetGlobalTracer()))
	r.Use(monitoring.SecurityMonitoringMiddleware(appLogger))

	// Add error handling middleware
	r.Use(errors.ErrorHandler())
	r.Use(errors.RecoveryHandler())

	// Transport protections and response shaping
	r.Use(security.SecurityHeadersMiddleware(securityConfig))
	r.Use(newCORSMiddleware(splitCSV(os.Getenv("ALLOWED_ORIGINS"))))
	r.Use(compressionMiddleware.Handler())
	r.Use(securityMiddleware.ValidateContentType)
	r.Use(securityMiddleware.MaxBodySize)
	r.Use(securityMiddleware.RequestTimeout)

	// Operational routes are registered ahead of the IP limiter so probes
	// and dashboards keep answering while a client is throttled.

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "ok",
			"version":   serverVersion,
			"models":    modelRegistry.Size(),
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
	})

	r.GET("/health/services", func(c *gin.Context) {
		services := resilience.GetAllServiceHealth()

		status := http.StatusOK
		state := "ok"
		for _, service := range services {
			if service.Level == resilience.LevelEmergency {
				status = http.StatusServiceUnavailable
				state = "degraded"
				break
			}
		}

		c.JSON(status, gin.H{
			"status":           state,
			"services":         services,
			"circuit_breakers": resilience.GetCircuitBreakerStats(),
			"active_alerts":    alertManager.GetActiveAlerts(),
			"timestamp":        time.Now().UTC().Format(time.RFC3339),
		})
	})

	r.GET("/metrics", func(c *gin.Context) {
		recordStats := gin.H{"recent_cache": recordsService.CacheStats()}
		if counts, err := recordsService.CountByModel(c.Request.Context()); err == nil {
			recordStats["predictions_by_model"] = counts
		}

		c.JSON(http.StatusOK, gin.H{
			"application":  appMetrics.GetStats(),
			"rate_limits":  limiter.GetStats(),
			"cache":        appCache.Stats(),
			"compression":  compressionMiddleware.GetStats(),
			"encoder":      codec.GetStats(),
			"database":     db.GetPoolStats(),
			"model_client": modelClient.PoolStats(),
			"records":      recordStats,
			"memory":       memoryMonitor.GetStats(),
			"tracing":      gin.H{"spans_recorded": monitoring.GetGlobalTracer().GetSpanCount()},
			"retention":    privacyService.GetDataRetentionInfo(),
			"timestamp":    time.Now().UTC().Format(time.RFC3339),
		})
	})

	r.GET("/debug/traces", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"service":        "ckd-gateway",
			"spans_recorded": monitoring.GetGlobalTracer().GetSpanCount(),
		})
	})

	r.GET("/alerts", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"alerts": alertManager.GetAlerts(),
			"active": alertManager.GetActiveAlerts(),
		})
	})

	r.POST("/alerts/:id/silence", func(c *gin.Context) {
		duration, err := time.ParseDuration(c.DefaultQuery("duration", "30m"))
		if err != nil {
			appErr := errors.NewValidationError("invalid silence duration", err.Error())
			errors.LogError(c, appErr)
			c.JSON(appErr.HTTPStatus, appErr)
			return
		}

		alertID := c.Param("id")
		alertManager.SilenceAlert(alertID, duration)
		c.JSON(http.StatusOK, gin.H{
			"status":   "silenced",
			"alert_id": alertID,
			"duration": duration.String(),
		})
	})

	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	r.GET("/", security.CSPMiddleware(), consoleHandler)
	r.GET("/assets/*filepath", consoleHandler)

	// Admin limiter controls stay reachable for a throttled IP
	admin := r.Group("/admin")
	{
		admin.GET("/ratelimit/status", limiter.HandleAdminRateLimitStatus())
		admin.POST("/ratelimit/reset", limiter.HandleAdminRateLimitReset())
	}

	if os.Getenv("ENABLE_PROFILING") == "true" {
		debugGroup := r.Group("/debug/pprof")
		{
			debugGroup.GET("/", gin.WrapF(pprof.Index))
			debugGroup.GET("/cmdline", gin.WrapF(pprof.Cmdline))
			debugGroup.GET("/profile", gin.WrapF(pprof.Profile))
			debugGroup.GET("/symbol", gin.WrapF(pprof.Symbol))
			debugGroup.GET("/trace", gin.WrapF(pprof.Trace))
			debugGroup.GET("/heap", gin.WrapH(pprof.Handler("heap")))
			debugGroup.GET("/goroutine", gin.WrapH(pprof.Handler("goroutine")))
			debugGroup.GET("/block", gin.WrapH(pprof.Handler("block")))
		}
		slog.Info("Profiling endpoints enabled under /debug/pprof")
	}

	// Everything below is rate limited per client IP and served from the
	// response cache when an identical prediction was answered inside the
	// TTL.
	r.Use(limiter.IPRateLimitMiddleware())
	r.Use(appCache.Middleware(appMetrics))

	bindFeatures := func(c *gin.Context) (types.FeatureRecord, bool) {
		var features types.FeatureRecord
		if err := c.ShouldBindJSON(&features); err != nil {
			appErr := errors.NewValidationError("request body must be a JSON object of clinical features", err.Error())
			errors.LogError(c, appErr)
			c.JSON(appErr.HTTPStatus, appErr)
			return nil, false
		}
		return features, true
	}

	// persist saves the outcome and maps failure to the storage
	// annotation. The response is already decided when this runs; a write
	// failure never changes it.
	persist := func(c *gin.Context, features types.FeatureRecord, outcome types.PredictionOutcome) (string, string) {
		recordID, err := recordsService.Save(c.Request.Context(), features, outcome)
		if err != nil {
			errors.LogError(c, errors.NewPersistenceError(err))
			return recordID, storageDegraded
		}
		return recordID, storagePersisted
	}

	r.POST("/predict/single", func(c *gin.Context) {
		features, ok := bindFeatures(c)
		if !ok {
			return
		}

		if best, ok := modelRegistry.Best(); ok && best.HasEndpoint() {
			if !limiter.ModelQuotaCheck(c, best.Identifier) {
				return
			}
		}

		start := time.Now()
		outcome, err := dispatcher.Dispatch(c.Request.Context(), features)
		if err != nil {
			appErr := errors.ToAppError(err)
			errors.LogError(c, appErr)
			c.JSON(appErr.HTTPStatus, appErr)
			return
		}

		appMetrics.IncrementPrediction()
		if outcome.UsedFallback {
			appMetrics.IncrementFallback()
		}
		if outcome.Source == types.SourceSynthesized {
			appMetrics.IncrementSynthesized()
		} else {
			appMetrics.RecordModelCall(outcome.ModelID, true)
		}
		appLogger.PredictionLogger(outcome.ModelID, string(outcome.Label), string(outcome.Source),
			outcome.Probability, outcome.UsedFallback, time.Since(start))

		recordID, storage := persist(c, features, outcome)
		c.JSON(http.StatusOK, predictionBody(modelRegistry, outcome, recordID, storage))
	})

	compareLimit := rateLimitConfig.IPLimitPerMin / 2
	if compareLimit < 1 {
		compareLimit = 1
	}

	r.POST("/predict/compare",
		limiter.EndpointRateLimitMiddleware("compare", compareLimit),
		func(c *gin.Context) {
			features, ok := bindFeatures(c)
			if !ok {
				return
			}

			start := time.Now()
			report, err := dispatcher.CompareAll(c.Request.Context(), features)
			if err != nil {
				appErr := errors.ToAppError(err)
				errors.LogError(c, appErr)
				c.JSON(appErr.HTTPStatus, appErr)
				return
			}

			appMetrics.IncrementComparison()
			for _, entry := range report {
				switch {
				case !entry.OK():
					appMetrics.RecordModelCall(entry.ModelID, false)
				case entry.Outcome.Source == types.SourceRemote:
					appMetrics.RecordModelCall(entry.ModelID, true)
				}
			}

			// The highest-ranked resolved outcome is the one a caller
			// acts on; that is the row worth keeping.
			var recordID, storage string
			for i := range report {
				if report[i].OK() {
					recordID, storage = persist(c, features, *report[i].Outcome)
					break
				}
			}

			slog.Info("Comparison complete",
				"models_total", len(report),
				"models_failed", report.Failed(),
				"duration_ms", time.Since(start).Milliseconds())

			c.JSON(http.StatusOK, comparisonBody(modelRegistry, report, recordID, storage))
		})

	// One static route per registered model. Unknown identifiers never
	// reach a handler; the NoRoute fallback rejects them with the valid
	// catalog and no network call is made.
	modelPredictionHandler := func(modelID string) gin.HandlerFunc {
		descriptor, _ := modelRegistry.Get(modelID)
		return func(c *gin.Context) {
			features, ok := bindFeatures(c)
			if !ok {
				return
			}

			if descriptor.HasEndpoint() && !limiter.ModelQuotaCheck(c, modelID) {
				return
			}

			start := time.Now()
			outcome, err := dispatcher.DispatchModel(c.Request.Context(), modelID, features)
			if err != nil {
				appErr := errors.ToAppError(err)
				errors.LogError(c, appErr)
				c.JSON(appErr.HTTPStatus, appErr)
				return
			}

			appMetrics.IncrementPrediction()
			if outcome.UsedFallback {
				appMetrics.IncrementFallback()
			}
			if outcome.Source == types.SourceSynthesized {
				appMetrics.IncrementSynthesized()
				if descriptor.HasEndpoint() {
					appMetrics.RecordModelCall(modelID, false)
				}
			} else {
				appMetrics.RecordModelCall(modelID, true)
			}
			appLogger.PredictionLogger(outcome.ModelID, string(outcome.Label), string(outcome.Source),
				outcome.Probability, outcome.UsedFallback, time.Since(start))

			recordID, storage := persist(c, features, outcome)
			c.JSON(http.StatusOK, predictionBody(modelRegistry, outcome, recordID, storage))
		}
	}
	for _, modelID := range modelRegistry.IDs() {
		r.POST("/"+modelID+"/predict", modelPredictionHandler(modelID))
	}

	r.GET("/records/recent", func(c *gin.Context) {
		limit, err := strconv.Atoi(c.DefaultQuery("limit", "20"))
		if err != nil {
			appErr := errors.NewValidationError("limit must be an integer", err.Error())
			errors.LogError(c, appErr)
			c.JSON(appErr.HTTPStatus, appErr)
			return
		}

		recent, err := recordsService.Recent(c.Request.Context(), limit)
		if err != nil {
			appErr := errors.NewInternalError("failed to read recent records", err)
			errors.LogError(c, appErr)
			c.JSON(appErr.HTTPStatus, appErr)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"records": recent,
			"count":   len(recent),
		})
	})

	r.GET("/records/:id", func(c *gin.Context) {
		id := c.Param("id")

		record, err := recordsService.GetByID(c.Request.Context(), id)
		if err != nil {
			appErr := errors.NewInternalError("failed to read record", err)
			errors.LogError(c, appErr)
			c.JSON(appErr.HTTPStatus, appErr)
			return
		}
		if record == nil {
			c.JSON(http.StatusNotFound, gin.H{
				"error":     "record not found",
				"record_id": id,
			})
			return
		}

		c.JSON(http.StatusOK, record)
	})

	r.DELETE("/records/:id", func(c *gin.Context) {
		id := c.Param("id")

		deleted, err := privacyService.DeleteRecord(c.Request.Context(), id)
		if err != nil {
			appErr := errors.NewInternalError("failed to delete record", err)
			errors.LogError(c, appErr)
			c.JSON(appErr.HTTPStatus, appErr)
			return
		}
		if !deleted {
			c.JSON(http.StatusNotFound, gin.H{
				"error":     "record not found",
				"record_id": id,
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"deleted":   true,
			"record_id": id,
		})
	})

	r.NoRoute(func(c *gin.Context) {
		if c.Request.Method == http.MethodPost {
			if modelID, ok := modelPredictPath(c.Request.URL.Path); ok {
				appErr := errors.NewUnknownModelError(modelID, modelRegistry.IDs())
				errors.LogError(c, appErr)
				c.JSON(appErr.HTTPStatus, appErr)
				return
			}
		}
		c.JSON(http.StatusNotFound, gin.H{
			"error": "resource not found",
			"path":  c.Request.URL.Path,
		})
	})

	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		slog.Info("CKD gateway listening",
			"port", port,
			"models", modelRegistry.Size(),
			"version", serverVersion)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("Shutting down gateway")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Forced shutdown", "error", err)
	}

	privacyService.Stop()
	memoryMonitor.Stop()
	recordsService.Close()
	appCache.Close()
	limiter.Close()
	resilience.ShutdownHealthTracking()
	errors.SafeClose(modelClient, "model client")
	errors.SafeClose(redisClient, "redis client")

	slog.Info("Gateway stopped")
}

// predictionBody assembles the response for one prediction outcome.
func predictionBody(reg *registry.Registry, outcome types.PredictionOutcome, recordID, storage string) types.PredictResponse {
	accuracy := ""
	if m, ok := reg.Get(outcome.ModelID); ok {
		accuracy = m.AccuracyPercent()
	}

	return types.PredictResponse{
		RiskScore:      analysis.RiskScore(outcome.Probability),
		RiskLabel:      analysis.RiskLabel(outcome.Label),
		Probability:    outcome.Probability,
		Confidence:     outcome.Confidence,
		Model:          outcome.ModelID,
		ModelAccuracy:  accuracy,
		Source:         string(outcome.Source),
		UsedFallback:   outcome.UsedFallback,
		Recommendation: analysis.Recommendation(outcome.Label),
		RecordID:       recordID,
		Storage:        storage,
	}
}

// comparisonBody assembles the response for a full comparison report.
// Failed slots carry the error string and keep prediction fields zeroed.
func comparisonBody(reg *registry.Registry, report types.ComparisonReport, recordID, storage string) types.CompareResponse {
	entries := make([]types.CompareEntryResponse, 0, len(report))
	for _, e := range report {
		entry := types.CompareEntryResponse{Model: e.ModelID}
		if m, ok := reg.Get(e.ModelID); ok {
			entry.ModelAccuracy = m.AccuracyPercent()
		}

		if e.OK() {
			entry.RiskScore = analysis.RiskScore(e.Outcome.Probability)
			entry.RiskLabel = analysis.RiskLabel(e.Outcome.Label)
			entry.Probability = e.Outcome.Probability
			entry.Confidence = e.Outcome.Confidence
			entry.Source = string(e.Outcome.Source)
			entry.Recommendation = analysis.Recommendation(e.Outcome.Label)
		} else {
			entry.Error = e.Err
		}

		entries = append(entries, entry)
	}

	return types.CompareResponse{
		Report:       entries,
		ModelsTotal:  len(report),
		ModelsFailed: report.Failed(),
		RecordID:     recordID,
		Storage:      storage,
	}
}

// newCORSMiddleware builds the CORS policy. With no configured origins the
// gateway is open, which matches local development against the console.
func newCORSMiddleware(allowedOrigins []string) gin.HandlerFunc {
	corsConfig := cors.Config{
		AllowMethods:  []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "X-Request-ID"},
		ExposeHeaders: []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "Retry-After", "X-Cache", "X-Trace-ID"},
		MaxAge:        12 * time.Hour,
	}
	if len(allowedOrigins) > 0 {
		corsConfig.AllowOrigins = allowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	return cors.New(corsConfig)
}

// modelPredictPath extracts the model identifier from a /{model}/predict
// path. Only that shape maps to the unknown-model rejection; every other
// unmatched path is a plain 404.
func modelPredictPath(path string) (string, bool) {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) == 2 && parts[0] != "" && parts[1] == "predict" {
		return parts[0], true
	}
	return "", false
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func splitCSV(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		slog.Warn("Invalid duration in environment, using default",
			"key", key, "value", value, "default", defaultValue)
		return defaultValue
	}
	return d
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		slog.Warn("Invalid integer in environment, using default",
			"key", key, "value", value, "default", defaultValue)
		return defaultValue
	}
	return n
}

func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		slog.Warn("Invalid boolean in environment, using default",
			"key", key, "value", value, "default", defaultValue)
		return defaultValue
	}
	return b
}
