package monitoring

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/renalworks/ckd-gateway/internal/resilience"
)

// AlertSeverity represents the severity level of an alert
type AlertSeverity string

const (
	SeverityInfo     AlertSeverity = "info"
	SeverityWarning  AlertSeverity = "warning"
	SeverityError    AlertSeverity = "error"
	SeverityCritical AlertSeverity = "critical"
)

// AlertStatus represents the status of an alert
type AlertStatus string

const (
	StatusActive     AlertStatus = "active"
	StatusResolved   AlertStatus = "resolved"
	StatusSuppressed AlertStatus = "suppressed"
)

// Alert represents a monitoring alert
type Alert struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	Description string            `json:"description"`
	Severity    AlertSeverity     `json:"severity"`
	Status      AlertStatus       `json:"status"`
	Service     string            `json:"service"`
	Labels      map[string]string `json:"labels,omitempty"`
	Annotations map[string]string `json:"annotations,omitempty"`
	Value       float64           `json:"value,omitempty"`
	Threshold   float64           `json:"threshold,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	ResolvedAt  *time.Time        `json:"resolved_at,omitempty"`
	FiredAt     time.Time         `json:"fired_at"`
	LastSentAt  *time.Time        `json:"last_sent_at,omitempty"`
}

// AlertRule defines a rule for generating alerts
type AlertRule struct {
	Name        string
	Query       string  // Metric query or condition
	Threshold   float64 // Threshold value
	Operator    string  // "gt", "lt", "eq", "ne", "gte", "lte"
	Severity    AlertSeverity
	Service     string
	Description string
	Labels      map[string]string
	Annotations map[string]string
	For         time.Duration // Time condition must be true before firing
}

// AlertNotifier defines the interface for sending alert notifications
type AlertNotifier interface {
	SendAlert(ctx context.Context, alert *Alert) error
	ResolveAlert(ctx context.Context, alert *Alert) error
}

// WebhookNotifier posts alerts as JSON to an operator-configured webhook.
// Delivery uses the slow retry policy; alerting must not give up on the
// first network hiccup.
type WebhookNotifier struct {
	webhookURL string
	pool       *resilience.ConnectionPool
}

// NewWebhookNotifier creates a webhook notifier
func NewWebhookNotifier(webhookURL string) *WebhookNotifier {
	pool := resilience.NewConnectionPool(2, 4, time.Minute, resilience.ModelServiceBreakerConfig())

	return &WebhookNotifier{
		webhookURL: webhookURL,
		pool:       pool,
	}
}

// SendAlert posts a fired alert to the webhook
func (w *WebhookNotifier) SendAlert(ctx context.Context, alert *Alert) error {
	return w.post(ctx, alert)
}

// ResolveAlert posts the resolved alert state to the webhook
func (w *WebhookNotifier) ResolveAlert(ctx context.Context, alert *Alert) error {
	return w.post(ctx, alert)
}

func (w *WebhookNotifier) post(ctx context.Context, alert *Alert) error {
	payload, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("failed to encode alert: %w", err)
	}

	return resilience.RetryWithPolicy(ctx, resilience.SlowRetryPolicy, func() error {
		resp, err := w.pool.DoRequest(ctx, http.MethodPost, w.webhookURL, nil, payload)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return fmt.Errorf("webhook returned status %d", resp.StatusCode)
		}

		slog.Info("Alert webhook delivered", "alert", alert.Name, "status", alert.Status)
		return nil
	})
}

// AlertManager evaluates rules against live metrics and notifies
type AlertManager struct {
	rules         []AlertRule
	alerts        map[string]*Alert
	notifiers     []AlertNotifier
	logger        *Logger
	metrics       *Metrics
	checkInterval time.Duration
	mu            sync.RWMutex
}

// NewAlertManager creates a new alert manager
func NewAlertManager(logger *Logger, metrics *Metrics, checkInterval time.Duration) *AlertManager {
	return &AlertManager{
		rules:         []AlertRule{},
		alerts:        make(map[string]*Alert),
		notifiers:     []AlertNotifier{},
		logger:        logger,
		metrics:       metrics,
		checkInterval: checkInterval,
	}
}

// AddRule adds an alert rule
func (am *AlertManager) AddRule(rule AlertRule) {
	am.mu.Lock()
	defer am.mu.Unlock()
	am.rules = append(am.rules, rule)
}

// AddNotifier adds a notifier
func (am *AlertManager) AddNotifier(notifier AlertNotifier) {
	am.mu.Lock()
	defer am.mu.Unlock()
	am.notifiers = append(am.notifiers, notifier)
}

// Start begins the alert evaluation loop
func (am *AlertManager) Start(ctx context.Context) {
	ticker := time.NewTicker(am.checkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			am.evaluateRules(ctx)
		}
	}
}

// evaluateRules evaluates all alert rules
func (am *AlertManager) evaluateRules(ctx context.Context) {
	am.mu.RLock()
	rules := append([]AlertRule(nil), am.rules...)
	am.mu.RUnlock()

	for _, rule := range rules {
		am.evaluateRule(ctx, rule)
	}
}

// evaluateRule evaluates a single alert rule against current metrics
func (am *AlertManager) evaluateRule(ctx context.Context, rule AlertRule) {
	currentValue, ok := am.queryValue(rule)
	if !ok {
		return
	}

	alertKey := fmt.Sprintf("%s:%s", rule.Service, rule.Name)

	am.mu.Lock()
	alert, exists := am.alerts[alertKey]

	// Check if condition is met
	conditionMet := am.checkCondition(currentValue, rule.Operator, rule.Threshold)

	var toFire, toResolve *Alert

	if conditionMet {
		if !exists {
			// Create new alert
			alert = &Alert{
				ID:          alertKey,
				Name:        rule.Name,
				Description: rule.Description,
				Severity:    rule.Severity,
				Status:      StatusActive,
				Service:     rule.Service,
				Labels:      rule.Labels,
				Annotations: rule.Annotations,
				Value:       currentValue,
				Threshold:   rule.Threshold,
				CreatedAt:   time.Now(),
				FiredAt:     time.Now(),
			}
			am.alerts[alertKey] = alert
			toFire = alert
		} else if alert.Status != StatusActive {
			// Re-fire existing alert
			alert.Status = StatusActive
			alert.FiredAt = time.Now()
			alert.Value = currentValue
			toFire = alert
		}
	} else if exists && alert.Status == StatusActive {
		// Resolve once the alert has been active past its hold window.
		if time.Since(alert.FiredAt) > rule.For {
			alert.Status = StatusResolved
			now := time.Now()
			alert.ResolvedAt = &now
			toResolve = alert
		}
	}
	am.mu.Unlock()

	if toFire != nil {
		am.fireAlert(ctx, toFire)
	}
	if toResolve != nil {
		am.resolveAlert(ctx, toResolve)
	}
}

// queryValue resolves a rule query against live metrics. Unknown queries
// are logged once per evaluation and skipped.
func (am *AlertManager) queryValue(rule AlertRule) (float64, bool) {
	if am.metrics == nil {
		return 0, false
	}

	switch rule.Query {
	case "error_rate":
		requests := atomic.LoadInt64(&am.metrics.RequestCount)
		errors := atomic.LoadInt64(&am.metrics.ErrorCount)
		if requests == 0 {
			return 0, true
		}
		return float64(errors) / float64(requests) * 100, true

	case "response_time_p95":
		return float64(am.metrics.GetPercentileResponseTime(95)) / 1e6, true

	case "memory_usage":
		heapAlloc := atomic.LoadInt64(&am.metrics.HeapAlloc)
		heapSys := atomic.LoadInt64(&am.metrics.HeapSys)
		if heapSys == 0 {
			return 0, true
		}
		return float64(heapAlloc) / float64(heapSys) * 100, true

	case "fallback_rate":
		predictions := atomic.LoadInt64(&am.metrics.PredictionCount)
		fallbacks := atomic.LoadInt64(&am.metrics.FallbackCount)
		if predictions == 0 {
			return 0, true
		}
		return float64(fallbacks) / float64(predictions) * 100, true

	case "model_failure_rate":
		health, ok := resilience.GetServiceHealth(rule.Service)
		if !ok {
			return 0, false
		}
		return health.ErrorRate * 100, true

	default:
		am.logger.SystemLogger("unknown_alert_query", fmt.Sprintf("Unknown query type: %s", rule.Query))
		return 0, false
	}
}

// checkCondition checks if a condition is met
func (am *AlertManager) checkCondition(value float64, operator string, threshold float64) bool {
	switch operator {
	case "gt":
		return value > threshold
	case "lt":
		return value < threshold
	case "eq":
		return value == threshold
	case "ne":
		return value != threshold
	case "gte":
		return value >= threshold
	case "lte":
		return value <= threshold
	default:
		return false
	}
}

// fireAlert fires an alert to all notifiers
func (am *AlertManager) fireAlert(ctx context.Context, alert *Alert) {
	am.logger.SystemLogger("alert_fired", fmt.Sprintf("Alert %s fired with severity %s", alert.Name, alert.Severity))

	am.mu.RLock()
	notifiers := append([]AlertNotifier(nil), am.notifiers...)
	am.mu.RUnlock()

	for _, notifier := range notifiers {
		go func(n AlertNotifier) {
			if err := n.SendAlert(ctx, alert); err != nil {
				am.logger.SystemLogger("alert_notification_failed", fmt.Sprintf("Failed to send alert %s: %v", alert.Name, err))
			}
		}(notifier)
	}
}

// resolveAlert resolves an alert with all notifiers
func (am *AlertManager) resolveAlert(ctx context.Context, alert *Alert) {
	am.logger.SystemLogger("alert_resolved", fmt.Sprintf("Alert %s resolved", alert.Name))

	am.mu.RLock()
	notifiers := append([]AlertNotifier(nil), am.notifiers...)
	am.mu.RUnlock()

	for _, notifier := range notifiers {
		go func(n AlertNotifier) {
			if err := n.ResolveAlert(ctx, alert); err != nil {
				am.logger.SystemLogger("alert_resolution_failed", fmt.Sprintf("Failed to resolve alert %s: %v", alert.Name, err))
			}
		}(notifier)
	}
}

// GetAlerts returns all current alerts
func (am *AlertManager) GetAlerts() map[string]*Alert {
	am.mu.RLock()
	defer am.mu.RUnlock()

	alerts := make(map[string]*Alert)
	for k, v := range am.alerts {
		copied := *v
		alerts[k] = &copied
	}
	return alerts
}

// GetActiveAlerts returns only active alerts
func (am *AlertManager) GetActiveAlerts() map[string]*Alert {
	am.mu.RLock()
	defer am.mu.RUnlock()

	activeAlerts := make(map[string]*Alert)
	for k, v := range am.alerts {
		if v.Status == StatusActive {
			copied := *v
			activeAlerts[k] = &copied
		}
	}
	return activeAlerts
}

// SilenceAlert silences an alert
func (am *AlertManager) SilenceAlert(alertID string, duration time.Duration) {
	am.mu.Lock()
	defer am.mu.Unlock()

	if alert, exists := am.alerts[alertID]; exists {
		alert.Status = StatusSuppressed
		am.logger.SystemLogger("alert_silenced", fmt.Sprintf("Alert %s silenced for %v", alert.Name, duration))
	}
}

// DefaultAlertRules cover the gateway-wide failure modes. Per-model rules
// are registered at startup from the model catalog.
var DefaultAlertRules = []AlertRule{
	{
		Name:        "HighErrorRate",
		Query:       "error_rate",
		Threshold:   10.0, // 10% error rate
		Operator:    "gt",
		Severity:    SeverityWarning,
		Service:     "gateway",
		Description: "Error rate is above 10%",
		For:         5 * time.Minute,
		Annotations: map[string]string{
			"summary":     "High error rate detected",
			"description": "The gateway error rate is above 10% for the last 5 minutes",
		},
	},
	{
		Name:        "SlowResponseTime",
		Query:       "response_time_p95",
		Threshold:   1000.0, // 1000ms
		Operator:    "gt",
		Severity:    SeverityWarning,
		Service:     "gateway",
		Description: "p95 response time is above 1000ms",
		For:         2 * time.Minute,
		Annotations: map[string]string{
			"summary":     "Slow response time detected",
			"description": "The p95 response time is above 1000ms",
		},
	},
	{
		Name:        "HighMemoryUsage",
		Query:       "memory_usage",
		Threshold:   90.0, // 90%
		Operator:    "gt",
		Severity:    SeverityCritical,
		Service:     "system",
		Description: "Heap usage is above 90%",
		For:         1 * time.Minute,
		Annotations: map[string]string{
			"summary":     "High memory usage detected",
			"description": "Heap usage is above 90% of the reserved heap",
		},
	},
	{
		Name:        "HighFallbackRate",
		Query:       "fallback_rate",
		Threshold:   50.0, // half of predictions off the best model
		Operator:    "gt",
		Severity:    SeverityError,
		Service:     "dispatch",
		Description: "Most predictions are not served by the best model",
		For:         5 * time.Minute,
		Annotations: map[string]string{
			"summary":     "High fallback rate detected",
			"description": "Over half of recent predictions fell back past the best model",
		},
	},
}

// ModelFailureRule builds a per-model backend failure alert
func ModelFailureRule(modelID string) AlertRule {
	return AlertRule{
		Name:        "ModelBackendFailing",
		Query:       "model_failure_rate",
		Threshold:   50.0,
		Operator:    "gt",
		Severity:    SeverityError,
		Service:     modelID,
		Description: fmt.Sprintf("Model %s is failing more than half of its calls", modelID),
		For:         5 * time.Minute,
		Annotations: map[string]string{
			"summary": fmt.Sprintf("Model backend %s failing", modelID),
		},
	}
}

// Global alert manager instance
var globalAlertManager *AlertManager

// InitGlobalAlertManager initializes the global alert manager
func InitGlobalAlertManager(logger *Logger, metrics *Metrics, checkInterval time.Duration) {
	globalAlertManager = NewAlertManager(logger, metrics, checkInterval)

	// Add default alert rules
	for _, rule := range DefaultAlertRules {
		globalAlertManager.AddRule(rule)
	}
}

// GetGlobalAlertManager returns the global alert manager
func GetGlobalAlertManager() *AlertManager {
	return globalAlertManager
}

// StartGlobalAlerting starts the global alert manager
func StartGlobalAlerting(ctx context.Context) {
	if globalAlertManager != nil {
		go globalAlertManager.Start(ctx)
	}
}
