package security

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	apperrors "github.com/renalworks/ckd-gateway/internal/errors"
)

// SecurityConfig holds transport-level protections for the gateway
type SecurityConfig struct {
	MaxBodyBytes   int64         `json:"max_body_bytes"`
	RequestTimeout time.Duration `json:"request_timeout"`
	TrustedProxies []string      `json:"trusted_proxies"`
	EnableHSTS     bool          `json:"enable_hsts"`
}

// DefaultSecurityConfig returns secure defaults. Feature records are tiny;
// 64 KiB leaves two orders of magnitude of headroom.
func DefaultSecurityConfig() SecurityConfig {
	return SecurityConfig{
		MaxBodyBytes:   64 * 1024,
		RequestTimeout: 30 * time.Second,
		TrustedProxies: []string{"127.0.0.1", "::1", "10.0.0.0/8", "172.16.0.0/12", "192.168.0.0/16"},
		EnableHSTS:     false,
	}
}

// SecurityMiddleware bundles the request-shape protections applied ahead of
// the prediction handlers
type SecurityMiddleware struct {
	config SecurityConfig
}

// NewSecurityMiddleware creates a new security middleware instance
func NewSecurityMiddleware(config SecurityConfig) *SecurityMiddleware {
	if config.MaxBodyBytes <= 0 {
		config.MaxBodyBytes = 64 * 1024
	}
	if config.RequestTimeout <= 0 {
		config.RequestTimeout = 30 * time.Second
	}
	return &SecurityMiddleware{config: config}
}

// Config returns the active configuration
func (sm *SecurityMiddleware) Config() SecurityConfig {
	return sm.config
}

// ValidateContentType rejects POSTs that carry a body without declaring
// JSON. Bodyless POSTs (alert silencing) pass through.
func (sm *SecurityMiddleware) ValidateContentType(c *gin.Context) {
	if c.Request.Method != http.MethodPost || c.Request.ContentLength == 0 {
		c.Next()
		return
	}

	contentType := c.GetHeader("Content-Type")
	if !strings.Contains(strings.ToLower(contentType), "application/json") {
		_ = c.Error(apperrors.NewValidationError(
			"content type must be application/json",
			fmt.Sprintf("got %q", contentType)))
		c.Abort()
		return
	}

	c.Next()
}

// MaxBodySize caps request bodies. Declared oversize is rejected up front;
// undeclared (chunked) bodies are capped by MaxBytesReader, which surfaces
// as a bind failure in the handler.
func (sm *SecurityMiddleware) MaxBodySize(c *gin.Context) {
	if c.Request.ContentLength > sm.config.MaxBodyBytes {
		_ = c.Error(apperrors.NewValidationError(
			fmt.Sprintf("request body exceeds %d byte limit", sm.config.MaxBodyBytes)))
		c.Abort()
		return
	}

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, sm.config.MaxBodyBytes)
	c.Next()
}

// RequestTimeout enforces a deadline on every request. Handlers and the
// dispatch cascade inherit it through the request context.
func (sm *SecurityMiddleware) RequestTimeout(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), sm.config.RequestTimeout)
	defer cancel()

	c.Request = c.Request.WithContext(ctx)
	c.Header("X-Timeout", strconv.Itoa(int(sm.config.RequestTimeout.Seconds())))

	c.Next()
}
