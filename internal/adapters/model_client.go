package adapters

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/renalworks/ckd-gateway/internal/resilience"
	"github.com/renalworks/ckd-gateway/internal/types"
)

// ErrMalformedResponse marks a backend that answered but did not return a
// usable prediction payload. Callers distinguish it from transport failures
// with errors.Is.
var ErrMalformedResponse = errors.New("malformed model response")

// maxResponseBytes caps how much of a model response we are willing to read.
const maxResponseBytes = 1 << 20

// ModelCaller is the seam between dispatch and the network. Tests substitute
// scripted implementations to drive fallback paths without real backends.
type ModelCaller interface {
	Call(ctx context.Context, endpoint string, record types.FeatureRecord) (types.RemoteResponse, error)
}

// ModelClient posts feature records to model scoring services over a pooled
// HTTP client with per-host circuit breakers.
type ModelClient struct {
	pool    *resilience.ConnectionPool
	timeout time.Duration
}

// NewModelClient creates a model client. timeout bounds each individual
// prediction call; the cascade never waits longer than this per backend.
func NewModelClient(timeout time.Duration) *ModelClient {
	pool := resilience.NewConnectionPool(10, 20, 30*time.Second, resilience.ModelServiceBreakerConfig())

	return &ModelClient{
		pool:    pool,
		timeout: timeout,
	}
}

// Call posts the feature record to the endpoint and decodes the prediction
// payload. Transport errors come back as-is (the breaker's rejection
// included); responses that cannot be used wrap ErrMalformedResponse.
func (c *ModelClient) Call(ctx context.Context, endpoint string, record types.FeatureRecord) (types.RemoteResponse, error) {
	var out types.RemoteResponse

	payload, err := json.Marshal(record)
	if err != nil {
		return out, fmt.Errorf("failed to encode feature record: %w", err)
	}

	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.pool.DoRequest(callCtx, http.MethodPost, endpoint, c.headers(), payload)
	if err != nil {
		return out, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return out, fmt.Errorf("%w: reading body from %s: %v", ErrMalformedResponse, endpoint, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return out, fmt.Errorf("%w: status %d from %s: %s", ErrMalformedResponse, resp.StatusCode, endpoint, truncate(body, 256))
	}

	if err := json.Unmarshal(body, &out); err != nil {
		return out, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	return out, nil
}

// HealthCheck probes the backend's /health endpoint. It shares the breaker
// with prediction calls, so successful probes help a tripped breaker close.
func (c *ModelClient) HealthCheck(ctx context.Context, endpoint string) error {
	healthURL, err := healthURLFor(endpoint)
	if err != nil {
		return err
	}

	checkCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.pool.DoRequest(checkCtx, http.MethodGet, healthURL, c.headers(), nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("health check failed: status %d from %s", resp.StatusCode, healthURL)
	}

	return nil
}

func (c *ModelClient) headers() map[string]string {
	return map[string]string{
		"Accept":     "application/json",
		"User-Agent": "CKD-Gateway/1.0",
	}
}

// healthURLFor rewrites a prediction endpoint to its service's /health path.
func healthURLFor(endpoint string) (string, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("invalid endpoint %q: %w", endpoint, err)
	}

	u.Path = "/health"
	u.RawQuery = ""
	return u.String(), nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}

// PoolStats returns connection pool statistics
func (c *ModelClient) PoolStats() map[string]interface{} {
	return c.pool.GetStats()
}

// Close closes the connection pool
func (c *ModelClient) Close() error {
	return c.pool.Close()
}
