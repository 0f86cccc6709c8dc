package resilience

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnectionPoolDoRequestPostsJSONBody(t *testing.T) {
	var gotMethod, gotContentType, gotHeader, gotBody string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotContentType = r.Header.Get("Content-Type")
		gotHeader = r.Header.Get("X-Trace-Id")
		raw, _ := io.ReadAll(r.Body)
		gotBody = string(raw)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	pool := NewConnectionPool(2, 4, time.Minute, ModelServiceBreakerConfig())
	defer func() { _ = pool.Close() }()

	resp, err := pool.DoRequest(context.Background(), http.MethodPost, srv.URL,
		map[string]string{"X-Trace-Id": "abc123"}, []byte(`{"age":70,"sc":1.5}`))
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, http.MethodPost, gotMethod)
	assert.Equal(t, "application/json", gotContentType)
	assert.Equal(t, "abc123", gotHeader)
	assert.JSONEq(t, `{"age":70,"sc":1.5}`, gotBody)
}

func TestConnectionPoolDoRequestWithoutBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Content-Type"))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	pool := NewConnectionPool(2, 4, time.Minute, ModelServiceBreakerConfig())
	defer func() { _ = pool.Close() }()

	resp, err := pool.DoRequest(context.Background(), http.MethodGet, srv.URL, nil, nil)
	require.NoError(t, err)
	_ = resp.Body.Close()
}

func TestConnectionPoolBreakerTripsPerHost(t *testing.T) {
	// Closed server guarantees connection refused on a real port.
	dead := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	deadURL := dead.URL
	dead.Close()

	alive := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer alive.Close()

	pool := NewConnectionPool(2, 8, time.Minute, CircuitBreakerConfig{
		FailureThreshold: 2,
		RecoveryTimeout:  time.Minute,
		SuccessThreshold: 1,
	})
	defer func() { _ = pool.Close() }()

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		_, err := pool.DoRequest(ctx, http.MethodGet, deadURL, nil, nil)
		require.Error(t, err)
	}

	_, err := pool.DoRequest(ctx, http.MethodGet, deadURL, nil, nil)
	var cbErr *CircuitBreakerError
	require.ErrorAs(t, err, &cbErr)

	// Another host is unaffected by the tripped breaker.
	resp, err := pool.DoRequest(ctx, http.MethodGet, alive.URL, nil, nil)
	require.NoError(t, err)
	_ = resp.Body.Close()
}

func TestConnectionPoolBreakerForKeyedByHost(t *testing.T) {
	pool := NewConnectionPool(2, 4, time.Minute, ModelServiceBreakerConfig())
	defer func() { _ = pool.Close() }()

	a := pool.BreakerFor("http://127.0.0.1:5001/predict")
	b := pool.BreakerFor("http://127.0.0.1:5002/predict")
	samePath := pool.BreakerFor("http://127.0.0.1:5001/health")

	assert.Same(t, a, samePath)
	assert.NotSame(t, a, b)
}

func TestConnectionPoolStats(t *testing.T) {
	pool := NewConnectionPool(2, 4, time.Minute, ModelServiceBreakerConfig())
	defer func() { _ = pool.Close() }()

	client, err := pool.GetClient()
	require.NoError(t, err)
	pool.ReturnClient(client)

	stats := pool.GetStats()
	assert.Equal(t, 1, stats["active_connections"])
	assert.Equal(t, 1, stats["idle_connections"])
	assert.Equal(t, 4, stats["max_active"])
}
