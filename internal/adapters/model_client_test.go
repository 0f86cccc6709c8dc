package adapters

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/renalworks/ckd-gateway/internal/types"
)

func sampleRecord() types.FeatureRecord {
	return types.FeatureRecord{
		"age": 70.0,
		"bp":  150.0,
		"sc":  1.5,
	}
}

func TestModelClientCallDecodesPrediction(t *testing.T) {
	var gotPath string
	var gotRecord map[string]interface{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotRecord))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"prediction":"ckd","probability":0.91,"confidence":91.0}`))
	}))
	defer srv.Close()

	client := NewModelClient(2 * time.Second)
	defer func() { _ = client.Close() }()

	resp, err := client.Call(context.Background(), srv.URL+"/predict", sampleRecord())
	require.NoError(t, err)

	assert.Equal(t, "/predict", gotPath)
	assert.Equal(t, 70.0, gotRecord["age"])
	assert.Equal(t, "ckd", resp.Prediction)
	assert.Equal(t, 0.91, resp.Probability)
	assert.Equal(t, 91.0, resp.Confidence)
}

func TestModelClientCallToleratesPartialPayloads(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "prediction only", body: `{"prediction":1}`},
		{name: "probability only", body: `{"probability":0.3}`},
		{name: "empty object", body: `{}`},
		{name: "extra fields ignored", body: `{"prediction":"notckd","model_version":"2.1","latency_ms":12}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			client := NewModelClient(2 * time.Second)
			defer func() { _ = client.Close() }()

			_, err := client.Call(context.Background(), srv.URL+"/predict", sampleRecord())
			assert.NoError(t, err)
		})
	}
}

func TestModelClientCallMalformedResponses(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{name: "invalid json", status: http.StatusOK, body: `{"prediction":`},
		{name: "html error page", status: http.StatusOK, body: `<html>oops</html>`},
		{name: "server error", status: http.StatusInternalServerError, body: `{"error":"model not loaded"}`},
		{name: "not found", status: http.StatusNotFound, body: ``},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			client := NewModelClient(2 * time.Second)
			defer func() { _ = client.Close() }()

			_, err := client.Call(context.Background(), srv.URL+"/predict", sampleRecord())
			assert.ErrorIs(t, err, ErrMalformedResponse)
		})
	}
}

func TestModelClientCallTimesOut(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		_, _ = w.Write([]byte(`{"prediction":1}`))
	}))
	defer srv.Close()

	client := NewModelClient(20 * time.Millisecond)
	defer func() { _ = client.Close() }()

	_, err := client.Call(context.Background(), srv.URL+"/predict", sampleRecord())
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.NotErrorIs(t, err, ErrMalformedResponse)
}

func TestModelClientCallConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	deadURL := srv.URL
	srv.Close()

	client := NewModelClient(time.Second)
	defer func() { _ = client.Close() }()

	_, err := client.Call(context.Background(), deadURL+"/predict", sampleRecord())
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrMalformedResponse)
}

func TestModelClientHealthCheck(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		if r.URL.Path == "/health" {
			_, _ = w.Write([]byte(`{"status":"ok"}`))
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	client := NewModelClient(time.Second)
	defer func() { _ = client.Close() }()

	err := client.HealthCheck(context.Background(), srv.URL+"/predict")
	require.NoError(t, err)
	assert.Equal(t, "/health", gotPath)
}

func TestModelClientHealthCheckFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	client := NewModelClient(time.Second)
	defer func() { _ = client.Close() }()

	assert.Error(t, client.HealthCheck(context.Background(), srv.URL+"/predict"))
}

func TestHealthURLFor(t *testing.T) {
	tests := []struct {
		name     string
		endpoint string
		expected string
		hasError bool
	}{
		{
			name:     "predict path rewritten",
			endpoint: "http://localhost:5001/predict",
			expected: "http://localhost:5001/health",
		},
		{
			name:     "query string dropped",
			endpoint: "http://model-svc:8080/predict?version=2",
			expected: "http://model-svc:8080/health",
		},
		{
			name:     "bare host",
			endpoint: "http://localhost:5002",
			expected: "http://localhost:5002/health",
		},
		{
			name:     "unparseable endpoint",
			endpoint: "http://bad host/predict",
			hasError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := healthURLFor(tt.endpoint)
			if tt.hasError {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}
