package dispatch

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/renalworks/ckd-gateway/internal/adapters"
	apperrors "github.com/renalworks/ckd-gateway/internal/errors"
	"github.com/renalworks/ckd-gateway/internal/registry"
	"github.com/renalworks/ckd-gateway/internal/types"
)

type callResult struct {
	resp types.RemoteResponse
	err  error
}

// scriptedCaller returns canned results per endpoint and records call order.
type scriptedCaller struct {
	mu      sync.Mutex
	results map[string]callResult
	calls   []string
}

func newScriptedCaller() *scriptedCaller {
	return &scriptedCaller{results: make(map[string]callResult)}
}

func (s *scriptedCaller) succeed(endpoint string, resp types.RemoteResponse) {
	s.results[endpoint] = callResult{resp: resp}
}

func (s *scriptedCaller) fail(endpoint string, err error) {
	s.results[endpoint] = callResult{err: err}
}

func (s *scriptedCaller) Call(_ context.Context, endpoint string, _ types.FeatureRecord) (types.RemoteResponse, error) {
	s.mu.Lock()
	s.calls = append(s.calls, endpoint)
	s.mu.Unlock()

	result, ok := s.results[endpoint]
	if !ok {
		return types.RemoteResponse{}, errors.New("unscripted endpoint: " + endpoint)
	}
	return result.resp, result.err
}

func (s *scriptedCaller) callOrder() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

func testRegistry() *registry.Registry {
	return registry.New([]registry.ModelDescriptor{
		{Identifier: "random_forest", Endpoint: "http://rf:5001/predict", Accuracy: 0.9925},
		{Identifier: "xgboost", Endpoint: "http://xgb:5002/predict", Accuracy: 0.9850},
		{Identifier: "svm", Endpoint: "http://svm:5003/predict", Accuracy: 0.9775},
	})
}

func positiveResponse() types.RemoteResponse {
	return types.RemoteResponse{Prediction: "ckd", Probability: 0.9, Confidence: 90.0}
}

func elevatedRecord() types.FeatureRecord {
	return types.FeatureRecord{"age": 70.0, "sc": 1.5}
}

func TestDispatchBestModelFirstAttempt(t *testing.T) {
	caller := newScriptedCaller()
	caller.succeed("http://rf:5001/predict", positiveResponse())

	d := NewDispatcher(testRegistry(), caller)

	outcome, err := d.Dispatch(context.Background(), elevatedRecord())
	require.NoError(t, err)

	assert.Equal(t, "random_forest", outcome.ModelID)
	assert.Equal(t, types.LabelPositive, outcome.Label)
	assert.Equal(t, types.SourceRemote, outcome.Source)
	assert.False(t, outcome.UsedFallback)

	// Lower-ranked models are never consulted after a success.
	assert.Equal(t, []string{"http://rf:5001/predict"}, caller.callOrder())
}

func TestDispatchFallsBackInAccuracyOrder(t *testing.T) {
	caller := newScriptedCaller()
	caller.fail("http://rf:5001/predict", errors.New("connection refused"))
	caller.succeed("http://xgb:5002/predict", positiveResponse())

	d := NewDispatcher(testRegistry(), caller)

	outcome, err := d.Dispatch(context.Background(), elevatedRecord())
	require.NoError(t, err)

	assert.Equal(t, "xgboost", outcome.ModelID)
	assert.True(t, outcome.UsedFallback)
	assert.Equal(t, types.SourceRemote, outcome.Source)
	assert.Equal(t, []string{"http://rf:5001/predict", "http://xgb:5002/predict"}, caller.callOrder())
}

func TestDispatchNeverRetriesSameModel(t *testing.T) {
	caller := newScriptedCaller()
	caller.fail("http://rf:5001/predict", errors.New("timeout"))
	caller.fail("http://xgb:5002/predict", errors.New("timeout"))
	caller.succeed("http://svm:5003/predict", positiveResponse())

	d := NewDispatcher(testRegistry(), caller)

	_, err := d.Dispatch(context.Background(), elevatedRecord())
	require.NoError(t, err)

	order := caller.callOrder()
	assert.Equal(t, []string{
		"http://rf:5001/predict",
		"http://xgb:5002/predict",
		"http://svm:5003/predict",
	}, order)

	seen := make(map[string]int)
	for _, endpoint := range order {
		seen[endpoint]++
	}
	for endpoint, count := range seen {
		assert.Equal(t, 1, count, "endpoint %s called more than once", endpoint)
	}
}

func TestDispatchSynthesizesWhenAllRemotesFail(t *testing.T) {
	caller := newScriptedCaller()
	caller.fail("http://rf:5001/predict", errors.New("down"))
	caller.fail("http://xgb:5002/predict", errors.New("down"))
	caller.fail("http://svm:5003/predict", errors.New("down"))

	d := NewDispatcher(testRegistry(), caller)

	outcome, err := d.Dispatch(context.Background(), elevatedRecord())
	require.NoError(t, err)

	// Synthesized outcome carries the best model's identifier.
	assert.Equal(t, "random_forest", outcome.ModelID)
	assert.Equal(t, types.SourceSynthesized, outcome.Source)
	assert.True(t, outcome.UsedFallback)
	assert.Len(t, caller.callOrder(), 3)
}

func TestDispatchBestWithoutEndpointSkipsCascade(t *testing.T) {
	reg := registry.New([]registry.ModelDescriptor{
		{Identifier: "random_forest", Endpoint: "", Accuracy: 0.9925},
		{Identifier: "xgboost", Endpoint: "http://xgb:5002/predict", Accuracy: 0.9850},
	})

	caller := newScriptedCaller()
	caller.succeed("http://xgb:5002/predict", positiveResponse())

	d := NewDispatcher(reg, caller)

	outcome, err := d.Dispatch(context.Background(), elevatedRecord())
	require.NoError(t, err)

	// No network call at all: the best model's absence degrades directly
	// into synthesis under its own identifier.
	assert.Empty(t, caller.callOrder())
	assert.Equal(t, "random_forest", outcome.ModelID)
	assert.Equal(t, types.SourceSynthesized, outcome.Source)
	assert.True(t, outcome.UsedFallback)
}

func TestDispatchSkipsEndpointlessMiddleModel(t *testing.T) {
	reg := registry.New([]registry.ModelDescriptor{
		{Identifier: "random_forest", Endpoint: "http://rf:5001/predict", Accuracy: 0.9925},
		{Identifier: "xgboost", Endpoint: "", Accuracy: 0.9850},
		{Identifier: "svm", Endpoint: "http://svm:5003/predict", Accuracy: 0.9775},
	})

	caller := newScriptedCaller()
	caller.fail("http://rf:5001/predict", errors.New("down"))
	caller.succeed("http://svm:5003/predict", positiveResponse())

	d := NewDispatcher(reg, caller)

	outcome, err := d.Dispatch(context.Background(), elevatedRecord())
	require.NoError(t, err)

	assert.Equal(t, "svm", outcome.ModelID)
	assert.True(t, outcome.UsedFallback)
	assert.Equal(t, []string{"http://rf:5001/predict", "http://svm:5003/predict"}, caller.callOrder())
}

func TestDispatchEmptyRegistry(t *testing.T) {
	d := NewDispatcher(registry.New(nil), newScriptedCaller())

	_, err := d.Dispatch(context.Background(), elevatedRecord())
	require.Error(t, err)

	appErr, ok := err.(*apperrors.AppError)
	require.True(t, ok)
	assert.Equal(t, http.StatusServiceUnavailable, appErr.HTTPStatus)
}

func TestDispatchModel(t *testing.T) {
	tests := []struct {
		name         string
		modelID      string
		script       func(*scriptedCaller)
		wantModel    string
		wantSource   types.SourceKind
		wantFallback bool
		wantCalls    int
	}{
		{
			name:    "remote success",
			modelID: "xgboost",
			script: func(c *scriptedCaller) {
				c.succeed("http://xgb:5002/predict", positiveResponse())
			},
			wantModel:    "xgboost",
			wantSource:   types.SourceRemote,
			wantFallback: false,
			wantCalls:    1,
		},
		{
			name:    "remote failure synthesizes same model",
			modelID: "svm",
			script: func(c *scriptedCaller) {
				c.fail("http://svm:5003/predict", errors.New("down"))
			},
			wantModel:    "svm",
			wantSource:   types.SourceSynthesized,
			wantFallback: true,
			wantCalls:    1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			caller := newScriptedCaller()
			tt.script(caller)

			d := NewDispatcher(testRegistry(), caller)

			outcome, err := d.DispatchModel(context.Background(), tt.modelID, elevatedRecord())
			require.NoError(t, err)

			assert.Equal(t, tt.wantModel, outcome.ModelID)
			assert.Equal(t, tt.wantSource, outcome.Source)
			assert.Equal(t, tt.wantFallback, outcome.UsedFallback)
			assert.Len(t, caller.callOrder(), tt.wantCalls)
		})
	}
}

func TestDispatchModelWithoutEndpoint(t *testing.T) {
	reg := registry.New([]registry.ModelDescriptor{
		{Identifier: "decision_tree", Endpoint: "", Accuracy: 0.9575},
	})
	caller := newScriptedCaller()

	d := NewDispatcher(reg, caller)

	outcome, err := d.DispatchModel(context.Background(), "decision_tree", elevatedRecord())
	require.NoError(t, err)

	assert.Equal(t, types.SourceSynthesized, outcome.Source)
	assert.Empty(t, caller.callOrder())
}

func TestDispatchModelUnknownIdentifier(t *testing.T) {
	d := NewDispatcher(testRegistry(), newScriptedCaller())

	_, err := d.DispatchModel(context.Background(), "neural_net", elevatedRecord())
	require.Error(t, err)

	appErr, ok := err.(*apperrors.AppError)
	require.True(t, ok)
	assert.Equal(t, http.StatusNotFound, appErr.HTTPStatus)
	assert.Contains(t, appErr.Msg, "neural_net")
}

func TestClassifyCallError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{
			name:       "malformed response",
			err:        adapters.ErrMalformedResponse,
			wantStatus: http.StatusBadGateway,
		},
		{
			name:       "deadline exceeded",
			err:        context.DeadlineExceeded,
			wantStatus: http.StatusGatewayTimeout,
		},
		{
			name:       "transport failure",
			err:        errors.New("connection refused"),
			wantStatus: http.StatusBadGateway,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			appErr := classifyCallError("svm", tt.err)
			assert.Equal(t, tt.wantStatus, appErr.HTTPStatus)
		})
	}
}
