package dispatch

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/renalworks/ckd-gateway/internal/registry"
	"github.com/renalworks/ckd-gateway/internal/types"
)

func TestCompareAllReportsEveryModel(t *testing.T) {
	caller := newScriptedCaller()
	caller.succeed("http://rf:5001/predict", positiveResponse())
	caller.succeed("http://xgb:5002/predict", types.RemoteResponse{Prediction: "notckd", Probability: 0.2})
	caller.succeed("http://svm:5003/predict", positiveResponse())

	d := NewDispatcher(testRegistry(), caller)

	report, err := d.CompareAll(context.Background(), elevatedRecord())
	require.NoError(t, err)
	require.Len(t, report, 3)

	// Entries follow the accuracy ranking regardless of completion order.
	assert.Equal(t, "random_forest", report[0].ModelID)
	assert.Equal(t, "xgboost", report[1].ModelID)
	assert.Equal(t, "svm", report[2].ModelID)

	for _, entry := range report {
		assert.True(t, entry.OK(), "entry %s should have an outcome", entry.ModelID)
	}
	assert.Equal(t, types.LabelNegative, report[1].Outcome.Label)
}

func TestCompareAllKeepsFailedSlots(t *testing.T) {
	caller := newScriptedCaller()
	caller.succeed("http://rf:5001/predict", positiveResponse())
	caller.fail("http://xgb:5002/predict", errors.New("connection refused"))
	caller.succeed("http://svm:5003/predict", positiveResponse())

	d := NewDispatcher(testRegistry(), caller)

	report, err := d.CompareAll(context.Background(), elevatedRecord())
	require.NoError(t, err)
	require.Len(t, report, 3)

	assert.Equal(t, 1, report.Failed())

	entry := report[1]
	assert.Equal(t, "xgboost", entry.ModelID)
	assert.False(t, entry.OK())
	assert.Nil(t, entry.Outcome)
	assert.NotEmpty(t, entry.Err)

	// A failure never shrinks the report or substitutes a synthesized result.
	assert.True(t, report[0].OK())
	assert.True(t, report[2].OK())
}

func TestCompareAllSynthesizesEndpointlessModels(t *testing.T) {
	reg := registry.New([]registry.ModelDescriptor{
		{Identifier: "random_forest", Endpoint: "http://rf:5001/predict", Accuracy: 0.9925},
		{Identifier: "decision_tree", Endpoint: "", Accuracy: 0.9575},
	})

	caller := newScriptedCaller()
	caller.succeed("http://rf:5001/predict", positiveResponse())

	d := NewDispatcher(reg, caller)

	report, err := d.CompareAll(context.Background(), elevatedRecord())
	require.NoError(t, err)
	require.Len(t, report, 2)

	require.True(t, report[1].OK())
	assert.Equal(t, "decision_tree", report[1].ModelID)
	assert.Equal(t, types.SourceSynthesized, report[1].Outcome.Source)
	assert.Equal(t, []string{"http://rf:5001/predict"}, caller.callOrder())
}

func TestCompareAllAllFailuresStillFullReport(t *testing.T) {
	caller := newScriptedCaller()
	caller.fail("http://rf:5001/predict", errors.New("down"))
	caller.fail("http://xgb:5002/predict", errors.New("down"))
	caller.fail("http://svm:5003/predict", errors.New("down"))

	d := NewDispatcher(testRegistry(), caller)

	report, err := d.CompareAll(context.Background(), elevatedRecord())
	require.NoError(t, err)
	require.Len(t, report, 3)
	assert.Equal(t, 3, report.Failed())
}

func TestCompareAllEmptyRegistry(t *testing.T) {
	d := NewDispatcher(registry.New(nil), newScriptedCaller())

	_, err := d.CompareAll(context.Background(), elevatedRecord())
	assert.Error(t, err)
}

// slowCaller blocks every call until released, so the test can prove the
// fan-out is concurrent and waits for all calls to settle.
type slowCaller struct {
	release  chan struct{}
	inflight atomic.Int32
	peak     atomic.Int32
	mu       sync.Mutex
	fails    map[string]bool
}

func (s *slowCaller) Call(_ context.Context, endpoint string, _ types.FeatureRecord) (types.RemoteResponse, error) {
	current := s.inflight.Add(1)
	for {
		peak := s.peak.Load()
		if current <= peak || s.peak.CompareAndSwap(peak, current) {
			break
		}
	}
	defer s.inflight.Add(-1)

	<-s.release

	s.mu.Lock()
	shouldFail := s.fails[endpoint]
	s.mu.Unlock()
	if shouldFail {
		return types.RemoteResponse{}, errors.New("down")
	}
	return positiveResponse(), nil
}

func TestCompareAllRunsConcurrentlyAndSettles(t *testing.T) {
	caller := &slowCaller{
		release: make(chan struct{}),
		fails:   map[string]bool{"http://xgb:5002/predict": true},
	}

	d := NewDispatcher(testRegistry(), caller)

	type settled struct {
		report types.ComparisonReport
		err    error
	}
	done := make(chan settled, 1)
	go func() {
		report, err := d.CompareAll(context.Background(), elevatedRecord())
		done <- settled{report: report, err: err}
	}()

	// All three calls must be in flight at once before any resolves.
	require.Eventually(t, func() bool {
		return caller.inflight.Load() == 3
	}, time.Second, time.Millisecond)

	close(caller.release)

	select {
	case result := <-done:
		require.NoError(t, result.err)
		require.Len(t, result.report, 3)
		assert.Equal(t, 1, result.report.Failed())
		assert.EqualValues(t, 3, caller.peak.Load())
	case <-time.After(time.Second):
		t.Fatal("comparison did not settle")
	}
}
