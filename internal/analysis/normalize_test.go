package analysis

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/renalworks/ckd-gateway/internal/types"
)

func TestNormalizeLabelSpellings(t *testing.T) {
	tests := []struct {
		name       string
		prediction interface{}
		expected   types.Label
	}{
		{name: "ckd string", prediction: "ckd", expected: types.LabelPositive},
		{name: "uppercase CKD", prediction: "CKD", expected: types.LabelPositive},
		{name: "positive string", prediction: "positive", expected: types.LabelPositive},
		{name: "yes string", prediction: "yes", expected: types.LabelPositive},
		{name: "numeric one string", prediction: "1", expected: types.LabelPositive},
		{name: "notckd string", prediction: "notckd", expected: types.LabelNegative},
		{name: "spaced not ckd", prediction: "not ckd", expected: types.LabelNegative},
		{name: "negative string", prediction: "negative", expected: types.LabelNegative},
		{name: "zero string", prediction: "0", expected: types.LabelNegative},
		{name: "float one", prediction: 1.0, expected: types.LabelPositive},
		{name: "float zero", prediction: 0.0, expected: types.LabelNegative},
		{name: "bool true", prediction: true, expected: types.LabelPositive},
		{name: "bool false", prediction: false, expected: types.LabelNegative},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := Normalize(types.RemoteResponse{Prediction: tt.prediction, Probability: 0.7}, "xgboost")
			// 0.7 would resolve an unknown label to positive; the explicit
			// label must win when it parses.
			assert.Equal(t, tt.expected, out.Label)
		})
	}
}

func TestNormalizeMissingPrediction(t *testing.T) {
	t.Run("resolved by high probability", func(t *testing.T) {
		out := Normalize(types.RemoteResponse{Probability: 0.8}, "svm")
		assert.Equal(t, types.LabelPositive, out.Label)
		assert.Equal(t, 0.8, out.Probability)
	})

	t.Run("resolved by low probability", func(t *testing.T) {
		out := Normalize(types.RemoteResponse{Probability: 0.2}, "svm")
		assert.Equal(t, types.LabelNegative, out.Label)
	})

	t.Run("empty payload defaults to maximum uncertainty", func(t *testing.T) {
		out := Normalize(types.RemoteResponse{}, "svm")
		assert.Equal(t, 0.5, out.Probability)
		assert.Equal(t, types.LabelNegative, out.Label)
		assert.InDelta(t, 50.0, out.Confidence, 1e-9)
	})

	t.Run("unrecognized label string", func(t *testing.T) {
		out := Normalize(types.RemoteResponse{Prediction: "inconclusive", Probability: 0.9}, "svm")
		assert.Equal(t, types.LabelPositive, out.Label)
	})
}

func TestNormalizeMissingProbability(t *testing.T) {
	// A parsed label with no claimed strength gets probability 0.
	out := Normalize(types.RemoteResponse{Prediction: "ckd"}, "random_forest")
	assert.Equal(t, types.LabelPositive, out.Label)
	assert.Equal(t, 0.0, out.Probability)
}

func TestNormalizeCoercesTypes(t *testing.T) {
	out := Normalize(types.RemoteResponse{
		Prediction:  1.0,
		Probability: "0.85",
		Confidence:  "92.5",
	}, "xgboost")

	assert.Equal(t, types.LabelPositive, out.Label)
	assert.InDelta(t, 0.85, out.Probability, 1e-9)
	assert.InDelta(t, 92.5, out.Confidence, 1e-9)
	assert.Equal(t, types.SourceRemote, out.Source)
	assert.False(t, out.UsedFallback)
}

func TestNormalizeClampsOutOfRangeValues(t *testing.T) {
	out := Normalize(types.RemoteResponse{
		Prediction:  "ckd",
		Probability: 1.7,
		Confidence:  140.0,
	}, "xgboost")

	assert.Equal(t, 1.0, out.Probability)
	assert.Equal(t, 100.0, out.Confidence)
}

func TestNormalizeDerivesConfidence(t *testing.T) {
	out := Normalize(types.RemoteResponse{Prediction: "notckd", Probability: 0.1}, "decision_tree")
	assert.InDelta(t, 90.0, out.Confidence, 1e-9)
}

func TestNormalizeIgnoresGarbageFieldTypes(t *testing.T) {
	out := Normalize(types.RemoteResponse{
		Prediction:  map[string]interface{}{"nested": true},
		Probability: []interface{}{1, 2},
		Confidence:  "not-a-number",
	}, "svm")

	// Everything unusable: unknown label resolved via the 0.5 default.
	assert.Equal(t, 0.5, out.Probability)
	assert.Equal(t, types.LabelNegative, out.Label)
}
