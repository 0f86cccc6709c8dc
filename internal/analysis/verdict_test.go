package analysis

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/renalworks/ckd-gateway/internal/types"
)

func TestRiskScore(t *testing.T) {
	tests := []struct {
		name     string
		p        float64
		expected int
	}{
		{name: "zero", p: 0, expected: 0},
		{name: "rounds up", p: 0.726, expected: 73},
		{name: "rounds down", p: 0.724, expected: 72},
		{name: "ceiling", p: 1.0, expected: 100},
		{name: "clamped fallback floor", p: 0.05, expected: 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, RiskScore(tt.p))
		})
	}
}

func TestRiskLabelAndRecommendation(t *testing.T) {
	assert.Equal(t, RiskLabelHigh, RiskLabel(types.LabelPositive))
	assert.Equal(t, RiskLabelLow, RiskLabel(types.LabelNegative))

	assert.Equal(t, RecommendationPositive, Recommendation(types.LabelPositive))
	assert.Equal(t, RecommendationNegative, Recommendation(types.LabelNegative))
}
