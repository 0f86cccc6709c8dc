package analysis

import (
	"math"

	"github.com/renalworks/ckd-gateway/internal/types"
)

const (
	RiskLabelHigh = "High Risk of Chronic Kidney Disease"
	RiskLabelLow  = "Low Risk of Chronic Kidney Disease"

	RecommendationPositive = "Consult a nephrologist for further evaluation."
	RecommendationNegative = "No immediate action required. Maintain routine checkups."
)

// RiskScore converts a probability to the 0-100 score shown to callers.
func RiskScore(p float64) int {
	return int(math.Round(100 * p))
}

// RiskLabel renders the human-readable verdict for a label.
func RiskLabel(label types.Label) string {
	if label == types.LabelPositive {
		return RiskLabelHigh
	}
	return RiskLabelLow
}

// Recommendation picks the follow-up advice for a label.
func Recommendation(label types.Label) string {
	if label == types.LabelPositive {
		return RecommendationPositive
	}
	return RecommendationNegative
}
