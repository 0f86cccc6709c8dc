package analysis

import (
	"math"

	"github.com/renalworks/ckd-gateway/internal/types"
)

// The estimator is the terminal fallback when no remote classifier is
// reachable. It must stay a pure function: no I/O, no clock, no randomness.
// The rule weights, neutral defaults, cap and per-model offsets below are
// contract constants: synthesized outcomes have to reproduce bit-for-bit
// given the same inputs.

const (
	rawScoreCap = 95.0

	probabilityFloor = 0.05
	probabilityCeil  = 0.95
)

// neutralDefaults substitute for estimator fields missing from the record.
// Values sit on the healthy side of every threshold rule.
var neutralDefaults = map[string]float64{
	"age": 50,    // years
	"bp":  120,   // blood pressure, mm Hg
	"sg":  1.015, // urine specific gravity
	"al":  0,     // albumin grade
	"su":  0,     // sugar grade
	"bgr": 100,   // blood glucose random, mg/dL
	"bu":  30,    // blood urea, mg/dL
	"sc":  1.0,   // serum creatinine, mg/dL
}

type riskRule struct {
	field   string
	weight  float64
	crossed func(v float64) bool
}

var riskRules = []riskRule{
	{field: "age", weight: 15, crossed: func(v float64) bool { return v > 60 }},
	{field: "bp", weight: 10, crossed: func(v float64) bool { return v > 140 }},
	{field: "sc", weight: 25, crossed: func(v float64) bool { return v > 1.3 }},
	{field: "bu", weight: 15, crossed: func(v float64) bool { return v > 40 }},
	{field: "bgr", weight: 10, crossed: func(v float64) bool { return v > 126 }},
	{field: "sg", weight: 10, crossed: func(v float64) bool { return v < 1.010 }},
	{field: "al", weight: 10, crossed: func(v float64) bool { return v > 2 }},
	{field: "su", weight: 5, crossed: func(v float64) bool { return v > 1 }},
}

// modelOffsets nudge the synthesized probability per model as a stand-in
// for inter-model variance. Unknown identifiers get no offset.
var modelOffsets = map[string]float64{
	"random_forest":       0.02,
	"xgboost":             0.01,
	"svm":                 0.015,
	"logistic_regression": 0.0,
	"decision_tree":       -0.01,
}

// RawScore evaluates the clinical threshold rules against the record,
// substituting neutral defaults for missing fields, and returns the
// accumulated risk score capped at 95.
func RawScore(record types.FeatureRecord) float64 {
	score := 0.0
	for _, rule := range riskRules {
		v := record.Num(rule.field, neutralDefaults[rule.field])
		if rule.crossed(v) {
			score += rule.weight
		}
	}
	if score > rawScoreCap {
		score = rawScoreCap
	}
	return score
}

// Estimate synthesizes a prediction outcome for the given model identifier.
// The raw score becomes a probability, shifted by the model's offset and
// clamped to [0.05, 0.95]; probabilities above 0.5 classify as positive.
func Estimate(record types.FeatureRecord, modelID string) types.PredictionOutcome {
	p := RawScore(record) / 100
	p += modelOffsets[modelID]
	p = clamp(p, probabilityFloor, probabilityCeil)

	label := types.LabelNegative
	if p > 0.5 {
		label = types.LabelPositive
	}

	return types.PredictionOutcome{
		ModelID:      modelID,
		Label:        label,
		Probability:  p,
		Confidence:   DerivedConfidence(p),
		Source:       types.SourceSynthesized,
		UsedFallback: true,
	}
}

// DerivedConfidence is the confidence metric used whenever a backend does
// not supply one: the probability of the predicted class, on a 0-100 scale.
func DerivedConfidence(p float64) float64 {
	return 100 * math.Max(p, 1-p)
}

func clamp(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}
