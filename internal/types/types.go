package types

import "strconv"

// FeatureRecord is a patient feature payload as received from the caller.
// Values stay untyped so unknown fields pass through to the remote models
// and to persistence untouched.
type FeatureRecord map[string]interface{}

// Num extracts a numeric field, falling back to def when the field is
// absent or not coercible. JSON numbers decode as float64; numeric strings
// are accepted because several upstream exporters quote their values.
func (f FeatureRecord) Num(key string, def float64) float64 {
	v, ok := f[key]
	if !ok || v == nil {
		return def
	}
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	case int64:
		return float64(n)
	case string:
		if parsed, err := strconv.ParseFloat(n, 64); err == nil {
			return parsed
		}
		return def
	case bool:
		if n {
			return 1
		}
		return 0
	default:
		return def
	}
}

// Label is a binary classification verdict.
type Label string

const (
	LabelPositive Label = "positive"
	LabelNegative Label = "negative"
	// LabelUnknown only appears on the wire; normalization resolves it
	// to positive or negative before an outcome is produced.
	LabelUnknown Label = "unknown"
)

// SourceKind tells whether an outcome came from a remote classifier or was
// synthesized locally.
type SourceKind string

const (
	SourceRemote      SourceKind = "remote"
	SourceSynthesized SourceKind = "synthesized"
)

// RemoteResponse is the raw prediction payload returned by a model service.
// Fields are deliberately untyped: backends disagree on whether they send
// strings, numbers or booleans, and missing fields must not fail parsing.
type RemoteResponse struct {
	Prediction  interface{} `json:"prediction"`
	Probability interface{} `json:"probability"`
	Confidence  interface{} `json:"confidence"`
}

// PredictionOutcome is the uniform result produced for every prediction,
// remote or synthesized. Immutable once created.
type PredictionOutcome struct {
	ModelID      string     `json:"model_id"`
	Label        Label      `json:"label"`
	Probability  float64    `json:"probability"`
	Confidence   float64    `json:"confidence"`
	Source       SourceKind `json:"source"`
	UsedFallback bool       `json:"used_fallback"`
}

// ComparisonEntry is one slot of a comparison report: either a resolved
// outcome or the error that prevented one. Exactly one of the two is set.
type ComparisonEntry struct {
	ModelID string             `json:"model_id"`
	Outcome *PredictionOutcome `json:"outcome,omitempty"`
	Err     string             `json:"error,omitempty"`
}

// OK reports whether the entry resolved to an outcome.
func (e ComparisonEntry) OK() bool { return e.Outcome != nil }

// ComparisonReport holds one entry per registered model, ordered by model
// accuracy descending. Its length always equals the registry size.
type ComparisonReport []ComparisonEntry

// Failed counts the entries that did not resolve to an outcome.
func (r ComparisonReport) Failed() int {
	n := 0
	for _, e := range r {
		if !e.OK() {
			n++
		}
	}
	return n
}
