package analysis

import (
	"strconv"
	"strings"

	"github.com/renalworks/ckd-gateway/internal/types"
)

// Normalize coerces a raw remote payload into the uniform outcome shape.
// It is deliberately lenient: backends disagree on field types and some
// omit fields entirely, so missing values default instead of failing.
//
//   - prediction missing or unrecognized -> label unknown, resolved by
//     probability (> 0.5 is positive)
//   - probability missing -> 0.5 when the label is unknown, 0 when a label
//     was parsed but no strength claimed
//   - confidence missing -> derived from the probability
func Normalize(raw types.RemoteResponse, modelID string) types.PredictionOutcome {
	label := parseLabel(raw.Prediction)

	p, hasP := toFloat(raw.Probability)
	if !hasP {
		if label == types.LabelUnknown {
			p = 0.5
		} else {
			p = 0
		}
	}
	p = clamp(p, 0, 1)

	conf, hasConf := toFloat(raw.Confidence)
	if !hasConf {
		conf = DerivedConfidence(p)
	}
	conf = clamp(conf, 0, 100)

	if label == types.LabelUnknown {
		if p > 0.5 {
			label = types.LabelPositive
		} else {
			label = types.LabelNegative
		}
	}

	return types.PredictionOutcome{
		ModelID:     modelID,
		Label:       label,
		Probability: p,
		Confidence:  conf,
		Source:      types.SourceRemote,
	}
}

// parseLabel maps the many prediction spellings seen in the wild onto the
// binary label. Unrecognized values stay unknown rather than erroring.
func parseLabel(v interface{}) types.Label {
	switch val := v.(type) {
	case string:
		switch strings.ToLower(strings.TrimSpace(val)) {
		case "ckd", "positive", "yes", "true", "1", "high":
			return types.LabelPositive
		case "notckd", "not ckd", "negative", "no", "false", "0", "low":
			return types.LabelNegative
		default:
			return types.LabelUnknown
		}
	case float64:
		if val != 0 {
			return types.LabelPositive
		}
		return types.LabelNegative
	case int:
		if val != 0 {
			return types.LabelPositive
		}
		return types.LabelNegative
	case bool:
		if val {
			return types.LabelPositive
		}
		return types.LabelNegative
	default:
		return types.LabelUnknown
	}
}

func toFloat(v interface{}) (float64, bool) {
	switch val := v.(type) {
	case float64:
		return val, true
	case int:
		return float64(val), true
	case int64:
		return float64(val), true
	case string:
		if parsed, err := strconv.ParseFloat(strings.TrimSpace(val), 64); err == nil {
			return parsed, true
		}
		return 0, false
	default:
		return 0, false
	}
}
