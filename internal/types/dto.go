package types

// PredictResponse is the JSON body returned by the prediction endpoints.
type PredictResponse struct {
	RiskScore      int     `json:"risk_score"`
	RiskLabel      string  `json:"risk_label"`
	Probability    float64 `json:"probability"`
	Confidence     float64 `json:"confidence"`
	Model          string  `json:"model"`
	ModelAccuracy  string  `json:"model_accuracy"`
	Source         string  `json:"source"`
	UsedFallback   bool    `json:"used_fallback"`
	Recommendation string  `json:"recommendation"`
	RecordID       string  `json:"record_id,omitempty"`
	Storage        string  `json:"storage,omitempty"`
}

// CompareEntryResponse is one model's slot in a comparison response.
// Failed slots carry Error and keep the prediction fields zeroed.
type CompareEntryResponse struct {
	Model          string  `json:"model"`
	ModelAccuracy  string  `json:"model_accuracy"`
	RiskScore      int     `json:"risk_score,omitempty"`
	RiskLabel      string  `json:"risk_label,omitempty"`
	Probability    float64 `json:"probability,omitempty"`
	Confidence     float64 `json:"confidence,omitempty"`
	Source         string  `json:"source,omitempty"`
	Recommendation string  `json:"recommendation,omitempty"`
	Error          string  `json:"error,omitempty"`
}

// CompareResponse is the JSON body returned by the comparison endpoint.
type CompareResponse struct {
	Report       []CompareEntryResponse `json:"report"`
	ModelsTotal  int                    `json:"models_total"`
	ModelsFailed int                    `json:"models_failed"`
	RecordID     string                 `json:"record_id,omitempty"`
	Storage      string                 `json:"storage,omitempty"`
}
