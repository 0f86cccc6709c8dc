package database

import (
	"time"

	"github.com/google/uuid"
)

// PredictionRecord is one persisted prediction outcome. Features are stored
// as a JSON object; the raw submission never leaves the features column and
// input_hash is what gets logged.
type PredictionRecord struct {
	ID           string    `json:"id" db:"id"`
	ModelID      string    `json:"model_id" db:"model_id"`
	Label        string    `json:"label" db:"label"`
	Probability  float64   `json:"probability" db:"probability"`
	Confidence   float64   `json:"confidence" db:"confidence"`
	Source       string    `json:"source" db:"source"`
	UsedFallback bool      `json:"used_fallback" db:"used_fallback"`
	Features     string    `json:"features" db:"features"`
	InputHash    string    `json:"input_hash" db:"input_hash"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}

// ModelCount pairs a model identifier with its persisted record count
type ModelCount struct {
	ModelID string `json:"model_id"`
	Count   int64  `json:"count"`
}

// NewPredictionRecord creates a record with a generated ID and timestamp
func NewPredictionRecord(modelID, label string, probability, confidence float64, source string, usedFallback bool, features, inputHash string) *PredictionRecord {
	return &PredictionRecord{
		ID:           uuid.New().String(),
		ModelID:      modelID,
		Label:        label,
		Probability:  probability,
		Confidence:   confidence,
		Source:       source,
		UsedFallback: usedFallback,
		Features:     features,
		InputHash:    inputHash,
		CreatedAt:    time.Now().UTC(),
	}
}
