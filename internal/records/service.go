package records

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/renalworks/ckd-gateway/internal/database"
	"github.com/renalworks/ckd-gateway/internal/encoding"
	"github.com/renalworks/ckd-gateway/internal/privacy"
	"github.com/renalworks/ckd-gateway/internal/resilience"
	"github.com/renalworks/ckd-gateway/internal/types"
)

// Record is the read-side view of a persisted prediction: features come
// back as the submitted map rather than the stored JSON text.
type Record struct {
	ID           string              `json:"id"`
	ModelID      string              `json:"model_id"`
	Label        string              `json:"label"`
	Probability  float64             `json:"probability"`
	Confidence   float64             `json:"confidence"`
	Source       string              `json:"source"`
	UsedFallback bool                `json:"used_fallback"`
	Features     types.FeatureRecord `json:"features"`
	InputHash    string              `json:"input_hash"`
	CreatedAt    time.Time           `json:"created_at"`
}

const (
	defaultRecentLimit = 20
	maxRecentLimit     = 100
)

// Service persists prediction outcomes and serves the record read
// endpoints. Saves are best-effort from the caller's point of view: the
// prediction response is already computed when Save runs, so a storage
// failure downgrades to an annotation, never an error status.
type Service struct {
	repo  *database.Repository
	codec *encoding.Codec
	cache *RecentCache
	retry resilience.RetryConfig
}

// NewService creates a records service with a 30 second recent-listing cache
func NewService(repo *database.Repository, codec *encoding.Codec) *Service {
	return NewServiceWithCache(repo, codec, NewRecentCache(30*time.Second))
}

// NewServiceWithCache creates a records service with a custom cache
func NewServiceWithCache(repo *database.Repository, codec *encoding.Codec, recentCache *RecentCache) *Service {
	retry := resilience.FastRetryPolicy.Config
	retry.RetryableErrors = isTransientStorageError

	return &Service{
		repo:  repo,
		codec: codec,
		cache: recentCache,
		retry: retry,
	}
}

// isTransientStorageError reports whether a write failed on SQLite writer
// contention, which a short backoff resolves
func isTransientStorageError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "database table is locked")
}

// Save persists one prediction outcome. The generated record identifier is
// returned even when the insert fails so the caller can still reference the
// attempt; the caller decides how loudly to report the error.
func (s *Service) Save(ctx context.Context, features types.FeatureRecord, outcome types.PredictionOutcome) (string, error) {
	featuresJSON, err := s.codec.Marshal(features)
	if err != nil {
		return "", fmt.Errorf("failed to serialize features: %w", err)
	}

	record := database.NewPredictionRecord(
		outcome.ModelID,
		string(outcome.Label),
		outcome.Probability,
		outcome.Confidence,
		string(outcome.Source),
		outcome.UsedFallback,
		string(featuresJSON),
		privacy.HashFeatures(features),
	)

	err = resilience.RetryWithConfig(ctx, s.retry, func() error {
		return s.repo.InsertRecord(ctx, record)
	})
	if err != nil {
		return record.ID, fmt.Errorf("failed to persist prediction record: %w", err)
	}

	s.cache.Invalidate()

	slog.Debug("Prediction record persisted",
		"record_id", record.ID,
		"model", record.ModelID,
		"input_hash", record.InputHash[:8]+"...",
	)

	return record.ID, nil
}

// Recent returns up to limit persisted outcomes, newest first. The limit is
// clamped to keep a single request from dragging the whole table through
// the cache.
func (s *Service) Recent(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = defaultRecentLimit
	}
	if limit > maxRecentLimit {
		limit = maxRecentLimit
	}

	if cached, found := s.cache.Get(limit); found {
		return cached, nil
	}

	stored, err := s.repo.RecentRecords(ctx, limit)
	if err != nil {
		return nil, err
	}

	result := make([]Record, 0, len(stored))
	for i := range stored {
		record, err := s.toRecord(&stored[i])
		if err != nil {
			return nil, err
		}
		result = append(result, record)
	}

	s.cache.Set(limit, result)

	return result, nil
}

// GetByID fetches one persisted outcome. A missing record returns
// (nil, nil) so callers can answer 404 without unwrapping storage errors.
func (s *Service) GetByID(ctx context.Context, id string) (*Record, error) {
	stored, err := s.repo.GetRecordByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	record, err := s.toRecord(stored)
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// CountByModel returns persisted record counts per model identifier
func (s *Service) CountByModel(ctx context.Context) (map[string]int64, error) {
	return s.repo.CountByModel(ctx)
}

// CacheStats returns recent-listing cache statistics
func (s *Service) CacheStats() map[string]interface{} {
	return s.cache.GetStats()
}

// Close stops the recent-listing cache
func (s *Service) Close() {
	s.cache.Close()
}

func (s *Service) toRecord(stored *database.PredictionRecord) (Record, error) {
	var features types.FeatureRecord
	if err := s.codec.Unmarshal([]byte(stored.Features), &features); err != nil {
		return Record{}, fmt.Errorf("failed to decode stored features for record %s: %w", stored.ID, err)
	}

	return Record{
		ID:           stored.ID,
		ModelID:      stored.ModelID,
		Label:        stored.Label,
		Probability:  stored.Probability,
		Confidence:   stored.Confidence,
		Source:       stored.Source,
		UsedFallback: stored.UsedFallback,
		Features:     features,
		InputHash:    stored.InputHash,
		CreatedAt:    stored.CreatedAt,
	}, nil
}
