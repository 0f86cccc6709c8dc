package privacy

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"time"

	"github.com/renalworks/ckd-gateway/internal/database"
	"github.com/renalworks/ckd-gateway/internal/types"
)

// DefaultRetentionDays is how long prediction records are kept when no
// retention window is configured.
const DefaultRetentionDays = 90

// HashFeatures produces a stable SHA-256 fingerprint of a feature record.
// Keys are sorted and values canonicalized so the same submission always
// hashes identically regardless of map iteration order. The hash is what
// appears in logs and audit trails; raw clinical values never do.
func HashFeatures(features types.FeatureRecord) string {
	keys := make([]string, 0, len(features))
	for k := range features {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	h := sha256.New()
	for _, k := range keys {
		h.Write([]byte(k))
		h.Write([]byte{'='})
		h.Write([]byte(canonicalValue(features[k])))
		h.Write([]byte{';'})
	}
	return hex.EncodeToString(h.Sum(nil))
}

func canonicalValue(v interface{}) string {
	switch n := v.(type) {
	case float64:
		return strconv.FormatFloat(n, 'g', -1, 64)
	case int:
		return strconv.Itoa(n)
	case int64:
		return strconv.FormatInt(n, 10)
	case string:
		return n
	case bool:
		return strconv.FormatBool(n)
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", n)
	}
}

// PrivacyService handles record retention and erasure
type PrivacyService struct {
	repo          *database.Repository
	retentionDays int
	stopCleanup   chan struct{}
}

// NewService creates a privacy service with the given retention window.
// Non-positive retention falls back to the default.
func NewService(repo *database.Repository, retentionDays int) *PrivacyService {
	if retentionDays <= 0 {
		retentionDays = DefaultRetentionDays
	}
	return &PrivacyService{
		repo:          repo,
		retentionDays: retentionDays,
		stopCleanup:   make(chan struct{}),
	}
}

// CleanupExpiredRecords deletes prediction records older than the retention
// window and reports how many were removed
func (ps *PrivacyService) CleanupExpiredRecords(ctx context.Context) (int64, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -ps.retentionDays)

	deleted, err := ps.repo.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to clean up expired records: %w", err)
	}

	slog.Info("Retention cleanup completed",
		"retention_days", ps.retentionDays,
		"cutoff", cutoff.Format(time.RFC3339),
		"records_deleted", deleted,
	)

	return deleted, nil
}

// ScheduleDataCleanup runs retention cleanup on a ticker until Stop is
// called. An immediate pass runs first so stale records do not survive a
// restart loop.
func (ps *PrivacyService) ScheduleDataCleanup(interval time.Duration) {
	go func() {
		if _, err := ps.CleanupExpiredRecords(context.Background()); err != nil {
			slog.Error("Initial retention cleanup failed", "error", err)
		}

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				if _, err := ps.CleanupExpiredRecords(context.Background()); err != nil {
					slog.Error("Scheduled retention cleanup failed", "error", err)
				}
			case <-ps.stopCleanup:
				return
			}
		}
	}()

	slog.Info("Retention cleanup scheduled",
		"interval", interval,
		"retention_days", ps.retentionDays,
	)
}

// Stop halts the scheduled cleanup loop
func (ps *PrivacyService) Stop() {
	close(ps.stopCleanup)
}

// DeleteRecord erases a single prediction record on request
func (ps *PrivacyService) DeleteRecord(ctx context.Context, id string) (bool, error) {
	deleted, err := ps.repo.DeleteRecord(ctx, id)
	if err != nil {
		return false, fmt.Errorf("failed to erase record: %w", err)
	}

	if deleted {
		slog.Info("Prediction record erased", "record_id", id)
	}

	return deleted, nil
}

// GetDataRetentionInfo describes the active retention policy
func (ps *PrivacyService) GetDataRetentionInfo() map[string]interface{} {
	return map[string]interface{}{
		"record_retention_days": ps.retentionDays,
		"anonymization_method":  "SHA-256",
		"stored_input_fields":   "feature JSON plus hash; no direct identifiers accepted",
	}
}
