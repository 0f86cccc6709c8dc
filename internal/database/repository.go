package database

import (
	"context"
	"fmt"
	"time"
)

// Repository handles prediction record storage
type Repository struct {
	db *DB
}

// NewRepository creates a new repository
func NewRepository(db *DB) *Repository {
	return &Repository{db: db}
}

// InsertRecord persists one prediction outcome
func (r *Repository) InsertRecord(ctx context.Context, record *PredictionRecord) error {
	stmt, err := r.db.GetPreparedStatement("insert_record")
	if err != nil {
		return err
	}

	_, err = stmt.ExecContext(ctx,
		record.ID, record.ModelID, record.Label, record.Probability,
		record.Confidence, record.Source, record.UsedFallback,
		record.Features, record.InputHash, record.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert prediction record: %w", err)
	}

	return nil
}

// GetRecordByID fetches one record. sql.ErrNoRows stays inspectable through
// the wrap for callers that map it to a 404.
func (r *Repository) GetRecordByID(ctx context.Context, id string) (*PredictionRecord, error) {
	stmt, err := r.db.GetPreparedStatement("get_record_by_id")
	if err != nil {
		return nil, err
	}

	var record PredictionRecord
	err = stmt.QueryRowContext(ctx, id).Scan(
		&record.ID, &record.ModelID, &record.Label, &record.Probability,
		&record.Confidence, &record.Source, &record.UsedFallback,
		&record.Features, &record.InputHash, &record.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get prediction record: %w", err)
	}

	return &record, nil
}

// RecentRecords returns up to limit records, newest first
func (r *Repository) RecentRecords(ctx context.Context, limit int) ([]PredictionRecord, error) {
	if limit <= 0 {
		limit = 20
	}

	stmt, err := r.db.GetPreparedStatement("get_recent_records")
	if err != nil {
		return nil, err
	}

	rows, err := stmt.QueryContext(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent records: %w", err)
	}
	defer rows.Close()

	records := make([]PredictionRecord, 0, limit)
	for rows.Next() {
		var record PredictionRecord
		if err := rows.Scan(
			&record.ID, &record.ModelID, &record.Label, &record.Probability,
			&record.Confidence, &record.Source, &record.UsedFallback,
			&record.Features, &record.InputHash, &record.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan prediction record: %w", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read recent records: %w", err)
	}

	return records, nil
}

// CountByModel returns the persisted record count per model identifier
func (r *Repository) CountByModel(ctx context.Context) (map[string]int64, error) {
	stmt, err := r.db.GetPreparedStatement("count_by_model")
	if err != nil {
		return nil, err
	}

	rows, err := stmt.QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count records by model: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var count ModelCount
		if err := rows.Scan(&count.ModelID, &count.Count); err != nil {
			return nil, fmt.Errorf("failed to scan model count: %w", err)
		}
		counts[count.ModelID] = count.Count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read model counts: %w", err)
	}

	return counts, nil
}

// DeleteOlderThan removes records created before the cutoff and reports how
// many were removed
func (r *Repository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	stmt, err := r.db.GetPreparedStatement("delete_older_than")
	if err != nil {
		return 0, err
	}

	result, err := stmt.ExecContext(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired records: %w", err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count deleted records: %w", err)
	}

	return deleted, nil
}

// DeleteRecord removes a single record, reporting whether it existed
func (r *Repository) DeleteRecord(ctx context.Context, id string) (bool, error) {
	stmt, err := r.db.GetPreparedStatement("delete_record")
	if err != nil {
		return false, err
	}

	result, err := stmt.ExecContext(ctx, id)
	if err != nil {
		return false, fmt.Errorf("failed to delete prediction record: %w", err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to confirm record deletion: %w", err)
	}

	return deleted > 0, nil
}
