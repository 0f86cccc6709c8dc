package database

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRepository(t *testing.T) *Repository {
	t.Helper()

	db, err := NewDB(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, db.Close())
	})

	return NewRepository(db)
}

func sampleRecord(modelID string) *PredictionRecord {
	return NewPredictionRecord(
		modelID, "positive", 0.92, 0.84, "remote", false,
		`{"age":62,"bp":150,"sc":1.8}`,
		"2f6c9ab14de07c3a5b0d9e8f7a6b5c4d3e2f1a0b9c8d7e6f5a4b3c2d1e0f9a8b",
	)
}

func TestInsertAndGetRecord(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	record := sampleRecord("random_forest")
	require.NoError(t, repo.InsertRecord(ctx, record))

	got, err := repo.GetRecordByID(ctx, record.ID)
	require.NoError(t, err)
	assert.Equal(t, record.ID, got.ID)
	assert.Equal(t, "random_forest", got.ModelID)
	assert.Equal(t, "positive", got.Label)
	assert.InDelta(t, 0.92, got.Probability, 0.0001)
	assert.InDelta(t, 0.84, got.Confidence, 0.0001)
	assert.Equal(t, "remote", got.Source)
	assert.False(t, got.UsedFallback)
	assert.JSONEq(t, record.Features, got.Features)
	assert.Equal(t, record.InputHash, got.InputHash)
}

func TestGetRecordByIDNotFound(t *testing.T) {
	repo := newTestRepository(t)

	got, err := repo.GetRecordByID(context.Background(), "no-such-id")
	require.Error(t, err)
	assert.Nil(t, got)
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestRecentRecordsOrderAndLimit(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	base := time.Now().UTC().Add(-time.Hour)
	var ids []string
	for i := 0; i < 5; i++ {
		record := sampleRecord("xgboost")
		record.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		require.NoError(t, repo.InsertRecord(ctx, record))
		ids = append(ids, record.ID)
	}

	records, err := repo.RecentRecords(ctx, 3)
	require.NoError(t, err)
	require.Len(t, records, 3)

	// Newest first
	assert.Equal(t, ids[4], records[0].ID)
	assert.Equal(t, ids[3], records[1].ID)
	assert.Equal(t, ids[2], records[2].ID)
}

func TestRecentRecordsDefaultLimit(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	require.NoError(t, repo.InsertRecord(ctx, sampleRecord("svm")))

	records, err := repo.RecentRecords(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestCountByModel(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, repo.InsertRecord(ctx, sampleRecord("random_forest")))
	}
	require.NoError(t, repo.InsertRecord(ctx, sampleRecord("logistic_regression")))

	counts, err := repo.CountByModel(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), counts["random_forest"])
	assert.Equal(t, int64(1), counts["logistic_regression"])
	assert.NotContains(t, counts, "svm")
}

func TestDeleteOlderThan(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	old := sampleRecord("decision_tree")
	old.CreatedAt = time.Now().UTC().AddDate(0, 0, -120)
	require.NoError(t, repo.InsertRecord(ctx, old))

	fresh := sampleRecord("decision_tree")
	require.NoError(t, repo.InsertRecord(ctx, fresh))

	cutoff := time.Now().UTC().AddDate(0, 0, -90)
	deleted, err := repo.DeleteOlderThan(ctx, cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	_, err = repo.GetRecordByID(ctx, old.ID)
	assert.ErrorIs(t, err, sql.ErrNoRows)

	kept, err := repo.GetRecordByID(ctx, fresh.ID)
	require.NoError(t, err)
	assert.Equal(t, fresh.ID, kept.ID)
}

func TestDeleteRecord(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	record := sampleRecord("svm")
	require.NoError(t, repo.InsertRecord(ctx, record))

	deleted, err := repo.DeleteRecord(ctx, record.ID)
	require.NoError(t, err)
	assert.True(t, deleted)

	deleted, err = repo.DeleteRecord(ctx, record.ID)
	require.NoError(t, err)
	assert.False(t, deleted)
}

func TestNewPredictionRecordGeneratesIdentity(t *testing.T) {
	a := sampleRecord("random_forest")
	b := sampleRecord("random_forest")

	assert.NotEmpty(t, a.ID)
	assert.NotEqual(t, a.ID, b.ID)
	assert.WithinDuration(t, time.Now().UTC(), a.CreatedAt, time.Minute)
}

func TestGetPoolStats(t *testing.T) {
	db, err := NewDB(t.TempDir())
	require.NoError(t, err)
	defer db.Close()

	stats := db.GetPoolStats()
	assert.Equal(t, 25, stats["max_open_connections"])
	assert.Equal(t, 5, stats["max_idle_connections"])
	assert.Contains(t, stats, "open_connections")
	assert.Contains(t, stats, "wait_count")
}

func TestGetPreparedStatementUnknown(t *testing.T) {
	db, err := NewDB(t.TempDir())
	require.NoError(t, err)
	defer db.Close()

	_, err = db.GetPreparedStatement("no_such_statement")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "no_such_statement")
}
