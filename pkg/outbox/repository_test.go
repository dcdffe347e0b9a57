package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/leaflens/leaflens-server/pkg/db/models"
	"github.com/leaflens/leaflens-server/pkg/enums"
)

func setupOutboxTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)

	schema := `
CREATE TABLE IF NOT EXISTS outbox_events (
  id TEXT PRIMARY KEY,
  event_type TEXT NOT NULL,
  aggregate_type TEXT NOT NULL,
  aggregate_id TEXT NOT NULL,
  payload TEXT NOT NULL,
  created_at DATETIME,
  published_at DATETIME,
  attempt_count INTEGER NOT NULL DEFAULT 0,
  last_error TEXT
);`
	require.NoError(t, db.Exec(schema).Error)
	return db
}

func insertReconcileRow(t *testing.T, db *gorm.DB, userID string, created time.Time) models.OutboxEvent {
	t.Helper()

	row := models.OutboxEvent{
		ID:            uuid.New(),
		EventType:     enums.EventReconcileRequested,
		AggregateType: enums.AggregateEntitlement,
		AggregateID:   userID,
		Payload:       json.RawMessage(`{"version":1,"eventId":"e","occurredAt":"2026-01-01T00:00:00Z","data":{"userId":"` + userID + `"}}`),
		CreatedAt:     created,
	}
	require.NoError(t, db.Create(&row).Error)
	return row
}

func TestRepositoryFetchUnpublishedForPublish_ordersAndSkipsExhausted(t *testing.T) {
	db := setupOutboxTestDB(t)
	repo := NewRepository(db)

	now := time.Now().UTC()
	older := insertReconcileRow(t, db, "user-a", now.Add(-time.Minute))
	newer := insertReconcileRow(t, db, "user-b", now)
	exhausted := insertReconcileRow(t, db, "user-c", now.Add(-time.Hour))
	require.NoError(t, db.Model(&models.OutboxEvent{}).
		Where("id = ?", exhausted.ID).
		Update("attempt_count", 10).Error)

	err := db.Transaction(func(tx *gorm.DB) error {
		rows, err := repo.FetchUnpublishedForPublish(tx, 10, 10)
		require.NoError(t, err)
		require.Len(t, rows, 2)
		assert.Equal(t, older.ID, rows[0].ID)
		assert.Equal(t, newer.ID, rows[1].ID)
		return nil
	})
	require.NoError(t, err)
}

func TestRepositoryMarkPublishedAndFailed(t *testing.T) {
	db := setupOutboxTestDB(t)
	repo := NewRepository(db)

	row := insertReconcileRow(t, db, "user-a", time.Now().UTC())

	require.NoError(t, db.Transaction(func(tx *gorm.DB) error {
		return repo.MarkFailedTx(tx, row.ID, errors.New("publish timeout"))
	}))

	var failed models.OutboxEvent
	require.NoError(t, db.First(&failed, "id = ?", row.ID).Error)
	assert.Equal(t, 1, failed.AttemptCount)
	require.NotNil(t, failed.LastError)
	assert.Equal(t, "publish timeout", *failed.LastError)
	assert.Nil(t, failed.PublishedAt)

	require.NoError(t, db.Transaction(func(tx *gorm.DB) error {
		return repo.MarkPublishedTx(tx, row.ID)
	}))

	var published models.OutboxEvent
	require.NoError(t, db.First(&published, "id = ?", row.ID).Error)
	require.NotNil(t, published.PublishedAt)

	require.NoError(t, db.Transaction(func(tx *gorm.DB) error {
		rows, err := repo.FetchUnpublishedForPublish(tx, 10, 10)
		require.NoError(t, err)
		assert.Empty(t, rows)
		return nil
	}))
}

func TestRepositoryMarkTerminalPinsAttemptCount(t *testing.T) {
	db := setupOutboxTestDB(t)
	repo := NewRepository(db)

	row := insertReconcileRow(t, db, "user-a", time.Now().UTC())

	require.NoError(t, db.Transaction(func(tx *gorm.DB) error {
		return repo.MarkTerminalTx(tx, row.ID, errors.New("malformed payload"), 10)
	}))

	require.NoError(t, db.Transaction(func(tx *gorm.DB) error {
		rows, err := repo.FetchUnpublishedForPublish(tx, 10, 10)
		require.NoError(t, err)
		assert.Empty(t, rows)
		return nil
	}))
}

func TestRepositoryDeletePublishedBefore(t *testing.T) {
	db := setupOutboxTestDB(t)
	repo := NewRepository(db)

	now := time.Now().UTC()
	old := insertReconcileRow(t, db, "user-a", now.Add(-48*time.Hour))
	fresh := insertReconcileRow(t, db, "user-b", now)
	pending := insertReconcileRow(t, db, "user-c", now.Add(-48*time.Hour))

	oldPublished := now.Add(-47 * time.Hour)
	require.NoError(t, db.Model(&models.OutboxEvent{}).Where("id = ?", old.ID).Update("published_at", oldPublished).Error)
	require.NoError(t, db.Model(&models.OutboxEvent{}).Where("id = ?", fresh.ID).Update("published_at", now).Error)

	deleted, err := repo.DeletePublishedBefore(context.Background(), now.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	var remaining []models.OutboxEvent
	require.NoError(t, db.Find(&remaining).Error)
	require.Len(t, remaining, 2)
	ids := []uuid.UUID{remaining[0].ID, remaining[1].ID}
	assert.Contains(t, ids, fresh.ID)
	assert.Contains(t, ids, pending.ID)
}

func TestServiceEmitReconcileRequested(t *testing.T) {
	db := setupOutboxTestDB(t)
	svc := NewService(NewRepository(db), nil)

	require.NoError(t, db.Transaction(func(tx *gorm.DB) error {
		return svc.EmitReconcileRequested(context.Background(), tx, "user-a", "webhook")
	}))

	var row models.OutboxEvent
	require.NoError(t, db.First(&row).Error)
	assert.Equal(t, enums.EventReconcileRequested, row.EventType)
	assert.Equal(t, enums.AggregateEntitlement, row.AggregateType)
	assert.Equal(t, "user-a", row.AggregateID)

	req, err := DecodeReconcileRequested(row.Payload)
	require.NoError(t, err)
	assert.Equal(t, "user-a", req.UserID)
	assert.Equal(t, "webhook", req.Reason)
}

func TestServiceEmitRequiresTransactionAndUser(t *testing.T) {
	db := setupOutboxTestDB(t)
	svc := NewService(NewRepository(db), nil)

	assert.Error(t, svc.EmitReconcileRequested(context.Background(), nil, "user-a", "webhook"))
	require.Error(t, db.Transaction(func(tx *gorm.DB) error {
		return svc.EmitReconcileRequested(context.Background(), tx, "", "webhook")
	}))
}

func TestDecodeReconcileRequestedRejectsMissingUser(t *testing.T) {
	_, err := DecodeReconcileRequested(json.RawMessage(`{"version":1,"eventId":"e","occurredAt":"2026-01-01T00:00:00Z","data":{}}`))
	assert.Error(t, err)
}
