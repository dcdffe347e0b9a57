package events

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	dbpkg "github.com/leaflens/leaflens-server/pkg/db"
	"github.com/leaflens/leaflens-server/pkg/db/models"
)

// AppendResult distinguishes a fresh insert from an at-least-once redelivery.
type AppendResult int

const (
	AppendInserted AppendResult = iota
	AppendDuplicate
)

// Repository exposes the append-only billing event log.
type Repository struct {
	db *gorm.DB
}

// NewRepository constructs an events repo bound to the provided GORM DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// AppendTx inserts the event inside the caller's transaction. A unique
// violation on event_id means the provider redelivered; no mutation happens
// and the caller gets AppendDuplicate.
func (r *Repository) AppendTx(tx *gorm.DB, event models.BillingEvent) (AppendResult, error) {
	if tx == nil {
		return 0, errors.New("transaction required")
	}
	if err := tx.Create(&event).Error; err != nil {
		if dbpkg.IsUniqueViolation(err, "ux_billing_events_event_id") ||
			dbpkg.IsUniqueViolation(err, "") {
			return AppendDuplicate, nil
		}
		return 0, err
	}
	return AppendInserted, nil
}

// ListForUser returns the user's full event history ordered by occurred_at
// ascending, event_id breaking ties so folds are deterministic.
func (r *Repository) ListForUser(ctx context.Context, userID string) ([]models.BillingEvent, error) {
	var rows []models.BillingEvent
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("occurred_at ASC").
		Order("event_id ASC").
		Find(&rows).Error
	return rows, err
}

// NewestOccurredAt returns the latest occurred_at for the user, or the zero
// time when no events exist. The sweep job compares it against the snapshot.
func (r *Repository) NewestOccurredAt(ctx context.Context, userID string) (models.BillingEvent, error) {
	var row models.BillingEvent
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("occurred_at DESC").
		Order("event_id DESC").
		First(&row).Error
	return row, err
}

// ListUserIDsWithEventsSince returns the distinct users whose newest event
// arrived at or after the cutoff. Used by the reconcile sweep.
func (r *Repository) ListUserIDsWithEventsSince(ctx context.Context, cutoff time.Time) ([]string, error) {
	var ids []string
	err := r.db.WithContext(ctx).
		Model(&models.BillingEvent{}).
		Distinct("user_id").
		Where("received_at >= ?", cutoff).
		Pluck("user_id", &ids).Error
	return ids, err
}
