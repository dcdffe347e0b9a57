package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/leaflens/leaflens-server/pkg/db/models"
	"github.com/leaflens/leaflens-server/pkg/enums"
	"github.com/leaflens/leaflens-server/pkg/logger"
)

const envelopeVersion = 1

type Service struct {
	repo *Repository
	logg *logger.Logger
}

func NewService(repo *Repository, logg *logger.Logger) *Service {
	return &Service{repo: repo, logg: logg}
}

// EmitReconcileRequested queues a reconcile trigger for the user inside the
// caller's transaction. The row commits or rolls back with whatever the caller
// was doing, which is the whole point.
func (s *Service) EmitReconcileRequested(ctx context.Context, tx *gorm.DB, userID, reason string) error {
	if tx == nil {
		return errors.New("transaction required")
	}
	if userID == "" {
		return errors.New("user id required")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	data, err := json.Marshal(ReconcileRequested{UserID: userID, Reason: reason})
	if err != nil {
		return err
	}
	envelope := PayloadEnvelope{
		Version:    envelopeVersion,
		EventID:    uuid.NewString(),
		OccurredAt: time.Now().UTC(),
		Data:       data,
	}
	payloadJSON, err := json.Marshal(envelope)
	if err != nil {
		return err
	}

	row := models.OutboxEvent{
		EventType:     enums.EventReconcileRequested,
		AggregateType: enums.AggregateEntitlement,
		AggregateID:   userID,
		Payload:       json.RawMessage(payloadJSON),
	}
	if err := s.repo.Insert(tx, row); err != nil {
		return err
	}

	if s.logg != nil {
		fields := map[string]any{
			"event_id":       envelope.EventID,
			"event_type":     enums.EventReconcileRequested,
			"aggregate_id":   userID,
			"aggregate_type": enums.AggregateEntitlement,
		}
		logCtx := s.logg.WithFields(ctx, fields)
		s.logg.Info(logCtx, "outbox event queued")
	}
	return nil
}

// DecodeReconcileRequested unpacks an outbox payload back into the reconcile
// request. Consumers use this on the subscriber side.
func DecodeReconcileRequested(payload json.RawMessage) (ReconcileRequested, error) {
	var envelope PayloadEnvelope
	if err := json.Unmarshal(payload, &envelope); err != nil {
		return ReconcileRequested{}, err
	}
	var req ReconcileRequested
	if err := json.Unmarshal(envelope.Data, &req); err != nil {
		return ReconcileRequested{}, err
	}
	if req.UserID == "" {
		return ReconcileRequested{}, errors.New("reconcile payload missing user id")
	}
	return req, nil
}
