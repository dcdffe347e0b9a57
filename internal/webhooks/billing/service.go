package billingwebhook

import (
	"context"

	"gorm.io/gorm"

	"github.com/leaflens/leaflens-server/internal/events"
	"github.com/leaflens/leaflens-server/pkg/db/models"
	pkgerrors "github.com/leaflens/leaflens-server/pkg/errors"
	"github.com/leaflens/leaflens-server/pkg/logger"
	"github.com/leaflens/leaflens-server/pkg/metrics"
)

// Outcome reports how an ingestion call ended. Duplicate is success, not an
// error; at-least-once senders redeliver freely.
type Outcome string

const (
	OutcomeInserted  Outcome = "inserted"
	OutcomeDuplicate Outcome = "duplicate"
)

type eventAppender interface {
	AppendTx(tx *gorm.DB, event models.BillingEvent) (events.AppendResult, error)
}

type reconcileEmitter interface {
	EmitReconcileRequested(ctx context.Context, tx *gorm.DB, userID, reason string) error
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type ServiceParams struct {
	Events            eventAppender
	Outbox            reconcileEmitter
	TransactionRunner txRunner
	Logger            *logger.Logger
	Metrics           *metrics.BillingMetrics
}

type Service struct {
	events  eventAppender
	outbox  reconcileEmitter
	tx      txRunner
	logg    *logger.Logger
	metrics *metrics.BillingMetrics
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Events == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "event repository required")
	}
	if params.Outbox == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "outbox service required")
	}
	if params.TransactionRunner == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction runner required")
	}
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "logger required")
	}
	return &Service{
		events:  params.Events,
		outbox:  params.Outbox,
		tx:      params.TransactionRunner,
		logg:    params.Logger,
		metrics: params.Metrics,
	}, nil
}

// Ingest appends the already-verified, already-parsed event and, on a fresh
// insert, queues the reconcile trigger in the same transaction. Duplicates
// append nothing and schedule nothing.
func (s *Service) Ingest(ctx context.Context, event models.BillingEvent) (Outcome, error) {
	var result events.AppendResult
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		var appendErr error
		result, appendErr = s.events.AppendTx(tx, event)
		if appendErr != nil {
			return appendErr
		}
		if result == events.AppendInserted {
			return s.outbox.EmitReconcileRequested(ctx, tx, event.UserID, "webhook")
		}
		return nil
	})
	if err != nil {
		s.metrics.IncWebhook(metrics.WebhookResultError)
		return "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "storing billing event")
	}

	logCtx := s.logg.WithEventID(ctx, event.EventID)
	logCtx = s.logg.WithUserID(logCtx, event.UserID)
	logCtx = s.logg.WithField(logCtx, "event_type", string(event.Type))

	if result == events.AppendDuplicate {
		s.metrics.IncWebhook(metrics.WebhookResultDuplicate)
		s.logg.Info(logCtx, "duplicate billing event acknowledged")
		return OutcomeDuplicate, nil
	}

	s.metrics.IncWebhook(metrics.WebhookResultAccepted)
	s.logg.Info(logCtx, "billing event stored")
	return OutcomeInserted, nil
}
