package entitlements

import (
	"context"
	"fmt"

	pubsub "cloud.google.com/go/pubsub/v2"

	"github.com/leaflens/leaflens-server/pkg/enums"
	errorspkg "github.com/leaflens/leaflens-server/pkg/errors"
	"github.com/leaflens/leaflens-server/pkg/logger"
	"github.com/leaflens/leaflens-server/pkg/outbox"
)

type reconcileRunner interface {
	Reconcile(ctx context.Context, userID string) (Snapshot, error)
}

// Consumer executes reconcile requests delivered through Pub/Sub.
type Consumer struct {
	svc          reconcileRunner
	subscription *pubsub.Subscriber
	logg         *logger.Logger
}

// NewConsumer builds the reconcile consumer.
func NewConsumer(svc reconcileRunner, subscription *pubsub.Subscriber, logg *logger.Logger) (*Consumer, error) {
	if svc == nil {
		return nil, fmt.Errorf("entitlement service required")
	}
	if subscription == nil {
		return nil, fmt.Errorf("reconcile subscription required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Consumer{
		svc:          svc,
		subscription: subscription,
		logg:         logg,
	}, nil
}

// Run starts the consumer loop until the context is canceled.
func (c *Consumer) Run(ctx context.Context) error {
	return c.subscription.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		result := c.process(ctx, msg)
		if result.nack {
			msg.Nack()
			return
		}
		msg.Ack()
	})
}

type processResult struct {
	ack  bool
	nack bool
}

func (c *Consumer) process(ctx context.Context, msg *pubsub.Message) processResult {
	eventType := msg.Attributes["event_type"]
	logCtx := c.logg.WithFields(ctx, map[string]any{
		"message_id": msg.ID,
		"event_type": eventType,
	})

	if eventType != string(enums.EventReconcileRequested) {
		c.logg.Info(logCtx, "skipping unexpected event type")
		return processResult{ack: true}
	}

	request, err := outbox.DecodeReconcileRequested(msg.Data)
	if err != nil {
		// Poison message; redelivery cannot fix a bad payload.
		c.logg.Error(logCtx, "failed to decode reconcile request", err)
		return processResult{ack: true}
	}

	logCtx = c.logg.WithFields(logCtx, map[string]any{
		"user_id": request.UserID,
		"reason":  request.Reason,
	})

	snapshot, err := c.svc.Reconcile(logCtx, request.UserID)
	if err != nil {
		if typed := errorspkg.As(err); typed != nil && !errorspkg.MetadataFor(typed.Code()).Retryable {
			c.logg.Error(logCtx, "reconcile failed permanently", err)
			return processResult{ack: true}
		}
		c.logg.Error(logCtx, "reconcile failed; message will be redelivered", err)
		return processResult{nack: true}
	}

	logCtx = c.logg.WithField(logCtx, "snapshot_version", snapshot.Version)
	c.logg.Info(logCtx, "reconcile request processed")
	return processResult{ack: true}
}
