package entitlements

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"

	"github.com/leaflens/leaflens-server/pkg/enums"
	errorspkg "github.com/leaflens/leaflens-server/pkg/errors"
	"github.com/leaflens/leaflens-server/pkg/logger"
	"github.com/leaflens/leaflens-server/pkg/outbox"
)

type fakeReconcileRunner struct {
	err   error
	calls []string
}

func (f *fakeReconcileRunner) Reconcile(ctx context.Context, userID string) (Snapshot, error) {
	f.calls = append(f.calls, userID)
	if f.err != nil {
		return Snapshot{}, f.err
	}
	return Snapshot{UserID: userID, Version: 1}, nil
}

func testConsumer(t *testing.T, runner reconcileRunner) *Consumer {
	t.Helper()
	return &Consumer{
		svc:  runner,
		logg: logger.New(logger.Options{ServiceName: "test"}),
	}
}

func reconcileMessage(tb testing.TB, userID string) *pubsub.Message {
	tb.Helper()
	data, err := json.Marshal(outbox.ReconcileRequested{UserID: userID, Reason: "webhook"})
	if err != nil {
		tb.Fatalf("marshal request: %v", err)
	}
	payload, err := json.Marshal(outbox.PayloadEnvelope{
		Version:    1,
		EventID:    uuid.NewString(),
		OccurredAt: time.Now().UTC(),
		Data:       data,
	})
	if err != nil {
		tb.Fatalf("marshal envelope: %v", err)
	}
	return &pubsub.Message{
		Data:       payload,
		Attributes: map[string]string{"event_type": string(enums.EventReconcileRequested)},
	}
}

func TestConsumerProcessReconciles(t *testing.T) {
	runner := &fakeReconcileRunner{}
	consumer := testConsumer(t, runner)

	result := consumer.process(context.Background(), reconcileMessage(t, "user-1"))
	if !result.ack || result.nack {
		t.Fatalf("expected ack, got %+v", result)
	}
	if len(runner.calls) != 1 || runner.calls[0] != "user-1" {
		t.Fatalf("expected reconcile for user-1, got %v", runner.calls)
	}
}

func TestConsumerAcksUnknownEventTypes(t *testing.T) {
	runner := &fakeReconcileRunner{}
	consumer := testConsumer(t, runner)

	msg := &pubsub.Message{Attributes: map[string]string{"event_type": "something_else"}}
	result := consumer.process(context.Background(), msg)
	if !result.ack {
		t.Fatalf("expected ack for unknown type, got %+v", result)
	}
	if len(runner.calls) != 0 {
		t.Fatal("unknown types must not reconcile")
	}
}

func TestConsumerAcksPoisonPayloads(t *testing.T) {
	runner := &fakeReconcileRunner{}
	consumer := testConsumer(t, runner)

	msg := &pubsub.Message{
		Data:       []byte("{not json"),
		Attributes: map[string]string{"event_type": string(enums.EventReconcileRequested)},
	}
	result := consumer.process(context.Background(), msg)
	if !result.ack {
		t.Fatalf("expected ack for poison payload, got %+v", result)
	}
	if len(runner.calls) != 0 {
		t.Fatal("poison payloads must not reconcile")
	}
}

func TestConsumerNacksRetryableFailures(t *testing.T) {
	runner := &fakeReconcileRunner{
		err: errorspkg.Wrap(errorspkg.CodeDependency, errors.New("lock busy"), "reconcile busy"),
	}
	consumer := testConsumer(t, runner)

	result := consumer.process(context.Background(), reconcileMessage(t, "user-1"))
	if !result.nack {
		t.Fatalf("expected nack for retryable failure, got %+v", result)
	}
}

func TestConsumerAcksPermanentFailures(t *testing.T) {
	runner := &fakeReconcileRunner{
		err: errorspkg.New(errorspkg.CodeValidation, "user id is required"),
	}
	consumer := testConsumer(t, runner)

	result := consumer.process(context.Background(), reconcileMessage(t, "user-1"))
	if !result.ack || result.nack {
		t.Fatalf("expected ack for permanent failure, got %+v", result)
	}
}
