package billingwebhook

import (
	"context"
	"errors"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/leaflens/leaflens-server/internal/events"
	"github.com/leaflens/leaflens-server/pkg/db/models"
	"github.com/leaflens/leaflens-server/pkg/enums"
	pkgerrors "github.com/leaflens/leaflens-server/pkg/errors"
	"github.com/leaflens/leaflens-server/pkg/logger"
)

const testBody = `{
  "api_version": "1.0",
  "event": {
    "type": "INITIAL_PURCHASE",
    "id": "evt-1",
    "app_user_id": "user-a",
    "product_id": "leaflens_premium_monthly",
    "entitlement_ids": ["premium"],
    "period_type": "NORMAL",
    "event_timestamp_ms": 1767225600000,
    "expiration_at_ms": 1769904000000,
    "environment": "PRODUCTION",
    "store": "APP_STORE",
    "currency": "USD",
    "price": 4.99
  }
}`

func TestVerifySignatureRoundTrip(t *testing.T) {
	body := []byte(testBody)
	signature := SignPayload("whsec", body)

	if !VerifySignature("whsec", body, signature) {
		t.Fatal("valid signature rejected")
	}
	if VerifySignature("whsec", append(body, ' '), signature) {
		t.Fatal("tampered body accepted")
	}
	if VerifySignature("other-secret", body, signature) {
		t.Fatal("wrong secret accepted")
	}
	if VerifySignature("whsec", body, "") {
		t.Fatal("empty signature accepted")
	}
	if VerifySignature("whsec", body, "zz-not-hex") {
		t.Fatal("non-hex signature accepted")
	}
}

func TestParsePayloadTranslatesEvent(t *testing.T) {
	event, err := ParsePayload([]byte(testBody))
	if err != nil {
		t.Fatalf("parse payload: %v", err)
	}

	if event.EventID != "evt-1" || event.UserID != "user-a" {
		t.Fatalf("ids not mapped: %+v", event)
	}
	if event.Type != enums.BillingEventInitialPurchase {
		t.Fatalf("unexpected type %s", event.Type)
	}
	if event.Store != enums.BillingStoreAppStore || event.Environment != enums.BillingEnvironmentProduction {
		t.Fatalf("store/environment not mapped: %+v", event)
	}
	wantOccurred := time.UnixMilli(1767225600000).UTC()
	if !event.OccurredAt.Equal(wantOccurred) {
		t.Fatalf("occurredAt %v, want %v", event.OccurredAt, wantOccurred)
	}
	if event.ExpiresAt == nil || !event.ExpiresAt.Equal(time.UnixMilli(1769904000000).UTC()) {
		t.Fatalf("expiresAt not mapped: %v", event.ExpiresAt)
	}
	if len(event.EntitlementIDs) != 1 || event.EntitlementIDs[0] != "premium" {
		t.Fatalf("entitlement ids not mapped: %v", event.EntitlementIDs)
	}
	if event.Price.String() != "4.99" {
		t.Fatalf("price not mapped: %s", event.Price)
	}
	if !event.AutoRenewing {
		t.Fatal("purchase should default to auto-renewing")
	}
	if len(event.Raw) == 0 {
		t.Fatal("raw payload must be retained")
	}
}

func TestParsePayloadMalformedJSON(t *testing.T) {
	_, err := ParsePayload([]byte("{not json"))
	coded := pkgerrors.As(err)
	if coded == nil || coded.Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestParsePayloadMissingRequiredFields(t *testing.T) {
	cases := map[string]string{
		"missing id":    `{"event":{"type":"RENEWAL","app_user_id":"u","store":"APP_STORE","environment":"PRODUCTION","event_timestamp_ms":1}}`,
		"missing user":  `{"event":{"type":"RENEWAL","id":"e","store":"APP_STORE","environment":"PRODUCTION","event_timestamp_ms":1}}`,
		"missing type":  `{"event":{"id":"e","app_user_id":"u","store":"APP_STORE","environment":"PRODUCTION","event_timestamp_ms":1}}`,
		"missing time":  `{"event":{"type":"RENEWAL","id":"e","app_user_id":"u","store":"APP_STORE","environment":"PRODUCTION"}}`,
		"unknown store": `{"event":{"type":"RENEWAL","id":"e","app_user_id":"u","store":"AMAZON","environment":"PRODUCTION","event_timestamp_ms":1}}`,
	}
	for name, body := range cases {
		_, err := ParsePayload([]byte(body))
		coded := pkgerrors.As(err)
		if coded == nil || coded.Code() != pkgerrors.CodeValidation {
			t.Fatalf("%s: expected validation error, got %v", name, err)
		}
	}
}

func TestParsePayloadPreservesUnknownEventType(t *testing.T) {
	body := `{"event":{"type":"price_change_consent","id":"e","app_user_id":"u","store":"PLAY_STORE","environment":"SANDBOX","event_timestamp_ms":1}}`
	event, err := ParsePayload([]byte(body))
	if err != nil {
		t.Fatalf("unknown types must parse: %v", err)
	}
	if event.Type != enums.BillingEventType("PRICE_CHANGE_CONSENT") {
		t.Fatalf("unexpected type %s", event.Type)
	}
	if event.Type.IsValid() {
		t.Fatal("type should report unknown")
	}
}

type fakeAppender struct {
	result   events.AppendResult
	err      error
	appended []models.BillingEvent
}

func (f *fakeAppender) AppendTx(_ *gorm.DB, event models.BillingEvent) (events.AppendResult, error) {
	if f.err != nil {
		return 0, f.err
	}
	f.appended = append(f.appended, event)
	return f.result, nil
}

type fakeEmitter struct {
	users []string
	err   error
}

func (f *fakeEmitter) EmitReconcileRequested(_ context.Context, _ *gorm.DB, userID, _ string) error {
	if f.err != nil {
		return f.err
	}
	f.users = append(f.users, userID)
	return nil
}

type fakeTxRunner struct{}

func (fakeTxRunner) WithTx(_ context.Context, fn func(tx *gorm.DB) error) error {
	return fn(&gorm.DB{})
}

func newIngestService(t *testing.T, appender *fakeAppender, emitter *fakeEmitter) *Service {
	t.Helper()

	svc, err := NewService(ServiceParams{
		Events:            appender,
		Outbox:            emitter,
		TransactionRunner: fakeTxRunner{},
		Logger:            logger.New(logger.Options{ServiceName: "test"}),
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc
}

func TestIngestInsertedEmitsReconcile(t *testing.T) {
	appender := &fakeAppender{result: events.AppendInserted}
	emitter := &fakeEmitter{}
	svc := newIngestService(t, appender, emitter)

	event, err := ParsePayload([]byte(testBody))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	outcome, err := svc.Ingest(context.Background(), event)
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if outcome != OutcomeInserted {
		t.Fatalf("expected inserted, got %s", outcome)
	}
	if len(emitter.users) != 1 || emitter.users[0] != "user-a" {
		t.Fatalf("reconcile not scheduled: %v", emitter.users)
	}
}

func TestIngestDuplicateSkipsReconcile(t *testing.T) {
	appender := &fakeAppender{result: events.AppendDuplicate}
	emitter := &fakeEmitter{}
	svc := newIngestService(t, appender, emitter)

	event, err := ParsePayload([]byte(testBody))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	outcome, err := svc.Ingest(context.Background(), event)
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if outcome != OutcomeDuplicate {
		t.Fatalf("expected duplicate, got %s", outcome)
	}
	if len(emitter.users) != 0 {
		t.Fatal("duplicates must not re-trigger reconciliation")
	}
}

func TestIngestStorageFailureIsInternal(t *testing.T) {
	appender := &fakeAppender{err: errors.New("connection reset")}
	svc := newIngestService(t, appender, &fakeEmitter{})

	event, err := ParsePayload([]byte(testBody))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	_, err = svc.Ingest(context.Background(), event)
	coded := pkgerrors.As(err)
	if coded == nil || coded.Code() != pkgerrors.CodeInternal {
		t.Fatalf("expected internal error, got %v", err)
	}
}

func TestIngestOutboxFailureRollsUp(t *testing.T) {
	appender := &fakeAppender{result: events.AppendInserted}
	emitter := &fakeEmitter{err: errors.New("insert outbox failed")}
	svc := newIngestService(t, appender, emitter)

	event, err := ParsePayload([]byte(testBody))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	if _, err := svc.Ingest(context.Background(), event); err == nil {
		t.Fatal("outbox failure must fail ingestion so the sender retries")
	}
}
