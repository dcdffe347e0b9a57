package billingwebhook

import (
	"context"
	"testing"
	"time"
)

type fakeIdempotencyStore struct {
	keys map[string]string
}

func newFakeIdempotencyStore() *fakeIdempotencyStore {
	return &fakeIdempotencyStore{keys: map[string]string{}}
}

func (f *fakeIdempotencyStore) Get(ctx context.Context, key string) (string, error) {
	return f.keys[key], nil
}

func (f *fakeIdempotencyStore) SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error) {
	if _, ok := f.keys[key]; ok {
		return false, nil
	}
	f.keys[key] = "1"
	return true, nil
}

func (f *fakeIdempotencyStore) IdempotencyKey(scope, id string) string {
	return "ll:idempotency:" + scope + ":" + id
}

func (f *fakeIdempotencyStore) Del(ctx context.Context, keys ...string) error {
	for _, key := range keys {
		delete(f.keys, key)
	}
	return nil
}

func TestIdempotencyGuardMarksFirstDelivery(t *testing.T) {
	guard, err := NewIdempotencyGuard(newFakeIdempotencyStore(), time.Hour, "billing")
	if err != nil {
		t.Fatalf("NewIdempotencyGuard: %v", err)
	}

	seen, err := guard.CheckAndMark(context.Background(), "evt-1")
	if err != nil {
		t.Fatalf("CheckAndMark: %v", err)
	}
	if seen {
		t.Fatal("first delivery must not be seen")
	}

	seen, err = guard.CheckAndMark(context.Background(), "evt-1")
	if err != nil {
		t.Fatalf("CheckAndMark: %v", err)
	}
	if !seen {
		t.Fatal("second delivery must be seen")
	}
}

func TestIdempotencyGuardDeleteAllowsRetry(t *testing.T) {
	guard, err := NewIdempotencyGuard(newFakeIdempotencyStore(), time.Hour, "billing")
	if err != nil {
		t.Fatalf("NewIdempotencyGuard: %v", err)
	}

	if _, err := guard.CheckAndMark(context.Background(), "evt-1"); err != nil {
		t.Fatalf("CheckAndMark: %v", err)
	}
	if err := guard.Delete(context.Background(), "evt-1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	seen, err := guard.CheckAndMark(context.Background(), "evt-1")
	if err != nil {
		t.Fatalf("CheckAndMark: %v", err)
	}
	if seen {
		t.Fatal("delivery after delete must not be seen")
	}
}

func TestIdempotencyGuardRequiresEventID(t *testing.T) {
	guard, err := NewIdempotencyGuard(newFakeIdempotencyStore(), time.Hour, "billing")
	if err != nil {
		t.Fatalf("NewIdempotencyGuard: %v", err)
	}
	if _, err := guard.CheckAndMark(context.Background(), ""); err == nil {
		t.Fatal("expected error for empty event id")
	}
}
