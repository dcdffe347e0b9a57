package trial

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/leaflens/leaflens-server/pkg/config"
	"github.com/leaflens/leaflens-server/pkg/logger"
	redispkg "github.com/leaflens/leaflens-server/pkg/redis"
)

type fakeBlobStore struct {
	data map[string]string
}

func newFakeBlobStore() *fakeBlobStore {
	return &fakeBlobStore{data: map[string]string{}}
}

func (f *fakeBlobStore) Get(_ context.Context, key string) (string, error) {
	v, ok := f.data[key]
	if !ok {
		return "", redispkg.Nil
	}
	return v, nil
}

func (f *fakeBlobStore) Set(_ context.Context, key string, value any, _ time.Duration) error {
	f.data[key] = value.(string)
	return nil
}

func (f *fakeBlobStore) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	if _, exists := f.data[key]; exists {
		return false, nil
	}
	f.data[key] = value.(string)
	return true, nil
}

func (f *fakeBlobStore) Del(_ context.Context, keys ...string) error {
	for _, key := range keys {
		delete(f.data, key)
	}
	return nil
}

func (f *fakeBlobStore) TrialStateKey(userID string) string {
	return "ll:trial:" + userID
}

func newTestService(t *testing.T, redis *fakeBlobStore, now func() time.Time) *Service {
	t.Helper()

	cfg := config.TrialConfig{LengthDays: 3, ScanLimit: 3}
	logg := logger.New(logger.Options{ServiceName: "test"})
	store := NewStore(redis, cfg, logg)
	svc, err := NewService(ServiceParams{Store: store, Logger: logg, Now: now})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc
}

func TestEnsureStartedSetsStartExactlyOnce(t *testing.T) {
	redis := newFakeBlobStore()
	first := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	current := first
	svc := newTestService(t, redis, func() time.Time { return current })

	state, started, err := svc.EnsureStarted(context.Background(), "user-a")
	if err != nil {
		t.Fatalf("ensure started: %v", err)
	}
	if !started {
		t.Fatal("expected first call to start the trial")
	}
	if state.StartedAt == nil || !state.StartedAt.Equal(first) {
		t.Fatalf("unexpected startedAt %v", state.StartedAt)
	}

	// later calls must not move the clock
	current = first.Add(48 * time.Hour)
	for i := 0; i < 3; i++ {
		again, started, err := svc.EnsureStarted(context.Background(), "user-a")
		if err != nil {
			t.Fatalf("ensure started call %d: %v", i, err)
		}
		if started {
			t.Fatalf("call %d should be a no-op", i)
		}
		if !again.StartedAt.Equal(first) {
			t.Fatalf("startedAt moved to %v", again.StartedAt)
		}
	}
}

func TestEnsureStartedLosingRaceKeepsExistingStart(t *testing.T) {
	redis := newFakeBlobStore()
	winner := time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)
	existing := LocalTrialState{StartedAt: &winner, TrialLengthDays: 3, ScanLimit: 3}
	payload, _ := json.Marshal(existing)
	redis.data["ll:trial:user-a"] = string(payload)

	svc := newTestService(t, redis, func() time.Time {
		return winner.Add(time.Hour)
	})

	state, started, err := svc.EnsureStarted(context.Background(), "user-a")
	if err != nil {
		t.Fatalf("ensure started: %v", err)
	}
	if started {
		t.Fatal("expected no-op against existing start")
	}
	if !state.StartedAt.Equal(winner) {
		t.Fatalf("expected winner's startedAt, got %v", state.StartedAt)
	}
}

func TestLoadCorruptedBlobFallsBackToDefault(t *testing.T) {
	redis := newFakeBlobStore()
	redis.data["ll:trial:user-a"] = "{not json"

	svc := newTestService(t, redis, time.Now)

	state, err := svc.store.Load(context.Background(), "user-a")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if state.Started() {
		t.Fatal("corrupted blob must load as unset trial")
	}
	if state.TrialLengthDays != 3 || state.ScanLimit != 3 {
		t.Fatalf("default shape not applied: %+v", state)
	}
	if _, exists := redis.data["ll:trial:user-a"]; exists {
		t.Fatal("corrupted blob should have been deleted")
	}

	// the user can still start a trial afterwards
	if _, started, err := svc.EnsureStarted(context.Background(), "user-a"); err != nil || !started {
		t.Fatalf("expected trial start after reset, started=%v err=%v", started, err)
	}
}

func TestRecordScanIncrementsMonotonically(t *testing.T) {
	redis := newFakeBlobStore()
	svc := newTestService(t, redis, time.Now)

	if _, _, err := svc.EnsureStarted(context.Background(), "user-a"); err != nil {
		t.Fatalf("ensure started: %v", err)
	}

	for want := 1; want <= 4; want++ {
		state, err := svc.RecordScan(context.Background(), "user-a")
		if err != nil {
			t.Fatalf("record scan %d: %v", want, err)
		}
		if state.ScanCount != want {
			t.Fatalf("expected scan count %d, got %d", want, state.ScanCount)
		}
	}

	state, err := svc.store.Load(context.Background(), "user-a")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if state.ScansRemaining() != 0 {
		t.Fatalf("expected zero scans remaining, got %d", state.ScansRemaining())
	}
}

func TestRecordScanBeforeStartCountsAgainstLimit(t *testing.T) {
	redis := newFakeBlobStore()
	svc := newTestService(t, redis, time.Now)

	state, err := svc.RecordScan(context.Background(), "user-a")
	if err != nil {
		t.Fatalf("record scan: %v", err)
	}
	if state.ScanCount != 1 {
		t.Fatalf("expected scan count 1, got %d", state.ScanCount)
	}

	after, _, err := svc.EnsureStarted(context.Background(), "user-a")
	if err != nil {
		t.Fatalf("ensure started: %v", err)
	}
	if after.ScanCount != 1 {
		t.Fatalf("scan count lost on trial start: %d", after.ScanCount)
	}
	if !after.Started() {
		t.Fatal("trial should be started")
	}
}
