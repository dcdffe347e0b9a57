package trial

import (
	"context"
	"errors"
	"time"

	"github.com/leaflens/leaflens-server/pkg/logger"
)

// Service owns trial lifecycle writes: the one-time start and the monotonic
// scan counter.
type Service struct {
	store *Store
	logg  *logger.Logger
	now   func() time.Time
}

type ServiceParams struct {
	Store  *Store
	Logger *logger.Logger
	Now    func() time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Store == nil {
		return nil, errors.New("trial store is required")
	}
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &Service{store: params.Store, logg: params.Logger, now: now}, nil
}

// Load returns the user's current trial state without mutating it.
func (s *Service) Load(ctx context.Context, userID string) (LocalTrialState, error) {
	return s.store.Load(ctx, userID)
}

// EnsureStarted sets startedAt exactly once. Re-invocation and concurrent
// invocation are no-ops; an existing startedAt is never overwritten. Returns
// the state after the call and whether this call started the trial.
func (s *Service) EnsureStarted(ctx context.Context, userID string) (LocalTrialState, bool, error) {
	state, err := s.store.Load(ctx, userID)
	if err != nil {
		return LocalTrialState{}, false, err
	}
	if state.Started() {
		return state, false, nil
	}

	startedAt := s.now().UTC()
	fresh := s.store.Default()
	fresh.StartedAt = &startedAt
	// keep any scans already counted against the unset state
	fresh.ScanCount = state.ScanCount

	written, err := s.store.SaveIfAbsent(ctx, userID, fresh)
	if err != nil {
		return LocalTrialState{}, false, err
	}
	if !written {
		// lost the race: another writer started it, read theirs back
		current, err := s.store.Load(ctx, userID)
		if err != nil {
			return LocalTrialState{}, false, err
		}
		// a live blob without startedAt means scans were counted before any
		// start; claim the start with a plain save
		if !current.Started() {
			current.StartedAt = &startedAt
			if err := s.store.Save(ctx, userID, current); err != nil {
				return LocalTrialState{}, false, err
			}
		}
		return current, false, nil
	}

	logCtx := s.logg.WithUserID(ctx, userID)
	s.logg.Info(logCtx, "local trial started")
	return fresh, true, nil
}

// RecordScan increments the scan counter by one and returns the new state.
// The counter never decrements.
func (s *Service) RecordScan(ctx context.Context, userID string) (LocalTrialState, error) {
	state, err := s.store.Load(ctx, userID)
	if err != nil {
		return LocalTrialState{}, err
	}
	state.ScanCount++
	if err := s.store.Save(ctx, userID, state); err != nil {
		return LocalTrialState{}, err
	}
	return state, nil
}
