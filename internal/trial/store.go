package trial

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/leaflens/leaflens-server/pkg/config"
	"github.com/leaflens/leaflens-server/pkg/logger"
	redispkg "github.com/leaflens/leaflens-server/pkg/redis"
)

type blobStore interface {
	Get(context.Context, string) (string, error)
	Set(context.Context, string, any, time.Duration) error
	SetNX(context.Context, string, any, time.Duration) (bool, error)
	Del(context.Context, ...string) error
	TrialStateKey(userID string) string
}

// Store persists LocalTrialState blobs. Corrupted values load as the unset
// default instead of failing the caller.
type Store struct {
	redis blobStore
	cfg   config.TrialConfig
	logg  *logger.Logger
}

func NewStore(redis blobStore, cfg config.TrialConfig, logg *logger.Logger) *Store {
	return &Store{redis: redis, cfg: cfg, logg: logg}
}

// Default is the unset trial state shaped by configuration.
func (s *Store) Default() LocalTrialState {
	return LocalTrialState{
		TrialLengthDays: s.cfg.LengthDays,
		ScanLimit:       s.cfg.ScanLimit,
	}
}

// Load returns the user's trial state. Missing keys yield the default; a
// non-parseable blob is logged, deleted, and also yields the default.
func (s *Store) Load(ctx context.Context, userID string) (LocalTrialState, error) {
	if userID == "" {
		return LocalTrialState{}, errors.New("user id required")
	}

	key := s.redis.TrialStateKey(userID)
	raw, err := s.redis.Get(ctx, key)
	if err != nil {
		if errors.Is(err, redispkg.Nil) {
			return s.Default(), nil
		}
		return LocalTrialState{}, err
	}

	var state LocalTrialState
	if err := json.Unmarshal([]byte(raw), &state); err != nil {
		if s.logg != nil {
			logCtx := s.logg.WithUserID(ctx, userID)
			s.logg.Warn(logCtx, "trial state blob corrupted, resetting to default")
		}
		if delErr := s.redis.Del(ctx, key); delErr != nil {
			return LocalTrialState{}, delErr
		}
		return s.Default(), nil
	}

	// older blobs may predate config, backfill the fixed shape
	if state.TrialLengthDays <= 0 {
		state.TrialLengthDays = s.cfg.LengthDays
	}
	if state.ScanLimit <= 0 {
		state.ScanLimit = s.cfg.ScanLimit
	}
	return state, nil
}

// Save overwrites the user's trial state blob.
func (s *Store) Save(ctx context.Context, userID string, state LocalTrialState) error {
	if userID == "" {
		return errors.New("user id required")
	}
	payload, err := json.Marshal(state)
	if err != nil {
		return err
	}
	return s.redis.Set(ctx, s.redis.TrialStateKey(userID), string(payload), 0)
}

// SaveIfAbsent writes the blob only when no value exists yet. Returns false
// when another writer got there first.
func (s *Store) SaveIfAbsent(ctx context.Context, userID string, state LocalTrialState) (bool, error) {
	if userID == "" {
		return false, errors.New("user id required")
	}
	payload, err := json.Marshal(state)
	if err != nil {
		return false, err
	}
	return s.redis.SetNX(ctx, s.redis.TrialStateKey(userID), string(payload), 0)
}
