package entitlements

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/leaflens/leaflens-server/pkg/enums"
	"github.com/leaflens/leaflens-server/pkg/logger"
	redispkg "github.com/leaflens/leaflens-server/pkg/redis"
)

// Snapshot is the derived entitlement record the rest of the system reads.
// Only the reconciler writes it.
type Snapshot struct {
	UserID           string               `json:"userId"`
	Version          int64                `json:"version"`
	IsPremium        bool                 `json:"isPremium"`
	TrialPhase       enums.TrialPhase     `json:"trialPhase"`
	DaysLeft         int                  `json:"daysLeft"`
	ScansUsed        int                  `json:"scansUsed"`
	ScansRemaining   int                  `json:"scansRemaining"`
	Source           enums.SnapshotSource `json:"source"`
	PremiumExpiresAt *time.Time           `json:"premiumExpiresAt,omitempty"`
	AutoRenewing     bool                 `json:"autoRenewing"`
	NewestEventAt    *time.Time           `json:"newestEventAt,omitempty"`
	ComputedAt       time.Time            `json:"computedAt"`
}

type snapshotBlobStore interface {
	Get(context.Context, string) (string, error)
	Set(context.Context, string, any, time.Duration) error
	SnapshotKey(userID string) string
}

// SnapshotStore persists the cached snapshot as one redis blob. The whole
// value is replaced on every write, so readers see pre- or post-reconcile
// state, never a partial one.
type SnapshotStore struct {
	redis snapshotBlobStore
	logg  *logger.Logger
}

func NewSnapshotStore(redis snapshotBlobStore, logg *logger.Logger) *SnapshotStore {
	return &SnapshotStore{redis: redis, logg: logg}
}

// Load returns the cached snapshot, or found=false on a miss. A corrupted
// blob is logged and treated as a miss so the caller reconciles fresh.
func (s *SnapshotStore) Load(ctx context.Context, userID string) (Snapshot, bool, error) {
	if userID == "" {
		return Snapshot{}, false, errors.New("user id required")
	}
	raw, err := s.redis.Get(ctx, s.redis.SnapshotKey(userID))
	if err != nil {
		if errors.Is(err, redispkg.Nil) {
			return Snapshot{}, false, nil
		}
		return Snapshot{}, false, err
	}

	var snapshot Snapshot
	if err := json.Unmarshal([]byte(raw), &snapshot); err != nil {
		if s.logg != nil {
			logCtx := s.logg.WithUserID(ctx, userID)
			s.logg.Warn(logCtx, "entitlement snapshot blob corrupted, treating as miss")
		}
		return Snapshot{}, false, nil
	}
	return snapshot, true, nil
}

// Save writes the snapshot with the next version number. Callers hold the
// per-user reconcile lock, so read-bump-write is race-free.
func (s *SnapshotStore) Save(ctx context.Context, snapshot Snapshot) (Snapshot, error) {
	if snapshot.UserID == "" {
		return Snapshot{}, errors.New("user id required")
	}

	previous, found, err := s.Load(ctx, snapshot.UserID)
	if err != nil {
		return Snapshot{}, err
	}
	snapshot.Version = 1
	if found {
		snapshot.Version = previous.Version + 1
	}

	payload, err := json.Marshal(snapshot)
	if err != nil {
		return Snapshot{}, err
	}
	if err := s.redis.Set(ctx, s.redis.SnapshotKey(snapshot.UserID), string(payload), 0); err != nil {
		return Snapshot{}, err
	}
	return snapshot, nil
}
