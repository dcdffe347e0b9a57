package entitlements

import (
	"context"
	"errors"
	"time"

	"github.com/leaflens/leaflens-server/internal/trial"
	"github.com/leaflens/leaflens-server/pkg/db/models"
	"github.com/leaflens/leaflens-server/pkg/enums"
	errorspkg "github.com/leaflens/leaflens-server/pkg/errors"
	"github.com/leaflens/leaflens-server/pkg/logger"
	"github.com/leaflens/leaflens-server/pkg/metrics"
)

type eventLister interface {
	ListForUser(ctx context.Context, userID string) ([]models.BillingEvent, error)
}

type trialAccess interface {
	Load(ctx context.Context, userID string) (trial.LocalTrialState, error)
	EnsureStarted(ctx context.Context, userID string) (trial.LocalTrialState, bool, error)
	RecordScan(ctx context.Context, userID string) (trial.LocalTrialState, error)
}

type userLocker interface {
	Acquire(ctx context.Context, userID string) (func(context.Context) error, error)
}

// Service is the entitlement reconciler. It exclusively owns snapshot writes;
// everything else reads through it.
type Service struct {
	events    eventLister
	trials    trialAccess
	snapshots *SnapshotStore
	lock      userLocker
	logg      *logger.Logger
	metrics   *metrics.BillingMetrics
	grace     time.Duration
	now       func() time.Time
}

type ServiceParams struct {
	Events    eventLister
	Trials    trialAccess
	Snapshots *SnapshotStore
	Lock      userLocker
	Logger    *logger.Logger
	Metrics   *metrics.BillingMetrics
	Grace     time.Duration
	Now       func() time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Events == nil {
		return nil, errors.New("event repository is required")
	}
	if params.Trials == nil {
		return nil, errors.New("trial service is required")
	}
	if params.Snapshots == nil {
		return nil, errors.New("snapshot store is required")
	}
	if params.Lock == nil {
		return nil, errors.New("user lock is required")
	}
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		events:    params.Events,
		trials:    params.Trials,
		snapshots: params.Snapshots,
		lock:      params.Lock,
		logg:      params.Logger,
		metrics:   params.Metrics,
		grace:     params.Grace,
		now:       now,
	}, nil
}

// Reconcile folds the user's full event history plus trial state into a fresh
// snapshot and caches it. Concurrent calls for the same user serialize on the
// per-user lock.
func (s *Service) Reconcile(ctx context.Context, userID string) (Snapshot, error) {
	if userID == "" {
		return Snapshot{}, errorspkg.New(errorspkg.CodeValidation, "user id required")
	}
	start := s.now()

	release, err := s.lock.Acquire(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrLockBusy) {
			s.observe(metrics.ReconcileOutcomeError, start)
			return Snapshot{}, errorspkg.Wrap(errorspkg.CodeDependency, err, "reconcile busy, retry later")
		}
		s.observe(metrics.ReconcileOutcomeError, start)
		return Snapshot{}, errorspkg.Wrap(errorspkg.CodeDependency, err, "acquiring reconcile lock")
	}
	defer func() {
		if releaseErr := release(ctx); releaseErr != nil {
			s.logg.Error(s.logg.WithUserID(ctx, userID), "releasing reconcile lock", releaseErr)
		}
	}()

	events, err := s.events.ListForUser(ctx, userID)
	if err != nil {
		s.observe(metrics.ReconcileOutcomeError, start)
		return Snapshot{}, errorspkg.Wrap(errorspkg.CodeInternal, err, "loading billing events")
	}
	trialState, err := s.trials.Load(ctx, userID)
	if err != nil {
		s.observe(metrics.ReconcileOutcomeError, start)
		return Snapshot{}, errorspkg.Wrap(errorspkg.CodeInternal, err, "loading trial state")
	}

	snapshot := s.compute(ctx, userID, events, trialState)
	saved, err := s.snapshots.Save(ctx, snapshot)
	if err != nil {
		s.observe(metrics.ReconcileOutcomeError, start)
		return Snapshot{}, errorspkg.Wrap(errorspkg.CodeInternal, err, "writing entitlement snapshot")
	}

	s.observe(metrics.ReconcileOutcomeApplied, start)
	logCtx := s.logg.WithFields(ctx, map[string]any{
		"user_id":     userID,
		"version":     saved.Version,
		"is_premium":  saved.IsPremium,
		"trial_phase": string(saved.TrialPhase),
		"source":      string(saved.Source),
	})
	s.logg.Info(logCtx, "entitlement reconciled")
	return saved, nil
}

// compute is the pure fold-and-evaluate step.
func (s *Service) compute(ctx context.Context, userID string, events []models.BillingEvent, trialState trial.LocalTrialState) Snapshot {
	now := s.now().UTC()
	sortEvents(events)
	state := foldEvents(ctx, s.logg, events, s.grace)

	snapshot := Snapshot{
		UserID:         userID,
		ScansUsed:      trialState.ScanCount,
		ScansRemaining: trialState.ScansRemaining(),
		ComputedAt:     now,
	}
	if len(events) > 0 {
		newest := events[len(events)-1].OccurredAt
		snapshot.NewestEventAt = &newest
	}

	if state.premiumAt(now) {
		snapshot.IsPremium = true
		snapshot.Source = enums.SnapshotSourceBillingEvent
		snapshot.PremiumExpiresAt = state.expiresAt
		snapshot.AutoRenewing = state.autoRenewing
		snapshot.TrialPhase = enums.TrialPhaseNone
		if state.sawTrialConversion {
			snapshot.TrialPhase = enums.TrialPhaseConverted
		}
		return snapshot
	}

	snapshot.Source = enums.SnapshotSourceLocalTrial
	if !trialState.Started() {
		snapshot.TrialPhase = enums.TrialPhaseNone
		return snapshot
	}

	snapshot.DaysLeft = TrialDaysLeft(*trialState.StartedAt, trialState.TrialLengthDays, now)
	if snapshot.DaysLeft > 0 && trialState.ScanCount < trialState.ScanLimit {
		snapshot.TrialPhase = enums.TrialPhaseActive
	} else {
		snapshot.TrialPhase = enums.TrialPhaseExpired
	}
	return snapshot
}

// CurrentSnapshot returns the cached snapshot, reconciling once on a miss.
func (s *Service) CurrentSnapshot(ctx context.Context, userID string) (Snapshot, error) {
	if userID == "" {
		return Snapshot{}, errorspkg.New(errorspkg.CodeValidation, "user id required")
	}
	snapshot, found, err := s.snapshots.Load(ctx, userID)
	if err != nil {
		return Snapshot{}, errorspkg.Wrap(errorspkg.CodeInternal, err, "reading entitlement snapshot")
	}
	if found {
		return snapshot, nil
	}
	return s.Reconcile(ctx, userID)
}

// Gate derives the gating decision from the cached snapshot. It never
// reconciles beyond the cache-miss path.
func (s *Service) Gate(ctx context.Context, userID string) (Decision, error) {
	snapshot, err := s.CurrentSnapshot(ctx, userID)
	if err != nil {
		return Decision{}, err
	}
	return Decide(snapshot), nil
}

// StartTrial runs the idempotent local trial start and reconciles.
func (s *Service) StartTrial(ctx context.Context, userID string) (Snapshot, error) {
	if userID == "" {
		return Snapshot{}, errorspkg.New(errorspkg.CodeValidation, "user id required")
	}
	if _, _, err := s.trials.EnsureStarted(ctx, userID); err != nil {
		return Snapshot{}, errorspkg.Wrap(errorspkg.CodeInternal, err, "starting trial")
	}
	return s.Reconcile(ctx, userID)
}

// RecordScan counts one completed gated scan and reconciles.
func (s *Service) RecordScan(ctx context.Context, userID string) (Snapshot, error) {
	if userID == "" {
		return Snapshot{}, errorspkg.New(errorspkg.CodeValidation, "user id required")
	}
	if _, err := s.trials.RecordScan(ctx, userID); err != nil {
		return Snapshot{}, errorspkg.Wrap(errorspkg.CodeInternal, err, "recording scan")
	}
	return s.Reconcile(ctx, userID)
}

func (s *Service) observe(outcome string, start time.Time) {
	if s.metrics == nil {
		return
	}
	s.metrics.ObserveReconcile(outcome, s.now().Sub(start))
}
