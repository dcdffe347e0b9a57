package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/leaflens/leaflens-server/internal/entitlements"
	"github.com/leaflens/leaflens-server/pkg/db/models"
	"github.com/leaflens/leaflens-server/pkg/logger"
)

// Webhook-triggered reconciles normally keep snapshots current; the sweep
// only has to catch users whose reconcile message was lost.
const defaultSweepLookback = 48 * time.Hour

// EntitlementSweepJobParams configures the stale-snapshot sweep.
type EntitlementSweepJobParams struct {
	Logger     *logger.Logger
	Events     sweepEventSource
	Snapshots  sweepSnapshotSource
	Reconciler sweepReconciler
	Lookback   time.Duration
	Now        func() time.Time
}

type sweepEventSource interface {
	ListUserIDsWithEventsSince(ctx context.Context, cutoff time.Time) ([]string, error)
	NewestOccurredAt(ctx context.Context, userID string) (models.BillingEvent, error)
}

type sweepSnapshotSource interface {
	Load(ctx context.Context, userID string) (entitlements.Snapshot, bool, error)
}

type sweepReconciler interface {
	Reconcile(ctx context.Context, userID string) (entitlements.Snapshot, error)
}

// NewEntitlementSweepJob builds the sweep cron job.
func NewEntitlementSweepJob(params EntitlementSweepJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Events == nil {
		return nil, fmt.Errorf("event source required")
	}
	if params.Snapshots == nil {
		return nil, fmt.Errorf("snapshot source required")
	}
	if params.Reconciler == nil {
		return nil, fmt.Errorf("reconciler required")
	}
	lookback := params.Lookback
	if lookback <= 0 {
		lookback = defaultSweepLookback
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &entitlementSweepJob{
		logg:       params.Logger,
		events:     params.Events,
		snapshots:  params.Snapshots,
		reconciler: params.Reconciler,
		lookback:   lookback,
		now:        now,
	}, nil
}

type entitlementSweepJob struct {
	logg       *logger.Logger
	events     sweepEventSource
	snapshots  sweepSnapshotSource
	reconciler sweepReconciler
	lookback   time.Duration
	now        func() time.Time
}

func (j *entitlementSweepJob) Name() string { return "entitlement-sweep" }

func (j *entitlementSweepJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.lookback)
	userIDs, err := j.events.ListUserIDsWithEventsSince(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("list sweep candidates: %w", err)
	}

	var errs error
	reconciled := 0
	for _, userID := range userIDs {
		stale, err := j.snapshotStale(ctx, userID)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("check user %s: %w", userID, err))
			continue
		}
		if !stale {
			continue
		}
		if _, err := j.reconciler.Reconcile(ctx, userID); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("reconcile user %s: %w", userID, err))
			continue
		}
		reconciled++
	}

	reportCtx := j.logg.WithFields(ctx, map[string]any{
		"cutoff":     cutoff,
		"candidates": len(userIDs),
		"reconciled": reconciled,
	})
	j.logg.Info(reportCtx, "entitlement sweep complete")
	return errs
}

// snapshotStale reports whether the user's cached snapshot predates their
// newest stored billing event.
func (j *entitlementSweepJob) snapshotStale(ctx context.Context, userID string) (bool, error) {
	newest, err := j.events.NewestOccurredAt(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("newest event: %w", err)
	}
	snapshot, found, err := j.snapshots.Load(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("load snapshot: %w", err)
	}
	if !found {
		return true, nil
	}
	if snapshot.NewestEventAt == nil {
		return true, nil
	}
	return snapshot.NewestEventAt.Before(newest.OccurredAt), nil
}
