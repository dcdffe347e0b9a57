package entitlements

import (
	"context"
	"sort"
	"time"

	"github.com/leaflens/leaflens-server/pkg/db/models"
	"github.com/leaflens/leaflens-server/pkg/enums"
	"github.com/leaflens/leaflens-server/pkg/logger"
)

// billingState is the running fold state over a user's event history.
type billingState struct {
	active             bool
	expiresAt          *time.Time
	autoRenewing       bool
	sawTrialConversion bool
	graceUntil         *time.Time
	billingTrial       bool
}

// sortEvents orders events by occurred_at ascending, event_id breaking ties.
// The store already returns this order; sorting again makes the fold safe for
// callers that assembled the slice themselves.
func sortEvents(events []models.BillingEvent) {
	sort.SliceStable(events, func(i, j int) bool {
		if events[i].OccurredAt.Equal(events[j].OccurredAt) {
			return events[i].EventID < events[j].EventID
		}
		return events[i].OccurredAt.Before(events[j].OccurredAt)
	})
}

// foldEvents replays the ordered history into a billing state. Later events
// win over earlier ones. Unrecognized types are logged and skipped; a
// decodable-but-unknown event must never abort the fold.
func foldEvents(ctx context.Context, logg *logger.Logger, events []models.BillingEvent, grace time.Duration) billingState {
	var state billingState
	for _, event := range events {
		switch event.Type {
		case enums.BillingEventInitialPurchase, enums.BillingEventRenewal, enums.BillingEventTrialConverted:
			state.active = true
			state.expiresAt = event.ExpiresAt
			state.autoRenewing = event.AutoRenewing
			state.graceUntil = nil
			if event.Type == enums.BillingEventTrialConverted && event.IsTrialPeriod {
				state.sawTrialConversion = true
			}

		case enums.BillingEventCancellation:
			// entitlement survives until the paid-through date passes
			state.autoRenewing = false
			if event.ExpiresAt != nil {
				state.expiresAt = event.ExpiresAt
			}

		case enums.BillingEventExpiration:
			state.active = false
			state.graceUntil = nil

		case enums.BillingEventBillingIssue:
			until := event.OccurredAt.Add(grace)
			state.graceUntil = &until

		case enums.BillingEventUncancellation:
			state.active = true
			state.autoRenewing = true
			if event.ExpiresAt != nil {
				state.expiresAt = event.ExpiresAt
			}
			state.graceUntil = nil

		case enums.BillingEventTrialStarted:
			// billing-originated trial; never grants premium by itself
			state.billingTrial = true

		default:
			if logg != nil {
				logCtx := logg.WithFields(ctx, map[string]any{
					"event_id":   event.EventID,
					"event_type": string(event.Type),
				})
				logg.Warn(logCtx, "unknown billing event type folded as no-op")
			}
		}
	}
	return state
}

// premiumAt evaluates whether the folded state grants premium at the instant.
func (s billingState) premiumAt(now time.Time) bool {
	if !s.active {
		return false
	}
	if s.expiresAt == nil || !s.expiresAt.After(now) {
		return false
	}
	if s.graceUntil != nil && now.After(*s.graceUntil) {
		return false
	}
	return true
}
