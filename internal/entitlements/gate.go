package entitlements

import (
	"fmt"

	"github.com/leaflens/leaflens-server/pkg/enums"
)

// GateStatus classifies the gating decision independent of message wording.
type GateStatus string

const (
	GateStatusPremium         GateStatus = "premium"
	GateStatusTrialActive     GateStatus = "trial_active"
	GateStatusTrialExpired    GateStatus = "trial_expired"
	GateStatusTrialNotStarted GateStatus = "trial_not_started"
)

// Decision is the gating outcome for one snapshot.
type Decision struct {
	CanView       bool       `json:"canView"`
	Status        GateStatus `json:"status"`
	StatusMessage string     `json:"statusMessage"`
}

// Decide maps a snapshot to the gating decision. Pure; safe to call on every
// request.
func Decide(snapshot Snapshot) Decision {
	if snapshot.IsPremium {
		return Decision{
			CanView:       true,
			Status:        GateStatusPremium,
			StatusMessage: "premium active",
		}
	}

	switch snapshot.TrialPhase {
	case enums.TrialPhaseActive:
		return Decision{
			CanView: true,
			Status:  GateStatusTrialActive,
			StatusMessage: fmt.Sprintf("%d days, %d scans left",
				snapshot.DaysLeft, snapshot.ScansRemaining),
		}
	case enums.TrialPhaseExpired, enums.TrialPhaseConverted:
		return Decision{
			CanView:       false,
			Status:        GateStatusTrialExpired,
			StatusMessage: "trial ended",
		}
	default:
		return Decision{
			CanView:       false,
			Status:        GateStatusTrialNotStarted,
			StatusMessage: "start your free trial",
		}
	}
}
