package enums

// TrialPhase classifies where a user's free-trial window stands.
type TrialPhase string

const (
	TrialPhaseNone      TrialPhase = "NONE"
	TrialPhaseActive    TrialPhase = "ACTIVE"
	TrialPhaseExpired   TrialPhase = "EXPIRED"
	TrialPhaseConverted TrialPhase = "CONVERTED"
)

// String implements fmt.Stringer.
func (p TrialPhase) String() string {
	return string(p)
}

// IsValid reports whether the value is known.
func (p TrialPhase) IsValid() bool {
	switch p {
	case TrialPhaseNone, TrialPhaseActive, TrialPhaseExpired, TrialPhaseConverted:
		return true
	}
	return false
}
