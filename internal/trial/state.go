package trial

import "time"

// LocalTrialState is the per-user trial record persisted as a redis blob.
// StartedAt is set exactly once; ScanCount only ever grows.
type LocalTrialState struct {
	StartedAt       *time.Time `json:"startedAt"`
	TrialLengthDays int        `json:"trialLengthDays"`
	ScanCount       int        `json:"scanCount"`
	ScanLimit       int        `json:"scanLimit"`
}

// Started reports whether the trial window has begun.
func (s LocalTrialState) Started() bool {
	return s.StartedAt != nil
}

// ScansRemaining is never negative.
func (s LocalTrialState) ScansRemaining() int {
	remaining := s.ScanLimit - s.ScanCount
	if remaining < 0 {
		return 0
	}
	return remaining
}
