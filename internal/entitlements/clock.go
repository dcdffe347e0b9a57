package entitlements

import "time"

const day = 24 * time.Hour

// TrialDaysLeft computes remaining whole trial days:
// max(0, trialLengthDays - floor(elapsed / 1 day)).
// A clock running behind startedAt clamps to the full length instead of
// producing a value outside [0, trialLengthDays].
func TrialDaysLeft(startedAt time.Time, trialLengthDays int, now time.Time) int {
	if trialLengthDays < 0 {
		return 0
	}
	if now.Before(startedAt) {
		return trialLengthDays
	}
	elapsedDays := int(now.Sub(startedAt) / day)
	left := trialLengthDays - elapsedDays
	if left < 0 {
		return 0
	}
	return left
}

// TrialExpired reports whether the window has fully elapsed.
func TrialExpired(startedAt time.Time, trialLengthDays int, now time.Time) bool {
	if now.Before(startedAt) {
		return false
	}
	return !now.Before(startedAt.Add(time.Duration(trialLengthDays) * day))
}
