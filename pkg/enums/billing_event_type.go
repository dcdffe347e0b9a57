package enums

import "strings"

// BillingEventType mirrors the billing platform's lifecycle notification types.
// Values outside the known set are preserved as-is so new provider types fold
// as no-ops instead of failing ingestion.
type BillingEventType string

const (
	BillingEventInitialPurchase BillingEventType = "INITIAL_PURCHASE"
	BillingEventRenewal         BillingEventType = "RENEWAL"
	BillingEventCancellation    BillingEventType = "CANCELLATION"
	BillingEventExpiration      BillingEventType = "EXPIRATION"
	BillingEventTrialStarted    BillingEventType = "TRIAL_STARTED"
	BillingEventTrialConverted  BillingEventType = "TRIAL_CONVERTED"
	BillingEventBillingIssue    BillingEventType = "BILLING_ISSUE"
	BillingEventUncancellation  BillingEventType = "UNCANCELLATION"
)

var validBillingEventTypes = []BillingEventType{
	BillingEventInitialPurchase,
	BillingEventRenewal,
	BillingEventCancellation,
	BillingEventExpiration,
	BillingEventTrialStarted,
	BillingEventTrialConverted,
	BillingEventBillingIssue,
	BillingEventUncancellation,
}

// String implements fmt.Stringer.
func (t BillingEventType) String() string {
	return string(t)
}

// IsValid reports whether the value is a known lifecycle type.
func (t BillingEventType) IsValid() bool {
	for _, candidate := range validBillingEventTypes {
		if candidate == t {
			return true
		}
	}
	return false
}

// GrantsEntitlement reports whether the event type can activate a paid entitlement.
func (t BillingEventType) GrantsEntitlement() bool {
	switch t {
	case BillingEventInitialPurchase, BillingEventRenewal, BillingEventTrialConverted:
		return true
	}
	return false
}

// NormalizeBillingEventType uppercases raw provider input; unknown values pass
// through unchanged and report IsValid() == false.
func NormalizeBillingEventType(value string) BillingEventType {
	return BillingEventType(strings.ToUpper(strings.TrimSpace(value)))
}
