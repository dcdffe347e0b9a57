package enums

// SnapshotSource records which input governed the last entitlement decision.
type SnapshotSource string

const (
	SnapshotSourceLocalTrial   SnapshotSource = "LOCAL_TRIAL"
	SnapshotSourceBillingEvent SnapshotSource = "BILLING_EVENT"
)

// String implements fmt.Stringer.
func (s SnapshotSource) String() string {
	return string(s)
}

// IsValid reports whether the value is known.
func (s SnapshotSource) IsValid() bool {
	return s == SnapshotSourceLocalTrial || s == SnapshotSourceBillingEvent
}
