package enums

import "testing"

func TestNormalizeBillingEventType(t *testing.T) {
	if got := NormalizeBillingEventType(" initial_purchase "); got != BillingEventInitialPurchase {
		t.Fatalf("expected INITIAL_PURCHASE, got %q", got)
	}
	if got := NormalizeBillingEventType("SUBSCRIPTION_PAUSED"); got.IsValid() {
		t.Fatalf("unknown type should not be valid, got %q", got)
	}
	if got := NormalizeBillingEventType("SUBSCRIPTION_PAUSED"); got.String() != "SUBSCRIPTION_PAUSED" {
		t.Fatalf("unknown type should be preserved verbatim, got %q", got)
	}
}

func TestGrantsEntitlement(t *testing.T) {
	granting := []BillingEventType{
		BillingEventInitialPurchase,
		BillingEventRenewal,
		BillingEventTrialConverted,
	}
	for _, typ := range granting {
		if !typ.GrantsEntitlement() {
			t.Fatalf("%s should grant entitlement", typ)
		}
	}

	nonGranting := []BillingEventType{
		BillingEventCancellation,
		BillingEventExpiration,
		BillingEventTrialStarted,
		BillingEventBillingIssue,
		BillingEventUncancellation,
		BillingEventType("SUBSCRIPTION_PAUSED"),
	}
	for _, typ := range nonGranting {
		if typ.GrantsEntitlement() {
			t.Fatalf("%s should not grant entitlement directly", typ)
		}
	}
}
