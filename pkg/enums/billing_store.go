package enums

import "fmt"

// BillingStore identifies which app store emitted a billing event.
type BillingStore string

const (
	BillingStoreAppStore  BillingStore = "APP_STORE"
	BillingStorePlayStore BillingStore = "PLAY_STORE"
)

var validBillingStores = []BillingStore{
	BillingStoreAppStore,
	BillingStorePlayStore,
}

// String implements fmt.Stringer.
func (s BillingStore) String() string {
	return string(s)
}

// IsValid reports whether the value is known.
func (s BillingStore) IsValid() bool {
	for _, candidate := range validBillingStores {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseBillingStore converts raw input into a BillingStore.
func ParseBillingStore(value string) (BillingStore, error) {
	for _, candidate := range validBillingStores {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid billing store %q", value)
}
