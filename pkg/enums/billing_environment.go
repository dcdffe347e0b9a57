package enums

import "fmt"

// BillingEnvironment distinguishes sandbox purchases from production ones.
type BillingEnvironment string

const (
	BillingEnvironmentSandbox    BillingEnvironment = "SANDBOX"
	BillingEnvironmentProduction BillingEnvironment = "PRODUCTION"
)

var validBillingEnvironments = []BillingEnvironment{
	BillingEnvironmentSandbox,
	BillingEnvironmentProduction,
}

// String implements fmt.Stringer.
func (e BillingEnvironment) String() string {
	return string(e)
}

// IsValid reports whether the value is known.
func (e BillingEnvironment) IsValid() bool {
	for _, candidate := range validBillingEnvironments {
		if candidate == e {
			return true
		}
	}
	return false
}

// ParseBillingEnvironment converts raw input into a BillingEnvironment.
func ParseBillingEnvironment(value string) (BillingEnvironment, error) {
	for _, candidate := range validBillingEnvironments {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid billing environment %q", value)
}
