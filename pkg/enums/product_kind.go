package enums

import "fmt"

// ProductKind captures the fulfilment shape of a catalog product.
type ProductKind string

const (
	ProductKindDigital    ProductKind = "digital"
	ProductKindMembership ProductKind = "membership"
	ProductKindPreorder   ProductKind = "preorder"
	ProductKindPhysical   ProductKind = "physical"
	ProductKindBundle     ProductKind = "bundle"
	ProductKindCall       ProductKind = "call"
)

var validProductKinds = []ProductKind{
	ProductKindDigital,
	ProductKindMembership,
	ProductKindPreorder,
	ProductKindPhysical,
	ProductKindBundle,
	ProductKindCall,
}

// String implements fmt.Stringer.
func (k ProductKind) String() string {
	return string(k)
}

// IsValid reports whether the value is known.
func (k ProductKind) IsValid() bool {
	for _, candidate := range validProductKinds {
		if candidate == k {
			return true
		}
	}
	return false
}

// ParseProductKind converts raw input into a ProductKind.
func ParseProductKind(value string) (ProductKind, error) {
	for _, candidate := range validProductKinds {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid product kind %q", value)
}

// PricingMode distinguishes fixed prices from pay-what-you-want floors.
type PricingMode string

const (
	PricingModeFixed    PricingMode = "fixed"
	PricingModeVariable PricingMode = "variable"
)

// IsValid reports whether the value is known.
func (m PricingMode) IsValid() bool {
	return m == PricingModeFixed || m == PricingModeVariable
}

// ParsePricingMode converts raw input into a PricingMode.
func ParsePricingMode(value string) (PricingMode, error) {
	mode := PricingMode(value)
	if !mode.IsValid() {
		return "", fmt.Errorf("invalid pricing mode %q", value)
	}
	return mode, nil
}
