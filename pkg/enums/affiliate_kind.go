package enums

import "fmt"

// AffiliateKind separates per-product affiliates from seller-wide global ones.
type AffiliateKind string

const (
	AffiliateKindDirect AffiliateKind = "direct"
	AffiliateKindGlobal AffiliateKind = "global"
)

// String implements fmt.Stringer.
func (k AffiliateKind) String() string {
	return string(k)
}

// IsValid reports whether the value is known.
func (k AffiliateKind) IsValid() bool {
	return k == AffiliateKindDirect || k == AffiliateKindGlobal
}

// ParseAffiliateKind converts raw input into an AffiliateKind.
func ParseAffiliateKind(value string) (AffiliateKind, error) {
	kind := AffiliateKind(value)
	if !kind.IsValid() {
		return "", fmt.Errorf("invalid affiliate kind %q", value)
	}
	return kind, nil
}
