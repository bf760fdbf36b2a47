package enums

import "fmt"

// PurchaseKind selects kind-specific behavior for a purchase record.
type PurchaseKind string

const (
	PurchaseKindStandard              PurchaseKind = "standard"
	PurchaseKindTest                  PurchaseKind = "test"
	PurchaseKindPreorderAuthorization PurchaseKind = "preorder_authorization"
	PurchaseKindGiftSender            PurchaseKind = "gift_sender"
	PurchaseKindGiftReceiver          PurchaseKind = "gift_receiver"
	PurchaseKindSubscriptionOriginal  PurchaseKind = "subscription_original"
)

var validPurchaseKinds = []PurchaseKind{
	PurchaseKindStandard,
	PurchaseKindTest,
	PurchaseKindPreorderAuthorization,
	PurchaseKindGiftSender,
	PurchaseKindGiftReceiver,
	PurchaseKindSubscriptionOriginal,
}

// String implements fmt.Stringer.
func (k PurchaseKind) String() string {
	return string(k)
}

// IsValid reports whether the value is known.
func (k PurchaseKind) IsValid() bool {
	for _, candidate := range validPurchaseKinds {
		if candidate == k {
			return true
		}
	}
	return false
}

// ParsePurchaseKind converts raw input into a PurchaseKind.
func ParsePurchaseKind(value string) (PurchaseKind, error) {
	for _, candidate := range validPurchaseKinds {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid purchase kind %q", value)
}
