package enums

import "fmt"

// PaymentMethodType identifies the shape of a submitted payment method reference.
type PaymentMethodType string

const (
	PaymentMethodTypeCardToken       PaymentMethodType = "card_token"
	PaymentMethodTypeWalletToken     PaymentMethodType = "wallet_token"
	PaymentMethodTypeSavedCard       PaymentMethodType = "saved_card"
	PaymentMethodTypePayPalAgreement PaymentMethodType = "paypal_agreement"
)

var validPaymentMethodTypes = []PaymentMethodType{
	PaymentMethodTypeCardToken,
	PaymentMethodTypeWalletToken,
	PaymentMethodTypeSavedCard,
	PaymentMethodTypePayPalAgreement,
}

// String implements fmt.Stringer.
func (p PaymentMethodType) String() string {
	return string(p)
}

// IsValid reports whether the value is known.
func (p PaymentMethodType) IsValid() bool {
	for _, candidate := range validPaymentMethodTypes {
		if candidate == p {
			return true
		}
	}
	return false
}

// ParsePaymentMethodType converts raw input into a PaymentMethodType.
func ParsePaymentMethodType(value string) (PaymentMethodType, error) {
	for _, candidate := range validPaymentMethodTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid payment method type %q", value)
}
