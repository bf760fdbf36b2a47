package chargeable

import (
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-checkout/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-checkout/pkg/errors"
)

// PaymentMethodRef is what the buyer submitted to pay with. The variants are
// CardToken, WalletToken, SavedCard and PayPalAgreement.
type PaymentMethodRef interface {
	Type() enums.PaymentMethodType
	isPaymentMethodRef()
}

// CardToken is a Stripe payment method tokenized in the browser.
type CardToken struct {
	Token string
}

// WalletToken is an Apple Pay or Google Pay payment method.
type WalletToken struct {
	Token string
}

// SavedCard points at a vaulted card owned by the signed-in buyer.
type SavedCard struct {
	ID uuid.UUID
}

// PayPalAgreement is a Braintree vaulted billing agreement token.
type PayPalAgreement struct {
	Token string
}

func (CardToken) Type() enums.PaymentMethodType       { return enums.PaymentMethodTypeCardToken }
func (WalletToken) Type() enums.PaymentMethodType     { return enums.PaymentMethodTypeWalletToken }
func (SavedCard) Type() enums.PaymentMethodType       { return enums.PaymentMethodTypeSavedCard }
func (PayPalAgreement) Type() enums.PaymentMethodType { return enums.PaymentMethodTypePayPalAgreement }

func (CardToken) isPaymentMethodRef()       {}
func (WalletToken) isPaymentMethodRef()     {}
func (SavedCard) isPaymentMethodRef()       {}
func (PayPalAgreement) isPaymentMethodRef() {}

// ParseRef builds a PaymentMethodRef from the wire representation.
func ParseRef(kind, token string) (PaymentMethodRef, error) {
	methodType, err := enums.ParsePaymentMethodType(strings.TrimSpace(kind))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid payment method type")
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment method token required")
	}
	switch methodType {
	case enums.PaymentMethodTypeCardToken:
		return CardToken{Token: token}, nil
	case enums.PaymentMethodTypeWalletToken:
		return WalletToken{Token: token}, nil
	case enums.PaymentMethodTypeSavedCard:
		id, err := uuid.Parse(token)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid saved card id")
		}
		return SavedCard{ID: id}, nil
	default:
		return PayPalAgreement{Token: token}, nil
	}
}
