// Package checkout defines the per-line-item failure taxonomy shared by the
// validator, executor and orchestrators. Item failures are values returned
// alongside results; they are never propagated as Go errors.
package checkout

import "fmt"

// ErrorCode identifies why a single line item did not succeed.
type ErrorCode string

const (
	ErrProductNotFound          ErrorCode = "product_not_found"
	ErrSoldOut                  ErrorCode = "sold_out"
	ErrPerceivedPriceMismatch   ErrorCode = "perceived_price_cents_not_matching"
	ErrContributionTooLow       ErrorCode = "contribution_too_low"
	ErrInvalidCustomFields      ErrorCode = "invalid_custom_fields"
	ErrExceedingVariantQuantity ErrorCode = "exceeding_variant_quantity"
	ErrNoStartTimeSelected      ErrorCode = "no_start_time_selected"
	ErrSlotUnavailable          ErrorCode = "slot_unavailable"
	ErrNoShippingDestination    ErrorCode = "no_shipping_destination"
	ErrCardDeclined             ErrorCode = "card_declined"
	ErrRequiresSCA              ErrorCode = "requires_sca"
	ErrProcessorUnavailable     ErrorCode = "processor_unavailable"
	ErrRepeatPurchase           ErrorCode = "repeat_purchase"
	ErrTemporarilyBlocked       ErrorCode = "temporarily_blocked"
	ErrNotCaptcha               ErrorCode = "not_captcha"
	ErrNoCookies                ErrorCode = "no_cookies"
	ErrInternal                 ErrorCode = "internal_error"
)

var defaultMessages = map[ErrorCode]string{
	ErrProductNotFound:          "This product is no longer available.",
	ErrSoldOut:                  "You have chosen a product that is currently sold out.",
	ErrPerceivedPriceMismatch:   "The price just changed! Refresh the page for the updated price.",
	ErrContributionTooLow:       "The amount must be at least the minimum price.",
	ErrInvalidCustomFields:      "Please fill in all required fields.",
	ErrExceedingVariantQuantity: "You have chosen a quantity that exceeds what is available.",
	ErrNoStartTimeSelected:      "Please select a start time.",
	ErrSlotUnavailable:          "The selected time is no longer available.",
	ErrNoShippingDestination:    "The product cannot be shipped to your country.",
	ErrCardDeclined:             "Your card was declined.",
	ErrRequiresSCA:              "Your card requires additional authentication.",
	ErrProcessorUnavailable:     "There is a temporary problem, please try again.",
	ErrRepeatPurchase:           "You have already purchased this product.",
	ErrTemporarilyBlocked:       "Your card was not charged. Please try again in a few minutes.",
	ErrNotCaptcha:               "Sorry, we could not verify the CAPTCHA. Please try again.",
	ErrNoCookies:                "Cookies are not enabled on your browser. Please enable cookies and refresh this page before continuing.",
	ErrInternal:                 "Sorry, something went wrong.",
}

// Message returns the user-safe default message for the code.
func (c ErrorCode) Message() string {
	if msg, ok := defaultMessages[c]; ok {
		return msg
	}
	return defaultMessages[ErrInternal]
}

// ItemError is a user-safe failure attached to one line item.
type ItemError struct {
	Code    ErrorCode `json:"error_code"`
	Message string    `json:"error_message"`
}

// NewItemError builds an ItemError with the default message for code.
func NewItemError(code ErrorCode) *ItemError {
	return &ItemError{Code: code, Message: code.Message()}
}

// NewItemErrorf builds an ItemError with a formatted user-facing message.
func NewItemErrorf(code ErrorCode, format string, args ...any) *ItemError {
	return &ItemError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Error implements error so item failures can travel through helpers that expect one.
func (e *ItemError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// IsProcessorFailure reports whether the failure came back from the payment processor.
func (e *ItemError) IsProcessorFailure() bool {
	if e == nil {
		return false
	}
	switch e.Code {
	case ErrCardDeclined, ErrRequiresSCA, ErrProcessorUnavailable, ErrTemporarilyBlocked:
		return true
	}
	return false
}
