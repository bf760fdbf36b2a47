package enums

import "fmt"

// PurchaseState tracks one line item's attempt through authorization.
type PurchaseState string

const (
	PurchaseStateBuilt                          PurchaseState = "built"
	PurchaseStateInProgress                     PurchaseState = "in_progress"
	PurchaseStateSuccessful                     PurchaseState = "successful"
	PurchaseStateFailed                         PurchaseState = "failed"
	PurchaseStatePreorderAuthorizationSucceeded PurchaseState = "preorder_authorization_successful"
	PurchaseStateGiftReceiverSucceeded          PurchaseState = "gift_receiver_purchase_successful"
	PurchaseStateTestSuccessful                 PurchaseState = "test_successful"
	PurchaseStateTestFailed                     PurchaseState = "test_failed"
)

var validPurchaseStates = []PurchaseState{
	PurchaseStateBuilt,
	PurchaseStateInProgress,
	PurchaseStateSuccessful,
	PurchaseStateFailed,
	PurchaseStatePreorderAuthorizationSucceeded,
	PurchaseStateGiftReceiverSucceeded,
	PurchaseStateTestSuccessful,
	PurchaseStateTestFailed,
}

// String implements fmt.Stringer.
func (s PurchaseState) String() string {
	return string(s)
}

// IsValid reports whether the value is known.
func (s PurchaseState) IsValid() bool {
	for _, candidate := range validPurchaseStates {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transition is allowed.
func (s PurchaseState) IsTerminal() bool {
	switch s {
	case PurchaseStateBuilt, PurchaseStateInProgress:
		return false
	}
	return s.IsValid()
}

// IsSuccess reports whether the state grants access to the buyer.
func (s PurchaseState) IsSuccess() bool {
	switch s {
	case PurchaseStateSuccessful,
		PurchaseStatePreorderAuthorizationSucceeded,
		PurchaseStateGiftReceiverSucceeded,
		PurchaseStateTestSuccessful:
		return true
	}
	return false
}

// ParsePurchaseState converts raw input into a PurchaseState.
func ParsePurchaseState(value string) (PurchaseState, error) {
	for _, candidate := range validPurchaseStates {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid purchase state %q", value)
}
