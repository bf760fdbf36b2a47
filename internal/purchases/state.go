package purchases

import "github.com/angelmondragon/storefront-checkout/pkg/enums"

var transitions = map[enums.PurchaseState][]enums.PurchaseState{
	enums.PurchaseStateBuilt: {
		enums.PurchaseStateInProgress,
		enums.PurchaseStateFailed,
		enums.PurchaseStateTestFailed,
	},
	enums.PurchaseStateInProgress: {
		enums.PurchaseStateSuccessful,
		enums.PurchaseStateFailed,
		enums.PurchaseStatePreorderAuthorizationSucceeded,
		enums.PurchaseStateTestSuccessful,
		enums.PurchaseStateTestFailed,
	},
}

// CanTransition reports whether a purchase may move from one state to the
// other. Terminal states have no way out; gift receivers are created directly
// in their terminal state and never pass through here.
func CanTransition(from, to enums.PurchaseState) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// SuccessStateFor is the terminal success state for a purchase of kind.
func SuccessStateFor(kind enums.PurchaseKind) enums.PurchaseState {
	switch kind {
	case enums.PurchaseKindTest:
		return enums.PurchaseStateTestSuccessful
	case enums.PurchaseKindPreorderAuthorization:
		return enums.PurchaseStatePreorderAuthorizationSucceeded
	case enums.PurchaseKindGiftReceiver:
		return enums.PurchaseStateGiftReceiverSucceeded
	}
	return enums.PurchaseStateSuccessful
}

// FailureStateFor is the terminal failure state for a purchase of kind.
func FailureStateFor(kind enums.PurchaseKind) enums.PurchaseState {
	if kind == enums.PurchaseKindTest {
		return enums.PurchaseStateTestFailed
	}
	return enums.PurchaseStateFailed
}
