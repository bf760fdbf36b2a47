package enums

// PurchaseEventType labels analytics rows written for terminal purchases.
type PurchaseEventType string

const (
	PurchaseEventCompleted PurchaseEventType = "purchase_completed"
	PurchaseEventFailed    PurchaseEventType = "purchase_failed"
	PurchaseEventAbandoned PurchaseEventType = "purchase_abandoned"
)

// PurchaseEventFor maps a terminal state to its analytics event.
func PurchaseEventFor(state PurchaseState) PurchaseEventType {
	if state.IsSuccess() {
		return PurchaseEventCompleted
	}
	return PurchaseEventFailed
}
