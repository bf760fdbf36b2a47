package enums

import "fmt"

// OutboxAggregateType maps to the aggregate_type column of outbox_events.
type OutboxAggregateType string

const (
	AggregateOrder    OutboxAggregateType = "order"
	AggregatePurchase OutboxAggregateType = "purchase"
	AggregateCharge   OutboxAggregateType = "charge"
)

var validAggregateTypes = []OutboxAggregateType{
	AggregateOrder,
	AggregatePurchase,
	AggregateCharge,
}

// IsValid reports whether the value matches a known aggregate.
func (a OutboxAggregateType) IsValid() bool {
	for _, candidate := range validAggregateTypes {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseOutboxAggregateType converts raw input into OutboxAggregateType.
func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	for _, candidate := range validAggregateTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid aggregate type %q", value)
}

// OutboxEventType maps to the event_type column of outbox_events.
type OutboxEventType string

const (
	EventReceiptRequested             OutboxEventType = "receipt_requested"
	EventPingRequested                OutboxEventType = "ping_requested"
	EventUTMAttributionRequested      OutboxEventType = "utm_attribution_requested"
	EventPurchaseAbandonmentScheduled OutboxEventType = "purchase_abandonment_scheduled"
	EventPurchaseAbandoned            OutboxEventType = "purchase_abandoned"
)

var validEventTypes = []OutboxEventType{
	EventReceiptRequested,
	EventPingRequested,
	EventUTMAttributionRequested,
	EventPurchaseAbandonmentScheduled,
	EventPurchaseAbandoned,
}

// IsValid reports whether the value matches a known event type.
func (e OutboxEventType) IsValid() bool {
	for _, candidate := range validEventTypes {
		if candidate == e {
			return true
		}
	}
	return false
}

// ParseOutboxEventType converts raw input into OutboxEventType.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	for _, candidate := range validEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid event type %q", value)
}
