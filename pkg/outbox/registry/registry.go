// Package registry maps outbox event types to their Pub/Sub topics and
// payload schemas. The publisher resolves every row through it before
// sending, so a malformed row is dead-lettered rather than shipped.
package registry

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"slices"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-checkout/pkg/config"
	"github.com/angelmondragon/storefront-checkout/pkg/db/models"
	"github.com/angelmondragon/storefront-checkout/pkg/enums"
	"github.com/angelmondragon/storefront-checkout/pkg/outbox"
	"github.com/angelmondragon/storefront-checkout/pkg/outbox/payloads"
)

// EventDescriptor routes one event type.
type EventDescriptor struct {
	EventType      enums.OutboxEventType
	AggregateTypes []enums.OutboxAggregateType
	Topic          string
	PayloadFactory func() any
}

// ResolvedEvent is a validated row with its decoded payload.
type ResolvedEvent struct {
	Descriptor EventDescriptor
	Envelope   outbox.PayloadEnvelope
	Payload    any
}

type EventRegistry struct {
	entries map[enums.OutboxEventType]EventDescriptor
}

// NonRetryableError marks a row that will never publish, however often it
// is retried.
type NonRetryableError struct {
	Err error
}

func NewNonRetryableError(err error) NonRetryableError {
	return NonRetryableError{Err: err}
}

func (e NonRetryableError) Error() string {
	if e.Err == nil {
		return "non-retryable error"
	}
	return e.Err.Error()
}

func (e NonRetryableError) Unwrap() error {
	return e.Err
}

func payloadOf[T any]() func() any {
	return func() any { return new(T) }
}

// NewEventRegistry fails when any topic is unset; a publisher that cannot
// route an event type would dead-letter every row of it.
func NewEventRegistry(cfg config.PubSubConfig) (*EventRegistry, error) {
	required := []struct{ name, topic string }{
		{"receipts", cfg.ReceiptsTopic},
		{"notifications", cfg.NotificationsTopic},
		{"attribution", cfg.AttributionTopic},
		{"purchases", cfg.PurchasesTopic},
	}
	for _, r := range required {
		if r.topic == "" {
			return nil, fmt.Errorf("%s topic is required", r.name)
		}
	}

	purchaseOnly := []enums.OutboxAggregateType{enums.AggregatePurchase}
	descriptors := []EventDescriptor{
		{
			EventType:      enums.EventReceiptRequested,
			AggregateTypes: []enums.OutboxAggregateType{enums.AggregateCharge, enums.AggregatePurchase},
			Topic:          cfg.ReceiptsTopic,
			PayloadFactory: payloadOf[payloads.ReceiptRequestedEvent](),
		},
		{
			EventType:      enums.EventPingRequested,
			AggregateTypes: purchaseOnly,
			Topic:          cfg.NotificationsTopic,
			PayloadFactory: payloadOf[payloads.PingRequestedEvent](),
		},
		{
			EventType:      enums.EventUTMAttributionRequested,
			AggregateTypes: purchaseOnly,
			Topic:          cfg.AttributionTopic,
			PayloadFactory: payloadOf[payloads.UTMAttributionRequestedEvent](),
		},
		{
			EventType:      enums.EventPurchaseAbandonmentScheduled,
			AggregateTypes: purchaseOnly,
			Topic:          cfg.PurchasesTopic,
			PayloadFactory: payloadOf[payloads.PurchaseAbandonmentScheduledEvent](),
		},
		{
			EventType:      enums.EventPurchaseAbandoned,
			AggregateTypes: purchaseOnly,
			Topic:          cfg.PurchasesTopic,
			PayloadFactory: payloadOf[payloads.PurchaseAbandonedEvent](),
		},
	}

	reg := &EventRegistry{entries: make(map[enums.OutboxEventType]EventDescriptor, len(descriptors))}
	for _, desc := range descriptors {
		reg.entries[desc.EventType] = desc
	}
	return reg, nil
}

// Topics lists the distinct topics routed to, sorted.
func (r *EventRegistry) Topics() []string {
	out := make([]string, 0, len(r.entries))
	for _, desc := range r.entries {
		out = append(out, desc.Topic)
	}
	slices.Sort(out)
	return slices.Compact(out)
}

// Resolve validates the row against its descriptor and decodes the payload.
// Every failure is a NonRetryableError.
func (r *EventRegistry) Resolve(event models.OutboxEvent) (*ResolvedEvent, error) {
	desc, ok := r.entries[event.EventType]
	if !ok {
		return nil, NewNonRetryableError(fmt.Errorf("unsupported event type %s", event.EventType))
	}
	if !slices.Contains(desc.AggregateTypes, event.AggregateType) {
		return nil, NewNonRetryableError(fmt.Errorf("aggregate %s not allowed for %s", event.AggregateType, event.EventType))
	}
	if event.AggregateID == uuid.Nil {
		return nil, NewNonRetryableError(errors.New("missing aggregate_id"))
	}

	var envelope outbox.PayloadEnvelope
	if err := json.Unmarshal(event.Payload, &envelope); err != nil {
		return nil, NewNonRetryableError(fmt.Errorf("decode envelope: %w", err))
	}
	if envelope.Version > outbox.EnvelopeVersion {
		return nil, NewNonRetryableError(fmt.Errorf("envelope version %d is newer than %d", envelope.Version, outbox.EnvelopeVersion))
	}
	if data := bytes.TrimSpace(envelope.Data); len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil, NewNonRetryableError(fmt.Errorf("payload missing for %s", event.EventType))
	}

	payload := desc.PayloadFactory()
	if err := json.Unmarshal(envelope.Data, payload); err != nil {
		return nil, NewNonRetryableError(fmt.Errorf("decode %s payload: %w", event.EventType, err))
	}
	return &ResolvedEvent{Descriptor: desc, Envelope: envelope, Payload: payload}, nil
}
