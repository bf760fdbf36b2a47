// Package notifications turns checkout outcomes into outbox events. Delivery
// (mail, webhooks, attribution) happens downstream of the publisher.
package notifications

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-checkout/pkg/db/models"
	"github.com/angelmondragon/storefront-checkout/pkg/enums"
	"github.com/angelmondragon/storefront-checkout/pkg/outbox"
	"github.com/angelmondragon/storefront-checkout/pkg/outbox/payloads"
)

type outboxEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
	EmitIfNotExists(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type Service struct {
	outbox outboxEmitter
	now    func() time.Time
}

func NewService(emitter outboxEmitter) (*Service, error) {
	if emitter == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	return &Service{outbox: emitter, now: time.Now}, nil
}

// EnqueueReceipt requests one receipt for the purchases of a charge, or for a
// single purchase that moved no money through a charge. Receipts are keyed by
// their aggregate so a charge confirmed by several members mails once.
func (s *Service) EnqueueReceipt(ctx context.Context, tx *gorm.DB, charge *models.Charge, purchases []models.Purchase) error {
	if len(purchases) == 0 {
		return fmt.Errorf("receipt requires purchases")
	}
	first := purchases[0]
	payload := payloads.ReceiptRequestedEvent{
		OrderID:    first.OrderID,
		BuyerEmail: first.BuyerEmail,
		Currency:   string(first.Currency),
	}
	aggregateType := enums.AggregatePurchase
	aggregateID := first.ID
	if charge != nil {
		chargeID := charge.ID
		payload.ChargeID = &chargeID
		payload.AmountCents = charge.AmountCents
		payload.Currency = string(charge.Currency)
		aggregateType = enums.AggregateCharge
		aggregateID = charge.ID
	}
	for _, p := range purchases {
		payload.PurchaseIDs = append(payload.PurchaseIDs, p.ID)
		if charge == nil {
			payload.AmountCents += p.TotalTransactionCents
		}
	}
	return s.outbox.EmitIfNotExists(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventReceiptRequested,
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		Actor:         actorFor(&first),
		Data:          payload,
		OccurredAt:    s.now().UTC(),
	})
}

// EnqueuePing asks for the seller's sale notification.
func (s *Service) EnqueuePing(ctx context.Context, tx *gorm.DB, purchase *models.Purchase) error {
	params := map[string]string{}
	if len(purchase.URLParams) > 0 {
		if err := json.Unmarshal(purchase.URLParams, &params); err != nil {
			return fmt.Errorf("decode url params: %w", err)
		}
	}
	return s.outbox.EmitIfNotExists(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventPingRequested,
		AggregateType: enums.AggregatePurchase,
		AggregateID:   purchase.ID,
		Actor:         actorFor(purchase),
		Data: payloads.PingRequestedEvent{
			PurchaseID: purchase.ID,
			ProductID:  purchase.ProductID,
			SellerID:   purchase.SellerID,
			URLParams:  params,
		},
		OccurredAt: s.now().UTC(),
	})
}

// EnqueueUTMAttribution links the purchase to the browser's campaign visits.
// Purchases without a browser guid have nothing to attribute.
func (s *Service) EnqueueUTMAttribution(ctx context.Context, tx *gorm.DB, purchase *models.Purchase) error {
	if purchase.BrowserGUID == "" {
		return nil
	}
	return s.outbox.EmitIfNotExists(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventUTMAttributionRequested,
		AggregateType: enums.AggregatePurchase,
		AggregateID:   purchase.ID,
		Actor:         actorFor(purchase),
		Data: payloads.UTMAttributionRequestedEvent{
			PurchaseID:  purchase.ID,
			BrowserGUID: purchase.BrowserGUID,
		},
		OccurredAt: s.now().UTC(),
	})
}

// ScheduleAbandonment records the deadline of an SCA-pending purchase.
func (s *Service) ScheduleAbandonment(ctx context.Context, tx *gorm.DB, purchase *models.Purchase) error {
	if purchase.AbandonAt == nil {
		return fmt.Errorf("purchase %s has no abandonment deadline", purchase.ID)
	}
	return s.outbox.EmitIfNotExists(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventPurchaseAbandonmentScheduled,
		AggregateType: enums.AggregatePurchase,
		AggregateID:   purchase.ID,
		Actor:         actorFor(purchase),
		Data: payloads.PurchaseAbandonmentScheduledEvent{
			PurchaseID: purchase.ID,
			OrderID:    purchase.OrderID,
			AbandonAt:  purchase.AbandonAt.UTC(),
		},
		OccurredAt: s.now().UTC(),
	})
}

// PurchaseAbandoned reports that the sweeper failed an unconfirmed purchase.
func (s *Service) PurchaseAbandoned(ctx context.Context, tx *gorm.DB, purchase *models.Purchase, reason string) error {
	return s.outbox.EmitIfNotExists(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventPurchaseAbandoned,
		AggregateType: enums.AggregatePurchase,
		AggregateID:   purchase.ID,
		Actor:         actorFor(purchase),
		Data: payloads.PurchaseAbandonedEvent{
			PurchaseID: purchase.ID,
			OrderID:    purchase.OrderID,
			ChargeID:   purchase.ChargeID,
			Reason:     reason,
		},
		OccurredAt: s.now().UTC(),
	})
}

func actorFor(p *models.Purchase) *outbox.ActorRef {
	if p.BuyerUserID == nil && p.BrowserGUID == "" {
		return nil
	}
	var userID *uuid.UUID
	if p.BuyerUserID != nil {
		id := *p.BuyerUserID
		userID = &id
	}
	return &outbox.ActorRef{UserID: userID, BrowserGUID: p.BrowserGUID}
}
