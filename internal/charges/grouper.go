// Package charges turns the pending purchases of one order into as few
// processor charges as possible: one per seller, merchant account and
// payment method.
package charges

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-checkout/internal/chargeable"
	"github.com/angelmondragon/storefront-checkout/internal/orders"
	"github.com/angelmondragon/storefront-checkout/internal/payments"
	"github.com/angelmondragon/storefront-checkout/internal/purchases"
	"github.com/angelmondragon/storefront-checkout/pkg/checkout"
	"github.com/angelmondragon/storefront-checkout/pkg/db/models"
	"github.com/angelmondragon/storefront-checkout/pkg/enums"
	"github.com/angelmondragon/storefront-checkout/pkg/logger"
	"github.com/angelmondragon/storefront-checkout/pkg/metrics"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type purchaseExecutor interface {
	Claim(ctx context.Context, p *models.Purchase) (*checkout.ItemError, error)
	Succeed(ctx context.Context, tx *gorm.DB, p *models.Purchase, chargeID *uuid.UUID, transactionID string) (*models.Purchase, error)
	Fail(ctx context.Context, tx *gorm.DB, p *models.Purchase, itemErr *checkout.ItemError) error
	FailNow(ctx context.Context, p *models.Purchase, itemErr *checkout.ItemError) error
	FailInternal(ctx context.Context, attempt *purchases.Attempt, cause error) *purchases.Attempt
	HoldForAction(ctx context.Context, tx *gorm.DB, p *models.Purchase, chargeID *uuid.UUID, res *payments.Result) error
	ContentURL(ctx context.Context, p *models.Purchase) string
}

type paymentRouter interface {
	Authorize(ctx context.Context, req payments.AuthorizeRequest) (*payments.Result, error)
	Cancel(ctx context.Context, processor enums.Processor, intentID string) error
	Refund(ctx context.Context, processor enums.Processor, transactionID string) error
}

// Key identifies one charge group. Currency is part of the key so a single
// processor charge never mixes currencies.
type Key struct {
	SellerID          uuid.UUID
	MerchantAccountID string
	Fingerprint       string
	Currency          enums.Currency
}

func (k Key) String() string {
	return strings.Join([]string{k.SellerID.String(), k.MerchantAccountID, k.Fingerprint, string(k.Currency)}, ":")
}

// KeyFor returns the group a purchase is charged with.
func KeyFor(p *models.Purchase) Key {
	return Key{
		SellerID:          p.SellerID,
		MerchantAccountID: p.MerchantAccountID,
		Fingerprint:       p.PaymentFingerprint,
		Currency:          p.Currency,
	}
}

// Group is the set of attempts settled by one processor charge.
type Group struct {
	Key      Key
	Attempts []*purchases.Attempt
}

// Partition groups pending attempts by Key, in a stable order.
func Partition(attempts []*purchases.Attempt) []Group {
	byKey := map[Key]*Group{}
	var keys []Key
	for _, attempt := range attempts {
		if attempt == nil || !attempt.Pending || attempt.Purchase == nil {
			continue
		}
		key := KeyFor(attempt.Purchase)
		group, ok := byKey[key]
		if !ok {
			group = &Group{Key: key}
			byKey[key] = group
			keys = append(keys, key)
		}
		group.Attempts = append(group.Attempts, attempt)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })
	out := make([]Group, 0, len(keys))
	for _, key := range keys {
		out = append(out, *byKey[key])
	}
	return out
}

// Totals sums the persisted amounts a charge covers.
func Totals(purchases []models.Purchase) (amountCents, feeCents int64) {
	for _, p := range purchases {
		amountCents += p.TotalTransactionCents
		feeCents += p.FeeCents
	}
	return amountCents, feeCents
}

// Reconciles reports whether the succeeded charges account for exactly the
// money of the successful purchases they cover.
func Reconciles(charges []models.Charge, purchases []models.Purchase) bool {
	succeeded := map[uuid.UUID]bool{}
	var charged int64
	for _, charge := range charges {
		if charge.Status != enums.ChargeStatusSucceeded {
			continue
		}
		succeeded[charge.ID] = true
		charged += charge.AmountCents
	}
	var covered int64
	for _, p := range purchases {
		if p.ChargeID != nil && succeeded[*p.ChargeID] && p.State.IsSuccess() {
			covered += p.TotalTransactionCents
		}
	}
	return charged == covered
}

type Grouper struct {
	tx       txRunner
	repo     orders.Repository
	executor purchaseExecutor
	payments paymentRouter
	logg     *logger.Logger
	metrics  *metrics.CheckoutMetrics
}

func NewGrouper(tx txRunner, repo orders.Repository, executor purchaseExecutor, router paymentRouter, logg *logger.Logger, m *metrics.CheckoutMetrics) (*Grouper, error) {
	if tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if executor == nil {
		return nil, fmt.Errorf("purchase executor required")
	}
	if router == nil {
		return nil, fmt.Errorf("payment router required")
	}
	return &Grouper{tx: tx, repo: repo, executor: executor, payments: router, logg: logg, metrics: m}, nil
}

// Charge settles every pending attempt of order. Groups are charged one after
// another; each group succeeds, waits for SCA or fails as a unit. Attempts are
// updated in place and the created charges returned.
func (g *Grouper) Charge(ctx context.Context, order *models.Order, method *chargeable.Chargeable, attempts []*purchases.Attempt) ([]*models.Charge, error) {
	if order == nil {
		return nil, fmt.Errorf("order required")
	}
	groups := Partition(attempts)
	if len(groups) == 0 {
		return nil, nil
	}
	if method == nil {
		for _, group := range groups {
			for _, attempt := range group.Attempts {
				g.failAttempt(ctx, attempt, checkout.NewItemErrorf(checkout.ErrCardDeclined, "Please provide a payment method."))
			}
		}
		return nil, nil
	}

	var created []*models.Charge
	for _, group := range groups {
		charge := g.chargeGroup(ctx, order, method, group)
		if charge != nil {
			created = append(created, charge)
		}
	}
	return created, nil
}

func (g *Grouper) chargeGroup(ctx context.Context, order *models.Order, method *chargeable.Chargeable, group Group) *models.Charge {
	if g.logg != nil {
		ctx = g.logg.WithFields(ctx, map[string]any{
			"seller_id":    group.Key.SellerID.String(),
			"charge_group": group.Key.String(),
		})
	}
	live := g.claimMembers(ctx, group.Attempts)
	if len(live) == 0 {
		return nil
	}

	members := make([]models.Purchase, 0, len(live))
	ids := make([]string, 0, len(live))
	for _, attempt := range live {
		members = append(members, *attempt.Purchase)
		ids = append(ids, attempt.Purchase.ID.String())
	}
	amount, fee := Totals(members)
	first := members[0]

	res, err := g.payments.Authorize(ctx, payments.AuthorizeRequest{
		Processor:           first.Processor,
		IdempotencyKey:      fmt.Sprintf("charge:%s:%s", order.ID, group.Key),
		AmountCents:         amount,
		ApplicationFeeCents: fee,
		Currency:            first.Currency,
		MerchantAccountID:   first.MerchantAccountID,
		PaymentToken:        method.Token(),
		CustomerID:          method.CustomerID(),
		Description:         fmt.Sprintf("Order %s", order.ID),
		Metadata: map[string]string{
			"order_id":     order.ID.String(),
			"purchase_ids": strings.Join(ids, ","),
		},
	})
	if err != nil {
		for _, attempt := range live {
			g.executor.FailInternal(ctx, attempt, err)
		}
		return nil
	}

	charge := &models.Charge{
		ID:                  uuid.New(),
		OrderID:             order.ID,
		SellerID:            group.Key.SellerID,
		MerchantAccountID:   group.Key.MerchantAccountID,
		PaymentFingerprint:  group.Key.Fingerprint,
		Processor:           first.Processor,
		AmountCents:         amount,
		PlatformAmountCents: fee,
		Currency:            first.Currency,
	}
	if res.TransactionID != "" {
		txID := res.TransactionID
		charge.ProcessorTransactionID = &txID
	}
	if res.IntentID != "" {
		intent := res.IntentID
		charge.PaymentIntentID = &intent
	}

	switch {
	case res.Succeeded():
		charge.Status = enums.ChargeStatusSucceeded
		if err := g.capture(ctx, charge, res, live, members); err != nil {
			g.returnMoney(ctx, charge.Processor, res)
			for _, attempt := range live {
				g.executor.FailInternal(ctx, attempt, err)
			}
			return nil
		}
	case res.RequiresAction():
		charge.Status = enums.ChargeStatusRequiresAction
		if res.ClientSecret != "" {
			secret := res.ClientSecret
			charge.ClientSecret = &secret
		}
		if err := g.hold(ctx, charge, res, live, members); err != nil {
			g.cancelIntent(ctx, charge.Processor, res)
			for _, attempt := range live {
				g.executor.FailInternal(ctx, attempt, err)
			}
			return nil
		}
	default:
		g.decline(ctx, live, members, res.Failure)
		return nil
	}
	g.metrics.IncCharge(string(charge.Status))
	return charge
}

// claimMembers reloads members from storage and claims stock for each. A
// member that lost a race fails alone; the rest keep going.
func (g *Grouper) claimMembers(ctx context.Context, attempts []*purchases.Attempt) []*purchases.Attempt {
	ids := make([]uuid.UUID, 0, len(attempts))
	for _, attempt := range attempts {
		ids = append(ids, attempt.Purchase.ID)
	}
	stored, err := g.repo.FindPurchases(ctx, ids)
	if err != nil {
		for _, attempt := range attempts {
			g.executor.FailInternal(ctx, attempt, fmt.Errorf("reload purchases: %w", err))
		}
		return nil
	}
	byID := make(map[uuid.UUID]models.Purchase, len(stored))
	for _, p := range stored {
		byID[p.ID] = p
	}

	live := make([]*purchases.Attempt, 0, len(attempts))
	for _, attempt := range attempts {
		current, ok := byID[attempt.Purchase.ID]
		if !ok {
			g.executor.FailInternal(ctx, attempt, fmt.Errorf("purchase %s disappeared", attempt.Purchase.ID))
			continue
		}
		*attempt.Purchase = current
		if current.State != enums.PurchaseStateInProgress {
			attempt.Pending = false
			continue
		}
		itemErr, err := g.executor.Claim(ctx, attempt.Purchase)
		if err != nil {
			g.executor.FailInternal(ctx, attempt, err)
			continue
		}
		if itemErr != nil {
			g.failAttempt(ctx, attempt, itemErr)
			continue
		}
		live = append(live, attempt)
	}
	return live
}

func (g *Grouper) capture(ctx context.Context, charge *models.Charge, res *payments.Result, live []*purchases.Attempt, members []models.Purchase) error {
	receivers := make([]*models.Purchase, len(members))
	err := g.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := g.repo.WithTx(tx).CreateCharge(ctx, charge); err != nil {
			return fmt.Errorf("create charge: %w", err)
		}
		for i := range members {
			receiver, err := g.executor.Succeed(ctx, tx, &members[i], &charge.ID, res.TransactionID)
			if err != nil {
				return err
			}
			receivers[i] = receiver
		}
		return nil
	})
	if err != nil {
		return err
	}
	for i, attempt := range live {
		*attempt.Purchase = members[i]
		attempt.Pending = false
		attempt.Receiver = receivers[i]
		attempt.ContentURL = g.executor.ContentURL(ctx, attempt.Purchase)
	}
	return nil
}

func (g *Grouper) hold(ctx context.Context, charge *models.Charge, res *payments.Result, live []*purchases.Attempt, members []models.Purchase) error {
	err := g.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := g.repo.WithTx(tx).CreateCharge(ctx, charge); err != nil {
			return fmt.Errorf("create charge: %w", err)
		}
		for i := range members {
			if err := g.executor.HoldForAction(ctx, tx, &members[i], &charge.ID, res); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	for i, attempt := range live {
		*attempt.Purchase = members[i]
		attempt.Pending = false
	}
	return nil
}

// decline fails every member together in one transaction.
func (g *Grouper) decline(ctx context.Context, live []*purchases.Attempt, members []models.Purchase, failure *checkout.ItemError) {
	if failure == nil {
		failure = checkout.NewItemError(checkout.ErrCardDeclined)
	}
	err := g.tx.WithTx(ctx, func(tx *gorm.DB) error {
		for i := range members {
			itemErr := *failure
			if err := g.executor.Fail(ctx, tx, &members[i], &itemErr); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		for _, attempt := range live {
			g.executor.FailInternal(ctx, attempt, err)
		}
		return
	}
	for i, attempt := range live {
		itemErr := *failure
		*attempt.Purchase = members[i]
		attempt.Pending = false
		attempt.Failure = &itemErr
	}
}

func (g *Grouper) failAttempt(ctx context.Context, attempt *purchases.Attempt, itemErr *checkout.ItemError) {
	if err := g.executor.FailNow(ctx, attempt.Purchase, itemErr); err != nil {
		g.executor.FailInternal(ctx, attempt, err)
		return
	}
	attempt.Failure = itemErr
	attempt.Pending = false
}

// returnMoney refunds a capture whose purchases could not be recorded.
func (g *Grouper) returnMoney(ctx context.Context, processor enums.Processor, res *payments.Result) {
	ref := res.IntentID
	if ref == "" {
		ref = res.TransactionID
	}
	if ref == "" {
		return
	}
	if err := g.payments.Refund(ctx, processor, ref); err != nil && g.logg != nil {
		g.logg.Error(g.logg.WithField(ctx, "processor_ref", ref), "failed to refund unrecorded charge", err)
	}
}

func (g *Grouper) cancelIntent(ctx context.Context, processor enums.Processor, res *payments.Result) {
	if res.IntentID == "" {
		return
	}
	if err := g.payments.Cancel(ctx, processor, res.IntentID); err != nil && g.logg != nil {
		g.logg.Error(g.logg.WithField(ctx, "processor_ref", res.IntentID), "failed to cancel unrecorded intent", err)
	}
}
