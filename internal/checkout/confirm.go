package checkout

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-checkout/internal/payments"
	"github.com/angelmondragon/storefront-checkout/internal/purchases"
	pkgcheckout "github.com/angelmondragon/storefront-checkout/pkg/checkout"
	"github.com/angelmondragon/storefront-checkout/pkg/db/models"
	"github.com/angelmondragon/storefront-checkout/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-checkout/pkg/errors"
)

const paymentFailedMessage = "Your payment failed. Please try again."

// intentGroup is the set of purchases settled by one payment intent: the
// members of a charge, or a lone preorder authorization.
type intentGroup struct {
	charge    *models.Charge
	processor enums.Processor
	intentID  string
	attempts  []*purchases.Attempt
}

// Confirm finishes the purchases an SCA challenge held back. Purchases that
// already succeeded are reported again without contacting the processor.
func (s *Service) Confirm(ctx context.Context, input ConfirmInput) (*ConfirmResult, error) {
	if input.ID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "id required")
	}
	targets, single, err := s.loadTargets(ctx, input.ID, input.Requester)
	if err != nil {
		return nil, err
	}

	attempts := make([]*purchases.Attempt, 0, len(targets))
	var pending []*purchases.Attempt
	settled := false
	for i := range targets {
		p := &targets[i]
		attempt := &purchases.Attempt{UID: p.LineItemUID, Purchase: p}
		switch {
		case p.State.IsSuccess():
			settled = true
			attempt.ContentURL = s.executor.ContentURL(ctx, p)
		case p.State == enums.PurchaseStateInProgress:
			pending = append(pending, attempt)
		default:
			attempt.Failure = failureOf(p)
		}
		attempts = append(attempts, attempt)
	}
	if len(pending) == 0 && !settled {
		return nil, pkgerrors.New(pkgerrors.CodePaymentFailed, paymentFailedMessage)
	}

	if len(pending) > 0 {
		groups, err := s.groupByIntent(ctx, pending)
		if err != nil {
			return nil, err
		}
		for _, group := range groups {
			if input.ClientError != nil {
				s.rejectGroup(ctx, group, clientFailure(input.ClientError))
				continue
			}
			s.confirmGroup(ctx, group)
		}
	}

	result := &ConfirmResult{Success: true, LineItems: make(map[string]LineItemResult, len(attempts))}
	for _, attempt := range attempts {
		item := resultFor(attempt)
		if !item.Success {
			result.Success = false
		}
		result.LineItems[attempt.UID] = item
	}
	if single {
		item := result.LineItems[attempts[0].UID]
		result.Purchase = &item
	}
	return result, nil
}

// Reconcile settles an in-progress purchase, and the rest of its charge,
// through the confirm path. The sweeper calls it for a buyer who finished
// authentication but never came back to confirm.
func (s *Service) Reconcile(ctx context.Context, purchaseID uuid.UUID) error {
	purchase, err := s.repo.FindPurchase(ctx, purchaseID)
	if err != nil {
		return err
	}
	if purchase.State != enums.PurchaseStateInProgress {
		return nil
	}
	groups, err := s.groupByIntent(ctx, []*purchases.Attempt{{UID: purchase.LineItemUID, Purchase: purchase}})
	if err != nil {
		return err
	}
	for _, group := range groups {
		s.confirmGroup(ctx, group)
		for _, attempt := range group.attempts {
			if !attempt.Purchase.State.IsSuccess() {
				return fmt.Errorf("purchase %s left %s after reconcile", attempt.Purchase.ID, attempt.Purchase.State)
			}
		}
	}
	return nil
}

// loadTargets resolves id as an order first, then as a purchase. Gift
// receivers never move money and are left out. Another buyer's order reads
// as missing.
func (s *Service) loadTargets(ctx context.Context, id uuid.UUID, requester Requester) ([]models.Purchase, bool, error) {
	order, err := s.repo.FindOrder(ctx, id)
	switch {
	case err == nil:
		if !requester.owns(order.BuyerUserID, order.BrowserGUID) {
			return nil, false, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		var out []models.Purchase
		for _, p := range order.Purchases {
			if p.Kind != enums.PurchaseKindGiftReceiver {
				out = append(out, p)
			}
		}
		if len(out) == 0 {
			return nil, false, pkgerrors.New(pkgerrors.CodeNotFound, "order has no purchases")
		}
		return out, false, nil
	case !pkgerrors.Is(err, pkgerrors.CodeNotFound):
		return nil, false, err
	}

	purchase, err := s.repo.FindPurchase(ctx, id)
	if err != nil {
		return nil, false, err
	}
	if purchase.Kind == enums.PurchaseKindGiftReceiver || !requester.owns(purchase.BuyerUserID, purchase.BrowserGUID) {
		return nil, false, pkgerrors.New(pkgerrors.CodeNotFound, "purchase not found")
	}
	return []models.Purchase{*purchase}, true, nil
}

// groupByIntent buckets pending purchases by the intent that settles them.
// A purchase confirmed alone still settles every member of its charge.
func (s *Service) groupByIntent(ctx context.Context, pending []*purchases.Attempt) ([]*intentGroup, error) {
	byKey := map[string]*intentGroup{}
	var order []string
	for _, attempt := range pending {
		p := attempt.Purchase
		var key string
		group := &intentGroup{processor: p.Processor}
		if p.ChargeID != nil {
			key = "charge:" + p.ChargeID.String()
			if existing, ok := byKey[key]; ok {
				existing.attempts = append(existing.attempts, attempt)
				continue
			}
			charge, err := s.repo.FindCharge(ctx, *p.ChargeID)
			if err != nil {
				return nil, err
			}
			group.charge = charge
			group.processor = charge.Processor
			if charge.PaymentIntentID != nil {
				group.intentID = *charge.PaymentIntentID
			}
			members, err := s.repo.FindPurchasesByCharge(ctx, charge.ID)
			if err != nil {
				return nil, err
			}
			for i := range members {
				if members[i].ID == p.ID || members[i].State != enums.PurchaseStateInProgress {
					continue
				}
				if containsPurchase(pending, members[i].ID) {
					continue
				}
				member := members[i]
				group.attempts = append(group.attempts, &purchases.Attempt{UID: member.LineItemUID, Purchase: &member})
			}
		} else {
			key = "purchase:" + p.ID.String()
			if p.PaymentIntentID != nil {
				group.intentID = *p.PaymentIntentID
			}
		}
		group.attempts = append(group.attempts, attempt)
		byKey[key] = group
		order = append(order, key)
	}
	out := make([]*intentGroup, 0, len(order))
	for _, key := range order {
		out = append(out, byKey[key])
	}
	return out, nil
}

func (s *Service) confirmGroup(ctx context.Context, group *intentGroup) {
	if group.charge != nil && group.charge.Status == enums.ChargeStatusSucceeded {
		s.settleGroup(ctx, group, nil)
		return
	}
	if group.intentID == "" {
		s.failGroup(ctx, group, fmt.Errorf("no payment intent to confirm"))
		return
	}

	res, err := s.payments.Confirm(ctx, group.processor, group.intentID)
	if err != nil {
		if s.logg != nil {
			s.logg.Error(s.logg.WithField(ctx, "payment_intent_id", group.intentID), "confirm payment intent failed", err)
		}
		s.rejectGroup(ctx, group, pkgcheckout.NewItemError(pkgcheckout.ErrProcessorUnavailable))
		return
	}
	switch {
	case res.Succeeded():
		s.settleGroup(ctx, group, res)
	case res.RequiresAction():
		// The buyer has to authenticate again; the abandonment deadline still applies.
		if res.ClientSecret != "" {
			for _, attempt := range group.attempts {
				secret := res.ClientSecret
				attempt.Purchase.ClientSecret = &secret
			}
		}
	default:
		failure := res.Failure
		if failure == nil || failure.Code == pkgcheckout.ErrProcessorUnavailable {
			failure = pkgcheckout.NewItemError(pkgcheckout.ErrProcessorUnavailable)
		}
		s.rejectGroup(ctx, group, failure)
	}
}

// settleGroup marks the charge succeeded and every pending member successful
// in one transaction, then enqueues the charge receipt once.
func (s *Service) settleGroup(ctx context.Context, group *intentGroup, res *payments.Result) {
	working := make([]models.Purchase, len(group.attempts))
	for i, attempt := range group.attempts {
		working[i] = *attempt.Purchase
	}
	transactionID := ""
	if res != nil {
		transactionID = res.TransactionID
	}
	var chargeID *uuid.UUID
	if group.charge != nil {
		id := group.charge.ID
		chargeID = &id
	}

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if group.charge != nil && group.charge.Status != enums.ChargeStatusSucceeded {
			if _, err := repo.TransitionCharge(ctx, group.charge.ID, enums.ChargeStatusRequiresAction, enums.ChargeStatusSucceeded); err != nil {
				return fmt.Errorf("transition charge: %w", err)
			}
		}
		for i := range working {
			if _, err := s.executor.Succeed(ctx, tx, &working[i], chargeID, transactionID); err != nil {
				return err
			}
			if err := s.announce(ctx, tx, &working[i]); err != nil {
				return err
			}
		}
		if group.charge != nil {
			members, err := repo.FindPurchasesByCharge(ctx, group.charge.ID)
			if err != nil {
				return err
			}
			return s.notifications.EnqueueReceipt(ctx, tx, group.charge, successful(members))
		}
		return s.notifications.EnqueueReceipt(ctx, tx, nil, working)
	})
	if err != nil {
		if res != nil {
			s.returnMoney(ctx, group.processor, res)
		}
		if pkgerrors.Is(err, pkgerrors.CodeStateConflict) {
			s.reloadGroup(ctx, group)
			return
		}
		s.failGroup(ctx, group, err)
		return
	}
	if group.charge != nil {
		group.charge.Status = enums.ChargeStatusSucceeded
	}
	for i, attempt := range group.attempts {
		*attempt.Purchase = working[i]
		attempt.ContentURL = s.executor.ContentURL(ctx, attempt.Purchase)
	}
}

// rejectGroup cancels the group's intent and then fails every pending
// member with failure. An intent that captured anyway settles the group;
// one that cannot be read leaves the members pending for the sweeper.
func (s *Service) rejectGroup(ctx context.Context, group *intentGroup, failure *pkgcheckout.ItemError) {
	fate, res, err := payments.Release(ctx, s.payments, group.processor, group.intentID)
	switch fate {
	case payments.FateCaptured:
		s.settleGroup(ctx, group, res)
		return
	case payments.FateUnknown:
		if s.logg != nil {
			s.logg.Error(s.logg.WithField(ctx, "payment_intent_id", group.intentID), "cancel rejected intent failed", err)
		}
		for _, attempt := range group.attempts {
			attempt.Failure = pkgcheckout.NewItemError(pkgcheckout.ErrProcessorUnavailable)
		}
		return
	}

	working := make([]models.Purchase, len(group.attempts))
	for i, attempt := range group.attempts {
		working[i] = *attempt.Purchase
	}
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		for i := range working {
			itemErr := *failure
			if err := s.executor.Fail(ctx, tx, &working[i], &itemErr); err != nil {
				return err
			}
		}
		if group.charge != nil {
			if _, err := s.repo.WithTx(tx).TransitionCharge(ctx, group.charge.ID, enums.ChargeStatusRequiresAction, enums.ChargeStatusCanceled); err != nil {
				return fmt.Errorf("cancel charge: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		if pkgerrors.Is(err, pkgerrors.CodeStateConflict) {
			s.reloadGroup(ctx, group)
			return
		}
		s.failGroup(ctx, group, err)
		return
	}
	for i, attempt := range group.attempts {
		itemErr := *failure
		*attempt.Purchase = working[i]
		attempt.Failure = &itemErr
	}
}

func (s *Service) failGroup(ctx context.Context, group *intentGroup, cause error) {
	for _, attempt := range group.attempts {
		s.executor.FailInternal(ctx, attempt, cause)
	}
}

// reloadGroup refreshes members another writer settled first, such as the
// abandonment sweeper or a parallel confirm.
func (s *Service) reloadGroup(ctx context.Context, group *intentGroup) {
	for _, attempt := range group.attempts {
		current, err := s.repo.FindPurchase(ctx, attempt.Purchase.ID)
		if err != nil {
			s.executor.FailInternal(ctx, attempt, err)
			continue
		}
		*attempt.Purchase = *current
		switch {
		case current.State.IsSuccess():
			attempt.ContentURL = s.executor.ContentURL(ctx, current)
		case current.State.IsTerminal():
			attempt.Failure = failureOf(current)
		}
	}
}

// returnMoney refunds a confirmed intent whose purchases could not be
// recorded as successful.
func (s *Service) returnMoney(ctx context.Context, processor enums.Processor, res *payments.Result) {
	ref := res.IntentID
	if ref == "" {
		ref = res.TransactionID
	}
	if ref == "" {
		return
	}
	if err := s.payments.Refund(ctx, processor, ref); err != nil && s.logg != nil {
		s.logg.Error(s.logg.WithField(ctx, "processor_ref", ref), "failed to refund unrecorded confirmation", err)
	}
}

func clientFailure(clientErr *ClientError) *pkgcheckout.ItemError {
	msg := strings.TrimSpace(clientErr.Message)
	if msg == "" {
		return pkgcheckout.NewItemError(pkgcheckout.ErrRequiresSCA)
	}
	return pkgcheckout.NewItemErrorf(pkgcheckout.ErrRequiresSCA, "%s", msg)
}

func failureOf(p *models.Purchase) *pkgcheckout.ItemError {
	if p.ErrorCode == nil {
		return pkgcheckout.NewItemError(pkgcheckout.ErrInternal)
	}
	itemErr := pkgcheckout.NewItemError(pkgcheckout.ErrorCode(*p.ErrorCode))
	if p.ErrorMessage != nil && *p.ErrorMessage != "" {
		itemErr.Message = *p.ErrorMessage
	}
	return itemErr
}

func successful(list []models.Purchase) []models.Purchase {
	out := make([]models.Purchase, 0, len(list))
	for _, p := range list {
		if p.State.IsSuccess() {
			out = append(out, p)
		}
	}
	return out
}

func containsPurchase(attempts []*purchases.Attempt, id uuid.UUID) bool {
	for _, attempt := range attempts {
		if attempt.Purchase.ID == id {
			return true
		}
	}
	return false
}
