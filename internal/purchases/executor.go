package purchases

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-checkout/internal/affiliates"
	"github.com/angelmondragon/storefront-checkout/internal/catalog"
	"github.com/angelmondragon/storefront-checkout/internal/chargeable"
	"github.com/angelmondragon/storefront-checkout/internal/lineitems"
	"github.com/angelmondragon/storefront-checkout/internal/orders"
	"github.com/angelmondragon/storefront-checkout/internal/payments"
	"github.com/angelmondragon/storefront-checkout/pkg/checkout"
	"github.com/angelmondragon/storefront-checkout/pkg/config"
	"github.com/angelmondragon/storefront-checkout/pkg/db/models"
	"github.com/angelmondragon/storefront-checkout/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-checkout/pkg/errors"
	"github.com/angelmondragon/storefront-checkout/pkg/logger"
	"github.com/angelmondragon/storefront-checkout/pkg/metrics"
	"github.com/angelmondragon/storefront-checkout/pkg/money"
	"github.com/angelmondragon/storefront-checkout/pkg/redis"
)

const (
	declineLimit       = 5
	declineWindow      = time.Hour
	giftReceiverSuffix = ":receiver"
)

var errReservationLost = errors.New("reservation lost")

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type productFinder interface {
	FindProduct(ctx context.Context, id uuid.UUID) (*models.Product, error)
}

type lineItemValidator interface {
	Validate(ctx context.Context, item lineitems.LineItem, buyer lineitems.Buyer) (*lineitems.Validated, *checkout.ItemError, error)
	Revalidate(ctx context.Context, item lineitems.LineItem, buyer lineitems.Buyer) (*lineitems.Validated, *checkout.ItemError, error)
}

// AffiliateResolver picks the affiliate credited for one line item.
type AffiliateResolver interface {
	Resolve(ctx context.Context, req affiliates.Request) (affiliates.Resolution, error)
}

type reserver interface {
	Reserve(ctx context.Context, tx *gorm.DB, res catalog.Reservation) (*checkout.ItemError, error)
	Release(ctx context.Context, tx *gorm.DB, res catalog.Reservation) error
}

type taxService interface {
	ComputeTax(ctx context.Context, country string, priceCents int64) (int64, error)
	ConvertToUSD(ctx context.Context, currency enums.Currency, minorAmount int64) (money.Snapshot, error)
}

type paymentRouter interface {
	Authorize(ctx context.Context, req payments.AuthorizeRequest) (*payments.Result, error)
	Cancel(ctx context.Context, processor enums.Processor, intentID string) error
}

type redirector interface {
	CreateRedirectFor(ctx context.Context, purchase *models.Purchase) (string, error)
}

// Buyer is the explicit buyer context carried through every call.
type Buyer struct {
	UserID      *uuid.UUID
	Email       string
	BrowserGUID string
	Country     string
	Signals     []affiliates.Signal
}

// Gift is the recipient of a gifted line item.
type Gift struct {
	Email string
	Note  *string
}

// Submission is the cart-wide context shared by every item of one order.
type Submission struct {
	Order      *models.Order
	Buyer      Buyer
	Chargeable *chargeable.Chargeable
	Affiliates AffiliateResolver
	Nonce      string
	Gift       *Gift
}

// Attempt is the outcome of preparing one line item. Pending attempts wait for
// the charge grouper; everything else is already settled.
type Attempt struct {
	UID        string
	Purchase   *models.Purchase
	Receiver   *models.Purchase
	Failure    *checkout.ItemError
	Pending    bool
	ContentURL string
}

// Succeeded reports whether the buyer now has access.
func (a *Attempt) Succeeded() bool {
	return a.Failure == nil && a.Purchase != nil && a.Purchase.State.IsSuccess()
}

// RequiresAction reports whether the buyer must complete SCA and confirm.
func (a *Attempt) RequiresAction() bool {
	return a.Failure == nil && a.Purchase != nil &&
		a.Purchase.State == enums.PurchaseStateInProgress &&
		a.Purchase.ClientSecret != nil
}

// ExecutorParams wires the executor's collaborators. Submissions and Declines
// are optional; without them duplicate protection falls back to the database
// and decline velocity is not enforced.
type ExecutorParams struct {
	Tx          txRunner
	Repo        orders.Repository
	Products    productFinder
	Validator   lineItemValidator
	Reserver    reserver
	Tax         taxService
	Payments    paymentRouter
	Access      redirector
	Submissions redis.SubmissionStore
	Declines    redis.CounterStore
	Fees        money.FeeSchedule
	Config      config.CheckoutConfig
	Logger      *logger.Logger
	Metrics     *metrics.CheckoutMetrics
}

// Executor drives one purchase attempt through its state machine.
type Executor struct {
	tx          txRunner
	repo        orders.Repository
	products    productFinder
	validator   lineItemValidator
	reserver    reserver
	tax         taxService
	payments    paymentRouter
	access      redirector
	submissions redis.SubmissionStore
	declines    redis.CounterStore
	fees        money.FeeSchedule
	cfg         config.CheckoutConfig
	logg        *logger.Logger
	metrics     *metrics.CheckoutMetrics
	now         func() time.Time
}

func NewExecutor(params ExecutorParams) (*Executor, error) {
	if params.Tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if params.Repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.Products == nil {
		return nil, fmt.Errorf("product finder required")
	}
	if params.Validator == nil {
		return nil, fmt.Errorf("line item validator required")
	}
	if params.Reserver == nil {
		return nil, fmt.Errorf("reserver required")
	}
	if params.Tax == nil {
		return nil, fmt.Errorf("tax service required")
	}
	if params.Payments == nil {
		return nil, fmt.Errorf("payment router required")
	}
	if params.Access == nil {
		return nil, fmt.Errorf("access service required")
	}
	return &Executor{
		tx:          params.Tx,
		repo:        params.Repo,
		products:    params.Products,
		validator:   params.Validator,
		reserver:    params.Reserver,
		tax:         params.Tax,
		payments:    params.Payments,
		access:      params.Access,
		submissions: params.Submissions,
		declines:    params.Declines,
		fees:        params.Fees,
		cfg:         params.Config,
		logg:        params.Logger,
		metrics:     params.Metrics,
		now:         time.Now,
	}, nil
}

// Prepare validates, prices and persists one line item. Free items, test
// purchases and preorders are settled here; other paid items come back
// Pending for the charge grouper. Item failures are reported on the attempt,
// and the error return is reserved for infrastructure failures before
// anything was persisted.
func (e *Executor) Prepare(ctx context.Context, sub Submission, item lineitems.LineItem) (*Attempt, error) {
	if sub.Order == nil {
		return nil, fmt.Errorf("order required")
	}
	if sub.Affiliates == nil {
		return nil, fmt.Errorf("affiliate resolver required")
	}
	if item.Quantity <= 0 {
		item.Quantity = 1
	}

	purchase := newPurchase(sub, item)
	attempt := &Attempt{UID: item.UID, Purchase: purchase}
	if e.logg != nil {
		ctx = e.logg.WithPurchaseID(ctx, purchase.ID.String())
	}

	validated, itemErr, err := e.validator.Validate(ctx, item, lineitems.Buyer{Country: sub.Buyer.Country})
	if err != nil {
		return nil, fmt.Errorf("validate line item: %w", err)
	}
	if itemErr != nil {
		return e.reject(ctx, attempt, nil, itemErr)
	}
	if err := applyValidated(purchase, validated); err != nil {
		return nil, err
	}
	purchase.Kind = kindFor(sub, validated)

	resolution, err := sub.Affiliates.Resolve(ctx, affiliates.Request{
		Product:             validated.Product,
		Signals:             sub.Buyer.Signals,
		ExplicitAffiliateID: item.AffiliateID,
		BuyerEmail:          sub.Buyer.Email,
		RecommendedBy:       item.RecommendedBy,
	})
	if err != nil {
		return nil, fmt.Errorf("resolve affiliate: %w", err)
	}
	if purchase.Kind == enums.PurchaseKindTest {
		resolution = affiliates.Resolution{}
	}

	taxCents, err := e.tax.ComputeTax(ctx, sub.Buyer.Country, validated.PriceCents)
	if err != nil {
		return nil, fmt.Errorf("compute tax: %w", err)
	}
	breakdown := e.fees.Compute(money.BreakdownInput{
		PriceCents:           validated.PriceCents,
		TaxCents:             taxCents,
		ShippingCents:        validated.ShippingCents,
		Discover:             resolution.Discover,
		AffiliateBasisPoints: resolution.BasisPoints,
	})
	snapshot, err := e.tax.ConvertToUSD(ctx, purchase.Currency, breakdown.PriceCents)
	if err != nil {
		return nil, fmt.Errorf("convert to usd: %w", err)
	}
	applyBreakdown(purchase, breakdown, snapshot, resolution)

	paid := purchase.TotalTransactionCents > 0 && purchase.Kind != enums.PurchaseKindTest
	if paid {
		if sub.Chargeable == nil {
			return e.reject(ctx, attempt, validated.Product, checkout.NewItemErrorf(checkout.ErrCardDeclined, "Please provide a payment method."))
		}
		purchase.Processor = sub.Chargeable.Processor()
		purchase.PaymentFingerprint = sub.Chargeable.Fingerprint()
		if e.blocked(ctx, purchase.PaymentFingerprint) {
			return e.reject(ctx, attempt, validated.Product, checkout.NewItemError(checkout.ErrTemporarilyBlocked))
		}
	}

	held, itemErr, err := e.acquire(ctx, purchase)
	if err != nil {
		return nil, err
	}
	if itemErr != nil {
		return e.reject(ctx, attempt, validated.Product, itemErr)
	}

	if err := e.persist(ctx, sub, purchase, validated.Product); err != nil {
		if held {
			e.releaseSubmission(ctx, purchase)
		}
		return nil, fmt.Errorf("persist purchase: %w", err)
	}

	switch {
	case !paid:
		return e.settleWithoutCharge(ctx, attempt), nil
	case purchase.Kind == enums.PurchaseKindPreorderAuthorization:
		return e.authorizePreorder(ctx, sub.Chargeable, attempt), nil
	}
	attempt.Pending = true
	return attempt, nil
}

// Claim re-checks a persisted purchase against live catalog state and takes
// its stock and call slot. It runs right before money moves so a lost race
// fails only this purchase. Claiming is idempotent.
func (e *Executor) Claim(ctx context.Context, p *models.Purchase) (*checkout.ItemError, error) {
	if p.InventoryReserved {
		return nil, nil
	}
	validated, itemErr, err := e.validator.Revalidate(ctx, revalidationItem(p), lineitems.Buyer{})
	if err != nil {
		return nil, fmt.Errorf("revalidate purchase: %w", err)
	}
	if itemErr != nil {
		return itemErr, nil
	}
	if validated.PriceCents != p.PriceCents {
		return checkout.NewItemError(checkout.ErrPerceivedPriceMismatch), nil
	}

	var lost *checkout.ItemError
	err = e.tx.WithTx(ctx, func(tx *gorm.DB) error {
		itemErr, err := e.reserver.Reserve(ctx, tx, catalog.ReservationFor(*p))
		if err != nil {
			return err
		}
		if itemErr != nil {
			lost = itemErr
			return errReservationLost
		}
		return e.repo.WithTx(tx).UpdatePurchase(ctx, p.ID, map[string]any{"inventory_reserved": true})
	})
	if lost != nil {
		return lost, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reserve purchase: %w", err)
	}
	p.InventoryReserved = true
	return nil, nil
}

// Succeed moves an in-progress purchase to the success state of its kind
// inside tx. Preorders move in lockstep, gift senders get their zero-amount
// receiver and affiliates their credit. A purchase that already succeeded is
// left untouched, so callers may retry. The returned receiver is nil unless
// one was created.
func (e *Executor) Succeed(ctx context.Context, tx *gorm.DB, p *models.Purchase, chargeID *uuid.UUID, transactionID string) (*models.Purchase, error) {
	if p.State.IsSuccess() {
		return nil, nil
	}
	target := SuccessStateFor(p.Kind)
	if !CanTransition(p.State, target) {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, fmt.Sprintf("purchase %s cannot succeed from %s", p.ID, p.State))
	}
	repo := e.repo.WithTx(tx)

	now := e.now().UTC()
	updates := map[string]any{
		"succeeded_at":  now,
		"abandon_at":    nil,
		"error_code":    nil,
		"error_message": nil,
	}
	if chargeID != nil {
		updates["charge_id"] = *chargeID
	}
	if transactionID != "" {
		updates["processor_transaction_id"] = transactionID
	}
	changed, err := repo.TransitionPurchase(ctx, p.ID, p.State, target, updates)
	if err != nil {
		return nil, fmt.Errorf("transition purchase: %w", err)
	}
	if !changed {
		current, err := repo.FindPurchase(ctx, p.ID)
		if err != nil {
			return nil, err
		}
		if current.State.IsSuccess() {
			*p = *current
			return nil, nil
		}
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, fmt.Sprintf("purchase %s is %s", p.ID, current.State))
	}

	p.State = target
	p.SucceededAt = &now
	p.AbandonAt = nil
	p.ErrorCode, p.ErrorMessage = nil, nil
	if chargeID != nil {
		id := *chargeID
		p.ChargeID = &id
	}
	if transactionID != "" {
		txID := transactionID
		p.ProcessorTransactionID = &txID
	}

	if p.PreorderID != nil {
		if err := repo.UpdatePreorderState(ctx, *p.PreorderID, enums.PreorderStateAuthorizationSuccessful); err != nil {
			return nil, fmt.Errorf("update preorder: %w", err)
		}
	}
	var receiver *models.Purchase
	if p.Kind == enums.PurchaseKindGiftSender && p.GiftID != nil {
		receiver, err = e.createReceiver(ctx, repo, p, now)
		if err != nil {
			return nil, err
		}
	}
	if p.AffiliateID != nil && p.AffiliateCreditCents > 0 {
		credit := &models.AffiliateCredit{
			PurchaseID:  p.ID,
			AffiliateID: *p.AffiliateID,
			SellerID:    p.SellerID,
			BasisPoints: p.AffiliateBasisPoints,
			AmountCents: p.AffiliateCreditCents,
		}
		if err := repo.CreateAffiliateCredit(ctx, credit); err != nil {
			return nil, fmt.Errorf("create affiliate credit: %w", err)
		}
	}
	if err := repo.CreatePurchaseEvent(ctx, eventFor(p, enums.PurchaseEventCompleted)); err != nil {
		return nil, fmt.Errorf("create purchase event: %w", err)
	}
	e.metrics.IncPurchase(string(target), "")
	return receiver, nil
}

// Fail moves an in-progress purchase to failed inside tx, gives back its stock
// and call slot and frees the submission for another try. Failing an already
// failed purchase is a no-op.
func (e *Executor) Fail(ctx context.Context, tx *gorm.DB, p *models.Purchase, itemErr *checkout.ItemError) error {
	return e.fail(ctx, tx, p, itemErr, enums.PurchaseEventFailed)
}

// Abandon fails a purchase whose SCA confirmation never arrived.
func (e *Executor) Abandon(ctx context.Context, tx *gorm.DB, p *models.Purchase) error {
	return e.fail(ctx, tx, p, checkout.NewItemError(checkout.ErrRequiresSCA), enums.PurchaseEventAbandoned)
}

// FailNow runs Fail in its own transaction and only updates p once committed.
func (e *Executor) FailNow(ctx context.Context, p *models.Purchase, itemErr *checkout.ItemError) error {
	working := *p
	err := e.tx.WithTx(ctx, func(tx *gorm.DB) error {
		return e.Fail(ctx, tx, &working, itemErr)
	})
	if err != nil {
		return err
	}
	*p = working
	return nil
}

func (e *Executor) fail(ctx context.Context, tx *gorm.DB, p *models.Purchase, itemErr *checkout.ItemError, eventType enums.PurchaseEventType) error {
	if itemErr == nil {
		itemErr = checkout.NewItemError(checkout.ErrInternal)
	}
	if p.State.IsSuccess() {
		return pkgerrors.New(pkgerrors.CodeStateConflict, fmt.Sprintf("purchase %s already succeeded", p.ID))
	}
	if p.State.IsTerminal() {
		return nil
	}
	repo := e.repo.WithTx(tx)
	target := FailureStateFor(p.Kind)
	code := string(itemErr.Code)
	msg := itemErr.Message
	updates := map[string]any{
		"error_code":         code,
		"error_message":      msg,
		"abandon_at":         nil,
		"inventory_reserved": false,
	}
	changed, err := repo.TransitionPurchase(ctx, p.ID, p.State, target, updates)
	if err != nil {
		return fmt.Errorf("transition purchase: %w", err)
	}
	if !changed {
		current, err := repo.FindPurchase(ctx, p.ID)
		if err != nil {
			return err
		}
		if current.State.IsSuccess() {
			return pkgerrors.New(pkgerrors.CodeStateConflict, fmt.Sprintf("purchase %s already succeeded", p.ID))
		}
		*p = *current
		return nil
	}

	if p.InventoryReserved {
		if err := e.reserver.Release(ctx, tx, catalog.ReservationFor(*p)); err != nil {
			return err
		}
	}
	if p.PreorderID != nil {
		if err := repo.UpdatePreorderState(ctx, *p.PreorderID, enums.PreorderStateAuthorizationFailed); err != nil {
			return fmt.Errorf("update preorder: %w", err)
		}
	}

	p.State = target
	p.ErrorCode = &code
	p.ErrorMessage = &msg
	p.AbandonAt = nil
	p.InventoryReserved = false
	if err := repo.CreatePurchaseEvent(ctx, eventFor(p, eventType)); err != nil {
		return fmt.Errorf("create purchase event: %w", err)
	}

	e.releaseSubmission(ctx, p)
	if itemErr.Code == checkout.ErrCardDeclined {
		e.recordDecline(ctx, p.PaymentFingerprint)
	}
	e.metrics.IncPurchase(string(target), code)
	return nil
}

// HoldForAction records the intent a buyer must authenticate and starts the
// abandonment clock. The purchase stays in progress.
func (e *Executor) HoldForAction(ctx context.Context, tx *gorm.DB, p *models.Purchase, chargeID *uuid.UUID, res *payments.Result) error {
	abandonAt := e.now().UTC().Add(e.cfg.SCAAbandonWindow)
	updates := map[string]any{"abandon_at": abandonAt}
	if chargeID != nil {
		updates["charge_id"] = *chargeID
	}
	if res.IntentID != "" {
		updates["payment_intent_id"] = res.IntentID
	}
	if res.ClientSecret != "" {
		updates["client_secret"] = res.ClientSecret
	}
	if res.TransactionID != "" {
		updates["processor_transaction_id"] = res.TransactionID
	}
	if err := e.repo.WithTx(tx).UpdatePurchase(ctx, p.ID, updates); err != nil {
		return fmt.Errorf("hold purchase: %w", err)
	}
	p.AbandonAt = &abandonAt
	if chargeID != nil {
		id := *chargeID
		p.ChargeID = &id
	}
	if res.IntentID != "" {
		intent := res.IntentID
		p.PaymentIntentID = &intent
	}
	if res.ClientSecret != "" {
		secret := res.ClientSecret
		p.ClientSecret = &secret
	}
	if res.TransactionID != "" {
		txID := res.TransactionID
		p.ProcessorTransactionID = &txID
	}
	return nil
}

// ContentURL returns the buyer's access link, or "" when none can be issued.
func (e *Executor) ContentURL(ctx context.Context, p *models.Purchase) string {
	if p == nil || !p.State.IsSuccess() {
		return ""
	}
	url, err := e.access.CreateRedirectFor(ctx, p)
	if err != nil {
		if e.logg != nil {
			e.logg.Error(ctx, "failed to create content redirect", err)
		}
		return ""
	}
	return url
}

// FailInternal fails the attempt's purchase with the generic message after an
// unexpected error. The cause is logged, never shown to the buyer.
func (e *Executor) FailInternal(ctx context.Context, attempt *Attempt, cause error) *Attempt {
	if e.logg != nil {
		e.logg.Error(ctx, "purchase attempt failed", cause)
	}
	itemErr := checkout.NewItemError(checkout.ErrInternal)
	attempt.Failure = itemErr
	attempt.Pending = false
	if attempt.Purchase == nil || attempt.Purchase.State.IsTerminal() {
		return attempt
	}
	if err := e.FailNow(ctx, attempt.Purchase, itemErr); err != nil && e.logg != nil {
		e.logg.Error(ctx, "failed to record purchase failure", err)
	}
	return attempt
}

func (e *Executor) settleWithoutCharge(ctx context.Context, attempt *Attempt) *Attempt {
	itemErr, err := e.Claim(ctx, attempt.Purchase)
	if err != nil {
		return e.FailInternal(ctx, attempt, err)
	}
	if itemErr != nil {
		return e.failAttempt(ctx, attempt, itemErr)
	}
	if err := e.complete(ctx, attempt, ""); err != nil {
		return e.FailInternal(ctx, attempt, err)
	}
	return attempt
}

// authorizePreorder places a manual-capture hold for the full amount. The
// hold is captured at release, outside checkout.
func (e *Executor) authorizePreorder(ctx context.Context, method *chargeable.Chargeable, attempt *Attempt) *Attempt {
	p := attempt.Purchase
	itemErr, err := e.Claim(ctx, p)
	if err != nil {
		return e.FailInternal(ctx, attempt, err)
	}
	if itemErr != nil {
		return e.failAttempt(ctx, attempt, itemErr)
	}

	res, err := e.payments.Authorize(ctx, payments.AuthorizeRequest{
		Processor:           p.Processor,
		IdempotencyKey:      "preorder:" + p.ID.String(),
		AmountCents:         p.TotalTransactionCents,
		ApplicationFeeCents: p.FeeCents,
		Currency:            p.Currency,
		MerchantAccountID:   p.MerchantAccountID,
		PaymentToken:        method.Token(),
		CustomerID:          method.CustomerID(),
		ManualCapture:       true,
		Description:         "Preorder authorization",
		Metadata: map[string]string{
			"order_id":    p.OrderID.String(),
			"purchase_id": p.ID.String(),
		},
	})
	if err != nil {
		return e.FailInternal(ctx, attempt, err)
	}

	switch {
	case res.Succeeded():
		if err := e.complete(ctx, attempt, res.TransactionID); err != nil {
			e.voidHold(ctx, p.Processor, res)
			return e.FailInternal(ctx, attempt, err)
		}
	case res.RequiresAction():
		err := e.tx.WithTx(ctx, func(tx *gorm.DB) error {
			return e.HoldForAction(ctx, tx, p, nil, res)
		})
		if err != nil {
			e.voidHold(ctx, p.Processor, res)
			return e.FailInternal(ctx, attempt, err)
		}
	default:
		return e.failAttempt(ctx, attempt, res.Failure)
	}
	return attempt
}

func (e *Executor) complete(ctx context.Context, attempt *Attempt, transactionID string) error {
	working := *attempt.Purchase
	var receiver *models.Purchase
	err := e.tx.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		receiver, err = e.Succeed(ctx, tx, &working, nil, transactionID)
		return err
	})
	if err != nil {
		return err
	}
	*attempt.Purchase = working
	attempt.Receiver = receiver
	attempt.ContentURL = e.ContentURL(ctx, attempt.Purchase)
	return nil
}

func (e *Executor) failAttempt(ctx context.Context, attempt *Attempt, itemErr *checkout.ItemError) *Attempt {
	if err := e.FailNow(ctx, attempt.Purchase, itemErr); err != nil {
		return e.FailInternal(ctx, attempt, err)
	}
	attempt.Failure = itemErr
	attempt.Pending = false
	return attempt
}

func (e *Executor) voidHold(ctx context.Context, processor enums.Processor, res *payments.Result) {
	ref := res.IntentID
	if ref == "" {
		ref = res.TransactionID
	}
	if ref == "" {
		return
	}
	if err := e.payments.Cancel(ctx, processor, ref); err != nil && e.logg != nil {
		e.logg.Error(e.logg.WithField(ctx, "processor_ref", ref), "failed to void authorization", err)
	}
}

// reject persists a purchase that failed before reaching in_progress. When
// the product row itself is gone there is nothing to reference, so the
// failure is only reported.
func (e *Executor) reject(ctx context.Context, attempt *Attempt, product *models.Product, itemErr *checkout.ItemError) (*Attempt, error) {
	attempt.Failure = itemErr
	p := attempt.Purchase
	if product == nil {
		found, err := e.products.FindProduct(ctx, p.ProductID)
		if err != nil {
			if pkgerrors.Is(err, pkgerrors.CodeNotFound) {
				attempt.Purchase = nil
				e.metrics.IncPurchase(string(enums.PurchaseStateFailed), string(itemErr.Code))
				return attempt, nil
			}
			return nil, fmt.Errorf("load product: %w", err)
		}
		applyProduct(p, found)
	}

	target := FailureStateFor(p.Kind)
	if !CanTransition(p.State, target) {
		return nil, fmt.Errorf("purchase %s cannot fail from %s", p.ID, p.State)
	}
	code := string(itemErr.Code)
	msg := itemErr.Message
	p.State = target
	p.ErrorCode = &code
	p.ErrorMessage = &msg
	err := e.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := e.repo.WithTx(tx)
		if err := repo.CreatePurchase(ctx, p); err != nil {
			return err
		}
		return repo.CreatePurchaseEvent(ctx, eventFor(p, enums.PurchaseEventFailed))
	})
	if err != nil {
		return nil, fmt.Errorf("persist failed purchase: %w", err)
	}
	e.metrics.IncPurchase(string(target), code)
	return attempt, nil
}

func (e *Executor) persist(ctx context.Context, sub Submission, p *models.Purchase, product *models.Product) error {
	if !CanTransition(p.State, enums.PurchaseStateInProgress) {
		return fmt.Errorf("purchase %s cannot start from %s", p.ID, p.State)
	}
	var gift *models.Gift
	if p.Kind == enums.PurchaseKindGiftSender {
		gift = &models.Gift{ID: uuid.New(), SenderPurchaseID: p.ID, GifteeEmail: sub.Gift.Email, Note: sub.Gift.Note}
		p.GiftID = &gift.ID
	}
	var preorder *models.Preorder
	if p.Kind == enums.PurchaseKindPreorderAuthorization {
		preorder = &models.Preorder{
			ID:         uuid.New(),
			ProductID:  p.ProductID,
			PurchaseID: p.ID,
			State:      enums.PreorderStateInProgress,
			ReleaseAt:  product.ReleaseAt,
		}
		p.PreorderID = &preorder.ID
	}

	p.State = enums.PurchaseStateInProgress
	err := e.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := e.repo.WithTx(tx)
		if err := repo.CreatePurchase(ctx, p); err != nil {
			return err
		}
		if gift != nil {
			if err := repo.CreateGift(ctx, gift); err != nil {
				return err
			}
		}
		if preorder != nil {
			if err := repo.CreatePreorder(ctx, preorder); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		p.State = enums.PurchaseStateBuilt
		p.GiftID, p.PreorderID = nil, nil
	}
	return err
}

// acquire guards the submission key. Redis blocks concurrent duplicates; the
// database blocks resubmissions after a success. It reports whether this
// purchase now holds the redis guard.
func (e *Executor) acquire(ctx context.Context, p *models.Purchase) (bool, *checkout.ItemError, error) {
	held := false
	if e.submissions != nil {
		ok, err := e.submissions.SetNX(ctx, e.submissions.SubmissionKey(p.SubmissionKey), p.ID.String(), e.cfg.SubmissionNonceTTL)
		switch {
		case err != nil:
			if e.logg != nil {
				e.logg.Error(ctx, "submission guard unavailable", err)
			}
		case !ok:
			return false, checkout.NewItemError(checkout.ErrRepeatPurchase), nil
		default:
			held = true
		}
	}
	existing, err := e.repo.FindSuccessfulBySubmissionKey(ctx, p.SubmissionKey)
	if err != nil {
		if held {
			e.releaseSubmission(ctx, p)
		}
		return false, nil, fmt.Errorf("check repeat purchase: %w", err)
	}
	if existing != nil {
		if held {
			e.releaseSubmission(ctx, p)
		}
		return false, checkout.NewItemError(checkout.ErrRepeatPurchase), nil
	}
	return held, nil, nil
}

func (e *Executor) releaseSubmission(ctx context.Context, p *models.Purchase) {
	if e.submissions == nil || p.SubmissionKey == "" {
		return
	}
	if err := e.submissions.Del(ctx, e.submissions.SubmissionKey(p.SubmissionKey)); err != nil && e.logg != nil {
		e.logg.Error(ctx, "failed to release submission guard", err)
	}
}

func (e *Executor) declineKey(fingerprint string) string {
	return e.declines.RateLimitKey("declines:" + fingerprint)
}

// blocked reports whether the payment method hit the decline limit. Counter
// outages never block a buyer.
func (e *Executor) blocked(ctx context.Context, fingerprint string) bool {
	if e.declines == nil || fingerprint == "" {
		return false
	}
	raw, err := e.declines.Get(ctx, e.declineKey(fingerprint))
	if err != nil {
		if !errors.Is(err, goredis.Nil) && e.logg != nil {
			e.logg.Error(ctx, "decline counter unavailable", err)
		}
		return false
	}
	count, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return false
	}
	return count >= declineLimit
}

func (e *Executor) recordDecline(ctx context.Context, fingerprint string) {
	if e.declines == nil || fingerprint == "" {
		return
	}
	if _, err := e.declines.IncrWithTTL(ctx, e.declineKey(fingerprint), declineWindow); err != nil && e.logg != nil {
		e.logg.Error(ctx, "failed to count decline", err)
	}
}

func (e *Executor) createReceiver(ctx context.Context, repo orders.Repository, sender *models.Purchase, now time.Time) (*models.Purchase, error) {
	gift, err := repo.FindGiftBySender(ctx, sender.ID)
	if err != nil {
		return nil, fmt.Errorf("load gift: %w", err)
	}
	if gift == nil || gift.ReceiverPurchaseID != nil {
		return nil, nil
	}
	receiver := &models.Purchase{
		ID:                uuid.New(),
		OrderID:           sender.OrderID,
		LineItemUID:       sender.LineItemUID,
		ProductID:         sender.ProductID,
		SellerID:          sender.SellerID,
		MerchantAccountID: sender.MerchantAccountID,
		Kind:              enums.PurchaseKindGiftReceiver,
		State:             enums.PurchaseStateGiftReceiverSucceeded,
		Quantity:          sender.Quantity,
		VariantIDs:        append([]uuid.UUID(nil), sender.VariantIDs...),
		Currency:          sender.Currency,
		USDRate:           sender.USDRate,
		BuyerEmail:        gift.GifteeEmail,
		SubmissionKey:     sender.SubmissionKey + giftReceiverSuffix,
		GiftID:            &gift.ID,
		CustomFields:      sender.CustomFields,
		ShippingCountry:   sender.ShippingCountry,
		SucceededAt:       &now,
	}
	if err := repo.CreatePurchase(ctx, receiver); err != nil {
		return nil, fmt.Errorf("create gift receiver: %w", err)
	}
	if err := repo.SetGiftReceiver(ctx, gift.ID, receiver.ID); err != nil {
		return nil, fmt.Errorf("link gift receiver: %w", err)
	}
	if err := repo.CreatePurchaseEvent(ctx, eventFor(receiver, enums.PurchaseEventCompleted)); err != nil {
		return nil, fmt.Errorf("create purchase event: %w", err)
	}
	e.metrics.IncPurchase(string(receiver.State), "")
	return receiver, nil
}

func newPurchase(sub Submission, item lineitems.LineItem) *models.Purchase {
	p := &models.Purchase{
		ID:                  uuid.New(),
		OrderID:             sub.Order.ID,
		LineItemUID:         item.UID,
		ProductID:           item.ProductID,
		Kind:                enums.PurchaseKindStandard,
		State:               enums.PurchaseStateBuilt,
		Quantity:            item.Quantity,
		VariantIDs:          append([]uuid.UUID(nil), item.VariantIDs...),
		PerceivedPriceCents: item.PerceivedPriceCents,
		Currency:            enums.CurrencyUSD,
		BuyerUserID:         sub.Buyer.UserID,
		BuyerEmail:          sub.Buyer.Email,
		BrowserGUID:         sub.Buyer.BrowserGUID,
		SubmissionKey:       SubmissionKey(sub.Buyer, item, sub.Nonce),
		RecommendedBy:       item.RecommendedBy,
	}
	if len(item.URLParams) > 0 {
		if raw, err := json.Marshal(item.URLParams); err == nil {
			p.URLParams = raw
		}
	}
	return p
}

func applyProduct(p *models.Purchase, product *models.Product) {
	p.SellerID = product.SellerID
	p.MerchantAccountID = product.MerchantAccountID
	if product.Currency.IsValid() {
		p.Currency = product.Currency
	}
}

func applyValidated(p *models.Purchase, v *lineitems.Validated) error {
	applyProduct(p, v.Product)
	p.VariantIDs = v.VariantIDs()
	p.CallStartTime = v.CallStart
	p.CallEndTime = v.CallEnd
	if v.ShippingCountry != "" {
		country := v.ShippingCountry
		p.ShippingCountry = &country
	}
	if len(v.CustomFields) > 0 {
		raw, err := json.Marshal(v.CustomFields)
		if err != nil {
			return fmt.Errorf("encode custom fields: %w", err)
		}
		p.CustomFields = raw
	}
	return nil
}

func applyBreakdown(p *models.Purchase, b money.Breakdown, snapshot money.Snapshot, resolution affiliates.Resolution) {
	p.PriceCents = b.PriceCents
	p.FeeCents = b.FeeCents
	p.DiscoverFeeCents = b.DiscoverFeeCents
	p.TaxCents = b.TaxCents
	p.ShippingCents = b.ShippingCents
	p.TotalTransactionCents = b.TotalTransactionCents
	p.DisplayedPriceMinor = snapshot.MinorAmount
	p.USDRate = snapshot.Rate
	if affiliateID := resolution.AffiliateID(); affiliateID != nil && !resolution.Discover {
		p.AffiliateID = affiliateID
		p.AffiliateBasisPoints = resolution.BasisPoints
		p.AffiliateCreditCents = b.AffiliateCreditCents
	}
}

func kindFor(sub Submission, v *lineitems.Validated) enums.PurchaseKind {
	switch {
	case sub.Buyer.UserID != nil && *sub.Buyer.UserID == v.Product.SellerID:
		return enums.PurchaseKindTest
	case v.Preorder:
		return enums.PurchaseKindPreorderAuthorization
	case sub.Gift != nil:
		return enums.PurchaseKindGiftSender
	}
	return enums.PurchaseKindStandard
}

func revalidationItem(p *models.Purchase) lineitems.LineItem {
	return lineitems.LineItem{
		UID:                 p.LineItemUID,
		ProductID:           p.ProductID,
		Quantity:            p.Quantity,
		VariantIDs:          append([]uuid.UUID(nil), p.VariantIDs...),
		PerceivedPriceCents: p.PerceivedPriceCents,
		CallStartTime:       p.CallStartTime,
	}
}

func eventFor(p *models.Purchase, eventType enums.PurchaseEventType) *models.PurchaseEvent {
	usd := int64(0)
	if snapshot, err := money.NewSnapshot(p.Currency, p.PriceCents, p.USDRate); err == nil {
		usd = snapshot.USDCents
	}
	return &models.PurchaseEvent{
		PurchaseID:  p.ID,
		EventType:   eventType,
		OrderID:     p.OrderID,
		ProductID:   p.ProductID,
		SellerID:    p.SellerID,
		State:       p.State,
		PriceCents:  p.PriceCents,
		USDCents:    usd,
		AffiliateID: p.AffiliateID,
		BrowserGUID: p.BrowserGUID,
		ErrorCode:   p.ErrorCode,
	}
}
