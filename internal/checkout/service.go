// Package checkout orchestrates a cart submission and the SCA confirmation
// that may follow it.
package checkout

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-checkout/internal/affiliates"
	"github.com/angelmondragon/storefront-checkout/internal/chargeable"
	"github.com/angelmondragon/storefront-checkout/internal/lineitems"
	"github.com/angelmondragon/storefront-checkout/internal/orders"
	"github.com/angelmondragon/storefront-checkout/internal/payments"
	"github.com/angelmondragon/storefront-checkout/internal/purchases"
	"github.com/angelmondragon/storefront-checkout/pkg/captcha"
	pkgcheckout "github.com/angelmondragon/storefront-checkout/pkg/checkout"
	"github.com/angelmondragon/storefront-checkout/pkg/config"
	"github.com/angelmondragon/storefront-checkout/pkg/db/models"
	"github.com/angelmondragon/storefront-checkout/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-checkout/pkg/errors"
	"github.com/angelmondragon/storefront-checkout/pkg/logger"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type productFinder interface {
	FindProduct(ctx context.Context, id uuid.UUID) (*models.Product, error)
}

type attemptExecutor interface {
	Prepare(ctx context.Context, sub purchases.Submission, item lineitems.LineItem) (*purchases.Attempt, error)
	Succeed(ctx context.Context, tx *gorm.DB, p *models.Purchase, chargeID *uuid.UUID, transactionID string) (*models.Purchase, error)
	Fail(ctx context.Context, tx *gorm.DB, p *models.Purchase, itemErr *pkgcheckout.ItemError) error
	FailInternal(ctx context.Context, attempt *purchases.Attempt, cause error) *purchases.Attempt
	ContentURL(ctx context.Context, p *models.Purchase) string
}

type chargeGrouper interface {
	Charge(ctx context.Context, order *models.Order, method *chargeable.Chargeable, attempts []*purchases.Attempt) ([]*models.Charge, error)
}

type methodFactory interface {
	Build(ctx context.Context, ref chargeable.PaymentMethodRef, buyerUserID *uuid.UUID, browserGUID string) (*chargeable.Chargeable, error)
}

type cartResolver interface {
	ForCart() *affiliates.CartScope
}

type notifier interface {
	EnqueueReceipt(ctx context.Context, tx *gorm.DB, charge *models.Charge, purchases []models.Purchase) error
	EnqueuePing(ctx context.Context, tx *gorm.DB, purchase *models.Purchase) error
	EnqueueUTMAttribution(ctx context.Context, tx *gorm.DB, purchase *models.Purchase) error
	ScheduleAbandonment(ctx context.Context, tx *gorm.DB, purchase *models.Purchase) error
}

type signupChecker interface {
	CanBuyerSignUp(ctx context.Context, buyerUserID *uuid.UUID, email string) (bool, error)
}

type paymentRouter interface {
	Confirm(ctx context.Context, processor enums.Processor, intentID string) (*payments.Result, error)
	Status(ctx context.Context, processor enums.Processor, intentID string) (*payments.Result, error)
	Cancel(ctx context.Context, processor enums.Processor, intentID string) error
	Refund(ctx context.Context, processor enums.Processor, transactionID string) error
}

// ServiceParams wires the orchestrators. Captcha may be nil only when no
// product requires verification and every cart is free.
type ServiceParams struct {
	Tx            txRunner
	Repo          orders.Repository
	Products      productFinder
	Executor      attemptExecutor
	Grouper       chargeGrouper
	Methods       methodFactory
	Affiliates    cartResolver
	Notifications notifier
	Users         signupChecker
	Captcha       captcha.Verifier
	Payments      paymentRouter
	Config        config.CheckoutConfig
	Logger        *logger.Logger
}

type Service struct {
	tx            txRunner
	repo          orders.Repository
	products      productFinder
	executor      attemptExecutor
	grouper       chargeGrouper
	methods       methodFactory
	affiliates    cartResolver
	notifications notifier
	users         signupChecker
	captcha       captcha.Verifier
	payments      paymentRouter
	cfg           config.CheckoutConfig
	logg          *logger.Logger
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if params.Repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.Products == nil {
		return nil, fmt.Errorf("product finder required")
	}
	if params.Executor == nil {
		return nil, fmt.Errorf("purchase executor required")
	}
	if params.Grouper == nil {
		return nil, fmt.Errorf("charge grouper required")
	}
	if params.Methods == nil {
		return nil, fmt.Errorf("payment method factory required")
	}
	if params.Affiliates == nil {
		return nil, fmt.Errorf("affiliate resolver required")
	}
	if params.Notifications == nil {
		return nil, fmt.Errorf("notification service required")
	}
	if params.Payments == nil {
		return nil, fmt.Errorf("payment router required")
	}
	return &Service{
		tx:            params.Tx,
		repo:          params.Repo,
		products:      params.Products,
		executor:      params.Executor,
		grouper:       params.Grouper,
		methods:       params.Methods,
		affiliates:    params.Affiliates,
		notifications: params.Notifications,
		users:         params.Users,
		captcha:       params.Captcha,
		payments:      params.Payments,
		cfg:           params.Config,
		logg:          params.Logger,
	}, nil
}

// Create runs a cart. Cart-wide preconditions fail the whole call before any
// purchase is written; after that every item succeeds or fails on its own.
func (s *Service) Create(ctx context.Context, input CreateInput) (*CreateResult, error) {
	if len(input.Items) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "line items required")
	}
	email := strings.TrimSpace(input.Buyer.Email)
	if email == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "buyer email required")
	}
	input.Buyer.Email = email
	if s.logg != nil && input.Buyer.BrowserGUID != "" {
		ctx = s.logg.WithBrowserGUID(ctx, input.Buyer.BrowserGUID)
	}

	if err := s.checkPreconditions(ctx, input); err != nil {
		return nil, err
	}

	var method *chargeable.Chargeable
	if input.PaymentMethod != nil {
		built, err := s.methods.Build(ctx, input.PaymentMethod, input.Buyer.UserID, input.Buyer.BrowserGUID)
		if err != nil {
			return nil, err
		}
		method = built
	}

	order := &models.Order{
		BuyerUserID: input.Buyer.UserID,
		BuyerEmail:  email,
		BrowserGUID: input.Buyer.BrowserGUID,
		IPCountry:   strings.ToUpper(strings.TrimSpace(input.Buyer.Country)),
	}
	if err := s.repo.CreateOrder(ctx, order); err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}
	if s.logg != nil {
		ctx = s.logg.WithOrderID(ctx, order.ID.String())
	}

	sub := purchases.Submission{
		Order:      order,
		Buyer:      input.Buyer,
		Chargeable: method,
		Affiliates: s.affiliates.ForCart(),
		Nonce:      input.Nonce,
		Gift:       input.Gift,
	}
	attempts := s.prepareAll(ctx, sub, input.Items)

	charges, err := s.grouper.Charge(ctx, order, method, attempts)
	if err != nil {
		return nil, fmt.Errorf("charge order: %w", err)
	}
	s.emitSideEffects(ctx, charges, attempts)

	result := &CreateResult{
		Success:   true,
		OrderID:   order.ID,
		LineItems: make(map[string]LineItemResult, len(attempts)),
	}
	for _, attempt := range attempts {
		result.LineItems[attempt.UID] = resultFor(attempt)
	}
	result.CanBuyerSignUp = s.canBuyerSignUp(ctx, input.Buyer)
	return result, nil
}

// checkPreconditions enforces the browser guid and captcha rules. A guid is
// required unless every item is free and none asks for a captcha; a captcha
// is required as soon as one item is paid or asks for one. Free-ness comes
// from the catalog, not from the price the client submitted.
func (s *Service) checkPreconditions(ctx context.Context, input CreateInput) error {
	allFree, needsCaptcha := true, false
	for _, item := range input.Items {
		product, err := s.products.FindProduct(ctx, item.ProductID)
		if err != nil {
			if pkgerrors.Is(err, pkgerrors.CodeNotFound) {
				continue
			}
			return fmt.Errorf("load product: %w", err)
		}
		if chargesFor(product, item) {
			allFree = false
		}
		if product.RequireCaptcha {
			needsCaptcha = true
		}
	}

	if strings.TrimSpace(input.Buyer.BrowserGUID) == "" && (!allFree || needsCaptcha) {
		return preconditionFailed(pkgcheckout.ErrNoCookies)
	}
	if allFree && !needsCaptcha {
		return nil
	}
	if s.captcha == nil {
		return preconditionFailed(pkgcheckout.ErrNotCaptcha)
	}
	ok, err := s.captcha.Verify(ctx, input.CaptchaToken, input.RemoteIP)
	if err != nil {
		if s.logg != nil {
			s.logg.Error(ctx, "captcha verification unavailable", err)
		}
		return preconditionFailed(pkgcheckout.ErrNotCaptcha)
	}
	if !ok {
		return preconditionFailed(pkgcheckout.ErrNotCaptcha)
	}
	return nil
}

// chargesFor reports whether the catalog will bill item. A pay-what-you-want
// item with a zero floor is paid once the buyer offers money.
func chargesFor(product *models.Product, item lineitems.LineItem) bool {
	unit := product.PriceCents
	for _, variant := range product.Variants {
		if slices.Contains(item.VariantIDs, variant.ID) {
			unit += variant.PriceDifferenceCents
		}
	}
	switch {
	case unit > 0, len(product.ShippingDestinations) > 0:
		return true
	case product.PricingMode == enums.PricingModeVariable:
		return item.PerceivedPriceCents > 0
	}
	return false
}

func preconditionFailed(code pkgcheckout.ErrorCode) error {
	return pkgerrors.New(pkgerrors.CodePrecondition, code.Message()).
		WithDetails(map[string]string{"error_code": string(code)})
}

// prepareAll runs every item through the executor, at most MaxConcurrentItems
// at a time. A failure or panic in one item only fails that item.
func (s *Service) prepareAll(ctx context.Context, sub purchases.Submission, items []lineitems.LineItem) []*purchases.Attempt {
	attempts := make([]*purchases.Attempt, len(items))
	var group errgroup.Group
	if limit := s.cfg.MaxConcurrentItems; limit > 0 {
		group.SetLimit(limit)
	}
	for i, item := range items {
		group.Go(func() error {
			attempts[i] = s.prepareOne(ctx, sub, item)
			return nil
		})
	}
	_ = group.Wait()
	return attempts
}

func (s *Service) prepareOne(ctx context.Context, sub purchases.Submission, item lineitems.LineItem) (attempt *purchases.Attempt) {
	defer func() {
		if r := recover(); r != nil {
			fallback := attempt
			if fallback == nil {
				fallback = &purchases.Attempt{UID: item.UID}
			}
			attempt = s.executor.FailInternal(ctx, fallback, fmt.Errorf("panic preparing line item: %v", r))
		}
	}()
	prepared, err := s.executor.Prepare(ctx, sub, item)
	if err != nil {
		return s.executor.FailInternal(ctx, &purchases.Attempt{UID: item.UID}, err)
	}
	return prepared
}

// emitSideEffects enqueues receipts, pings, attribution and abandonment
// timers for the settled attempts. Purchases are already committed, so
// failures here are logged and never change the response.
func (s *Service) emitSideEffects(ctx context.Context, charges []*models.Charge, attempts []*purchases.Attempt) {
	byCharge := map[uuid.UUID][]models.Purchase{}
	var direct []*models.Purchase
	var succeeded []*models.Purchase
	var pending []*models.Purchase
	for _, attempt := range attempts {
		p := attempt.Purchase
		switch {
		case attempt.Succeeded():
			succeeded = append(succeeded, p)
			if p.ChargeID != nil {
				byCharge[*p.ChargeID] = append(byCharge[*p.ChargeID], *p)
			} else {
				direct = append(direct, p)
			}
		case attempt.RequiresAction():
			pending = append(pending, p)
		}
	}
	if len(succeeded) == 0 && len(pending) == 0 {
		return
	}

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		for _, charge := range charges {
			members := byCharge[charge.ID]
			if charge.Status != enums.ChargeStatusSucceeded || len(members) == 0 {
				continue
			}
			if err := s.notifications.EnqueueReceipt(ctx, tx, charge, members); err != nil {
				return err
			}
		}
		for _, p := range direct {
			if err := s.notifications.EnqueueReceipt(ctx, tx, nil, []models.Purchase{*p}); err != nil {
				return err
			}
		}
		for _, p := range succeeded {
			if err := s.announce(ctx, tx, p); err != nil {
				return err
			}
		}
		for _, p := range pending {
			if err := s.notifications.ScheduleAbandonment(ctx, tx, p); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil && s.logg != nil {
		s.logg.Error(ctx, "failed to enqueue checkout side effects", err)
	}
}

// announce pings the seller and, for real sales, asks for UTM attribution.
func (s *Service) announce(ctx context.Context, tx *gorm.DB, p *models.Purchase) error {
	if err := s.notifications.EnqueuePing(ctx, tx, p); err != nil {
		return err
	}
	if p.Kind == enums.PurchaseKindTest {
		return nil
	}
	return s.notifications.EnqueueUTMAttribution(ctx, tx, p)
}

func (s *Service) canBuyerSignUp(ctx context.Context, buyer purchases.Buyer) *bool {
	if s.users == nil {
		return nil
	}
	ok, err := s.users.CanBuyerSignUp(ctx, buyer.UserID, buyer.Email)
	if err != nil {
		if s.logg != nil {
			s.logg.Warn(ctx, "can_buyer_sign_up lookup failed")
		}
		return nil
	}
	return &ok
}
