package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v84"

	"github.com/angelmondragon/storefront-checkout/pkg/checkout"
	"github.com/angelmondragon/storefront-checkout/pkg/logger"
)

const connectAccountPrefix = "acct_"

// StripeProcessor charges cards, wallets and saved cards through PaymentIntents.
type StripeProcessor struct {
	client StripeIntentClient
	logg   *logger.Logger
}

func NewStripeProcessor(client StripeIntentClient, logg *logger.Logger) (*StripeProcessor, error) {
	if client == nil {
		return nil, fmt.Errorf("stripe client required")
	}
	return &StripeProcessor{client: client, logg: logg}, nil
}

func (p *StripeProcessor) Authorize(ctx context.Context, req AuthorizeRequest) (*Result, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(req.AmountCents),
		Currency: stripe.String(string(req.Currency)),
		Confirm:  stripe.Bool(true),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled:        stripe.Bool(true),
			AllowRedirects: stripe.String("never"),
		},
	}
	if req.PaymentToken != "" {
		params.PaymentMethod = stripe.String(req.PaymentToken)
	}
	if req.CustomerID != "" {
		params.Customer = stripe.String(req.CustomerID)
	}
	if req.ManualCapture {
		params.CaptureMethod = stripe.String(string(stripe.PaymentIntentCaptureMethodManual))
	}
	if req.Description != "" {
		params.Description = stripe.String(req.Description)
	}
	if strings.HasPrefix(req.MerchantAccountID, connectAccountPrefix) {
		params.TransferData = &stripe.PaymentIntentTransferDataParams{
			Destination: stripe.String(req.MerchantAccountID),
		}
		if req.ApplicationFeeCents > 0 {
			params.ApplicationFeeAmount = stripe.Int64(req.ApplicationFeeCents)
		}
	}
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}
	params.SetIdempotencyKey(req.IdempotencyKey)

	intent, err := p.client.Create(ctx, params)
	if err != nil {
		return p.failure(ctx, "create payment intent", err), nil
	}
	return intentResult(intent), nil
}

// Confirm reads the intent first: the buyer's browser usually confirmed it
// already while completing SCA.
func (p *StripeProcessor) Confirm(ctx context.Context, intentID string) (*Result, error) {
	if strings.TrimSpace(intentID) == "" {
		return nil, fmt.Errorf("payment intent id required")
	}
	intent, err := p.client.Get(ctx, intentID, nil)
	if err != nil {
		return p.failure(ctx, "retrieve payment intent", err), nil
	}
	if intent.Status == stripe.PaymentIntentStatusRequiresConfirmation {
		intent, err = p.client.Confirm(ctx, intentID, &stripe.PaymentIntentConfirmParams{})
		if err != nil {
			return p.failure(ctx, "confirm payment intent", err), nil
		}
	}
	return intentResult(intent), nil
}

// Status reports where the intent stands. API failures are errors rather
// than declines: callers decide whether money moved from the answer.
func (p *StripeProcessor) Status(ctx context.Context, intentID string) (*Result, error) {
	if strings.TrimSpace(intentID) == "" {
		return nil, fmt.Errorf("payment intent id required")
	}
	intent, err := p.client.Get(ctx, intentID, nil)
	if err != nil {
		return nil, fmt.Errorf("retrieve payment intent %s: %w", intentID, err)
	}
	return intentResult(intent), nil
}

func (p *StripeProcessor) Cancel(ctx context.Context, intentID string) error {
	if strings.TrimSpace(intentID) == "" {
		return fmt.Errorf("payment intent id required")
	}
	if _, err := p.client.Cancel(ctx, intentID, &stripe.PaymentIntentCancelParams{}); err != nil {
		return fmt.Errorf("cancel payment intent %s: %w", intentID, err)
	}
	return nil
}

func (p *StripeProcessor) Refund(ctx context.Context, transactionID string) error {
	if strings.TrimSpace(transactionID) == "" {
		return fmt.Errorf("transaction id required")
	}
	params := &stripe.RefundParams{}
	if strings.HasPrefix(transactionID, "pi_") {
		params.PaymentIntent = stripe.String(transactionID)
	} else {
		params.Charge = stripe.String(transactionID)
	}
	params.SetIdempotencyKey("refund:" + transactionID)
	if _, err := p.client.Refund(ctx, params); err != nil {
		return fmt.Errorf("refund %s: %w", transactionID, err)
	}
	return nil
}

func intentResult(intent *stripe.PaymentIntent) *Result {
	if intent == nil {
		return unavailable()
	}
	res := &Result{IntentID: intent.ID, TransactionID: intent.ID}
	if intent.LatestCharge != nil && intent.LatestCharge.ID != "" {
		res.TransactionID = intent.LatestCharge.ID
	}
	switch intent.Status {
	case stripe.PaymentIntentStatusSucceeded:
		res.Outcome = OutcomeSucceeded
	case stripe.PaymentIntentStatusRequiresCapture:
		res.Outcome = OutcomeAuthorized
	case stripe.PaymentIntentStatusRequiresAction:
		res.Outcome = OutcomeRequiresAction
		res.ClientSecret = intent.ClientSecret
	case stripe.PaymentIntentStatusRequiresPaymentMethod, stripe.PaymentIntentStatusCanceled:
		failure := checkout.NewItemError(checkout.ErrCardDeclined)
		if intent.LastPaymentError != nil && intent.LastPaymentError.Msg != "" {
			failure.Message = intent.LastPaymentError.Msg
		}
		res.Outcome = OutcomeDeclined
		res.Failure = failure
	default:
		res.Outcome = OutcomeUnavailable
		res.Failure = checkout.NewItemError(checkout.ErrProcessorUnavailable)
	}
	return res
}

// failure maps a Stripe API error to a declined or unavailable result. Card
// errors carry a message Stripe deems safe to show the buyer.
func (p *StripeProcessor) failure(ctx context.Context, op string, err error) *Result {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		switch stripeErr.Type {
		case stripe.ErrorTypeCard:
			failure := checkout.NewItemError(checkout.ErrCardDeclined)
			if stripeErr.Msg != "" {
				failure.Message = stripeErr.Msg
			}
			return declined(failure)
		case stripe.ErrorTypeInvalidRequest:
			if p.logg != nil {
				p.logg.Warn(p.logg.WithField(ctx, "stripe_code", string(stripeErr.Code)), "stripe rejected "+op)
			}
			return declined(nil)
		}
	}
	if p.logg != nil {
		p.logg.Error(ctx, "stripe "+op+" failed", err)
	}
	return unavailable()
}
