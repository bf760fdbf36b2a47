package payments

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v84"

	"github.com/angelmondragon/storefront-checkout/pkg/checkout"
	"github.com/angelmondragon/storefront-checkout/pkg/enums"
)

type fakeStripeClient struct {
	created   *stripe.PaymentIntentParams
	createRes *stripe.PaymentIntent
	createErr error

	getRes     *stripe.PaymentIntent
	getErr     error
	confirmRes *stripe.PaymentIntent
	confirmed  int
	canceled   []string
	refunds    []*stripe.RefundParams
}

func (f *fakeStripeClient) Create(_ context.Context, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
	f.created = params
	return f.createRes, f.createErr
}

func (f *fakeStripeClient) Get(_ context.Context, _ string, _ *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
	return f.getRes, f.getErr
}

func (f *fakeStripeClient) Confirm(_ context.Context, _ string, _ *stripe.PaymentIntentConfirmParams) (*stripe.PaymentIntent, error) {
	f.confirmed++
	return f.confirmRes, nil
}

func (f *fakeStripeClient) Cancel(_ context.Context, id string, _ *stripe.PaymentIntentCancelParams) (*stripe.PaymentIntent, error) {
	f.canceled = append(f.canceled, id)
	return &stripe.PaymentIntent{ID: id, Status: stripe.PaymentIntentStatusCanceled}, nil
}

func (f *fakeStripeClient) Refund(_ context.Context, params *stripe.RefundParams) (*stripe.Refund, error) {
	f.refunds = append(f.refunds, params)
	return &stripe.Refund{ID: "re_1"}, nil
}

func stripeRequest() AuthorizeRequest {
	return AuthorizeRequest{
		Processor:           enums.ProcessorStripe,
		IdempotencyKey:      "charge:order:group",
		AmountCents:         1500,
		ApplicationFeeCents: 418,
		Currency:            enums.CurrencyUSD,
		MerchantAccountID:   "acct_seller",
		PaymentToken:        "pm_card_visa",
		Metadata:            map[string]string{"order_id": "order"},
	}
}

func TestStripeAuthorizeSucceeded(t *testing.T) {
	client := &fakeStripeClient{createRes: &stripe.PaymentIntent{
		ID:           "pi_1",
		Status:       stripe.PaymentIntentStatusSucceeded,
		LatestCharge: &stripe.Charge{ID: "ch_1"},
	}}
	p, err := NewStripeProcessor(client, nil)
	require.NoError(t, err)

	res, err := p.Authorize(context.Background(), stripeRequest())
	require.NoError(t, err)
	assert.True(t, res.Succeeded())
	assert.Equal(t, "pi_1", res.IntentID)
	assert.Equal(t, "ch_1", res.TransactionID)

	require.NotNil(t, client.created)
	assert.Equal(t, int64(1500), *client.created.Amount)
	assert.Equal(t, "usd", *client.created.Currency)
	assert.Equal(t, "acct_seller", *client.created.TransferData.Destination)
	assert.Equal(t, int64(418), *client.created.ApplicationFeeAmount)
	assert.Equal(t, "charge:order:group", *client.created.IdempotencyKey)
	assert.Nil(t, client.created.CaptureMethod)
}

func TestStripeAuthorizeManualCaptureWithoutConnect(t *testing.T) {
	client := &fakeStripeClient{createRes: &stripe.PaymentIntent{ID: "pi_2", Status: stripe.PaymentIntentStatusRequiresCapture}}
	p, err := NewStripeProcessor(client, nil)
	require.NoError(t, err)

	req := stripeRequest()
	req.ManualCapture = true
	req.MerchantAccountID = "platform"
	res, err := p.Authorize(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, OutcomeAuthorized, res.Outcome)
	assert.Equal(t, "manual", *client.created.CaptureMethod)
	assert.Nil(t, client.created.TransferData)
	assert.Nil(t, client.created.ApplicationFeeAmount)
}

func TestStripeAuthorizeRequiresAction(t *testing.T) {
	client := &fakeStripeClient{createRes: &stripe.PaymentIntent{
		ID:           "pi_3",
		Status:       stripe.PaymentIntentStatusRequiresAction,
		ClientSecret: "pi_3_secret",
	}}
	p, err := NewStripeProcessor(client, nil)
	require.NoError(t, err)

	res, err := p.Authorize(context.Background(), stripeRequest())
	require.NoError(t, err)
	assert.True(t, res.RequiresAction())
	assert.Equal(t, "pi_3_secret", res.ClientSecret)
	assert.Nil(t, res.Failure)
}

func TestStripeAuthorizeCardErrorIsDecline(t *testing.T) {
	client := &fakeStripeClient{createErr: &stripe.Error{Type: stripe.ErrorTypeCard, Msg: "Your card has insufficient funds."}}
	p, err := NewStripeProcessor(client, nil)
	require.NoError(t, err)

	res, err := p.Authorize(context.Background(), stripeRequest())
	require.NoError(t, err)
	assert.Equal(t, OutcomeDeclined, res.Outcome)
	require.NotNil(t, res.Failure)
	assert.Equal(t, checkout.ErrCardDeclined, res.Failure.Code)
	assert.Equal(t, "Your card has insufficient funds.", res.Failure.Message)
}

func TestStripeAuthorizeNetworkErrorIsUnavailable(t *testing.T) {
	client := &fakeStripeClient{createErr: errors.New("connection reset")}
	p, err := NewStripeProcessor(client, nil)
	require.NoError(t, err)

	res, err := p.Authorize(context.Background(), stripeRequest())
	require.NoError(t, err)
	assert.Equal(t, OutcomeUnavailable, res.Outcome)
	assert.Equal(t, checkout.ErrProcessorUnavailable, res.Failure.Code)
}

func TestStripeAuthorizeRejectsInvalidRequest(t *testing.T) {
	p, err := NewStripeProcessor(&fakeStripeClient{}, nil)
	require.NoError(t, err)

	req := stripeRequest()
	req.AmountCents = 0
	_, err = p.Authorize(context.Background(), req)
	require.Error(t, err)

	req = stripeRequest()
	req.IdempotencyKey = ""
	_, err = p.Authorize(context.Background(), req)
	require.Error(t, err)
}

func TestStripeConfirmSkipsAlreadyConfirmedIntent(t *testing.T) {
	client := &fakeStripeClient{getRes: &stripe.PaymentIntent{ID: "pi_4", Status: stripe.PaymentIntentStatusSucceeded}}
	p, err := NewStripeProcessor(client, nil)
	require.NoError(t, err)

	res, err := p.Confirm(context.Background(), "pi_4")
	require.NoError(t, err)
	assert.True(t, res.Succeeded())
	assert.Zero(t, client.confirmed)
}

func TestStripeConfirmCallsConfirmWhenPending(t *testing.T) {
	client := &fakeStripeClient{
		getRes:     &stripe.PaymentIntent{ID: "pi_5", Status: stripe.PaymentIntentStatusRequiresConfirmation},
		confirmRes: &stripe.PaymentIntent{ID: "pi_5", Status: stripe.PaymentIntentStatusRequiresPaymentMethod, LastPaymentError: &stripe.Error{Msg: "Authentication failed."}},
	}
	p, err := NewStripeProcessor(client, nil)
	require.NoError(t, err)

	res, err := p.Confirm(context.Background(), "pi_5")
	require.NoError(t, err)
	assert.Equal(t, 1, client.confirmed)
	assert.Equal(t, OutcomeDeclined, res.Outcome)
	assert.Equal(t, "Authentication failed.", res.Failure.Message)
}

func TestStripeCancelAndRefund(t *testing.T) {
	client := &fakeStripeClient{}
	p, err := NewStripeProcessor(client, nil)
	require.NoError(t, err)

	require.NoError(t, p.Cancel(context.Background(), "pi_6"))
	assert.Equal(t, []string{"pi_6"}, client.canceled)

	require.NoError(t, p.Refund(context.Background(), "pi_6"))
	require.NoError(t, p.Refund(context.Background(), "ch_6"))
	require.Len(t, client.refunds, 2)
	assert.Equal(t, "pi_6", *client.refunds[0].PaymentIntent)
	assert.Equal(t, "ch_6", *client.refunds[1].Charge)

	require.Error(t, p.Cancel(context.Background(), " "))
}

func TestStripeStatusReadsWithoutConfirming(t *testing.T) {
	client := &fakeStripeClient{
		getRes: &stripe.PaymentIntent{ID: "pi_7", Status: stripe.PaymentIntentStatusSucceeded, LatestCharge: &stripe.Charge{ID: "ch_7"}},
	}
	p, err := NewStripeProcessor(client, nil)
	require.NoError(t, err)

	res, err := p.Status(context.Background(), "pi_7")
	require.NoError(t, err)
	assert.True(t, res.Succeeded())
	assert.Equal(t, "ch_7", res.TransactionID)
	assert.Zero(t, client.confirmed)

	client.getErr = errors.New("connection reset")
	_, err = p.Status(context.Background(), "pi_7")
	require.Error(t, err)
}
