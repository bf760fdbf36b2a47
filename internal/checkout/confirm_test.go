package checkout

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/storefront-checkout/internal/payments"
	pkgcheckout "github.com/angelmondragon/storefront-checkout/pkg/checkout"
	"github.com/angelmondragon/storefront-checkout/pkg/db/models"
	"github.com/angelmondragon/storefront-checkout/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-checkout/pkg/errors"
)

// buyerBrowser is the browser every harness checkout submits from.
var buyerBrowser = Requester{BrowserGUID: "guid-1"}

func ownConfirm(id uuid.UUID) ConfirmInput {
	return ConfirmInput{ID: id, Requester: buyerBrowser}
}

// heldOrder creates an order whose items share one charge stuck on SCA.
func heldOrder(t *testing.T, h *harness, prices ...int64) (*CreateResult, []*models.Product) {
	t.Helper()
	seller := uuid.New()
	h.router.authorize = []*payments.Result{requiresAction("pi_1")}
	var products []*models.Product
	in := input()
	for _, price := range prices {
		product := h.seedProduct(t, seller, price, nil)
		products = append(products, product)
		in.Items = append(in.Items, item(product, price))
	}
	result, err := h.service.Create(context.Background(), in)
	require.NoError(t, err)
	for _, line := range result.LineItems {
		require.True(t, line.RequiresCardAction)
	}
	return result, products
}

func orderCharge(t *testing.T, h *harness, orderID uuid.UUID) *models.Charge {
	t.Helper()
	var stored []models.Charge
	require.NoError(t, h.db.Where("order_id = ?", orderID).Find(&stored).Error)
	require.Len(t, stored, 1)
	return &stored[0]
}

func purchaseCount(t *testing.T, h *harness, productID uuid.UUID) int {
	t.Helper()
	var product models.Product
	require.NoError(t, h.db.First(&product, "id = ?", productID).Error)
	return product.PurchaseCount
}

func TestConfirmSettlesHeldChargeWithOneReceipt(t *testing.T) {
	h := newHarness(t)
	created, _ := heldOrder(t, h, 1000, 500)
	charge := orderCharge(t, h, created.OrderID)

	result, err := h.service.Confirm(context.Background(), ownConfirm(created.OrderID))
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Nil(t, result.Purchase)
	require.Len(t, result.LineItems, 2)
	for uid, line := range result.LineItems {
		assert.True(t, line.Success, uid)
		assert.NotEmpty(t, line.ContentURL)
		assert.False(t, line.RequiresCardAction)
	}
	assert.Equal(t, []string{"pi_1"}, h.router.confirmed)
	assert.Equal(t, enums.ChargeStatusSucceeded, h.charge(t, charge.ID).Status)
	assert.Equal(t, 1, h.notifier.receiptsFor(charge.ID))
	assert.Len(t, h.notifier.pings, 2)

	for _, line := range result.LineItems {
		stored := h.reload(t, line.Order.PurchaseID)
		assert.Equal(t, enums.PurchaseStateSuccessful, stored.State)
		assert.Nil(t, stored.AbandonAt)
		require.NotNil(t, stored.ProcessorTransactionID)
		assert.Equal(t, "ch_pi_1", *stored.ProcessorTransactionID)
	}
}

func TestConfirmTwiceDoesNotChargeAgain(t *testing.T) {
	h := newHarness(t)
	created, _ := heldOrder(t, h, 1000, 500)
	charge := orderCharge(t, h, created.OrderID)

	_, err := h.service.Confirm(context.Background(), ownConfirm(created.OrderID))
	require.NoError(t, err)
	again, err := h.service.Confirm(context.Background(), ownConfirm(created.OrderID))
	require.NoError(t, err)

	assert.True(t, again.Success)
	for _, line := range again.LineItems {
		assert.True(t, line.Success)
		assert.NotEmpty(t, line.ContentURL)
	}
	assert.Len(t, h.router.confirmed, 1)
	assert.Equal(t, 1, h.notifier.receiptsFor(charge.ID))
}

func TestConfirmSinglePurchaseSettlesItsWholeCharge(t *testing.T) {
	h := newHarness(t)
	created, _ := heldOrder(t, h, 1000, 500)
	charge := orderCharge(t, h, created.OrderID)
	var target, sibling uuid.UUID
	for _, line := range created.LineItems {
		if target == uuid.Nil {
			target = line.Order.PurchaseID
			continue
		}
		sibling = line.Order.PurchaseID
	}

	result, err := h.service.Confirm(context.Background(), ownConfirm(target))
	require.NoError(t, err)
	require.NotNil(t, result.Purchase)
	assert.True(t, result.Purchase.Success)
	assert.Len(t, result.LineItems, 1)

	assert.Equal(t, enums.PurchaseStateSuccessful, h.reload(t, sibling).State)
	assert.Equal(t, 1, h.notifier.receiptsFor(charge.ID))
	require.Len(t, h.notifier.receipts, 1)
	assert.Len(t, h.notifier.receipts[0].purchases, 2)
}

func TestConfirmFailedPurchaseIsPaymentFailed(t *testing.T) {
	h := newHarness(t)
	limit := 1
	product := h.seedProduct(t, uuid.New(), 1000, func(p *models.Product) {
		p.MaxPurchaseCount = &limit
		p.PurchaseCount = 1
	})
	line := item(product, 1000)
	created, err := h.service.Create(context.Background(), input(line))
	require.NoError(t, err)
	require.False(t, created.LineItems[line.UID].Success)

	_, err = h.service.Confirm(context.Background(), ownConfirm(created.LineItems[line.UID].Order.PurchaseID))
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodePaymentFailed))
	assert.Empty(t, h.router.confirmed)
}

func TestConfirmUnknownIDIsNotFound(t *testing.T) {
	h := newHarness(t)
	_, err := h.service.Confirm(context.Background(), ownConfirm(uuid.New()))
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeNotFound))

	_, err = h.service.Confirm(context.Background(), ConfirmInput{Requester: buyerBrowser})
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeValidation))
}

func TestConfirmClientErrorFailsHeldPurchases(t *testing.T) {
	h := newHarness(t)
	created, products := heldOrder(t, h, 1000)
	charge := orderCharge(t, h, created.OrderID)
	require.Equal(t, 1, purchaseCount(t, h, products[0].ID))

	result, err := h.service.Confirm(context.Background(), ConfirmInput{
		ID:          created.OrderID,
		Requester:   buyerBrowser,
		ClientError: &ClientError{Code: "authentication_failed", Message: "We could not authenticate your card."},
	})
	require.NoError(t, err)
	assert.False(t, result.Success)
	for _, line := range result.LineItems {
		assert.False(t, line.Success)
		assert.Equal(t, string(pkgcheckout.ErrRequiresSCA), line.ErrorCode)
		assert.Equal(t, "We could not authenticate your card.", line.ErrorMessage)
		assert.Equal(t, enums.PurchaseStateFailed, h.reload(t, line.Order.PurchaseID).State)
	}
	assert.Empty(t, h.router.confirmed)
	assert.Equal(t, []string{"pi_1"}, h.router.canceled)
	assert.Equal(t, enums.ChargeStatusCanceled, h.charge(t, charge.ID).Status)
	assert.Equal(t, 0, purchaseCount(t, h, products[0].ID))
}

func TestConfirmClientErrorWithoutMessageUsesDefault(t *testing.T) {
	h := newHarness(t)
	created, _ := heldOrder(t, h, 1000)

	result, err := h.service.Confirm(context.Background(), ConfirmInput{ID: created.OrderID, Requester: buyerBrowser, ClientError: &ClientError{}})
	require.NoError(t, err)
	for _, line := range result.LineItems {
		assert.Equal(t, pkgcheckout.ErrRequiresSCA.Message(), line.ErrorMessage)
	}
}

func TestConfirmProcessorOutageReportsGenericMessage(t *testing.T) {
	h := newHarness(t)
	created, _ := heldOrder(t, h, 1000)
	h.router.confirmErr = errors.New("dial tcp: i/o timeout")

	result, err := h.service.Confirm(context.Background(), ownConfirm(created.OrderID))
	require.NoError(t, err)
	for _, line := range result.LineItems {
		assert.False(t, line.Success)
		assert.Equal(t, string(pkgcheckout.ErrProcessorUnavailable), line.ErrorCode)
		assert.Equal(t, pkgcheckout.ErrProcessorUnavailable.Message(), line.ErrorMessage)
		assert.NotContains(t, line.ErrorMessage, "timeout")
	}
}

func TestConfirmDeclineFailsTheCharge(t *testing.T) {
	h := newHarness(t)
	created, _ := heldOrder(t, h, 1000, 500)
	charge := orderCharge(t, h, created.OrderID)
	h.router.confirm = []*payments.Result{{
		Outcome: payments.OutcomeDeclined,
		Failure: pkgcheckout.NewItemError(pkgcheckout.ErrCardDeclined),
	}}

	result, err := h.service.Confirm(context.Background(), ownConfirm(created.OrderID))
	require.NoError(t, err)
	assert.False(t, result.Success)
	for _, line := range result.LineItems {
		assert.Equal(t, string(pkgcheckout.ErrCardDeclined), line.ErrorCode)
	}
	assert.Equal(t, enums.ChargeStatusCanceled, h.charge(t, charge.ID).Status)
	assert.Empty(t, h.notifier.receipts)
}

func TestConfirmStillRequiringActionStaysPending(t *testing.T) {
	h := newHarness(t)
	created, _ := heldOrder(t, h, 1000)
	h.router.confirm = []*payments.Result{requiresAction("pi_1")}

	result, err := h.service.Confirm(context.Background(), ownConfirm(created.OrderID))
	require.NoError(t, err)
	assert.True(t, result.Success)
	for _, line := range result.LineItems {
		assert.True(t, line.RequiresCardAction)
		assert.Equal(t, "pi_1_secret", line.ClientSecret)
		assert.Equal(t, enums.PurchaseStateInProgress, h.reload(t, line.Order.PurchaseID).State)
	}
}

func TestConfirmByAnotherBuyerIsNotFound(t *testing.T) {
	h := newHarness(t)
	created, _ := heldOrder(t, h, 1000)
	var purchaseID uuid.UUID
	for _, line := range created.LineItems {
		purchaseID = line.Order.PurchaseID
	}
	stranger := Requester{BrowserGUID: "guid-2"}

	for _, id := range []uuid.UUID{created.OrderID, purchaseID} {
		_, err := h.service.Confirm(context.Background(), ConfirmInput{
			ID:          id,
			Requester:   stranger,
			ClientError: &ClientError{Message: "declined"},
		})
		assert.True(t, pkgerrors.Is(err, pkgerrors.CodeNotFound))
	}
	assert.Empty(t, h.router.canceled)
	assert.Empty(t, h.router.confirmed)
	assert.Equal(t, enums.PurchaseStateInProgress, h.reload(t, purchaseID).State)
}

func TestConfirmBySignedInBuyerFromAnotherBrowser(t *testing.T) {
	h := newHarness(t)
	userID := uuid.New()
	seller := uuid.New()
	h.router.authorize = []*payments.Result{requiresAction("pi_1")}
	product := h.seedProduct(t, seller, 1000, nil)
	in := input(item(product, 1000))
	in.Buyer.UserID = &userID
	created, err := h.service.Create(context.Background(), in)
	require.NoError(t, err)

	_, err = h.service.Confirm(context.Background(), ConfirmInput{
		ID:        created.OrderID,
		Requester: Requester{UserID: &userID, BrowserGUID: "phone"},
	})
	require.NoError(t, err)

	other := uuid.New()
	_, err = h.service.Confirm(context.Background(), ConfirmInput{
		ID:        created.OrderID,
		Requester: Requester{UserID: &other},
	})
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeNotFound))
}

func TestConfirmClientErrorOnCapturedIntentSettles(t *testing.T) {
	h := newHarness(t)
	created, _ := heldOrder(t, h, 1000, 500)
	charge := orderCharge(t, h, created.OrderID)
	h.router.cancelErr = errors.New("You cannot cancel this PaymentIntent because it has a status of succeeded.")
	h.router.status = &payments.Result{Outcome: payments.OutcomeSucceeded, IntentID: "pi_1", TransactionID: "ch_pi_1"}

	result, err := h.service.Confirm(context.Background(), ConfirmInput{
		ID:          created.OrderID,
		Requester:   buyerBrowser,
		ClientError: &ClientError{Message: "Authentication failed."},
	})
	require.NoError(t, err)
	assert.True(t, result.Success)
	for _, line := range result.LineItems {
		assert.True(t, line.Success)
		assert.Equal(t, enums.PurchaseStateSuccessful, h.reload(t, line.Order.PurchaseID).State)
	}
	assert.Equal(t, enums.ChargeStatusSucceeded, h.charge(t, charge.ID).Status)
	assert.Empty(t, h.router.refunded)
	assert.Equal(t, 1, h.notifier.receiptsFor(charge.ID))
}

func TestConfirmClientErrorKeepsPendingWhenCancelUnresolved(t *testing.T) {
	h := newHarness(t)
	created, _ := heldOrder(t, h, 1000)
	charge := orderCharge(t, h, created.OrderID)
	h.router.cancelErr = errors.New("stripe: connection reset")

	result, err := h.service.Confirm(context.Background(), ConfirmInput{
		ID:          created.OrderID,
		Requester:   buyerBrowser,
		ClientError: &ClientError{},
	})
	require.NoError(t, err)
	assert.False(t, result.Success)
	for _, line := range result.LineItems {
		assert.Equal(t, string(pkgcheckout.ErrProcessorUnavailable), line.ErrorCode)
		assert.Equal(t, enums.PurchaseStateInProgress, h.reload(t, line.Order.PurchaseID).State)
	}
	assert.Equal(t, enums.ChargeStatusRequiresAction, h.charge(t, charge.ID).Status)
}

func TestReconcileSettlesCapturedCharge(t *testing.T) {
	h := newHarness(t)
	created, _ := heldOrder(t, h, 1000, 500)
	charge := orderCharge(t, h, created.OrderID)
	var purchaseID uuid.UUID
	for _, line := range created.LineItems {
		purchaseID = line.Order.PurchaseID
	}

	require.NoError(t, h.service.Reconcile(context.Background(), purchaseID))
	assert.Equal(t, enums.ChargeStatusSucceeded, h.charge(t, charge.ID).Status)
	for _, line := range created.LineItems {
		assert.Equal(t, enums.PurchaseStateSuccessful, h.reload(t, line.Order.PurchaseID).State)
	}
	require.NoError(t, h.service.Reconcile(context.Background(), purchaseID))
	assert.Len(t, h.router.confirmed, 1)
}
