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

func requirePrecondition(t *testing.T, err error, code pkgcheckout.ErrorCode) {
	t.Helper()
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodePrecondition, typed.Code())
	assert.Equal(t, code.Message(), typed.Message())
	assert.Equal(t, map[string]string{"error_code": string(code)}, typed.Details())
}

func TestNewServiceRequiresCollaborators(t *testing.T) {
	h := newHarness(t)
	params := h.params
	params.Grouper = nil
	_, err := NewService(params)
	require.Error(t, err)

	params = h.params
	params.Users = nil
	params.Captcha = nil
	_, err = NewService(params)
	require.NoError(t, err)
}

func TestCreateRejectsEmptyCart(t *testing.T) {
	h := newHarness(t)
	_, err := h.service.Create(context.Background(), CreateInput{})
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeValidation))
}

func TestCreatePaidCartWithoutBrowserGUIDFails(t *testing.T) {
	h := newHarness(t)
	product := h.seedProduct(t, uuid.New(), 1000, nil)
	in := input(item(product, 1000))
	in.Buyer.BrowserGUID = ""

	_, err := h.service.Create(context.Background(), in)
	requirePrecondition(t, err, pkgcheckout.ErrNoCookies)

	var count int64
	require.NoError(t, h.db.Model(&models.Purchase{}).Count(&count).Error)
	assert.Zero(t, count)
	assert.Empty(t, h.router.requests)
}

func TestCreateFreeCartSkipsBrowserAndCaptchaChecks(t *testing.T) {
	h := newHarness(t)
	product := h.seedProduct(t, uuid.New(), 0, nil)
	in := input(item(product, 0))
	in.Buyer.BrowserGUID = ""
	in.PaymentMethod = nil

	result, err := h.service.Create(context.Background(), in)
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Zero(t, h.captcha.calls)
	for _, line := range result.LineItems {
		assert.True(t, line.Success)
		assert.NotEmpty(t, line.ContentURL)
	}
}

func TestCreatePaidItemSubmittedAtZeroStillNeedsGUID(t *testing.T) {
	h := newHarness(t)
	product := h.seedProduct(t, uuid.New(), 1000, nil)
	in := input(item(product, 0))
	in.Buyer.BrowserGUID = ""

	_, err := h.service.Create(context.Background(), in)
	requirePrecondition(t, err, pkgcheckout.ErrNoCookies)
	assert.Zero(t, h.captcha.calls)
	assert.Empty(t, h.router.requests)
}

func TestCreatePaidItemSubmittedAtZeroIsCaptchaChecked(t *testing.T) {
	h := newHarness(t)
	h.captcha.ok = false
	product := h.seedProduct(t, uuid.New(), 1000, nil)

	_, err := h.service.Create(context.Background(), input(item(product, 0)))
	requirePrecondition(t, err, pkgcheckout.ErrNotCaptcha)
	assert.Equal(t, 1, h.captcha.calls)
}

func TestCreateFreeItemRequiringCaptchaStillNeedsGUID(t *testing.T) {
	h := newHarness(t)
	product := h.seedProduct(t, uuid.New(), 0, func(p *models.Product) { p.RequireCaptcha = true })
	in := input(item(product, 0))
	in.Buyer.BrowserGUID = ""

	_, err := h.service.Create(context.Background(), in)
	requirePrecondition(t, err, pkgcheckout.ErrNoCookies)
}

func TestCreateRejectedCaptchaFailsCart(t *testing.T) {
	h := newHarness(t)
	h.captcha.ok = false
	product := h.seedProduct(t, uuid.New(), 1000, nil)

	_, err := h.service.Create(context.Background(), input(item(product, 1000)))
	requirePrecondition(t, err, pkgcheckout.ErrNotCaptcha)
	assert.Equal(t, 1, h.captcha.calls)
}

func TestCreateCaptchaOutageFailsClosed(t *testing.T) {
	h := newHarness(t)
	h.captcha.err = errors.New("siteverify timeout")
	product := h.seedProduct(t, uuid.New(), 1000, nil)

	_, err := h.service.Create(context.Background(), input(item(product, 1000)))
	requirePrecondition(t, err, pkgcheckout.ErrNotCaptcha)
}

func TestCreateReportsEachItemByUID(t *testing.T) {
	h := newHarness(t)
	seller := uuid.New()
	limit := 1
	available := h.seedProduct(t, seller, 1000, nil)
	soldOut := h.seedProduct(t, seller, 500, func(p *models.Product) {
		p.MaxPurchaseCount = &limit
		p.PurchaseCount = 1
	})
	okItem := item(available, 1000)
	soldOutItem := item(soldOut, 500)

	result, err := h.service.Create(context.Background(), input(okItem, soldOutItem))
	require.NoError(t, err)
	assert.True(t, result.Success)
	require.Len(t, result.LineItems, 2)

	ok := result.LineItems[okItem.UID]
	assert.True(t, ok.Success)
	assert.NotEmpty(t, ok.ContentURL)
	require.NotNil(t, ok.Order)
	assert.Equal(t, result.OrderID, ok.Order.ID)
	assert.Equal(t, enums.PurchaseStateSuccessful, ok.Order.State)

	failed := result.LineItems[soldOutItem.UID]
	assert.False(t, failed.Success)
	assert.Equal(t, string(pkgcheckout.ErrSoldOut), failed.ErrorCode)
	assert.Equal(t, pkgcheckout.ErrSoldOut.Message(), failed.ErrorMessage)

	require.Len(t, h.router.requests, 1)
	assert.Equal(t, int64(1000), h.router.requests[0].AmountCents)

	order, err := h.repo.FindOrder(context.Background(), result.OrderID)
	require.NoError(t, err)
	assert.Equal(t, "US", order.IPCountry)
}

func TestCreateEnqueuesOneReceiptPerCharge(t *testing.T) {
	h := newHarness(t)
	sellerA, sellerB := uuid.New(), uuid.New()
	a1 := h.seedProduct(t, sellerA, 1000, nil)
	a2 := h.seedProduct(t, sellerA, 500, nil)
	b1 := h.seedProduct(t, sellerB, 700, nil)

	result, err := h.service.Create(context.Background(), input(item(a1, 1000), item(a2, 500), item(b1, 700)))
	require.NoError(t, err)

	var stored []models.Charge
	require.NoError(t, h.db.Where("order_id = ?", result.OrderID).Find(&stored).Error)
	require.Len(t, stored, 2)
	require.Len(t, h.notifier.receipts, 2)
	for _, charge := range stored {
		assert.Equal(t, 1, h.notifier.receiptsFor(charge.ID))
	}
	assert.Len(t, h.notifier.pings, 3)
	assert.Len(t, h.notifier.attribution, 3)
	assert.Empty(t, h.notifier.abandonment)
}

func TestCreateFreeItemGetsItsOwnReceipt(t *testing.T) {
	h := newHarness(t)
	product := h.seedProduct(t, uuid.New(), 0, nil)

	_, err := h.service.Create(context.Background(), input(item(product, 0)))
	require.NoError(t, err)
	require.Len(t, h.notifier.receipts, 1)
	assert.Nil(t, h.notifier.receipts[0].chargeID)
}

func TestCreateSCAHoldSchedulesAbandonment(t *testing.T) {
	h := newHarness(t)
	product := h.seedProduct(t, uuid.New(), 1000, nil)
	h.router.authorize = []*payments.Result{requiresAction("pi_sca")}
	line := item(product, 1000)

	result, err := h.service.Create(context.Background(), input(line))
	require.NoError(t, err)

	got := result.LineItems[line.UID]
	assert.True(t, got.Success)
	assert.True(t, got.RequiresCardAction)
	assert.Equal(t, "pi_sca_secret", got.ClientSecret)
	assert.Empty(t, got.ContentURL)
	assert.Len(t, h.notifier.abandonment, 1)
	assert.Empty(t, h.notifier.receipts)
	assert.Empty(t, h.notifier.pings)
}

func TestCreateTestPurchaseSkipsAttribution(t *testing.T) {
	h := newHarness(t)
	product := h.seedProduct(t, uuid.New(), 1000, nil)
	in := input(item(product, 1000))
	sellerID := product.SellerID
	in.Buyer.UserID = &sellerID

	_, err := h.service.Create(context.Background(), in)
	require.NoError(t, err)
	assert.Len(t, h.notifier.pings, 1)
	assert.Empty(t, h.notifier.attribution)
}

func TestCreatePanicFailsOnlyThatItem(t *testing.T) {
	h := newHarness(t)
	seller := uuid.New()
	first := item(h.seedProduct(t, seller, 1000, nil), 1000)
	second := item(h.seedProduct(t, seller, 500, nil), 500)

	params := h.params
	params.Executor = panickingExecutor{Executor: h.executor, uid: second.UID}
	service, err := NewService(params)
	require.NoError(t, err)

	result, err := service.Create(context.Background(), input(first, second))
	require.NoError(t, err)
	assert.True(t, result.LineItems[first.UID].Success)
	broken := result.LineItems[second.UID]
	assert.False(t, broken.Success)
	assert.Equal(t, string(pkgcheckout.ErrInternal), broken.ErrorCode)
}

func TestCreateReportsBuyerSignUp(t *testing.T) {
	h := newHarness(t)
	product := h.seedProduct(t, uuid.New(), 1000, nil)

	result, err := h.service.Create(context.Background(), input(item(product, 1000)))
	require.NoError(t, err)
	require.NotNil(t, result.CanBuyerSignUp)
	assert.True(t, *result.CanBuyerSignUp)

	require.NoError(t, h.db.Create(&models.User{Email: "buyer@example.com"}).Error)
	result, err = h.service.Create(context.Background(), input(item(product, 1000)))
	require.NoError(t, err)
	require.NotNil(t, result.CanBuyerSignUp)
	assert.False(t, *result.CanBuyerSignUp)
}

func TestCreateWithoutUserLookupOmitsSignUp(t *testing.T) {
	h := newHarness(t)
	params := h.params
	params.Users = nil
	service, err := NewService(params)
	require.NoError(t, err)
	product := h.seedProduct(t, uuid.New(), 1000, nil)

	result, err := service.Create(context.Background(), input(item(product, 1000)))
	require.NoError(t, err)
	assert.Nil(t, result.CanBuyerSignUp)
}
