package controllers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/storefront-checkout/api/middleware"
	checkoutsvc "github.com/angelmondragon/storefront-checkout/internal/checkout"
	pkgerrors "github.com/angelmondragon/storefront-checkout/pkg/errors"
)

func TestCheckoutConfirmReturnsOrderShape(t *testing.T) {
	svc := &stubCheckoutService{confirm: &checkoutsvc.ConfirmResult{
		Success:   true,
		LineItems: map[string]checkoutsvc.LineItemResult{"a": {Success: true, ContentURL: "https://example.com/c"}},
	}}
	orderID := uuid.New()
	body := fmt.Sprintf(`{"id": %q}`, orderID)
	rec := httptest.NewRecorder()

	CheckoutConfirm(svc, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/checkout/confirm", strings.NewReader(body)))

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Len(t, svc.confirmed, 1)
	assert.Equal(t, orderID, svc.confirmed[0].ID)
	assert.Nil(t, svc.confirmed[0].ClientError)

	var result checkoutsvc.ConfirmResult
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, rec).Data, &result))
	assert.Equal(t, "https://example.com/c", result.LineItems["a"].ContentURL)
}

func TestCheckoutConfirmFlattensSinglePurchase(t *testing.T) {
	single := checkoutsvc.LineItemResult{Success: true, ContentURL: "https://example.com/p"}
	svc := &stubCheckoutService{confirm: &checkoutsvc.ConfirmResult{
		Success:   true,
		LineItems: map[string]checkoutsvc.LineItemResult{"x": single},
		Purchase:  &single,
	}}
	rec := httptest.NewRecorder()

	CheckoutConfirm(svc, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/checkout/confirm", strings.NewReader(fmt.Sprintf(`{"id": %q}`, uuid.New()))))

	require.Equal(t, http.StatusOK, rec.Code)
	var flat map[string]any
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, rec).Data, &flat))
	assert.Equal(t, true, flat["success"])
	assert.Equal(t, "https://example.com/p", flat["content_url"])
	assert.NotContains(t, flat, "line_items")
}

func TestCheckoutConfirmForwardsClientError(t *testing.T) {
	svc := &stubCheckoutService{confirm: &checkoutsvc.ConfirmResult{Success: true}}
	body := fmt.Sprintf(`{"id": %q, "stripe_error": {"code": "card_declined", "message": " Authentication failed. "}}`, uuid.New())
	rec := httptest.NewRecorder()

	CheckoutConfirm(svc, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/checkout/confirm", strings.NewReader(body)))

	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, svc.confirmed[0].ClientError)
	assert.Equal(t, "card_declined", svc.confirmed[0].ClientError.Code)
	assert.Equal(t, "Authentication failed.", svc.confirmed[0].ClientError.Message)
}

func TestCheckoutConfirmRequiresID(t *testing.T) {
	svc := &stubCheckoutService{}
	rec := httptest.NewRecorder()

	CheckoutConfirm(svc, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/checkout/confirm", strings.NewReader(`{}`)))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, svc.confirmed)
}

func TestCheckoutConfirmPaymentFailed(t *testing.T) {
	svc := &stubCheckoutService{err: pkgerrors.New(pkgerrors.CodePaymentFailed, "Your payment failed. Please try again.")}
	rec := httptest.NewRecorder()

	CheckoutConfirm(svc, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/checkout/confirm", strings.NewReader(fmt.Sprintf(`{"id": %q}`, uuid.New()))))

	assert.Equal(t, http.StatusPaymentRequired, rec.Code)
	assert.Equal(t, "Your payment failed. Please try again.", decodeEnvelope(t, rec).Error.Message)
}

func TestCheckoutConfirmIdentifiesRequester(t *testing.T) {
	svc := &stubCheckoutService{confirm: &checkoutsvc.ConfirmResult{Success: true}}
	userID := uuid.New()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/checkout/confirm", strings.NewReader(fmt.Sprintf(`{"id": %q}`, uuid.New())))
	req.Header.Set("X-Browser-Guid", " guid-7 ")
	req = req.WithContext(middleware.WithUserID(req.Context(), userID.String()))
	rec := httptest.NewRecorder()
	CheckoutConfirm(svc, nil).ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	got := svc.confirmed[0].Requester
	assert.Equal(t, "guid-7", got.BrowserGUID)
	require.NotNil(t, got.UserID)
	assert.Equal(t, userID, *got.UserID)

	body := fmt.Sprintf(`{"id": %q, "browser_guid": "guid-body"}`, uuid.New())
	req = httptest.NewRequest(http.MethodPost, "/api/v1/checkout/confirm", strings.NewReader(body))
	req.Header.Set("X-Browser-Guid", "guid-header")
	CheckoutConfirm(svc, nil).ServeHTTP(httptest.NewRecorder(), req)
	assert.Equal(t, "guid-body", svc.confirmed[1].Requester.BrowserGUID)
	assert.Nil(t, svc.confirmed[1].Requester.UserID)
}
