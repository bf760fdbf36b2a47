package controllers

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-checkout/api/middleware"
	"github.com/angelmondragon/storefront-checkout/api/responses"
	"github.com/angelmondragon/storefront-checkout/api/validators"
	checkoutsvc "github.com/angelmondragon/storefront-checkout/internal/checkout"
	pkgerrors "github.com/angelmondragon/storefront-checkout/pkg/errors"
	"github.com/angelmondragon/storefront-checkout/pkg/logger"
)

const browserGUIDHeader = "X-Browser-Guid"

type confirmRequest struct {
	ID          uuid.UUID           `json:"id" validate:"required"`
	BrowserGUID string              `json:"browser_guid" validate:"max=128"`
	StripeError *stripeErrorRequest `json:"stripe_error,omitempty"`
}

type stripeErrorRequest struct {
	Code    string `json:"code"`
	Message string `json:"message" validate:"max=500"`
}

// CheckoutConfirm finishes purchases held for card authentication. A
// single-purchase confirm answers with that purchase's result directly.
func CheckoutConfirm(svc CheckoutService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
			return
		}

		var payload confirmRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		requester, err := confirmRequester(r, payload.BrowserGUID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		input := checkoutsvc.ConfirmInput{ID: payload.ID, Requester: requester}
		if se := payload.StripeError; se != nil {
			input.ClientError = &checkoutsvc.ClientError{
				Code:    strings.TrimSpace(se.Code),
				Message: strings.TrimSpace(se.Message),
			}
		}

		ctx := r.Context()
		if logg != nil {
			ctx = logg.WithField(ctx, "confirm_id", payload.ID.String())
		}
		result, err := svc.Confirm(ctx, input)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		if result.Purchase != nil {
			responses.WriteSuccess(w, result.Purchase)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

// confirmRequester identifies the caller by account and by browser. The
// browser guid comes from the body, falling back to the header the storefront
// sends on every request.
func confirmRequester(r *http.Request, bodyGUID string) (checkoutsvc.Requester, error) {
	guid := strings.TrimSpace(bodyGUID)
	if guid == "" {
		guid = strings.TrimSpace(r.Header.Get(browserGUIDHeader))
	}
	requester := checkoutsvc.Requester{BrowserGUID: validators.SanitizeString(guid, 128)}
	if raw := middleware.UserIDFromContext(r.Context()); raw != "" {
		userID, err := uuid.Parse(raw)
		if err != nil {
			return requester, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid buyer id")
		}
		requester.UserID = &userID
	}
	return requester, nil
}
