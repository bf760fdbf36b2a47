package controllers

import (
	"context"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-checkout/api/middleware"
	"github.com/angelmondragon/storefront-checkout/api/responses"
	"github.com/angelmondragon/storefront-checkout/api/validators"
	"github.com/angelmondragon/storefront-checkout/internal/chargeable"
	checkoutsvc "github.com/angelmondragon/storefront-checkout/internal/checkout"
	"github.com/angelmondragon/storefront-checkout/internal/lineitems"
	"github.com/angelmondragon/storefront-checkout/internal/purchases"
	pkgerrors "github.com/angelmondragon/storefront-checkout/pkg/errors"
	"github.com/angelmondragon/storefront-checkout/pkg/logger"
)

// CheckoutService is the slice of the checkout core the HTTP layer drives.
type CheckoutService interface {
	Create(ctx context.Context, input checkoutsvc.CreateInput) (*checkoutsvc.CreateResult, error)
	Confirm(ctx context.Context, input checkoutsvc.ConfirmInput) (*checkoutsvc.ConfirmResult, error)
}

// Checkout submits a cart. The response is 200 even when individual line
// items failed; only cart-wide preconditions produce an error envelope.
func Checkout(svc CheckoutService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
			return
		}

		var payload checkoutRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		input, err := payload.toInput(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		ctx := r.Context()
		if logg != nil {
			ctx = logg.WithBrowserGUID(ctx, input.Buyer.BrowserGUID)
		}
		result, err := svc.Create(ctx, input)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

type checkoutRequest struct {
	LineItems     []lineItemRequest     `json:"line_items" validate:"required,min=1,dive"`
	BuyerContact  buyerContactRequest   `json:"buyer_contact"`
	PaymentMethod *paymentMethodRequest `json:"payment_method,omitempty"`
	BrowserGUID   string                `json:"browser_guid" validate:"max=128"`
	CaptchaToken  string                `json:"captcha_token"`
	IsGift        bool                  `json:"is_gift"`
	Giftee        *gifteeRequest        `json:"giftee,omitempty" validate:"required_if=IsGift true"`
	Nonce         string                `json:"nonce" validate:"max=128"`
}

type lineItemRequest struct {
	UID                 string            `json:"uid" validate:"required,max=64"`
	ProductID           uuid.UUID         `json:"product_id" validate:"required"`
	Quantity            int               `json:"quantity" validate:"gte=0"`
	VariantIDs          []uuid.UUID       `json:"variant_ids,omitempty"`
	PerceivedPriceCents int64             `json:"price_cents" validate:"gte=0"`
	CustomFields        map[string]any    `json:"custom_fields,omitempty"`
	CallStartTime       *time.Time        `json:"call_start_time,omitempty"`
	AffiliateID         *uuid.UUID        `json:"affiliate_id,omitempty"`
	RecommendedBy       *string           `json:"recommended_by,omitempty"`
	URLParams           map[string]string `json:"url_parameters,omitempty"`
}

type buyerContactRequest struct {
	Email   string `json:"email" validate:"required,email"`
	Country string `json:"country,omitempty" validate:"omitempty,iso3166_1_alpha2"`
}

type paymentMethodRequest struct {
	Type  string `json:"type" validate:"required"`
	Token string `json:"token" validate:"required,notblank"`
}

type gifteeRequest struct {
	Email string  `json:"email" validate:"required,email"`
	Note  *string `json:"note,omitempty" validate:"omitempty,max=1000"`
}

func (p checkoutRequest) toInput(r *http.Request) (checkoutsvc.CreateInput, error) {
	input := checkoutsvc.CreateInput{
		Items:        make([]lineitems.LineItem, 0, len(p.LineItems)),
		CaptchaToken: strings.TrimSpace(p.CaptchaToken),
		RemoteIP:     clientIP(r),
		Nonce:        strings.TrimSpace(p.Nonce),
		Buyer: purchases.Buyer{
			Email:       validators.NormalizeEmail(p.BuyerContact.Email),
			BrowserGUID: validators.SanitizeString(p.BrowserGUID, 128),
			Country:     buyerCountry(r, p.BuyerContact.Country),
			Signals:     affiliateSignals(r.Cookies()),
		},
	}

	if raw := middleware.UserIDFromContext(r.Context()); raw != "" {
		userID, err := uuid.Parse(raw)
		if err != nil {
			return input, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid buyer id")
		}
		input.Buyer.UserID = &userID
	}

	seen := make(map[string]struct{}, len(p.LineItems))
	for i, item := range p.LineItems {
		uid := strings.TrimSpace(item.UID)
		if _, dup := seen[uid]; dup {
			return input, pkgerrors.New(pkgerrors.CodeValidation, "duplicate line item uid").
				WithDetails(map[string]any{"index": i, "uid": uid})
		}
		seen[uid] = struct{}{}

		quantity := item.Quantity
		if quantity == 0 {
			quantity = 1
		}
		input.Items = append(input.Items, lineitems.LineItem{
			UID:                 uid,
			ProductID:           item.ProductID,
			Quantity:            quantity,
			VariantIDs:          item.VariantIDs,
			PerceivedPriceCents: item.PerceivedPriceCents,
			CustomFields:        item.CustomFields,
			CallStartTime:       item.CallStartTime,
			AffiliateID:         item.AffiliateID,
			RecommendedBy:       item.RecommendedBy,
			URLParams:           item.URLParams,
		})
	}

	if p.PaymentMethod != nil {
		ref, err := chargeable.ParseRef(p.PaymentMethod.Type, p.PaymentMethod.Token)
		if err != nil {
			return input, err
		}
		input.PaymentMethod = ref
	}

	if p.IsGift && p.Giftee != nil {
		input.Gift = &purchases.Gift{
			Email: validators.NormalizeEmail(p.Giftee.Email),
			Note:  p.Giftee.Note,
		}
	}
	return input, nil
}

// buyerCountry prefers the country the buyer typed over the edge geo header.
func buyerCountry(r *http.Request, declared string) string {
	if c := strings.TrimSpace(declared); c != "" {
		return strings.ToUpper(c)
	}
	return strings.ToUpper(strings.TrimSpace(r.Header.Get("CF-IPCountry")))
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
