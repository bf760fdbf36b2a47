package checkout

import (
	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-checkout/internal/chargeable"
	"github.com/angelmondragon/storefront-checkout/internal/lineitems"
	"github.com/angelmondragon/storefront-checkout/internal/purchases"
	pkgcheckout "github.com/angelmondragon/storefront-checkout/pkg/checkout"
	"github.com/angelmondragon/storefront-checkout/pkg/enums"
)

// CreateInput is one cart submission. PaymentMethod may be nil when every
// item is free.
type CreateInput struct {
	Items         []lineitems.LineItem
	Buyer         purchases.Buyer
	PaymentMethod chargeable.PaymentMethodRef
	CaptchaToken  string
	RemoteIP      string
	Nonce         string
	Gift          *purchases.Gift
}

// ConfirmInput references an order or a single purchase. ClientError is set
// when the buyer's browser reported that authentication failed.
type ConfirmInput struct {
	ID          uuid.UUID
	Requester   Requester
	ClientError *ClientError
}

// Requester is who asks to confirm: the signed-in buyer, the browser that
// checked out, or both.
type Requester struct {
	UserID      *uuid.UUID
	BrowserGUID string
}

// owns reports whether the requester placed the order behind buyerUserID and
// browserGUID. Either the account or the browser has to match.
func (r Requester) owns(buyerUserID *uuid.UUID, browserGUID string) bool {
	if r.UserID != nil && buyerUserID != nil && *r.UserID == *buyerUserID {
		return true
	}
	return browserGUID != "" && r.BrowserGUID == browserGUID
}

// ClientError is the processor error the browser saw during SCA.
type ClientError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// OrderRef describes the purchase behind one line item.
type OrderRef struct {
	ID         uuid.UUID           `json:"id"`
	PurchaseID uuid.UUID           `json:"purchase_id"`
	State      enums.PurchaseState `json:"state"`
	PriceCents int64               `json:"price_cents"`
	TotalCents int64               `json:"total_cents"`
}

// LineItemResult is the outcome reported for one client line item uid.
type LineItemResult struct {
	Success            bool      `json:"success"`
	ErrorCode          string    `json:"error_code,omitempty"`
	ErrorMessage       string    `json:"error_message,omitempty"`
	RequiresCardAction bool      `json:"requires_card_action,omitempty"`
	ClientSecret       string    `json:"client_secret,omitempty"`
	ContentURL         string    `json:"content_url,omitempty"`
	Order              *OrderRef `json:"order,omitempty"`
}

// CreateResult is the composite response for a cart. Success stays true when
// individual items failed; only cart-wide preconditions fail the call.
type CreateResult struct {
	Success        bool                      `json:"success"`
	OrderID        uuid.UUID                 `json:"order_id"`
	CanBuyerSignUp *bool                     `json:"can_buyer_sign_up"`
	LineItems      map[string]LineItemResult `json:"line_items"`
}

// ConfirmResult mirrors CreateResult for the purchases a confirm touched.
// Purchase is set when the confirm referenced a single purchase.
type ConfirmResult struct {
	Success   bool                      `json:"success"`
	LineItems map[string]LineItemResult `json:"line_items"`
	Purchase  *LineItemResult           `json:"-"`
}

func resultFor(attempt *purchases.Attempt) LineItemResult {
	out := LineItemResult{}
	if p := attempt.Purchase; p != nil {
		out.Order = &OrderRef{
			ID:         p.OrderID,
			PurchaseID: p.ID,
			State:      p.State,
			PriceCents: p.PriceCents,
			TotalCents: p.TotalTransactionCents,
		}
	}
	switch {
	case attempt.Failure != nil:
		out.ErrorCode = string(attempt.Failure.Code)
		out.ErrorMessage = attempt.Failure.Message
	case attempt.RequiresAction():
		out.Success = true
		out.RequiresCardAction = true
		out.ClientSecret = *attempt.Purchase.ClientSecret
	case attempt.Succeeded():
		out.Success = true
		out.ContentURL = attempt.ContentURL
	default:
		out.ErrorCode = string(pkgcheckout.ErrInternal)
		out.ErrorMessage = pkgcheckout.ErrInternal.Message()
	}
	return out
}
