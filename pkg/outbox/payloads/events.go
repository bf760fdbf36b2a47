package payloads

import (
	"time"

	"github.com/google/uuid"
)

// ReceiptRequestedEvent asks the mailer to send one receipt. ChargeID is set
// when the purchases were paid together; free, test and preorder purchases
// get a receipt of their own.
type ReceiptRequestedEvent struct {
	OrderID     uuid.UUID   `json:"order_id"`
	ChargeID    *uuid.UUID  `json:"charge_id,omitempty"`
	PurchaseIDs []uuid.UUID `json:"purchase_ids"`
	BuyerEmail  string      `json:"buyer_email"`
	AmountCents int64       `json:"amount_cents"`
	Currency    string      `json:"currency"`
}

// PingRequestedEvent triggers the seller's sale notification webhook.
type PingRequestedEvent struct {
	PurchaseID uuid.UUID         `json:"purchase_id"`
	ProductID  uuid.UUID         `json:"product_id"`
	SellerID   uuid.UUID         `json:"seller_id"`
	URLParams  map[string]string `json:"url_params,omitempty"`
}

// UTMAttributionRequestedEvent links a successful purchase to the browser's
// campaign visits.
type UTMAttributionRequestedEvent struct {
	PurchaseID  uuid.UUID `json:"purchase_id"`
	BrowserGUID string    `json:"browser_guid"`
}

// PurchaseAbandonmentScheduledEvent records when an SCA-pending purchase times out.
type PurchaseAbandonmentScheduledEvent struct {
	PurchaseID uuid.UUID `json:"purchase_id"`
	OrderID    uuid.UUID `json:"order_id"`
	AbandonAt  time.Time `json:"abandon_at"`
}

// PurchaseAbandonedEvent is emitted when the sweeper fails an unconfirmed purchase.
type PurchaseAbandonedEvent struct {
	PurchaseID uuid.UUID  `json:"purchase_id"`
	OrderID    uuid.UUID  `json:"order_id"`
	ChargeID   *uuid.UUID `json:"charge_id,omitempty"`
	Reason     string     `json:"reason"`
}
