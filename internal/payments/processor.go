// Package payments hides the payment processors behind one authorize/confirm
// contract. Declines and outages come back as results, not errors, so a
// failed authorization is reported once and never retried transparently.
package payments

import (
	"context"
	"fmt"
	"strings"

	"github.com/angelmondragon/storefront-checkout/pkg/checkout"
	"github.com/angelmondragon/storefront-checkout/pkg/enums"
)

// Outcome is the normalized processor answer for one authorization.
type Outcome string

const (
	OutcomeSucceeded      Outcome = "succeeded"
	OutcomeAuthorized     Outcome = "authorized"
	OutcomeRequiresAction Outcome = "requires_action"
	OutcomeDeclined       Outcome = "declined"
	OutcomeUnavailable    Outcome = "unavailable"
)

// AuthorizeRequest describes one money movement. ManualCapture places a hold
// that is captured later (preorders).
type AuthorizeRequest struct {
	Processor           enums.Processor
	IdempotencyKey      string
	AmountCents         int64
	ApplicationFeeCents int64
	Currency            enums.Currency
	MerchantAccountID   string
	PaymentToken        string
	CustomerID          string
	ManualCapture       bool
	Description         string
	Metadata            map[string]string
}

func (r AuthorizeRequest) validate() error {
	if strings.TrimSpace(r.IdempotencyKey) == "" {
		return fmt.Errorf("idempotency key required")
	}
	if r.AmountCents <= 0 {
		return fmt.Errorf("amount must be positive")
	}
	if strings.TrimSpace(r.PaymentToken) == "" && strings.TrimSpace(r.CustomerID) == "" {
		return fmt.Errorf("payment token required")
	}
	if !r.Currency.IsValid() {
		return fmt.Errorf("unsupported currency %q", r.Currency)
	}
	return nil
}

// Result carries processor references and, for declines and outages, the
// user-safe failure to attach to every affected purchase.
type Result struct {
	Outcome       Outcome
	TransactionID string
	IntentID      string
	ClientSecret  string
	Failure       *checkout.ItemError
}

// Succeeded reports whether money was captured or a hold was placed.
func (r *Result) Succeeded() bool {
	return r != nil && (r.Outcome == OutcomeSucceeded || r.Outcome == OutcomeAuthorized)
}

// RequiresAction reports whether the buyer must complete SCA before confirm.
func (r *Result) RequiresAction() bool {
	return r != nil && r.Outcome == OutcomeRequiresAction
}

func declined(failure *checkout.ItemError) *Result {
	if failure == nil {
		failure = checkout.NewItemError(checkout.ErrCardDeclined)
	}
	return &Result{Outcome: OutcomeDeclined, Failure: failure}
}

func unavailable() *Result {
	return &Result{Outcome: OutcomeUnavailable, Failure: checkout.NewItemError(checkout.ErrProcessorUnavailable)}
}

// Processor is implemented by each processor adapter.
type Processor interface {
	Authorize(ctx context.Context, req AuthorizeRequest) (*Result, error)
	// Confirm finalizes an intent after the buyer completed SCA.
	Confirm(ctx context.Context, intentID string) (*Result, error)
	// Status reads the intent without changing it.
	Status(ctx context.Context, intentID string) (*Result, error)
	// Cancel releases an unconfirmed intent or an uncaptured hold.
	Cancel(ctx context.Context, intentID string) error
	// Refund returns captured money in full.
	Refund(ctx context.Context, transactionID string) error
}
