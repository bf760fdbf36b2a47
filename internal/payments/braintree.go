package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"

	bt "github.com/braintree-go/braintree-go"

	"github.com/angelmondragon/storefront-checkout/pkg/checkout"
	"github.com/angelmondragon/storefront-checkout/pkg/logger"
)

// BraintreeProcessor charges vaulted PayPal billing agreements. Braintree has
// no SCA round trip and no idempotency header, so the idempotency key travels
// as the transaction order id.
type BraintreeProcessor struct {
	client BraintreeTransactionClient
	logg   *logger.Logger
}

func NewBraintreeProcessor(client BraintreeTransactionClient, logg *logger.Logger) (*BraintreeProcessor, error) {
	if client == nil {
		return nil, fmt.Errorf("braintree client required")
	}
	return &BraintreeProcessor{client: client, logg: logg}, nil
}

func (p *BraintreeProcessor) Authorize(ctx context.Context, req AuthorizeRequest) (*Result, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	txReq := &bt.TransactionRequest{
		Type:               "sale",
		Amount:             bt.NewDecimal(req.AmountCents, 2),
		PaymentMethodToken: req.PaymentToken,
		MerchantAccountId:  req.MerchantAccountID,
		OrderId:            req.IdempotencyKey,
		Options: &bt.TransactionOptions{
			SubmitForSettlement: !req.ManualCapture,
		},
	}

	tx, err := p.client.Create(ctx, txReq)
	if err != nil {
		var btErr *bt.BraintreeError
		if errors.As(err, &btErr) && btErr.Transaction != nil {
			return transactionResult(btErr.Transaction), nil
		}
		if p.logg != nil {
			p.logg.Error(ctx, "braintree transaction create failed", err)
		}
		return unavailable(), nil
	}
	return transactionResult(tx), nil
}

// Confirm is never reached for Braintree: sales settle without buyer action.
func (p *BraintreeProcessor) Confirm(context.Context, string) (*Result, error) {
	return nil, fmt.Errorf("braintree transactions do not require confirmation")
}

func (p *BraintreeProcessor) Status(ctx context.Context, transactionID string) (*Result, error) {
	if strings.TrimSpace(transactionID) == "" {
		return nil, fmt.Errorf("transaction id required")
	}
	tx, err := p.client.Find(ctx, transactionID)
	if err != nil {
		return nil, fmt.Errorf("find transaction %s: %w", transactionID, err)
	}
	return transactionResult(tx), nil
}

func (p *BraintreeProcessor) Cancel(ctx context.Context, transactionID string) error {
	if strings.TrimSpace(transactionID) == "" {
		return fmt.Errorf("transaction id required")
	}
	if _, err := p.client.Void(ctx, transactionID); err != nil {
		return fmt.Errorf("void transaction %s: %w", transactionID, err)
	}
	return nil
}

// Refund voids a transaction that has not settled yet and refunds it otherwise.
func (p *BraintreeProcessor) Refund(ctx context.Context, transactionID string) error {
	if strings.TrimSpace(transactionID) == "" {
		return fmt.Errorf("transaction id required")
	}
	if _, err := p.client.Void(ctx, transactionID); err == nil {
		return nil
	}
	if _, err := p.client.Refund(ctx, transactionID); err != nil {
		return fmt.Errorf("refund transaction %s: %w", transactionID, err)
	}
	return nil
}

func transactionResult(tx *bt.Transaction) *Result {
	if tx == nil {
		return unavailable()
	}
	switch tx.Status {
	case bt.TransactionStatusAuthorized:
		return &Result{Outcome: OutcomeAuthorized, TransactionID: tx.Id}
	case bt.TransactionStatusSubmittedForSettlement, bt.TransactionStatusSettling, bt.TransactionStatusSettled:
		return &Result{Outcome: OutcomeSucceeded, TransactionID: tx.Id}
	case bt.TransactionStatusProcessorDeclined, bt.TransactionStatusGatewayRejected, bt.TransactionStatusFailed:
		failure := checkout.NewItemError(checkout.ErrCardDeclined)
		if tx.ProcessorResponseText != "" {
			failure = checkout.NewItemErrorf(checkout.ErrCardDeclined, "Your PayPal payment was declined: %s.", tx.ProcessorResponseText)
		}
		return declined(failure)
	}
	return unavailable()
}
