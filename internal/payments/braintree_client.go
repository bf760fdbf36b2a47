package payments

import (
	"context"

	bt "github.com/braintree-go/braintree-go"

	pkgbraintree "github.com/angelmondragon/storefront-checkout/pkg/braintree"
)

// BraintreeTransactionClient exposes the subset of Braintree operations required by the braintree processor.
type BraintreeTransactionClient interface {
	Create(ctx context.Context, req *bt.TransactionRequest) (*bt.Transaction, error)
	Find(ctx context.Context, id string) (*bt.Transaction, error)
	Void(ctx context.Context, id string) (*bt.Transaction, error)
	Refund(ctx context.Context, id string) (*bt.Transaction, error)
}

type braintreeClientWrapper struct {
	gateway *bt.TransactionGateway
}

// NewBraintreeClient returns nil when Braintree is not configured.
func NewBraintreeClient(client *pkgbraintree.Client) BraintreeTransactionClient {
	gateway := client.Transactions()
	if gateway == nil {
		return nil
	}
	return &braintreeClientWrapper{gateway: gateway}
}

func (w *braintreeClientWrapper) Create(ctx context.Context, req *bt.TransactionRequest) (*bt.Transaction, error) {
	return w.gateway.Create(ctx, req)
}

func (w *braintreeClientWrapper) Find(ctx context.Context, id string) (*bt.Transaction, error) {
	return w.gateway.Find(ctx, id)
}

func (w *braintreeClientWrapper) Void(ctx context.Context, id string) (*bt.Transaction, error) {
	return w.gateway.Void(ctx, id)
}

func (w *braintreeClientWrapper) Refund(ctx context.Context, id string) (*bt.Transaction, error) {
	return w.gateway.Refund(ctx, id)
}
