package braintree

import (
	"context"
	"errors"
	"fmt"
	"strings"

	bt "github.com/braintree-go/braintree-go"

	"github.com/angelmondragon/storefront-checkout/pkg/config"
	"github.com/angelmondragon/storefront-checkout/pkg/logger"
)

var errCredentialsRequired = errors.New("braintree merchant id, public key and private key are required")

// Client owns the Braintree gateway used to charge PayPal billing agreements.
type Client struct {
	gateway     *bt.Braintree
	environment string
}

// NewClient builds the gateway. It returns (nil, nil) when Braintree is not
// configured so callers can run with Stripe only.
func NewClient(ctx context.Context, cfg config.BraintreeConfig, logg *logger.Logger) (*Client, error) {
	if !cfg.Enabled() {
		if cfg.MerchantID != "" || cfg.PublicKey != "" || cfg.PrivateKey != "" {
			return nil, errCredentialsRequired
		}
		return nil, nil
	}
	env, name, err := environment(cfg.Environment)
	if err != nil {
		return nil, err
	}
	gateway := bt.New(env, cfg.MerchantID, cfg.PublicKey, cfg.PrivateKey)
	if logg != nil {
		logg.Info(ctx, fmt.Sprintf("braintree gateway initialized (%s)", name))
	}
	return &Client{gateway: gateway, environment: name}, nil
}

// Transactions exposes the transaction gateway.
func (c *Client) Transactions() *bt.TransactionGateway {
	if c == nil || c.gateway == nil {
		return nil
	}
	return c.gateway.Transaction()
}

func (c *Client) Environment() string {
	if c == nil {
		return ""
	}
	return c.environment
}

func environment(raw string) (bt.Environment, string, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "sandbox":
		return bt.Sandbox, "sandbox", nil
	case "production":
		return bt.Production, "production", nil
	default:
		return bt.Environment{}, "", fmt.Errorf("braintree environment must be %q or %q", "sandbox", "production")
	}
}
