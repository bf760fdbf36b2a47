package stripe

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v84"

	"github.com/angelmondragon/storefront-checkout/pkg/config"
	"github.com/angelmondragon/storefront-checkout/pkg/logger"
)

const (
	testEnv = "test"
	liveEnv = "live"
)

// keyPrefixes lists the secret and restricted key prefixes valid per env.
var keyPrefixes = map[string][]string{
	testEnv: {"sk_test", "rk_test"},
	liveEnv: {"sk_live", "rk_live"},
}

var (
	errAPIKeyRequired   = errors.New("stripe api key is required")
	errInvalidStripeEnv = fmt.Errorf("stripe environment must be %q or %q", testEnv, liveEnv)
)

// Client is the process-wide Stripe API handle the card processor charges
// through. A test-mode client never moves real money.
type Client struct {
	api         *stripe.Client
	environment string
}

// NewClient refuses a key whose mode disagrees with the configured env, so
// a staging deploy cannot charge live cards by accident.
func NewClient(ctx context.Context, cfg config.StripeConfig, logg *logger.Logger) (*Client, error) {
	env, ok := knownEnv(cfg.Environment())
	if !ok {
		return nil, errInvalidStripeEnv
	}
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errAPIKeyRequired
	}
	if !matchesEnv(env, apiKey) {
		return nil, fmt.Errorf("stripe environment %q requires a %s key (%s)", env, env, strings.Join(keyPrefixes[env], "/"))
	}

	// The package-level resource APIs the processor calls read the global key
	// and backend, so both are configured once here.
	stripe.Key = apiKey
	stripe.SetBackend(stripe.APIBackend, stripe.GetBackendWithConfig(stripe.APIBackend, &stripe.BackendConfig{
		MaxNetworkRetries: stripe.Int64(cfg.MaxRetries),
		LeveledLogger:     leveledLogger{logg: logg},
	}))
	client := &Client{api: stripe.NewClient(apiKey), environment: env}
	if logg != nil {
		logg.Info(logg.WithFields(ctx, map[string]any{
			"stripe_env":     env,
			"stripe_retries": cfg.MaxRetries,
		}), "stripe client initialized")
	}
	return client, nil
}

func (c *Client) API() *stripe.Client {
	if c == nil {
		return nil
	}
	return c.api
}

// Environment reports the normalized Stripe environment in use.
func (c *Client) Environment() string {
	if c == nil {
		return ""
	}
	return c.environment
}

// Live reports whether charges move real money.
func (c *Client) Live() bool {
	return c.Environment() == liveEnv
}

func knownEnv(raw string) (string, bool) {
	env := strings.ToLower(strings.TrimSpace(raw))
	if env == "" {
		env = testEnv
	}
	_, ok := keyPrefixes[env]
	return env, ok
}

func matchesEnv(env, key string) bool {
	for _, prefix := range keyPrefixes[env] {
		if strings.HasPrefix(key, prefix) {
			return true
		}
	}
	return false
}

// leveledLogger forwards stripe-go's request logging. Stripe logs its own
// retries and failures at warn and error; debug and info stay local.
type leveledLogger struct {
	logg *logger.Logger
}

func (l leveledLogger) Debugf(format string, v ...any) {
	if l.logg != nil {
		l.logg.Debug(context.Background(), "stripe: "+fmt.Sprintf(format, v...))
	}
}

func (l leveledLogger) Infof(format string, v ...any) {
	l.Debugf(format, v...)
}

func (l leveledLogger) Warnf(format string, v ...any) {
	if l.logg != nil {
		l.logg.Warn(context.Background(), "stripe: "+fmt.Sprintf(format, v...))
	}
}

func (l leveledLogger) Errorf(format string, v ...any) {
	if l.logg != nil {
		l.logg.Error(context.Background(), "stripe request failed", fmt.Errorf(format, v...))
	}
}
