package checkout

import (
	"context"
	"fmt"

	"github.com/angelmondragon/storefront-checkout/internal/access"
	"github.com/angelmondragon/storefront-checkout/internal/affiliates"
	"github.com/angelmondragon/storefront-checkout/internal/catalog"
	"github.com/angelmondragon/storefront-checkout/internal/chargeable"
	"github.com/angelmondragon/storefront-checkout/internal/charges"
	"github.com/angelmondragon/storefront-checkout/internal/lineitems"
	"github.com/angelmondragon/storefront-checkout/internal/notifications"
	"github.com/angelmondragon/storefront-checkout/internal/orders"
	"github.com/angelmondragon/storefront-checkout/internal/payments"
	"github.com/angelmondragon/storefront-checkout/internal/purchases"
	"github.com/angelmondragon/storefront-checkout/internal/tax"
	"github.com/angelmondragon/storefront-checkout/internal/users"
	pkgbraintree "github.com/angelmondragon/storefront-checkout/pkg/braintree"
	"github.com/angelmondragon/storefront-checkout/pkg/captcha"
	"github.com/angelmondragon/storefront-checkout/pkg/config"
	"github.com/angelmondragon/storefront-checkout/pkg/db"
	"github.com/angelmondragon/storefront-checkout/pkg/enums"
	"github.com/angelmondragon/storefront-checkout/pkg/logger"
	"github.com/angelmondragon/storefront-checkout/pkg/metrics"
	"github.com/angelmondragon/storefront-checkout/pkg/money"
	"github.com/angelmondragon/storefront-checkout/pkg/outbox"
	"github.com/angelmondragon/storefront-checkout/pkg/redis"
	pkgstripe "github.com/angelmondragon/storefront-checkout/pkg/stripe"
)

// StackParams are the process-wide clients the checkout core is built on.
type StackParams struct {
	Config  *config.Config
	Logger  *logger.Logger
	DB      *db.Client
	Redis   *redis.Client
	Metrics *metrics.CheckoutMetrics
}

// Stack is the assembled checkout core. The cron worker reuses its executor,
// payment router and notifications for the abandonment sweep.
type Stack struct {
	Service       *Service
	Executor      *purchases.Executor
	Payments      *payments.Router
	Notifications *notifications.Service
	Repo          orders.Repository
}

func NewStack(ctx context.Context, params StackParams) (*Stack, error) {
	cfg, logg := params.Config, params.Logger
	if cfg == nil {
		return nil, fmt.Errorf("config required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("db client required")
	}
	if params.Redis == nil {
		return nil, fmt.Errorf("redis client required")
	}
	conn := params.DB.DB()

	router, err := newPaymentRouter(ctx, cfg, logg, params.Metrics)
	if err != nil {
		return nil, err
	}

	catalogRepo := catalog.NewRepository(conn)
	validator, err := lineitems.NewValidator(catalogRepo)
	if err != nil {
		return nil, err
	}
	taxes, err := tax.NewService(cfg.Tax)
	if err != nil {
		return nil, fmt.Errorf("tax service: %w", err)
	}
	redirects, err := access.NewService(cfg.Access, cfg.App.PublicURL)
	if err != nil {
		return nil, fmt.Errorf("access service: %w", err)
	}
	resolver, err := affiliates.NewResolver(affiliates.NewRepository(conn))
	if err != nil {
		return nil, err
	}
	notifier, err := notifications.NewService(outbox.NewService(outbox.NewRepository(conn), logg))
	if err != nil {
		return nil, err
	}

	repo := orders.NewRepository(conn)
	executor, err := purchases.NewExecutor(purchases.ExecutorParams{
		Tx:          params.DB,
		Repo:        repo,
		Products:    catalogRepo,
		Validator:   validator,
		Reserver:    catalog.NewReserver(catalogRepo),
		Tax:         taxes,
		Payments:    router,
		Access:      redirects,
		Submissions: params.Redis,
		Declines:    params.Redis,
		Fees:        feeSchedule(cfg.Checkout),
		Config:      cfg.Checkout,
		Logger:      logg,
		Metrics:     params.Metrics,
	})
	if err != nil {
		return nil, err
	}
	grouper, err := charges.NewGrouper(params.DB, repo, executor, router, logg, params.Metrics)
	if err != nil {
		return nil, err
	}

	service, err := NewService(ServiceParams{
		Tx:            params.DB,
		Repo:          repo,
		Products:      catalogRepo,
		Executor:      executor,
		Grouper:       grouper,
		Methods:       chargeable.NewFactory(chargeable.NewSavedMethodRepository(conn)),
		Affiliates:    resolver,
		Notifications: notifier,
		Users:         users.NewRepository(conn),
		Captcha:       captcha.NewClient(cfg.Captcha),
		Payments:      router,
		Config:        cfg.Checkout,
		Logger:        logg,
	})
	if err != nil {
		return nil, err
	}

	return &Stack{
		Service:       service,
		Executor:      executor,
		Payments:      router,
		Notifications: notifier,
		Repo:          repo,
	}, nil
}

// newPaymentRouter registers Stripe and, when configured, Braintree. Outside
// production a missing Stripe key leaves card payments unavailable instead of
// refusing to boot.
func newPaymentRouter(ctx context.Context, cfg *config.Config, logg *logger.Logger, m *metrics.CheckoutMetrics) (*payments.Router, error) {
	router := payments.NewRouter(m)

	if cfg.Stripe.APIKey != "" || cfg.App.IsProd() {
		stripeClient, err := pkgstripe.NewClient(ctx, cfg.Stripe, logg)
		if err != nil {
			return nil, fmt.Errorf("stripe client: %w", err)
		}
		processor, err := payments.NewStripeProcessor(payments.NewStripeClient(stripeClient), logg)
		if err != nil {
			return nil, err
		}
		router.Register(enums.ProcessorStripe, processor)
	} else if logg != nil {
		logg.Warn(ctx, "stripe api key not set, card payments unavailable")
	}

	btClient, err := pkgbraintree.NewClient(ctx, cfg.Braintree, logg)
	if err != nil {
		return nil, fmt.Errorf("braintree client: %w", err)
	}
	if btClient != nil {
		processor, err := payments.NewBraintreeProcessor(payments.NewBraintreeClient(btClient), logg)
		if err != nil {
			return nil, err
		}
		router.Register(enums.ProcessorBraintree, processor)
	}
	return router, nil
}

func feeSchedule(cfg config.CheckoutConfig) money.FeeSchedule {
	return money.FeeSchedule{
		PlatformBasisPoints:  cfg.PlatformFeeBasisPoints,
		PlatformFlatCents:    cfg.PlatformFlatFeeCents,
		ProcessorBasisPoints: cfg.ProcessorFeeBasisPoints,
		ProcessorFlatCents:   cfg.ProcessorFlatFeeCents,
		DiscoverBasisPoints:  cfg.DiscoverFeeBasisPoints,
	}
}
