package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	FeatureFlags FeatureFlagsConfig
	Eventing     EventingConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Outbox       OutboxConfig
	Stripe       StripeConfig
	Braintree    BraintreeConfig
	Checkout     CheckoutConfig
	Captcha      CaptchaConfig
	Access       AccessConfig
	Tax          TaxConfig
	Auth         AuthConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(cfg.FeatureFlags.UseSQLite); err != nil {
		return nil, err
	}
	if err := cfg.Checkout.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"STOREFRONT_APP_ENV" required:"true"`
	Port         string `envconfig:"STOREFRONT_APP_PORT" default:"8080"`
	PublicURL    string `envconfig:"STOREFRONT_PUBLIC_URL" default:"http://localhost:8080"`
	LogLevel     string `envconfig:"STOREFRONT_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"STOREFRONT_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"STOREFRONT_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN        string `envconfig:"STOREFRONT_DB_DSN"`
	SQLitePath string `envconfig:"STOREFRONT_SQLITE_PATH" default:"storefront.db"`

	LegacyHost     string `envconfig:"STOREFRONT_DB_HOST"`
	LegacyPort     int    `envconfig:"STOREFRONT_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"STOREFRONT_DB_USER"`
	LegacyPassword string `envconfig:"STOREFRONT_DB_PASSWORD"`
	LegacyName     string `envconfig:"STOREFRONT_DB_NAME"`
	LegacySSLMode  string `envconfig:"STOREFRONT_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"STOREFRONT_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"STOREFRONT_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"STOREFRONT_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"STOREFRONT_DB_CONN_MAX_IDLE_TIME" default:"10m"`
	SlowQuery       time.Duration `envconfig:"STOREFRONT_DB_SLOW_QUERY" default:"500ms"`
}

type RedisConfig struct {
	URL          string        `envconfig:"STOREFRONT_REDIS_URL"`
	Address      string        `envconfig:"STOREFRONT_REDIS_ADDR"`
	Password     string        `envconfig:"STOREFRONT_REDIS_PASSWORD"`
	DB           int           `envconfig:"STOREFRONT_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"STOREFRONT_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"STOREFRONT_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"STOREFRONT_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"STOREFRONT_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"STOREFRONT_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"STOREFRONT_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"STOREFRONT_AUTO_MIGRATE" default:"false"`
}

type EventingConfig struct {
	IdempotencyTTL time.Duration `envconfig:"STOREFRONT_EVENTING_IDEMPOTENCY_TTL" default:"168h"`
}

type GCPConfig struct {
	ProjectID string `envconfig:"STOREFRONT_GCP_PROJECT_ID"`
}

type PubSubConfig struct {
	ReceiptsTopic      string `envconfig:"STOREFRONT_PUBSUB_RECEIPTS_TOPIC" default:"sf-receipts"`
	NotificationsTopic string `envconfig:"STOREFRONT_PUBSUB_NOTIFICATIONS_TOPIC" default:"sf-notifications"`
	AttributionTopic   string `envconfig:"STOREFRONT_PUBSUB_ATTRIBUTION_TOPIC" default:"sf-attribution"`
	PurchasesTopic     string `envconfig:"STOREFRONT_PUBSUB_PURCHASES_TOPIC" default:"sf-purchases"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"STOREFRONT_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"STOREFRONT_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"STOREFRONT_OUTBOX_MAX_ATTEMPTS" default:"10"`
	RetentionDays  int `envconfig:"STOREFRONT_OUTBOX_RETENTION_DAYS" default:"30"`
}

type StripeConfig struct {
	APIKey     string `envconfig:"STOREFRONT_STRIPE_API_KEY"`
	Env        string `envconfig:"STOREFRONT_STRIPE_ENV" default:"test"`
	MaxRetries int64  `envconfig:"STOREFRONT_STRIPE_MAX_RETRIES" default:"2"`
}

// Environment returns the normalized Stripe environment (test/live).
func (s StripeConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(s.Env))
	if env == "" {
		return "test"
	}
	return env
}

type BraintreeConfig struct {
	Environment string `envconfig:"STOREFRONT_BRAINTREE_ENV" default:"sandbox"`
	MerchantID  string `envconfig:"STOREFRONT_BRAINTREE_MERCHANT_ID"`
	PublicKey   string `envconfig:"STOREFRONT_BRAINTREE_PUBLIC_KEY"`
	PrivateKey  string `envconfig:"STOREFRONT_BRAINTREE_PRIVATE_KEY"`
}

// Enabled reports whether PayPal agreements can be charged.
func (b BraintreeConfig) Enabled() bool {
	return b.MerchantID != "" && b.PublicKey != "" && b.PrivateKey != ""
}

// CheckoutConfig holds fee and timing policy for the checkout core.
type CheckoutConfig struct {
	PlatformFeeBasisPoints  int64 `envconfig:"STOREFRONT_PLATFORM_FEE_BPS" default:"1000"`
	PlatformFlatFeeCents    int64 `envconfig:"STOREFRONT_PLATFORM_FLAT_FEE_CENTS" default:"50"`
	ProcessorFeeBasisPoints int64 `envconfig:"STOREFRONT_PROCESSOR_FEE_BPS" default:"290"`
	ProcessorFlatFeeCents   int64 `envconfig:"STOREFRONT_PROCESSOR_FLAT_FEE_CENTS" default:"30"`
	DiscoverFeeBasisPoints  int64 `envconfig:"STOREFRONT_DISCOVER_FEE_BPS" default:"3000"`
	// SCAAbandonWindow bounds how long an SCA-pending purchase waits for confirmation.
	SCAAbandonWindow   time.Duration `envconfig:"STOREFRONT_SCA_ABANDON_WINDOW" default:"15m"`
	SubmissionNonceTTL time.Duration `envconfig:"STOREFRONT_SUBMISSION_NONCE_TTL" default:"24h"`
	MaxConcurrentItems int           `envconfig:"STOREFRONT_MAX_CONCURRENT_ITEMS" default:"4"`
	SweepInterval      time.Duration `envconfig:"STOREFRONT_SCA_SWEEP_INTERVAL" default:"1m"`
}

func (c CheckoutConfig) validate() error {
	if c.SCAAbandonWindow <= 0 || c.SCAAbandonWindow > 24*time.Hour {
		return fmt.Errorf("%s must be between 0 and 24h", EnvSCAAbandonWindow)
	}
	for name, bps := range map[string]int64{
		EnvPlatformFeeBPS:  c.PlatformFeeBasisPoints,
		EnvProcessorFeeBPS: c.ProcessorFeeBasisPoints,
		EnvDiscoverFeeBPS:  c.DiscoverFeeBasisPoints,
	} {
		if bps < 0 || bps > 10_000 {
			return fmt.Errorf("%s must be within 0..10000", name)
		}
	}
	return nil
}

type CaptchaConfig struct {
	Secret    string        `envconfig:"STOREFRONT_RECAPTCHA_SECRET"`
	VerifyURL string        `envconfig:"STOREFRONT_RECAPTCHA_VERIFY_URL" default:"https://www.google.com/recaptcha/api/siteverify"`
	Timeout   time.Duration `envconfig:"STOREFRONT_RECAPTCHA_TIMEOUT" default:"5s"`
}

// AccessConfig signs content redirect links handed out for successful purchases.
type AccessConfig struct {
	Secret string        `envconfig:"STOREFRONT_ACCESS_SECRET" required:"true"`
	Issuer string        `envconfig:"STOREFRONT_ACCESS_ISSUER" default:"storefront"`
	TTL    time.Duration `envconfig:"STOREFRONT_ACCESS_TTL" default:"720h"`
}

// AuthConfig verifies the optional buyer session token sent with checkout.
type AuthConfig struct {
	JWTSecret string        `envconfig:"STOREFRONT_JWT_SECRET"`
	Issuer    string        `envconfig:"STOREFRONT_JWT_ISSUER" default:"storefront"`
	TTL       time.Duration `envconfig:"STOREFRONT_JWT_TTL" default:"1h"`
}

type TaxConfig struct {
	// RatesBasisPoints maps ISO country codes to a tax rate in basis points.
	RatesBasisPoints map[string]int64 `envconfig:"STOREFRONT_TAX_RATES_BPS" default:"GB:2000,DE:1900,FR:2000,AU:1000"`
	// FXRates maps currency codes to USD per unit.
	FXRates map[string]string `envconfig:"STOREFRONT_FX_RATES" default:"eur:1.08,gbp:1.27,cad:0.73,aud:0.66,jpy:0.0067"`
}

func (db *DBConfig) ensureDSN(useSQLite bool) error {
	if db.DSN != "" || useSQLite {
		return nil
	}

	missing := []string{}
	legacyValues := map[string]string{
		EnvDBHost: db.LegacyHost,
		EnvDBUser: db.LegacyUser,
		EnvDBName: db.LegacyName,
	}
	for _, env := range legacyDBEnvVars {
		if legacyValues[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.LegacyUser)
	if db.LegacyPassword != "" {
		userInfo = url.UserPassword(db.LegacyUser, db.LegacyPassword)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.LegacyHost, db.LegacyPort),
		Path:   db.LegacyName,
	}

	if db.LegacySSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.LegacySSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
