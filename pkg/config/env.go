package config

const (
	EnvPrefix = "STOREFRONT"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvAppEnv  = "STOREFRONT_APP_ENV"
	EnvAppPort = "STOREFRONT_APP_PORT"

	EnvDBDSN  = "STOREFRONT_DB_DSN"
	EnvDBHost = "STOREFRONT_DB_HOST"
	EnvDBUser = "STOREFRONT_DB_USER"
	EnvDBName = "STOREFRONT_DB_NAME"

	EnvRedisURL     = "STOREFRONT_REDIS_URL"
	EnvUseSQLite    = "STOREFRONT_USE_SQLITE"
	EnvAccessSecret = "STOREFRONT_ACCESS_SECRET"

	EnvPlatformFeeBPS   = "STOREFRONT_PLATFORM_FEE_BPS"
	EnvProcessorFeeBPS  = "STOREFRONT_PROCESSOR_FEE_BPS"
	EnvDiscoverFeeBPS   = "STOREFRONT_DISCOVER_FEE_BPS"
	EnvSCAAbandonWindow = "STOREFRONT_SCA_ABANDON_WINDOW"
	EnvTaxRates         = "STOREFRONT_TAX_RATES_BPS"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
