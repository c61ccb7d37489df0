package config

const (
	EnvPrefix = "POPCATCH"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvAppEnv   = "POPCATCH_APP_ENV"
	EnvPort     = "POPCATCH_APP_PORT"
	EnvDBDSN    = "POPCATCH_DB_DSN"
	EnvDBHost   = "POPCATCH_DB_HOST"
	EnvDBUser   = "POPCATCH_DB_USER"
	EnvDBName   = "POPCATCH_DB_NAME"
	EnvRedisURL = "POPCATCH_REDIS_URL"
	EnvLogLevel = "POPCATCH_LOG_LEVEL"

	EnvShopifyAPIKey     = "POPCATCH_SHOPIFY_API_KEY"
	EnvShopifyAPISecret  = "POPCATCH_SHOPIFY_API_SECRET"
	EnvShopifyAPIVersion = "POPCATCH_SHOPIFY_API_VERSION"
	EnvShopifyTimeout    = "POPCATCH_SHOPIFY_REQUEST_TIMEOUT"

	EnvPopupCodePrefix          = "POPCATCH_POPUP_CODE_PREFIX"
	EnvPopupEmptyPageConditions = "POPCATCH_POPUP_EMPTY_PAGE_CONDITIONS"
	EnvUseSQLite                = "POPCATCH_USE_SQLITE"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
