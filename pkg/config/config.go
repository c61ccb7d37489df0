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
	Shopify      ShopifyConfig
	Popup        PopupConfig
	FeatureFlags FeatureFlagsConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Outbox       OutboxConfig
	Cron         CronConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(cfg.FeatureFlags.UseSQLite); err != nil {
		return nil, err
	}
	if err := cfg.Popup.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadDB reads only the database settings, for tools that never serve
// traffic.
func LoadDB() (*DBConfig, error) {
	var cfg struct {
		DB           DBConfig
		FeatureFlags FeatureFlagsConfig
	}
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing db config: %w", err)
	}
	if err := cfg.DB.ensureDSN(cfg.FeatureFlags.UseSQLite); err != nil {
		return nil, err
	}
	return &cfg.DB, nil
}

type AppConfig struct {
	Env          string `envconfig:"POPCATCH_APP_ENV" required:"true"`
	Port         string `envconfig:"POPCATCH_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"POPCATCH_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"POPCATCH_LOG_WARN_STACK" default:"false"`
	// CORSOrigins lists the origins allowed to call the admin API.
	CORSOrigins []string `envconfig:"POPCATCH_CORS_ORIGINS" default:"https://admin.shopify.com,http://localhost:3000"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"POPCATCH_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"POPCATCH_DB_DSN"`
	Driver string `envconfig:"POPCATCH_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"POPCATCH_DB_HOST"`
	LegacyPort     int    `envconfig:"POPCATCH_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"POPCATCH_DB_USER"`
	LegacyPassword string `envconfig:"POPCATCH_DB_PASSWORD"`
	LegacyName     string `envconfig:"POPCATCH_DB_NAME"`
	LegacySSLMode  string `envconfig:"POPCATCH_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"POPCATCH_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"POPCATCH_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"POPCATCH_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"POPCATCH_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"POPCATCH_REDIS_URL" required:"true"`
	Address      string        `envconfig:"POPCATCH_REDIS_ADDR"`
	Password     string        `envconfig:"POPCATCH_REDIS_PASSWORD"`
	DB           int           `envconfig:"POPCATCH_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"POPCATCH_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"POPCATCH_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"POPCATCH_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"POPCATCH_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"POPCATCH_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// ShopifyConfig holds the app credentials and Admin API settings.
type ShopifyConfig struct {
	APIKey         string        `envconfig:"POPCATCH_SHOPIFY_API_KEY" required:"true"`
	APISecret      string        `envconfig:"POPCATCH_SHOPIFY_API_SECRET" required:"true"`
	APIVersion     string        `envconfig:"POPCATCH_SHOPIFY_API_VERSION" default:"2024-10"`
	RequestTimeout time.Duration `envconfig:"POPCATCH_SHOPIFY_REQUEST_TIMEOUT" default:"10s"`
	// AdminBaseURL overrides https://{shop} for local stubs.
	AdminBaseURL string `envconfig:"POPCATCH_SHOPIFY_ADMIN_BASE_URL"`
}

type PopupConfig struct {
	CodePrefix          string        `envconfig:"POPCATCH_POPUP_CODE_PREFIX" default:"POPUP"`
	DiscountUsageLimit  int           `envconfig:"POPCATCH_POPUP_DISCOUNT_USAGE_LIMIT" default:"1"`
	RecordMaxRetries    int           `envconfig:"POPCATCH_POPUP_RECORD_MAX_RETRIES" default:"5"`
	EmptyPageConditions string        `envconfig:"POPCATCH_POPUP_EMPTY_PAGE_CONDITIONS" default:"pass"`
	SubmitWindow        time.Duration `envconfig:"POPCATCH_POPUP_SUBMIT_WINDOW" default:"1m"`
	SubmitLimit         int           `envconfig:"POPCATCH_POPUP_SUBMIT_LIMIT" default:"10"`
}

func (p PopupConfig) validate() error {
	switch strings.ToLower(strings.TrimSpace(p.EmptyPageConditions)) {
	case "pass", "fail":
	default:
		return fmt.Errorf("%s must be pass or fail, got %q", EnvPopupEmptyPageConditions, p.EmptyPageConditions)
	}
	if strings.TrimSpace(p.CodePrefix) == "" {
		return fmt.Errorf("%s is required", EnvPopupCodePrefix)
	}
	return nil
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"POPCATCH_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"POPCATCH_AUTO_MIGRATE" default:"false"`
}

type GCPConfig struct {
	ProjectID string `envconfig:"POPCATCH_GCP_PROJECT_ID"`
}

type PubSubConfig struct {
	SubmissionsTopic string `envconfig:"POPCATCH_PUBSUB_SUBMISSIONS_TOPIC" default:"popup-submissions"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"POPCATCH_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"POPCATCH_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"POPCATCH_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

// CronConfig drives the maintenance worker.
type CronConfig struct {
	Interval            time.Duration `envconfig:"POPCATCH_CRON_INTERVAL" default:"1h"`
	OutboxRetentionDays int           `envconfig:"POPCATCH_CRON_OUTBOX_RETENTION_DAYS" default:"14"`
	DLQRetentionDays    int           `envconfig:"POPCATCH_CRON_DLQ_RETENTION_DAYS" default:"90"`
}

func (db *DBConfig) ensureDSN(useSQLite bool) error {
	if useSQLite {
		db.Driver = "sqlite"
	}
	if db.DSN != "" {
		return nil
	}
	if useSQLite {
		db.DSN = "file:popcatch.db?cache=shared"
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
