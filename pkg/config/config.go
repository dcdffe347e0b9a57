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
	JWT          JWTConfig
	Trial        TrialConfig
	Billing      BillingConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Outbox       OutboxConfig
	Eventing     EventingConfig
	FeatureFlags FeatureFlagsConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"LEAFLENS_APP_ENV" required:"true"`
	Port         string `envconfig:"LEAFLENS_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"LEAFLENS_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"LEAFLENS_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"LEAFLENS_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"LEAFLENS_DB_DSN"`
	Driver string `envconfig:"LEAFLENS_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"LEAFLENS_DB_HOST"`
	LegacyPort     int    `envconfig:"LEAFLENS_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"LEAFLENS_DB_USER"`
	LegacyPassword string `envconfig:"LEAFLENS_DB_PASSWORD"`
	LegacyName     string `envconfig:"LEAFLENS_DB_NAME"`
	LegacySSLMode  string `envconfig:"LEAFLENS_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"LEAFLENS_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"LEAFLENS_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"LEAFLENS_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"LEAFLENS_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"LEAFLENS_REDIS_URL" required:"true"`
	Address      string        `envconfig:"LEAFLENS_REDIS_ADDR"`
	Password     string        `envconfig:"LEAFLENS_REDIS_PASSWORD"`
	DB           int           `envconfig:"LEAFLENS_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"LEAFLENS_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"LEAFLENS_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"LEAFLENS_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"LEAFLENS_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"LEAFLENS_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"LEAFLENS_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"LEAFLENS_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"LEAFLENS_JWT_EXPIRATION_MINUTES" default:"43200"`
}

// TrialConfig fixes the local free-trial shape handed to new users.
type TrialConfig struct {
	LengthDays int `envconfig:"LEAFLENS_TRIAL_LENGTH_DAYS" default:"3"`
	ScanLimit  int `envconfig:"LEAFLENS_TRIAL_SCAN_LIMIT" default:"3"`
}

type BillingConfig struct {
	// WebhookSecret signs inbound billing webhooks (hex HMAC-SHA256 of the raw body).
	WebhookSecret string `envconfig:"LEAFLENS_BILLING_WEBHOOK_SECRET" required:"true"`
	// GracePeriod keeps an entitlement alive after a BILLING_ISSUE event while the
	// store retries the charge. Mirrors the platform's monthly retry window.
	GracePeriod time.Duration `envconfig:"LEAFLENS_BILLING_GRACE_PERIOD" default:"384h"`
	// ReconcileLockTTL bounds how long a stuck reconciliation can hold a user lock.
	ReconcileLockTTL time.Duration `envconfig:"LEAFLENS_RECONCILE_LOCK_TTL" default:"30s"`
}

type GCPConfig struct {
	ProjectID       string `envconfig:"LEAFLENS_GCP_PROJECT_ID" required:"true"`
	CredentialsJSON string `envconfig:"LEAFLENS_GCP_CREDENTIALS_JSON"`
}

type PubSubConfig struct {
	ReconcileTopic        string `envconfig:"LEAFLENS_PUBSUB_RECONCILE_TOPIC" default:"ll-entitlement-reconcile"`
	ReconcileSubscription string `envconfig:"LEAFLENS_PUBSUB_RECONCILE_SUBSCRIPTION" required:"true"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"LEAFLENS_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"LEAFLENS_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"LEAFLENS_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

type EventingConfig struct {
	WebhookIdempotencyTTL time.Duration `envconfig:"LEAFLENS_EVENTING_IDEMPOTENCY_TTL" default:"720h"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"LEAFLENS_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"LEAFLENS_AUTO_MIGRATE" default:"false"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
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
