package config

const (
	// EnvPrefix is applied by envconfig on top of the explicit tags below.
	EnvPrefix = "leaflens"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvAppEnv               = "LEAFLENS_APP_ENV"
	EnvPort                 = "LEAFLENS_APP_PORT"
	EnvDBDSN                = "LEAFLENS_DB_DSN"
	EnvDBHost               = "LEAFLENS_DB_HOST"
	EnvDBUser               = "LEAFLENS_DB_USER"
	EnvDBName               = "LEAFLENS_DB_NAME"
	EnvRedisURL             = "LEAFLENS_REDIS_URL"
	EnvJWTSecret            = "LEAFLENS_JWT_SECRET"
	EnvJWTIssuer            = "LEAFLENS_JWT_ISSUER"
	EnvBillingWebhookSecret = "LEAFLENS_BILLING_WEBHOOK_SECRET"
	EnvGCPProjectID         = "LEAFLENS_GCP_PROJECT_ID"
	EnvPubSubReconcileSub   = "LEAFLENS_PUBSUB_RECONCILE_SUBSCRIPTION"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
