package config

// EnvPrefix is handed to envconfig; every field tag below carries the full name.
const EnvPrefix = "CARBRIDGE"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	EnvAppEnv   = "CARBRIDGE_APP_ENV"
	EnvPort     = "CARBRIDGE_APP_PORT"
	EnvLogLevel = "CARBRIDGE_LOG_LEVEL"

	EnvDBDSN  = "CARBRIDGE_DB_DSN"
	EnvDBHost = "CARBRIDGE_DB_HOST"
	EnvDBUser = "CARBRIDGE_DB_USER"
	EnvDBName = "CARBRIDGE_DB_NAME"

	EnvUseSQLite = "CARBRIDGE_USE_SQLITE"

	EnvRedisURL = "CARBRIDGE_REDIS_URL"

	EnvJWTSecret  = "CARBRIDGE_JWT_SECRET"
	EnvJWTIssuer  = "CARBRIDGE_JWT_ISSUER"
	EnvJWTExpMins = "CARBRIDGE_JWT_EXPIRATION_MINUTES"

	EnvAdminEmailDomains = "CARBRIDGE_ADMIN_EMAIL_DOMAINS"

	EnvGCPProjectID = "CARBRIDGE_GCP_PROJECT_ID"

	EnvEscrowFundingTTL = "CARBRIDGE_ESCROW_FUNDING_TTL"
)

var legacyDBEnvVars = []string{
	EnvDBHost,
	EnvDBUser,
	EnvDBName,
}
