package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App           AppConfig
	Service       ServiceConfig
	DB            DBConfig
	Redis         RedisConfig
	JWT           JWTConfig
	Auth          AuthConfig
	Password      PasswordConfig
	AuthRateLimit AuthRateLimitConfig
	FeatureFlags  FeatureFlagsConfig
	Eventing      EventingConfig
	GCP           GCPConfig
	PubSub        PubSubConfig
	BigQuery      BigQueryConfig
	Stripe        StripeConfig
	Resend        ResendConfig
	Outbox        OutboxConfig
	Escrow        EscrowConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if cfg.FeatureFlags.UseSQLite {
		cfg.DB.Driver = "sqlite"
		return &cfg, nil
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"CARBRIDGE_APP_ENV" required:"true"`
	Port         string `envconfig:"CARBRIDGE_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"CARBRIDGE_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"CARBRIDGE_LOG_WARN_STACK" default:"false"`
	LogFormat    string `envconfig:"CARBRIDGE_LOG_FORMAT" default:"json"`
	PublicURL    string `envconfig:"CARBRIDGE_PUBLIC_URL" default:"http://localhost:3000"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"CARBRIDGE_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"CARBRIDGE_DB_DSN"`
	Driver string `envconfig:"CARBRIDGE_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"CARBRIDGE_DB_HOST"`
	LegacyPort     int    `envconfig:"CARBRIDGE_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"CARBRIDGE_DB_USER"`
	LegacyPassword string `envconfig:"CARBRIDGE_DB_PASSWORD"`
	LegacyName     string `envconfig:"CARBRIDGE_DB_NAME"`
	LegacySSLMode  string `envconfig:"CARBRIDGE_DB_SSLMODE" default:"disable"`

	SQLitePath string `envconfig:"CARBRIDGE_SQLITE_PATH" default:"carbridge.db"`

	MaxOpenConns    int           `envconfig:"CARBRIDGE_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"CARBRIDGE_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"CARBRIDGE_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"CARBRIDGE_DB_CONN_MAX_IDLE_TIME" default:"10m"`

	// SlowQuery is the duration above which a statement is logged at warn.
	SlowQuery time.Duration `envconfig:"CARBRIDGE_DB_SLOW_QUERY" default:"500ms"`
}

type RedisConfig struct {
	URL          string        `envconfig:"CARBRIDGE_REDIS_URL" required:"true"`
	Address      string        `envconfig:"CARBRIDGE_REDIS_ADDR"`
	Password     string        `envconfig:"CARBRIDGE_REDIS_PASSWORD"`
	DB           int           `envconfig:"CARBRIDGE_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"CARBRIDGE_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"CARBRIDGE_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"CARBRIDGE_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"CARBRIDGE_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"CARBRIDGE_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"CARBRIDGE_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"CARBRIDGE_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"CARBRIDGE_JWT_EXPIRATION_MINUTES" required:"true"`
}

// SessionTTL returns how long an access token and its Redis session live.
func (j JWTConfig) SessionTTL() time.Duration {
	if j.ExpirationMinutes <= 0 {
		return 0
	}
	return time.Duration(j.ExpirationMinutes) * time.Minute
}

// AuthConfig carries the admin allow-list fallback and session cookie settings.
type AuthConfig struct {
	AdminEmailDomains []string `envconfig:"CARBRIDGE_ADMIN_EMAIL_DOMAINS"`
	CookieName        string   `envconfig:"CARBRIDGE_SESSION_COOKIE_NAME" default:"cb_session"`
	CookieDomain      string   `envconfig:"CARBRIDGE_SESSION_COOKIE_DOMAIN"`
	CookieSecure      bool     `envconfig:"CARBRIDGE_SESSION_COOKIE_SECURE" default:"true"`
}

type PasswordConfig struct {
	ArgonMemoryKB    int `envconfig:"CARBRIDGE_ARGON_MEMORY_KB" default:"65536"`
	ArgonTime        int `envconfig:"CARBRIDGE_ARGON_TIME" default:"3"`
	ArgonParallelism int `envconfig:"CARBRIDGE_ARGON_PARALLELISM" default:"2"`
	ArgonSaltLen     int `envconfig:"CARBRIDGE_ARGON_SALT_LEN" default:"16"`
	ArgonKeyLen      int `envconfig:"CARBRIDGE_ARGON_KEY_LEN" default:"32"`
}

type AuthRateLimitConfig struct {
	LoginWindow     time.Duration `envconfig:"CARBRIDGE_AUTH_RATE_LIMIT_LOGIN_WINDOW" default:"1m"`
	LoginEmailLimit int           `envconfig:"CARBRIDGE_AUTH_RATE_LIMIT_LOGIN_EMAIL_LIMIT" default:"5"`
	LoginIPLimit    int           `envconfig:"CARBRIDGE_AUTH_RATE_LIMIT_LOGIN_IP_LIMIT" default:"20"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"CARBRIDGE_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"CARBRIDGE_AUTO_MIGRATE" default:"false"`
}

type EventingConfig struct {
	OutboxIdempotencyTTL time.Duration `envconfig:"CARBRIDGE_EVENTING_IDEMPOTENCY_TTL" default:"720h"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"CARBRIDGE_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"CARBRIDGE_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"CARBRIDGE_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	NotificationTopic        string `envconfig:"CARBRIDGE_PUBSUB_NOTIFICATION_TOPIC" default:"cb-notification-events"`
	NotificationSubscription string `envconfig:"CARBRIDGE_PUBSUB_NOTIFICATION_SUBSCRIPTION" default:"cb-notification-events-sub"`
	JourneyTopic             string `envconfig:"CARBRIDGE_PUBSUB_JOURNEY_TOPIC" default:"cb-journey-events"`
	JourneySubscription      string `envconfig:"CARBRIDGE_PUBSUB_JOURNEY_SUBSCRIPTION" default:"cb-journey-events-sub"`
}

type BigQueryConfig struct {
	Dataset            string `envconfig:"CARBRIDGE_BIGQUERY_DATASET" default:"carbridge"`
	JourneyEventsTable string `envconfig:"CARBRIDGE_BIGQUERY_JOURNEY_TABLE" default:"deal_journey_events"`
	BatchSize          int    `envconfig:"CARBRIDGE_BIGQUERY_BATCH_SIZE" default:"1"`
	MaxAttempts        int    `envconfig:"CARBRIDGE_BIGQUERY_MAX_ATTEMPTS" default:"3"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"CARBRIDGE_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"CARBRIDGE_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"CARBRIDGE_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

// EscrowConfig controls how long an unfunded escrow may wait for payment.
type EscrowConfig struct {
	FundingTTL time.Duration `envconfig:"CARBRIDGE_ESCROW_FUNDING_TTL" default:"48h"`
}

type StripeConfig struct {
	APIKey string `envconfig:"CARBRIDGE_STRIPE_API_KEY"`
	Secret string `envconfig:"CARBRIDGE_STRIPE_SECRET"`
	Env    string `envconfig:"CARBRIDGE_STRIPE_ENV" default:"test"`
}

type ResendConfig struct {
	APIKey      string `envconfig:"CARBRIDGE_RESEND_API_KEY"`
	DefaultFrom string `envconfig:"CARBRIDGE_RESEND_FROM_EMAIL" default:"CarBridge <noreply@carbridge.io>"`
}

// Environment returns the normalized Stripe environment (test/live).
func (s StripeConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(s.Env))
	if env == "" {
		return "test"
	}
	return env
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
