package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	EnvPrefix = "magnetic"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvDBDSN  = "MAGNETIC_DB_DSN"
	EnvDBHost = "MAGNETIC_DB_HOST"
	EnvDBUser = "MAGNETIC_DB_USER"
	EnvDBName = "MAGNETIC_DB_NAME"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	Webhook      WebhookConfig
	CRM          CRMConfig
	Internal     InternalConfig
	Cron         CronConfig
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
	Env          string `envconfig:"MAGNETIC_APP_ENV" required:"true"`
	Port         string `envconfig:"MAGNETIC_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"MAGNETIC_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"MAGNETIC_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"MAGNETIC_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"MAGNETIC_DB_DSN"`
	Driver string `envconfig:"MAGNETIC_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"MAGNETIC_DB_HOST"`
	LegacyPort     int    `envconfig:"MAGNETIC_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"MAGNETIC_DB_USER"`
	LegacyPassword string `envconfig:"MAGNETIC_DB_PASSWORD"`
	LegacyName     string `envconfig:"MAGNETIC_DB_NAME"`
	LegacySSLMode  string `envconfig:"MAGNETIC_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"MAGNETIC_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"MAGNETIC_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"MAGNETIC_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"MAGNETIC_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"MAGNETIC_REDIS_URL" required:"true"`
	Address      string        `envconfig:"MAGNETIC_REDIS_ADDR"`
	Password     string        `envconfig:"MAGNETIC_REDIS_PASSWORD"`
	DB           int           `envconfig:"MAGNETIC_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"MAGNETIC_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"MAGNETIC_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"MAGNETIC_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"MAGNETIC_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"MAGNETIC_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"MAGNETIC_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"MAGNETIC_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"MAGNETIC_JWT_EXPIRATION_MINUTES" default:"60"`
}

// WebhookConfig covers the purchase-provider callback boundary. When
// HMACSecret is set signatures are verified over the raw body; LegacyToken is
// the fallback static header check for providers without signing configured.
type WebhookConfig struct {
	HMACSecret  string `envconfig:"MAGNETIC_WEBHOOK_HMAC_SECRET"`
	LegacyToken string `envconfig:"MAGNETIC_WEBHOOK_LEGACY_TOKEN"`
}

type CRMConfig struct {
	BaseURL string        `envconfig:"MAGNETIC_CRM_BASE_URL"`
	APIKey  string        `envconfig:"MAGNETIC_CRM_API_KEY"`
	Timeout time.Duration `envconfig:"MAGNETIC_CRM_TIMEOUT" default:"10s"`
}

// InternalConfig holds shared secrets for the internal batch endpoints.
type InternalConfig struct {
	RenewalToken    string `envconfig:"MAGNETIC_RENEWAL_TOKEN"`
	ReconcileSecret string `envconfig:"MAGNETIC_RECONCILE_SECRET"`
	AdminToken      string `envconfig:"MAGNETIC_ADMIN_TOKEN"`
}

type CronConfig struct {
	Interval       time.Duration `envconfig:"MAGNETIC_CRON_INTERVAL" default:"24h"`
	RenewalBatch   int           `envconfig:"MAGNETIC_CRON_RENEWAL_BATCH" default:"500"`
	ReconcileBatch int           `envconfig:"MAGNETIC_CRON_RECONCILE_BATCH" default:"500"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"MAGNETIC_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"MAGNETIC_AUTO_MIGRATE" default:"false"`
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
