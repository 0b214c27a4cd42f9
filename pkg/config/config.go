package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	EnvPrefix = "shapeai"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvDBDSN  = "SHAPEAI_DB_DSN"
	EnvDBHost = "SHAPEAI_DB_HOST"
	EnvDBUser = "SHAPEAI_DB_USER"
	EnvDBName = "SHAPEAI_DB_NAME"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}

type Config struct {
	App         AppConfig
	DB          DBConfig
	Redis       RedisConfig
	JWT         JWTConfig
	Flags       FlagsConfig
	OpenAI      OpenAIConfig
	Payment     PaymentConfig
	FreeTopup   FreeTopupConfig
	Transfermit TransfermitConfig
	Bizon       BizonConfig
	Webhook     WebhookConfig
	RateLimit   RateLimitConfig
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
	Env          string `envconfig:"SHAPEAI_APP_ENV" required:"true"`
	Port         string `envconfig:"SHAPEAI_APP_PORT" required:"true"`
	BaseURL      string `envconfig:"SHAPEAI_APP_BASE_URL" default:"http://localhost:3000"`
	LogLevel     string `envconfig:"SHAPEAI_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"SHAPEAI_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN    string `envconfig:"SHAPEAI_DB_DSN"`
	Driver string `envconfig:"SHAPEAI_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"SHAPEAI_DB_HOST"`
	LegacyPort     int    `envconfig:"SHAPEAI_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"SHAPEAI_DB_USER"`
	LegacyPassword string `envconfig:"SHAPEAI_DB_PASSWORD"`
	LegacyName     string `envconfig:"SHAPEAI_DB_NAME"`
	LegacySSLMode  string `envconfig:"SHAPEAI_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"SHAPEAI_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"SHAPEAI_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"SHAPEAI_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"SHAPEAI_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"SHAPEAI_REDIS_URL" required:"true"`
	Address      string        `envconfig:"SHAPEAI_REDIS_ADDR"`
	Password     string        `envconfig:"SHAPEAI_REDIS_PASSWORD"`
	DB           int           `envconfig:"SHAPEAI_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"SHAPEAI_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"SHAPEAI_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"SHAPEAI_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"SHAPEAI_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"SHAPEAI_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// JWTConfig describes the token format minted by the external identity
// provider; the API only verifies and extracts the subject.
type JWTConfig struct {
	Secret string `envconfig:"SHAPEAI_JWT_SECRET" required:"true"`
	Issuer string `envconfig:"SHAPEAI_JWT_ISSUER" required:"true"`
}

type FlagsConfig struct {
	AutoMigrate bool `envconfig:"SHAPEAI_AUTO_MIGRATE" default:"false"`
}

type OpenAIConfig struct {
	APIKey  string        `envconfig:"SHAPEAI_OPENAI_API_KEY"`
	Model   string        `envconfig:"SHAPEAI_OPENAI_MODEL" default:"gpt-4o"`
	Timeout time.Duration `envconfig:"SHAPEAI_OPENAI_TIMEOUT" default:"120s"`
}

type PaymentConfig struct {
	Provider string `envconfig:"SHAPEAI_PAYMENT_PROVIDER" default:"free"`
}

type FreeTopupConfig struct {
	MaxTokensPerDay int `envconfig:"SHAPEAI_FREE_TOPUP_MAX_TOKENS_PER_DAY" default:"1000"`
}

type TransfermitConfig struct {
	WebhookSecret string `envconfig:"SHAPEAI_TRANSFERMIT_WEBHOOK_SECRET"`
}

type BizonConfig struct {
	APIURL        string `envconfig:"SHAPEAI_BIZON_API_URL" default:"https://api.bizon.one"`
	Project       string `envconfig:"SHAPEAI_BIZON_PROJECT"`
	Username      string `envconfig:"SHAPEAI_BIZON_USERNAME"`
	APIPassword   string `envconfig:"SHAPEAI_BIZON_API_PASSWORD"`
	CertP12Base64 string `envconfig:"SHAPEAI_BIZON_CERT_P12_BASE64"`
	CertPassword  string `envconfig:"SHAPEAI_BIZON_CERT_PASSWORD"`
	ReturnURL     string `envconfig:"SHAPEAI_BIZON_RETURN_URL"`
	FailURL       string `envconfig:"SHAPEAI_BIZON_FAIL_URL"`
}

type WebhookConfig struct {
	IdempotencyTTL time.Duration `envconfig:"SHAPEAI_WEBHOOK_IDEMPOTENCY_TTL" default:"720h"`
}

// RateLimitConfig bounds the generation endpoint, the most expensive call
// in the system.
type RateLimitConfig struct {
	GenerateWindow    time.Duration `envconfig:"SHAPEAI_RATE_LIMIT_GENERATE_WINDOW" default:"1m"`
	GenerateIPLimit   int           `envconfig:"SHAPEAI_RATE_LIMIT_GENERATE_IP_LIMIT" default:"20"`
	GenerateUserLimit int           `envconfig:"SHAPEAI_RATE_LIMIT_GENERATE_USER_LIMIT" default:"5"`
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
