package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/canteen-coders/canteen-client/pkg/kv"
	"github.com/kelseyhightower/envconfig"
)

const (
	EnvPrefix = "CANTEEN"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvAppEnv       = "CANTEEN_APP_ENV"
	EnvPort         = "CANTEEN_APP_PORT"
	EnvAuthBaseURL  = "CANTEEN_AUTH_BASE_URL"
	EnvRedisURL     = "CANTEEN_REDIS_URL"
	EnvDBDSN        = "CANTEEN_DB_DSN"
	EnvUseSQLite    = "CANTEEN_USE_SQLITE"
	EnvCartScope    = "CANTEEN_CLIENT_CART_SCOPE"
	EnvSessionScope = "CANTEEN_CLIENT_PRINCIPAL_SCOPE"
)

type Config struct {
	App          AppConfig
	Auth         AuthConfig
	Client       ClientConfig
	Redis        RedisConfig
	DB           DBConfig
	FeatureFlags FeatureFlagsConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.Client.validate(); err != nil {
		return nil, err
	}
	if err := cfg.ensureDurableBackend(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"CANTEEN_APP_ENV" required:"true"`
	Port         string `envconfig:"CANTEEN_APP_PORT" default:"8080"`
	LogLevel     string `envconfig:"CANTEEN_LOG_LEVEL" default:"info"`
	LogFormat    string `envconfig:"CANTEEN_LOG_FORMAT" default:"json"`
	LogWarnStack bool   `envconfig:"CANTEEN_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

// AuthConfig points at the remote REST API that owns accounts.
type AuthConfig struct {
	BaseURL string        `envconfig:"CANTEEN_AUTH_BASE_URL" required:"true"`
	Timeout time.Duration `envconfig:"CANTEEN_AUTH_TIMEOUT" default:"10s"`
}

type ClientConfig struct {
	CookieName     string        `envconfig:"CANTEEN_CLIENT_COOKIE_NAME" default:"canteen_client"`
	CookieSecure   bool          `envconfig:"CANTEEN_CLIENT_COOKIE_SECURE" default:"false"`
	TTL            time.Duration `envconfig:"CANTEEN_CLIENT_TTL" default:"12h"`
	SweepInterval  time.Duration `envconfig:"CANTEEN_CLIENT_SWEEP_INTERVAL" default:"500ms"`
	PrincipalScope string        `envconfig:"CANTEEN_CLIENT_PRINCIPAL_SCOPE" default:"session"`
	CartScope      string        `envconfig:"CANTEEN_CLIENT_CART_SCOPE" default:"session"`
	AllowedOrigins []string      `envconfig:"CANTEEN_CLIENT_ALLOWED_ORIGINS" default:"http://localhost:3000,http://localhost:5173"`
}

// PrincipalStorageScope returns the parsed scope for principal records.
func (c ClientConfig) PrincipalStorageScope() kv.Scope {
	scope, _ := kv.ParseScope(c.PrincipalScope)
	return scope
}

// CartStorageScope returns the parsed scope for cart records.
func (c ClientConfig) CartStorageScope() kv.Scope {
	scope, _ := kv.ParseScope(c.CartScope)
	return scope
}

// UsesDurable reports whether any record family is configured for durable storage.
func (c ClientConfig) UsesDurable() bool {
	return c.PrincipalStorageScope() == kv.ScopeDurable || c.CartStorageScope() == kv.ScopeDurable
}

func (c ClientConfig) validate() error {
	if _, err := kv.ParseScope(c.PrincipalScope); err != nil {
		return fmt.Errorf("%s: %w", EnvSessionScope, err)
	}
	if _, err := kv.ParseScope(c.CartScope); err != nil {
		return fmt.Errorf("%s: %w", EnvCartScope, err)
	}
	if c.TTL <= 0 {
		return fmt.Errorf("client ttl must be positive")
	}
	if strings.TrimSpace(c.CookieName) == "" {
		return fmt.Errorf("client cookie name is required")
	}
	return nil
}

type RedisConfig struct {
	URL          string        `envconfig:"CANTEEN_REDIS_URL"`
	Address      string        `envconfig:"CANTEEN_REDIS_ADDR"`
	Password     string        `envconfig:"CANTEEN_REDIS_PASSWORD"`
	DB           int           `envconfig:"CANTEEN_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"CANTEEN_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"CANTEEN_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"CANTEEN_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"CANTEEN_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"CANTEEN_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// Enabled reports whether a redis endpoint has been configured.
func (r RedisConfig) Enabled() bool {
	return r.URL != "" || r.Address != ""
}

type DBConfig struct {
	DSN    string `envconfig:"CANTEEN_DB_DSN"`
	Driver string `envconfig:"CANTEEN_DB_DRIVER" default:"postgres"`

	MaxOpenConns    int           `envconfig:"CANTEEN_DB_MAX_OPEN_CONNS" default:"10"`
	MaxIdleConns    int           `envconfig:"CANTEEN_DB_MAX_IDLE_CONNS" default:"5"`
	ConnMaxLifetime time.Duration `envconfig:"CANTEEN_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"CANTEEN_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"CANTEEN_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"CANTEEN_AUTO_MIGRATE" default:"false"`
}

func (c *Config) ensureDurableBackend() error {
	if !c.Client.UsesDurable() {
		return nil
	}
	if c.FeatureFlags.UseSQLite {
		c.DB.Driver = "sqlite"
		if c.DB.DSN == "" {
			c.DB.DSN = "file:canteen.db?cache=shared"
		}
		return nil
	}
	if c.DB.DSN == "" {
		return fmt.Errorf("%s is required when durable storage is selected (or set %s)", EnvDBDSN, EnvUseSQLite)
	}
	return nil
}
