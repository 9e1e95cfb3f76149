// Package config loads the union server configuration from an optional
// YAML file with environment variable overrides.
package config

import (
	"crypto/sha256"
	"os"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-union"
	"github.com/ilyakaznacheev/cleanenv"
)

// Provider kinds.
const (
	ProviderLocal  = "local"
	ProviderGoTrue = "gotrue"
)

// Config holds all configuration for the union server.
// Secrets (keys, passwords) only come from the environment.
type Config struct {
	Server       ServerConfig       `yaml:"server"`
	Database     DatabaseConfig     `yaml:"database"`
	Auth         AuthConfig         `yaml:"auth"`
	Navigation   NavigationConfig   `yaml:"navigation"`
	Provisioning ProvisioningConfig `yaml:"provisioning"`
	Log          LogConfig          `yaml:"log"`
}

// ServerConfig is the HTTP listener.
type ServerConfig struct {
	Addr           string `yaml:"addr" env:"UNION_ADDR" env-default:":8080"`
	CookieName     string `yaml:"cookie_name" env:"UNION_COOKIE_NAME" env-default:"union_session"`
	CookieSecure   bool   `yaml:"cookie_secure" env:"UNION_COOKIE_SECURE" env-default:"true"`
	CookieSameSite string `yaml:"cookie_same_site" env:"UNION_COOKIE_SAME_SITE" env-default:"Lax"`
	CSRFKey        string `yaml:"-" env:"UNION_CSRF_KEY" json:"-"`
}

// DatabaseConfig selects the store. Dialect is "postgres" or "sqlite3".
type DatabaseConfig struct {
	Dialect         string        `yaml:"dialect" env:"UNION_DB_DIALECT" env-default:"postgres"`
	DSN             string        `yaml:"-" env:"DATABASE_URL" json:"-"`
	MaxOpenConns    int           `yaml:"max_open_conns" env:"UNION_DB_MAX_OPEN_CONNS" env-default:"20"`
	MaxIdleConns    int           `yaml:"max_idle_conns" env:"UNION_DB_MAX_IDLE_CONNS" env-default:"5"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" env:"UNION_DB_CONN_MAX_LIFETIME" env-default:"30m"`
	AutoMigrate     bool          `yaml:"auto_migrate" env:"UNION_DB_AUTO_MIGRATE" env-default:"true"`
	Debug           bool          `yaml:"debug" env:"UNION_DB_DEBUG" env-default:"false"`
}

// AuthConfig selects and configures the identity provider.
type AuthConfig struct {
	Provider string `yaml:"provider" env:"UNION_AUTH_PROVIDER" env-default:"local"`

	// Hosted backend, named after the variables the web client uses.
	GoTrueURL     string `yaml:"gotrue_url" env:"VITE_SUPABASE_URL"`
	GoTrueAnonKey string `yaml:"-" env:"VITE_SUPABASE_PUBLISHABLE_KEY" json:"-"`
	JWKSURL       string `yaml:"jwks_url" env:"UNION_JWKS_URL"`
	JWTSecret     string `yaml:"-" env:"UNION_JWT_SECRET" json:"-"`

	// Self-hosted backend.
	SigningKey      string        `yaml:"-" env:"UNION_SIGNING_KEY" json:"-"`
	Issuer          string        `yaml:"issuer" env:"UNION_ISSUER" env-default:"union"`
	AccessTokenTTL  time.Duration `yaml:"access_token_ttl" env:"UNION_ACCESS_TOKEN_TTL" env-default:"1h"`
	RefreshTokenTTL time.Duration `yaml:"refresh_token_ttl" env:"UNION_REFRESH_TOKEN_TTL" env-default:"720h"`
	PasswordCost    int           `yaml:"password_cost" env:"UNION_PASSWORD_COST" env-default:"12"`
	HashidUserIDs   bool          `yaml:"hashid_user_ids" env:"UNION_HASHID_USER_IDS" env-default:"false"`
}

// NavigationConfig tunes the navigation policy.
type NavigationConfig struct {
	QueryTimeout          time.Duration `yaml:"query_timeout" env:"UNION_QUERY_TIMEOUT" env-default:"10s"`
	ApprovalRedirectDelay time.Duration `yaml:"approval_redirect_delay" env:"UNION_APPROVAL_REDIRECT_DELAY" env-default:"2s"`
	CacheTTL              time.Duration `yaml:"cache_ttl" env:"UNION_NAV_CACHE_TTL" env-default:"30s"`
}

// ProvisioningConfig bounds the wait for trigger-created rows.
type ProvisioningConfig struct {
	InitialInterval time.Duration `yaml:"initial_interval" env:"UNION_PROVISION_INITIAL_INTERVAL" env-default:"200ms"`
	MaxInterval     time.Duration `yaml:"max_interval" env:"UNION_PROVISION_MAX_INTERVAL" env-default:"2s"`
	MaxElapsed      time.Duration `yaml:"max_elapsed" env:"UNION_PROVISION_MAX_ELAPSED" env-default:"10s"`
}

// LogConfig is the logger setup.
type LogConfig struct {
	Level string `yaml:"level" env:"UNION_LOG_LEVEL" env-default:"info"`
}

// Load reads path when it exists and applies environment overrides.
// A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	if path != "" && fileExists(path) {
		if err := cleanenv.ReadConfig(path, cfg); err != nil {
			return nil, goerrors.Wrap(err, goerrors.CategoryValidation, "failed to read config file").
				WithMetadata(map[string]any{"path": path})
		}
		return cfg, cfg.Validate()
	}

	if err := cleanenv.ReadEnv(cfg); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryValidation, "failed to read environment")
	}
	return cfg, cfg.Validate()
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// Validate will run validation rules
func (c *Config) Validate() error {
	err := validation.Errors{
		"database": validation.ValidateStruct(&c.Database,
			validation.Field(&c.Database.Dialect, validation.Required, validation.In("postgres", "sqlite3")),
			validation.Field(&c.Database.DSN, validation.Required),
		),
		"auth": c.validateAuth(),
		"navigation": validation.ValidateStruct(&c.Navigation,
			validation.Field(&c.Navigation.QueryTimeout, validation.Required),
		),
	}.Filter()
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryValidation, "invalid configuration")
	}
	return nil
}

func (c *Config) validateAuth() error {
	a := &c.Auth
	switch strings.ToLower(a.Provider) {
	case ProviderGoTrue:
		return validation.ValidateStruct(a,
			validation.Field(&a.GoTrueURL, validation.Required),
			validation.Field(&a.GoTrueAnonKey, validation.Required),
		)
	default:
		return validation.ValidateStruct(a,
			validation.Field(&a.Provider, validation.In(ProviderLocal, ProviderGoTrue)),
			validation.Field(&a.SigningKey, validation.Required, validation.Length(32, 0)),
		)
	}
}

// GetServerAddr returns the listen address.
func (c *Config) GetServerAddr() string { return c.Server.Addr }

// GetCookieName returns the session cookie name.
func (c *Config) GetCookieName() string { return c.Server.CookieName }

// GetCSRFKey returns the key signing CSRF tokens. It falls back to a
// key derived from the signing key, and is empty when neither is set.
func (c *Config) GetCSRFKey() []byte {
	if c.Server.CSRFKey != "" {
		return []byte(c.Server.CSRFKey)
	}
	if c.Auth.SigningKey == "" {
		return nil
	}
	sum := sha256.Sum256([]byte("csrf:" + c.Auth.SigningKey))
	return sum[:]
}

// GetDialect returns the database dialect.
func (c *Config) GetDialect() string { return c.Database.Dialect }

// GetDSN returns the database connection string.
func (c *Config) GetDSN() string { return c.Database.DSN }

// GetProvider returns the identity provider kind.
func (c *Config) GetProvider() string { return strings.ToLower(c.Auth.Provider) }

// GetSigningKey returns the self-hosted token signing key.
func (c *Config) GetSigningKey() string { return c.Auth.SigningKey }

// GetTokenExpiration returns the access token lifetime.
func (c *Config) GetTokenExpiration() time.Duration { return c.Auth.AccessTokenTTL }

// GetQueryTimeout returns the bound of every background lookup.
func (c *Config) GetQueryTimeout() time.Duration { return c.Navigation.QueryTimeout }

// GetApprovalRedirectDelay returns how long the pending view waits
// before leaving after an approval.
func (c *Config) GetApprovalRedirectDelay() time.Duration {
	return c.Navigation.ApprovalRedirectDelay
}

// GetLogLevel returns the log level name.
func (c *Config) GetLogLevel() string { return c.Log.Level }

// GetProvisioningPolicy returns the bounds of the onboarding wait.
func (c *Config) GetProvisioningPolicy() union.ProvisioningPolicy {
	return union.ProvisioningPolicy{
		InitialInterval: c.Provisioning.InitialInterval,
		MaxInterval:     c.Provisioning.MaxInterval,
		MaxElapsedTime:  c.Provisioning.MaxElapsed,
	}
}
