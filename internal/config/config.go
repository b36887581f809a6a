// Package config loads and validates app config from env and an optional .env file using Viper.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"crm-tenancy/backend/internal/security"
)

// EnvProduction is the APP_ENV value that enables production-only guards.
const EnvProduction = "production"

// Config holds application configuration loaded from the environment.
type Config struct {
	// HTTPAddr is the address the HTTP server listens on (e.g. :8080).
	HTTPAddr string `mapstructure:"HTTP_ADDR"`
	// DatabaseURL is the Postgres DSN. The role must not be a superuser or have BYPASSRLS.
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	// Env is the application environment (e.g. "development", "production").
	Env      string `mapstructure:"APP_ENV"`
	LogLevel string `mapstructure:"LOG_LEVEL"`

	// JWTAccessSecret signs access tokens (HS256). Required, at least 32 bytes.
	JWTAccessSecret string `mapstructure:"JWT_ACCESS_SECRET"`
	// JWTRefreshSecret keys the HMAC of stored refresh secrets. Required, at least 32 bytes, distinct from JWTAccessSecret.
	JWTRefreshSecret string `mapstructure:"JWT_REFRESH_SECRET"`
	JWTIssuer        string `mapstructure:"JWT_ISSUER"`
	JWTAudience      string `mapstructure:"JWT_AUDIENCE"`
	// JWTAccessTTL is the access token lifetime (e.g. "15m").
	JWTAccessTTL string `mapstructure:"JWT_ACCESS_TTL"`
	// JWTRefreshTTL is the refresh credential lifetime (e.g. "168h").
	JWTRefreshTTL string `mapstructure:"JWT_REFRESH_TTL"`
	// BcryptCost is the bcrypt cost factor (4–31); default 12.
	BcryptCost int `mapstructure:"BCRYPT_COST"`

	// TenantHeaderBypassRaw must be set explicitly to "true" or "false". When true, requests without a
	// bearer token may name their tenant with X-Organization-Id. Rejected when APP_ENV=production.
	TenantHeaderBypassRaw string `mapstructure:"TENANT_HEADER_BYPASS"`
	TenantHeaderBypass    bool   `mapstructure:"-"`

	// CredentialRetention is how long expired refresh credentials are kept before purge (e.g. "24h").
	CredentialRetention string `mapstructure:"CREDENTIAL_RETENTION"`
	// PurgeInterval is how often the worker purges expired credentials (e.g. "1h").
	PurgeInterval string `mapstructure:"PURGE_INTERVAL"`

	// RedisURL enables the shared login limiter (e.g. redis://localhost:6379/0). Empty uses an in-process limiter.
	RedisURL string `mapstructure:"REDIS_URL"`
	// LoginRateLimit is the number of login attempts allowed per email and client IP per window; 0 disables.
	LoginRateLimit  int    `mapstructure:"LOGIN_RATE_LIMIT"`
	LoginRateWindow string `mapstructure:"LOGIN_RATE_WINDOW"`

	// OTELEndpoint is the OTLP gRPC collector address; empty disables tracing and OTLP metrics.
	OTELEndpoint string `mapstructure:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	OTELInsecure bool   `mapstructure:"OTEL_EXPORTER_OTLP_INSECURE"`
	// OTELSampleRatio is the fraction of new traces sampled; child spans follow their parent.
	OTELSampleRatio float64 `mapstructure:"OTEL_TRACES_SAMPLER_ARG"`
}

// Load reads .env (if present), then builds and validates Config from the environment via Viper.
// Missing .env is ignored (e.g. in CI). Env vars override .env. Returns an error if required fields are invalid.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()

	v.SetDefault("HTTP_ADDR", ":8080")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("APP_ENV", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("JWT_ACCESS_SECRET", "")
	v.SetDefault("JWT_REFRESH_SECRET", "")
	v.SetDefault("JWT_ISSUER", "crm-auth")
	v.SetDefault("JWT_AUDIENCE", "crm-api")
	v.SetDefault("JWT_ACCESS_TTL", "15m")
	v.SetDefault("JWT_REFRESH_TTL", "168h") // 7d
	v.SetDefault("BCRYPT_COST", 12)
	v.SetDefault("TENANT_HEADER_BYPASS", "")
	v.SetDefault("CREDENTIAL_RETENTION", "24h")
	v.SetDefault("PURGE_INTERVAL", "1h")
	v.SetDefault("REDIS_URL", "")
	v.SetDefault("LOGIN_RATE_LIMIT", 10)
	v.SetDefault("LOGIN_RATE_WINDOW", "15m")
	v.SetDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	v.SetDefault("OTEL_EXPORTER_OTLP_INSECURE", false)
	v.SetDefault("OTEL_TRACES_SAMPLER_ARG", 1.0)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.HTTPAddr == "" {
		return errors.New("config: HTTP_ADDR must be set")
	}

	if len(c.JWTAccessSecret) < security.MinSecretLength {
		return fmt.Errorf("config: JWT_ACCESS_SECRET must be set and at least %d bytes", security.MinSecretLength)
	}
	if len(c.JWTRefreshSecret) < security.MinSecretLength {
		return fmt.Errorf("config: JWT_REFRESH_SECRET must be set and at least %d bytes", security.MinSecretLength)
	}
	if c.JWTAccessSecret == c.JWTRefreshSecret {
		return errors.New("config: JWT_ACCESS_SECRET and JWT_REFRESH_SECRET must differ")
	}
	if c.JWTIssuer == "" || c.JWTAudience == "" {
		return errors.New("config: JWT_ISSUER and JWT_AUDIENCE must be set")
	}

	switch strings.ToLower(strings.TrimSpace(c.TenantHeaderBypassRaw)) {
	case "true":
		c.TenantHeaderBypass = true
	case "false":
		c.TenantHeaderBypass = false
	default:
		return errors.New("config: TENANT_HEADER_BYPASS must be set to true or false")
	}
	if c.TenantHeaderBypass && c.IsProduction() {
		return errors.New("config: TENANT_HEADER_BYPASS must not be true when APP_ENV=production")
	}

	if c.BcryptCost == 0 {
		c.BcryptCost = 12
	}
	if c.BcryptCost < 4 || c.BcryptCost > 31 {
		return errors.New("config: BCRYPT_COST must be between 4 and 31")
	}

	for key, raw := range map[string]string{
		"JWT_ACCESS_TTL":    c.JWTAccessTTL,
		"JWT_REFRESH_TTL":   c.JWTRefreshTTL,
		"PURGE_INTERVAL":    c.PurgeInterval,
		"LOGIN_RATE_WINDOW": c.LoginRateWindow,
	} {
		if d, err := time.ParseDuration(raw); err != nil || d <= 0 {
			return fmt.Errorf("config: %s must be a positive duration, got %q", key, raw)
		}
	}
	if d, err := time.ParseDuration(c.CredentialRetention); err != nil || d < 0 {
		return fmt.Errorf("config: CREDENTIAL_RETENTION must be a non-negative duration, got %q", c.CredentialRetention)
	}
	if c.AccessTTL() >= c.RefreshTTL() {
		return errors.New("config: JWT_ACCESS_TTL must be shorter than JWT_REFRESH_TTL")
	}
	if c.LoginRateLimit < 0 {
		return errors.New("config: LOGIN_RATE_LIMIT must not be negative")
	}
	if c.OTELSampleRatio < 0 || c.OTELSampleRatio > 1 {
		return errors.New("config: OTEL_TRACES_SAMPLER_ARG must be between 0 and 1")
	}
	return nil
}

// IsProduction reports whether APP_ENV is production.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(strings.TrimSpace(c.Env), EnvProduction)
}

// AccessTTL parses JWTAccessTTL as a time.Duration. Returns 15m if unset or invalid.
func (c *Config) AccessTTL() time.Duration {
	return parseDuration(c.JWTAccessTTL, 15*time.Minute)
}

// RefreshTTL parses JWTRefreshTTL as a time.Duration. Returns 168h if unset or invalid.
func (c *Config) RefreshTTL() time.Duration {
	return parseDuration(c.JWTRefreshTTL, 168*time.Hour)
}

// Retention is how long expired credentials are kept before purge.
func (c *Config) Retention() time.Duration {
	d, err := time.ParseDuration(c.CredentialRetention)
	if err != nil || d < 0 {
		return 24 * time.Hour
	}
	return d
}

func (c *Config) PurgeEvery() time.Duration {
	return parseDuration(c.PurgeInterval, time.Hour)
}

func (c *Config) RateWindow() time.Duration {
	return parseDuration(c.LoginRateWindow, 15*time.Minute)
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
