// Package config loads and validates app config from env and an optional .env file using Viper.
package config

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"

	// minSecretBytes is the shortest JWT_SECRET accepted outside development.
	minSecretBytes = 32
)

// Config holds application configuration loaded from the environment.
type Config struct {
	// Env is the application environment ("development", "staging", "production").
	Env string `mapstructure:"APP_ENV"`
	// HTTPAddr is the address the HTTP API listens on.
	HTTPAddr string `mapstructure:"HTTP_ADDR"`
	// GRPCAddr is the address the gRPC health server listens on.
	GRPCAddr string `mapstructure:"GRPC_ADDR"`
	// DatabaseURL is the Postgres DSN.
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	// RedisURL is the Redis URL (redis://host:6379/0); required when SessionStore is "redis".
	RedisURL string `mapstructure:"REDIS_URL"`
	// SessionStore selects the session backend: "postgres" or "redis".
	SessionStore string `mapstructure:"SESSION_STORE"`

	// JWTSecret is the HS256 signing secret for access tokens.
	JWTSecret string `mapstructure:"JWT_SECRET"`
	// JWTAccessTTL is the access token lifetime (e.g. "30m").
	JWTAccessTTL string `mapstructure:"JWT_ACCESS_TTL"`
	// JWTRefreshTTL is the session lifetime granted on login and on every refresh (e.g. "168h").
	JWTRefreshTTL string `mapstructure:"JWT_REFRESH_TTL"`
	// RefreshTokenPepper, when set, keys refresh-token hashes with HMAC-SHA256.
	RefreshTokenPepper string `mapstructure:"REFRESH_TOKEN_PEPPER"`

	// TOTPIssuer labels provisioning URIs shown by authenticator apps.
	TOTPIssuer string `mapstructure:"TOTP_ISSUER"`
	// LoginRequireTOTP makes login ask for a TOTP code when the identity has 2FA enabled.
	LoginRequireTOTP bool `mapstructure:"LOGIN_REQUIRE_TOTP"`
	// LoginPolicyFile is an optional Rego file replacing the built-in login policy.
	LoginPolicyFile string `mapstructure:"LOGIN_POLICY_FILE"`
	// DevTOTPEnabled exposes GET /dev/totp/{id}. Rejected when Env is production.
	DevTOTPEnabled bool `mapstructure:"DEV_TOTP_ENABLED"`

	// CORSOrigins is a comma-separated list of allowed browser origins.
	CORSOrigins string `mapstructure:"CORS_ORIGINS"`
	// LogLevel is the zap level (debug, info, warn, error).
	LogLevel string `mapstructure:"LOG_LEVEL"`
	// LogFormat is "json" or "console".
	LogFormat string `mapstructure:"LOG_FORMAT"`

	// OTelEndpoint is the OTLP gRPC endpoint; empty disables export.
	OTelEndpoint string `mapstructure:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	// OTelServiceName is the service.name resource attribute.
	OTelServiceName string `mapstructure:"OTEL_SERVICE_NAME"`

	// Security events (optional). When Kafka brokers are set, audit events are also published to Kafka.
	// KafkaBrokers is a comma-separated list of Kafka broker addresses (e.g. "localhost:9092").
	KafkaBrokers string `mapstructure:"KAFKA_BROKERS"`
	// SecurityEventsTopic is the Kafka topic for security events.
	SecurityEventsTopic string `mapstructure:"SECURITY_EVENTS_TOPIC"`

	// Worker-only: KafkaGroupID is the consumer group of the event worker.
	KafkaGroupID string `mapstructure:"KAFKA_CONSUMER_GROUP"`
	// LokiURL is where the worker pushes security events (e.g. http://localhost:3100).
	LokiURL string `mapstructure:"LOKI_URL"`
	// SessionPurgeInterval is how often the worker deletes expired sessions (e.g. "1h").
	SessionPurgeInterval string `mapstructure:"SESSION_PURGE_INTERVAL"`
}

// Load reads .env (if present), then builds and validates Config from the environment via Viper.
// Missing .env is ignored (e.g. in CI). Env vars override .env. Returns an error if required fields are invalid.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()

	v.SetDefault("APP_ENV", EnvDevelopment)
	v.SetDefault("HTTP_ADDR", ":8080")
	v.SetDefault("GRPC_ADDR", ":9090")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("REDIS_URL", "")
	v.SetDefault("SESSION_STORE", "postgres")
	v.SetDefault("JWT_SECRET", "")
	v.SetDefault("JWT_ACCESS_TTL", "30m")
	v.SetDefault("JWT_REFRESH_TTL", "168h") // 7d
	v.SetDefault("REFRESH_TOKEN_PEPPER", "")
	v.SetDefault("TOTP_ISSUER", "MyMessenger")
	v.SetDefault("LOGIN_REQUIRE_TOTP", true)
	v.SetDefault("LOGIN_POLICY_FILE", "")
	v.SetDefault("DEV_TOTP_ENABLED", false)
	v.SetDefault("CORS_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "")
	v.SetDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	v.SetDefault("OTEL_SERVICE_NAME", "mymessenger-identity")
	v.SetDefault("KAFKA_BROKERS", "")
	v.SetDefault("SECURITY_EVENTS_TOPIC", "mymessenger-security-events")
	v.SetDefault("KAFKA_CONSUMER_GROUP", "mymessenger-security-worker")
	v.SetDefault("LOKI_URL", "")
	v.SetDefault("SESSION_PURGE_INTERVAL", "1h")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks required fields and cross-field constraints.
func (c *Config) Validate() error {
	if c.HTTPAddr == "" {
		return errors.New("config: HTTP_ADDR must be set")
	}
	if c.DatabaseURL == "" {
		return errors.New("config: DATABASE_URL must be set")
	}
	if c.JWTSecret == "" {
		return errors.New("config: JWT_SECRET must be set")
	}
	if !c.IsDevelopment() && len(c.JWTSecret) < minSecretBytes {
		return errors.New("config: JWT_SECRET must be at least 32 bytes outside development")
	}
	switch c.SessionStore {
	case "postgres":
	case "redis":
		if c.RedisURL == "" {
			return errors.New("config: REDIS_URL must be set when SESSION_STORE=redis")
		}
	default:
		return errors.New("config: SESSION_STORE must be postgres or redis")
	}
	if c.DevTOTPEnabled && c.Env == EnvProduction {
		return errors.New("config: DEV_TOTP_ENABLED must not be true when APP_ENV=production")
	}
	return nil
}

// IsDevelopment reports whether the app runs in the development environment.
func (c *Config) IsDevelopment() bool {
	return c.Env == EnvDevelopment
}

// AccessTTL parses JWTAccessTTL as a time.Duration. Returns 30m if unset or invalid.
func (c *Config) AccessTTL() time.Duration {
	return parseDuration(c.JWTAccessTTL, 30*time.Minute)
}

// RefreshTTL parses JWTRefreshTTL as a time.Duration. Returns 168h if unset or invalid.
func (c *Config) RefreshTTL() time.Duration {
	return parseDuration(c.JWTRefreshTTL, 168*time.Hour)
}

// PurgeInterval parses SessionPurgeInterval. Returns 1h if unset or invalid.
func (c *Config) PurgeInterval() time.Duration {
	return parseDuration(c.SessionPurgeInterval, time.Hour)
}

// KafkaBrokersList returns Kafka broker addresses from the comma-separated config.
// Used to decide if the event stream is enabled (non-empty list) and to create the producer.
func (c *Config) KafkaBrokersList() []string {
	if c == nil {
		return nil
	}
	return splitList(c.KafkaBrokers)
}

// CORSOriginsList returns the allowed CORS origins.
func (c *Config) CORSOriginsList() []string {
	if c == nil {
		return nil
	}
	return splitList(c.CORSOrigins)
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if v := strings.TrimSpace(p); v != "" {
			out = append(out, v)
		}
	}
	return out
}
