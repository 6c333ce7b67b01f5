// Package config provides environment variable-based configuration loading.
//
// Purpose:
//
//	This package defines the service configuration structure and loads it from
//	environment variables using envconfig. The API binary reads it at startup;
//	the operator CLI reuses the database and Redis settings through viper.
//
// Dependencies:
//   - github.com/kelseyhightower/envconfig: Environment variable parsing
//
// Key Responsibilities:
//   - Config struct defines all service configuration fields
//   - Load reads environment variables and validates the result
//   - MustLoad exits the process if configuration is invalid
//
// Debugging Notes:
//   - Required field: DATABASE_URL
//   - Redis is optional. Without it there is no lockout, reset tokens live in
//     process memory and report snapshots are not cached
//   - Kafka is optional. Without it audit events are logged
//   - S3 export delivery is enabled only when EXPORT_S3_BUCKET is set
//
// Thread Safety:
//   - Config is read-only after loading
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Reset token store kinds.
const (
	ResetStoreMemory = "memory"
	ResetStoreRedis  = "redis"
)

// Config represents runtime configuration for the agency service.
type Config struct {
	// ServiceName is emitted in logs and metrics.
	ServiceName string `envconfig:"SERVICE_NAME" default:"agency-service"`
	// HTTPPort is the port the HTTP server listens on.
	HTTPPort int `envconfig:"HTTP_PORT" default:"8080"`
	// DatabaseURL is the Postgres connection string.
	DatabaseURL string `envconfig:"DATABASE_URL" required:"true"`
	// RedisAddr is the host:port of Redis. Empty disables every Redis-backed feature.
	RedisAddr string `envconfig:"REDIS_ADDR" default:""`
	// RedisPassword is the optional password for Redis authentication.
	RedisPassword string `envconfig:"REDIS_PASSWORD" default:""`
	// RedisDB selects the logical Redis database index.
	RedisDB int `envconfig:"REDIS_DB" default:"0"`
	// LogLevel controls the zap level (debug, info, warn, error).
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
	// Environment describes the deployment environment (development, staging, production).
	Environment string `envconfig:"ENVIRONMENT" default:"development"`
	// CORSAllowedOrigins is a comma-separated origin list; empty allows localhost origins only.
	CORSAllowedOrigins string `envconfig:"CORS_ALLOWED_ORIGINS" default:""`

	// KafkaBrokers is a comma-separated list of broker addresses. Empty logs audit events instead.
	KafkaBrokers string `envconfig:"KAFKA_BROKERS" default:""`
	// KafkaTopic receives audit events.
	KafkaTopic string `envconfig:"KAFKA_TOPIC" default:"agency.audit"`
	// KafkaClientID is the client ID used when connecting to Kafka.
	KafkaClientID string `envconfig:"KAFKA_CLIENT_ID" default:"agency-service"`

	// LockoutMaxAttempts is the number of failed logins that locks a username.
	LockoutMaxAttempts int `envconfig:"LOCKOUT_MAX_ATTEMPTS" default:"5"`
	// LockoutDurationMinutes is how long a lock lasts.
	LockoutDurationMinutes int `envconfig:"LOCKOUT_DURATION_MINUTES" default:"15"`
	// LockoutWindowMinutes is the window failed attempts are counted in.
	LockoutWindowMinutes int `envconfig:"LOCKOUT_WINDOW_MINUTES" default:"15"`

	// ResetTokenTTLMinutes bounds the life of a password reset token.
	ResetTokenTTLMinutes int `envconfig:"RESET_TOKEN_TTL_MINUTES" default:"30"`
	// ResetSweepInterval is how often expired in-memory tokens are removed.
	ResetSweepInterval time.Duration `envconfig:"RESET_SWEEP_INTERVAL" default:"1m"`
	// ResetExposeToken returns the token in the forgot-password response (demo mode, no mail delivery).
	ResetExposeToken bool `envconfig:"RESET_EXPOSE_TOKEN" default:"false"`
	// ResetStore selects the token store: memory or redis.
	ResetStore string `envconfig:"RESET_STORE" default:"memory"`

	// ReportCacheTTL bounds how stale the cached dashboard snapshot may be.
	ReportCacheTTL time.Duration `envconfig:"REPORT_CACHE_TTL" default:"1m"`
	// ReportTopCities is the number of cities on the dashboard.
	ReportTopCities int `envconfig:"REPORT_TOP_CITIES" default:"5"`

	// ExportS3Endpoint targets an S3-compatible provider; empty uses AWS.
	ExportS3Endpoint string `envconfig:"EXPORT_S3_ENDPOINT" default:""`
	// ExportS3AccessKey and ExportS3SecretKey are static credentials.
	ExportS3AccessKey string `envconfig:"EXPORT_S3_ACCESS_KEY" default:""`
	ExportS3SecretKey string `envconfig:"EXPORT_S3_SECRET_KEY" default:""`
	// ExportS3Bucket enables export delivery when set.
	ExportS3Bucket string `envconfig:"EXPORT_S3_BUCKET" default:""`
	// ExportS3Region is the signing region.
	ExportS3Region string `envconfig:"EXPORT_S3_REGION" default:"us-east-1"`
	// ExportURLTTL is the lifetime of presigned download URLs.
	ExportURLTTL time.Duration `envconfig:"EXPORT_S3_URL_TTL" default:"15m"`

	// OTELEndpoint enables tracing when set.
	OTELEndpoint string `envconfig:"OTEL_EXPORTER_OTLP_ENDPOINT" default:""`
	// OTELProtocol is grpc or http.
	OTELProtocol string `envconfig:"OTEL_EXPORTER_OTLP_PROTOCOL" default:"grpc"`
	// OTELInsecure disables TLS to the collector.
	OTELInsecure bool `envconfig:"OTEL_EXPORTER_OTLP_INSECURE" default:"true"`
}

// Load reads environment variables into Config, applying defaults where necessary.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("config: process env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return &cfg, nil
}

// MustLoad returns Config or exits the process.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	return cfg
}

// Validate checks value ranges and combinations envconfig cannot express.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.DatabaseURL) == "" {
		errs = append(errs, errors.New("DATABASE_URL is required"))
	}
	if c.HTTPPort <= 0 || c.HTTPPort > 65535 {
		errs = append(errs, fmt.Errorf("HTTP_PORT %d out of range", c.HTTPPort))
	}
	if c.LockoutMaxAttempts < 1 {
		errs = append(errs, errors.New("LOCKOUT_MAX_ATTEMPTS must be at least 1"))
	}
	if c.LockoutDurationMinutes < 1 || c.LockoutWindowMinutes < 1 {
		errs = append(errs, errors.New("lockout durations must be at least one minute"))
	}
	if c.ResetTokenTTLMinutes < 1 {
		errs = append(errs, errors.New("RESET_TOKEN_TTL_MINUTES must be at least 1"))
	}
	switch c.ResetStore {
	case ResetStoreMemory:
	case ResetStoreRedis:
		if c.RedisAddr == "" {
			errs = append(errs, errors.New("RESET_STORE=redis requires REDIS_ADDR"))
		}
	default:
		errs = append(errs, fmt.Errorf("RESET_STORE %q must be memory or redis", c.ResetStore))
	}
	if c.ReportTopCities < 1 {
		errs = append(errs, errors.New("REPORT_TOP_CITIES must be at least 1"))
	}
	if c.ExportS3Bucket != "" && (c.ExportS3AccessKey == "" || c.ExportS3SecretKey == "") {
		errs = append(errs, errors.New("EXPORT_S3_BUCKET requires EXPORT_S3_ACCESS_KEY and EXPORT_S3_SECRET_KEY"))
	}
	switch c.OTELProtocol {
	case "grpc", "http":
	default:
		errs = append(errs, fmt.Errorf("OTEL_EXPORTER_OTLP_PROTOCOL %q must be grpc or http", c.OTELProtocol))
	}
	return errors.Join(errs...)
}

// ResetTokenTTL returns the reset token lifetime.
func (c *Config) ResetTokenTTL() time.Duration {
	return time.Duration(c.ResetTokenTTLMinutes) * time.Minute
}

// CORSOrigins splits CORSAllowedOrigins.
func (c *Config) CORSOrigins() []string {
	var out []string
	for _, o := range strings.Split(c.CORSAllowedOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}

// S3Enabled reports whether export delivery is configured.
func (c *Config) S3Enabled() bool {
	return c.ExportS3Bucket != ""
}
