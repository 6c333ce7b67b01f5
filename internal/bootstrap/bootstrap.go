// Package bootstrap provides centralized initialization and lifecycle management for
// the agency service dependencies.
//
// Purpose:
//
//	This package wires together the runtime dependencies required by the API
//	binary: Postgres, optional Redis, the audit emitter, tracing and every
//	domain manager. It fixes the initialization order and provides a unified
//	shutdown and readiness interface.
//
// Dependencies:
//   - github.com/redis/go-redis/v9: lockout, reset tokens and the report cache
//   - internal/config: Service configuration from environment variables
//   - internal/storage/postgres: Core data access layer
//   - shared/dataaccess: readiness probe registry
//   - shared/observability: OpenTelemetry tracer provider
//
// Debugging Notes:
//   - Redis connection failures fail fast during initialization (2s timeout)
//   - Without Redis there is no lockout, tokens stay in memory and snapshots are not cached
//   - Postgres connection failures prevent service startup (required dependency)
//   - A failing Kafka or S3 setup falls back to logging and disabled delivery
//
// Thread Safety:
//   - Runtime struct is safe for concurrent read access after initialization
//   - Close should be called once during shutdown
//
// Error Handling:
//   - Initialization errors are wrapped with context (e.g., "bootstrap postgres: ...")
//   - Close collects errors but returns the first one encountered
package bootstrap

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/otherjamesbrown/agency-service/internal/accounts"
	"github.com/otherjamesbrown/agency-service/internal/audit"
	"github.com/otherjamesbrown/agency-service/internal/authz"
	"github.com/otherjamesbrown/agency-service/internal/bindings"
	"github.com/otherjamesbrown/agency-service/internal/claims"
	"github.com/otherjamesbrown/agency-service/internal/config"
	"github.com/otherjamesbrown/agency-service/internal/persons"
	"github.com/otherjamesbrown/agency-service/internal/policies"
	"github.com/otherjamesbrown/agency-service/internal/recovery"
	"github.com/otherjamesbrown/agency-service/internal/reports"
	"github.com/otherjamesbrown/agency-service/internal/security"
	"github.com/otherjamesbrown/agency-service/internal/storage/postgres"
	"github.com/otherjamesbrown/agency-service/shared/dataaccess"
	"github.com/otherjamesbrown/agency-service/shared/observability"
)

// Runtime bundles initialized runtime dependencies for use by service binaries.
// All fields are populated during Initialize and remain valid until Close is called.
type Runtime struct {
	Config   *config.Config
	Logger   *zap.Logger
	Postgres *postgres.Store
	Redis    *redis.Client // nil when REDIS_ADDR is empty
	Audit    audit.Emitter
	Tracing  *observability.Provider // nil when no collector is configured
	Health   *dataaccess.Registry

	Persons  *persons.Manager
	Bindings *bindings.Manager
	Policies *policies.Manager
	Claims   *claims.Manager
	Accounts *accounts.Manager
	Authz    *authz.Resolver
	Recovery *recovery.Service
	Reports  *reports.Service

	ResetTokens recovery.TokenStore
	Sweeper     *recovery.Sweeper // nil for the Redis token store, which expires keys itself
}

// Initialize wires dependencies based on the provided configuration.
// Initialization order: tracing → Postgres → Redis → audit → managers.
// The returned Runtime must be closed via Close() during shutdown.
func Initialize(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Runtime, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	rt := &Runtime{Config: cfg, Logger: logger, Health: dataaccess.NewRegistry()}

	if cfg.OTELEndpoint != "" {
		provider, err := observability.Init(ctx, observability.Config{
			ServiceName: cfg.ServiceName,
			Environment: cfg.Environment,
			Endpoint:    cfg.OTELEndpoint,
			Protocol:    cfg.OTELProtocol,
			Insecure:    cfg.OTELInsecure,
		})
		if err != nil {
			logger.Warn("tracing disabled", zap.Error(err))
		} else {
			rt.Tracing = provider
			logger.Info("tracing enabled",
				zap.String("protocol", provider.Protocol()),
				zap.Bool("fallback", provider.Fallback()),
			)
		}
	}

	pgStore, err := postgres.NewStore(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("bootstrap postgres: %w", err)
	}
	rt.Postgres = pgStore
	rt.Health.Register("postgres", dataaccess.PingProbe(pgStore))

	if cfg.RedisAddr != "" {
		rt.Redis = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})

		// Best-effort ping with timeout to fail fast if Redis is unavailable.
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		if err := rt.Redis.Ping(pingCtx).Err(); err != nil {
			_ = rt.Close(ctx)
			return nil, fmt.Errorf("bootstrap redis: %w", err)
		}
		client := rt.Redis
		rt.Health.Register("redis", func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		})
	}

	rt.Audit = newAuditEmitter(cfg, logger)

	rt.Persons = persons.NewManager(pgStore, logger)
	rt.Bindings = bindings.NewManager(pgStore, logger)
	rt.Policies = policies.NewManager(pgStore, rt.Bindings, logger)
	rt.Claims = claims.NewManager(pgStore, logger)
	rt.Authz = authz.NewResolver(pgStore)

	var lockout accounts.Lockout
	if rt.Redis != nil {
		lockout = security.NewLockoutTracker(rt.Redis, security.LockoutConfig{
			MaxAttempts:     cfg.LockoutMaxAttempts,
			LockoutDuration: time.Duration(cfg.LockoutDurationMinutes) * time.Minute,
			WindowDuration:  time.Duration(cfg.LockoutWindowMinutes) * time.Minute,
		})
	}
	rt.Accounts = accounts.NewManager(pgStore, lockout, logger)

	if cfg.ResetStore == config.ResetStoreRedis && rt.Redis != nil {
		rt.ResetTokens = recovery.NewRedisStore(rt.Redis)
	} else {
		mem := recovery.NewMemoryStore()
		rt.ResetTokens = mem
		rt.Sweeper = recovery.NewSweeper(mem, cfg.ResetSweepInterval, logger)
	}
	rt.Recovery = recovery.NewService(rt.ResetTokens, rt.Accounts, cfg.ResetTokenTTL(), logger)

	opts := reports.Options{
		Store:     pgStore,
		TopCities: cfg.ReportTopCities,
		Logger:    logger,
	}
	if rt.Redis != nil && cfg.ReportCacheTTL > 0 {
		opts.Cache = reports.NewRedisCache(rt.Redis, cfg.ReportCacheTTL)
	}
	if cfg.S3Enabled() {
		delivery, err := reports.NewS3Delivery(ctx, reports.S3Config{
			Endpoint:  cfg.ExportS3Endpoint,
			AccessKey: cfg.ExportS3AccessKey,
			SecretKey: cfg.ExportS3SecretKey,
			Bucket:    cfg.ExportS3Bucket,
			Region:    cfg.ExportS3Region,
			URLTTL:    cfg.ExportURLTTL,
		}, logger)
		if err != nil {
			logger.Warn("export delivery disabled", zap.Error(err))
		} else {
			opts.Delivery = delivery
		}
	}
	rt.Reports = reports.NewService(opts)

	return rt, nil
}

func newAuditEmitter(cfg *config.Config, logger *zap.Logger) audit.Emitter {
	kafkaEmitter, err := audit.NewKafkaEmitterFromConfig(cfg.KafkaBrokers, cfg.KafkaTopic, cfg.KafkaClientID, logger)
	switch {
	case err != nil:
		logger.Warn("failed to initialize Kafka emitter, falling back to logger", zap.Error(err))
	case kafkaEmitter != nil:
		logger.Info("using Kafka emitter for audit events", zap.String("topic", cfg.KafkaTopic))
		return kafkaEmitter
	default:
		logger.Info("Kafka not configured, using logger emitter for audit events")
	}
	return audit.NewLoggerEmitter(logger)
}

// Close releases runtime resources in reverse initialization order.
// Returns the first error encountered, but continues closing other resources.
func (rt *Runtime) Close(ctx context.Context) error {
	if rt == nil {
		return nil
	}
	var firstErr error
	if kafkaEmitter, ok := rt.Audit.(*audit.KafkaEmitter); ok {
		if err := kafkaEmitter.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if rt.Redis != nil {
		if err := rt.Redis.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if rt.Postgres != nil {
		rt.Postgres.Close()
	}
	if rt.Tracing != nil {
		if err := rt.Tracing.Shutdown(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// ReadinessProbe evaluates every registered dependency probe.
func (rt *Runtime) ReadinessProbe(ctx context.Context) error {
	result := rt.Health.Evaluate(ctx)
	if result.Healthy() {
		return nil
	}
	for name, check := range result.Checks {
		if !check.Healthy {
			return fmt.Errorf("%s not ready: %s", name, check.Error)
		}
	}
	return nil
}
