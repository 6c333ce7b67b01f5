// Command agency-api serves the insurance agency REST API.
//
// Purpose:
//
//	This binary loads configuration, initializes Postgres, Redis, audit and the
//	domain managers via bootstrap, mounts the /v1 routes and serves HTTP with
//	graceful shutdown handling.
//
// Debugging Notes:
//   - Server starts on HTTP_PORT (default 8080)
//   - /readyz reports the postgres and redis probes
//   - The in-memory reset token sweeper runs only with RESET_STORE=memory
//   - Graceful shutdown allows in-flight requests 10s to complete
//
// Error Handling:
//   - Configuration errors exit with code 1
//   - Bootstrap and listener failures log fatal and exit
//   - Runtime close errors are logged but do not change the exit code
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/otherjamesbrown/agency-service/internal/bootstrap"
	"github.com/otherjamesbrown/agency-service/internal/config"
	"github.com/otherjamesbrown/agency-service/internal/httpapi"
	"github.com/otherjamesbrown/agency-service/internal/logging"
	"github.com/otherjamesbrown/agency-service/internal/server"
)

func main() {
	cfg := config.MustLoad()
	logger := logging.New(cfg.ServiceName, cfg.Environment, cfg.LogLevel)
	defer func() { _ = logger.Sync() }()

	logger.Info("starting agency API",
		zap.String("env", cfg.Environment),
		zap.Int("port", cfg.HTTPPort),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	runtime, err := bootstrap.Initialize(ctx, cfg, logger.Logger)
	if err != nil {
		logger.Fatal("failed to bootstrap runtime", zap.Error(err))
	}
	logger.Info("runtime dependencies initialized")

	srv := server.New(server.Options{
		Port:           cfg.HTTPPort,
		Logger:         logger.Logger,
		ServiceName:    cfg.ServiceName,
		AllowedOrigins: cfg.CORSOrigins(),
		Health:         runtime.Health,
		DebugRoutes:    logger.Config().IsDevelopment(),
		RegisterRoutes: func(r chi.Router) {
			if err := httpapi.RegisterRoutes(r, runtime); err != nil {
				logger.Fatal("failed to register routes", zap.Error(err))
			}
		},
	})

	if runtime.Sweeper != nil {
		go runtime.Sweeper.Run(ctx)
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("agency API server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
		os.Exit(1)
	}
	if err := runtime.Close(shutdownCtx); err != nil {
		logger.Error("failed to cleanly close runtime", zap.Error(err))
	}

	logger.Info("agency API stopped")
}
