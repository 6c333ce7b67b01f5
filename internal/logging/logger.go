// Package logging builds the service logger on top of shared/logging.
package logging

import (
	"go.uber.org/zap"

	"github.com/otherjamesbrown/agency-service/shared/logging"
)

// New creates the service logger for the given name, environment and level.
func New(serviceName, environment, level string) *logging.Logger {
	cfg := logging.DefaultConfig().
		WithServiceName(serviceName).
		WithLogLevel(level)
	if environment != "" {
		cfg = cfg.WithEnvironment(environment)
	}
	return logging.MustNew(cfg)
}

// Component returns a child of logger tagged with the component name.
func Component(logger *zap.Logger, name string) *zap.Logger {
	if logger == nil {
		return zap.NewNop()
	}
	return logger.With(zap.String("component", name))
}
