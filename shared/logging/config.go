package logging

import (
	"os"
	"strings"
)

// Config controls logger initialization.
type Config struct {
	// ServiceName identifies the service emitting logs.
	ServiceName string
	// Environment is the deployment environment (development, staging, production).
	Environment string
	// LogLevel controls verbosity (debug, info, warn, error). Unknown values mean info.
	LogLevel string
	// OutputPath is stdout, stderr or a file path. Defaults to stdout.
	OutputPath string
}

// DefaultConfig reads ENVIRONMENT and LOG_LEVEL with fallbacks.
func DefaultConfig() Config {
	return Config{
		ServiceName: "agency-service",
		Environment: getEnvOrDefault("ENVIRONMENT", "development"),
		LogLevel:    getEnvOrDefault("LOG_LEVEL", "info"),
		OutputPath:  "stdout",
	}
}

// WithServiceName sets the service name.
func (c Config) WithServiceName(name string) Config {
	c.ServiceName = name
	return c
}

// WithEnvironment sets the environment.
func (c Config) WithEnvironment(env string) Config {
	c.Environment = env
	return c
}

// WithLogLevel sets the log level.
func (c Config) WithLogLevel(level string) Config {
	c.LogLevel = level
	return c
}

// WithOutputPath sets the output path.
func (c Config) WithOutputPath(path string) Config {
	c.OutputPath = path
	return c
}

// IsDevelopment reports whether the environment is development.
func (c Config) IsDevelopment() bool {
	return strings.EqualFold(c.Environment, "development")
}

func getEnvOrDefault(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}
