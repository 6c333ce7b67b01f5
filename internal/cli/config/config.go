// Package config loads agency-cli settings.
//
// Purpose:
//
//	Settings come from environment variables, an optional config file and
//	command-line flags, with precedence flags > environment > file > defaults.
//
// Configuration Sources:
//   - Environment variables: AGENCY_CLI_* prefix (e.g. AGENCY_CLI_DATABASE_URL)
//   - Config file: ~/.agency-cli/config.yaml or ./config.yaml
//   - Command-line flags: applied through LoadWithFlags
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment key.
const EnvPrefix = "AGENCY_CLI"

// Config holds all CLI configuration.
type Config struct {
	DatabaseURL string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// OutputFormat is table or json.
	OutputFormat string
	Quiet        bool

	ReportTopCities int

	// ConfigFile is the file that was read, empty when none was found.
	ConfigFile string
}

// Load reads configuration from the default search paths.
func Load() (*Config, error) {
	v := viper.New()
	if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(filepath.Join(home, ".agency-cli"))
	}
	v.AddConfigPath(".")
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	return load(v)
}

// LoadFile reads configuration from an explicit file path. The format follows
// the file extension and a missing file is an error.
func LoadFile(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	return load(v)
}

func load(v *viper.Viper) (*Config, error) {
	ApplyDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	return &Config{
		DatabaseURL:     v.GetString("database.url"),
		RedisAddr:       v.GetString("redis.addr"),
		RedisPassword:   v.GetString("redis.password"),
		RedisDB:         v.GetInt("redis.db"),
		OutputFormat:    v.GetString("defaults.output-format"),
		Quiet:           v.GetBool("defaults.quiet"),
		ReportTopCities: v.GetInt("reports.top-cities"),
		ConfigFile:      v.ConfigFileUsed(),
	}, nil
}

// LoadWithFlags loads configuration and applies non-empty flag overrides.
func LoadWithFlags(overrides map[string]any) (*Config, error) {
	cfg, err := Load()
	if err != nil {
		return nil, err
	}
	cfg.Apply(overrides)
	return cfg, nil
}

// Apply copies recognized overrides onto cfg. Empty strings are ignored so
// unset flags keep the configured value.
func (c *Config) Apply(overrides map[string]any) {
	for key, value := range overrides {
		switch key {
		case "database-url":
			if v, ok := value.(string); ok && v != "" {
				c.DatabaseURL = v
			}
		case "redis-addr":
			if v, ok := value.(string); ok && v != "" {
				c.RedisAddr = v
			}
		case "format":
			if v, ok := value.(string); ok && v != "" {
				c.OutputFormat = v
			}
		case "quiet":
			if v, ok := value.(bool); ok {
				c.Quiet = c.Quiet || v
			}
		}
	}
}
