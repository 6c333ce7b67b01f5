// Package commands implements the agency-cli cobra commands.
//
// Purpose:
//
//	Operator tasks that run outside the API process: schema migrations,
//	seeding the first administrator and demo data, offline report exports and
//	reset token housekeeping.
//
// Dependencies:
//   - github.com/spf13/cobra: command tree and flags
//   - internal/cli/config: viper-backed settings
//   - internal/storage/postgres: direct store access
package commands

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/otherjamesbrown/agency-service/internal/cli/clierrors"
	"github.com/otherjamesbrown/agency-service/internal/cli/config"
	"github.com/otherjamesbrown/agency-service/internal/cli/output"
	"github.com/otherjamesbrown/agency-service/internal/storage/postgres"
	"github.com/otherjamesbrown/agency-service/shared/logging"
)

// globals holds the persistent flags shared by every subcommand.
type globals struct {
	configFile  string
	databaseURL string
	redisAddr   string
	format      string
	quiet       bool
	verbose     bool
}

// NewRootCommand builds the agency-cli command tree.
func NewRootCommand(version string) *cobra.Command {
	g := &globals{}
	root := &cobra.Command{
		Use:   "agency-cli",
		Short: "Operator CLI for the agency service",
		Long: `agency-cli runs operator tasks against the agency service database:
schema migrations, administrator and demo data seeding, report exports and
password reset token housekeeping.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := root.PersistentFlags()
	flags.StringVar(&g.configFile, "config", "", "Config file (default ~/.agency-cli/config.yaml)")
	flags.StringVar(&g.databaseURL, "database-url", "", "Postgres connection string (overrides config)")
	flags.StringVar(&g.redisAddr, "redis-addr", "", "Redis host:port (overrides config)")
	flags.StringVar(&g.format, "format", "", "Output format: table, json")
	flags.BoolVar(&g.quiet, "quiet", false, "Suppress non-error output")
	flags.BoolVar(&g.verbose, "verbose", false, "Log debug output to stderr")

	root.AddCommand(MigrateCommand(g))
	root.AddCommand(SeedCommand(g))
	root.AddCommand(ReportCommand(g))
	root.AddCommand(RecoveryCommand(g))
	return root
}

func (g *globals) load() (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if g.configFile != "" {
		cfg, err = config.LoadFile(g.configFile)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, clierrors.NewValidationError(err.Error(), "Check the config file syntax.")
	}
	cfg.Apply(map[string]any{
		"database-url": g.databaseURL,
		"redis-addr":   g.redisAddr,
		"format":       g.format,
		"quiet":        g.quiet,
	})
	cfg.OutputFormat = strings.ToLower(cfg.OutputFormat)
	if !output.ValidFormat(cfg.OutputFormat) {
		return nil, clierrors.NewUsageError(fmt.Sprintf("unknown output format %q", cfg.OutputFormat))
	}
	return cfg, nil
}

// logger writes JSON lines to stderr so stdout stays parseable.
func (g *globals) logger() *zap.Logger {
	level := "warn"
	if g.verbose {
		level = "debug"
	}
	cfg := logging.DefaultConfig().
		WithServiceName("agency-cli").
		WithLogLevel(level).
		WithOutputPath("stderr")
	return logging.MustNew(cfg).Logger
}

func openStore(ctx context.Context, cfg *config.Config) (*postgres.Store, error) {
	store, err := postgres.NewStore(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, clierrors.NewServiceUnavailableError("postgres", err)
	}
	if err := store.Ping(ctx); err != nil {
		store.Close()
		return nil, clierrors.NewServiceUnavailableError("postgres", err)
	}
	return store, nil
}

// result prints a command result in the configured format. rows is rendered
// for table output and data for JSON.
type result struct {
	command string
	headers []string
	rows    [][]string
	data    any
	summary map[string]any
}

func emit(w io.Writer, cfg *config.Config, r result) error {
	if cfg.Quiet {
		return nil
	}
	if cfg.OutputFormat == output.FormatJSON {
		return output.NewJSONFormatter(w).WriteSuccess(r.command, r.data, r.summary)
	}
	return output.PrintTable(w, r.headers, r.rows)
}
