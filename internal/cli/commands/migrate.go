package commands

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"strconv"
	"time"

	_ "github.com/lib/pq"

	"github.com/pressly/goose/v3"
	"github.com/spf13/cobra"

	"github.com/otherjamesbrown/agency-service/internal/cli/clierrors"
	"github.com/otherjamesbrown/agency-service/migrations"
	"github.com/otherjamesbrown/agency-service/shared/dataaccess"
)

// MigrateCommand applies, reverts and lists the embedded schema migrations.
func MigrateCommand(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply all pending migrations",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return runMigration(cmd, g, "up", migrateUp)
			},
		},
		&cobra.Command{
			Use:   "down",
			Short: "Revert the most recent migration",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return runMigration(cmd, g, "down", migrateDown)
			},
		},
		&cobra.Command{
			Use:   "status",
			Short: "List migrations and whether they are applied",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return runMigrateStatus(cmd, g)
			},
		},
	)
	return cmd
}

// MigrationRow is one line of migrate output.
type MigrationRow struct {
	Version   int64     `json:"version"`
	Source    string    `json:"source"`
	State     string    `json:"state"`
	AppliedAt time.Time `json:"appliedAt,omitempty"`
	Duration  string    `json:"duration,omitempty"`
}

func newProvider(db *sql.DB) (*goose.Provider, error) {
	fsys, err := fs.Sub(migrations.FS, migrations.Dir)
	if err != nil {
		return nil, fmt.Errorf("migrations fs: %w", err)
	}
	return goose.NewProvider(goose.DialectPostgres, db, fsys)
}

func openDB(ctx context.Context, url string) (*sql.DB, error) {
	db, err := dataaccess.OpenSQL(ctx, "postgres", dataaccess.SQLConfig{DSN: url, MaxOpenConns: 2})
	if err != nil {
		return nil, clierrors.NewServiceUnavailableError("postgres", err)
	}
	return db, nil
}

func migrateUp(ctx context.Context, p *goose.Provider) ([]MigrationRow, error) {
	results, err := p.Up(ctx)
	rows := make([]MigrationRow, 0, len(results))
	for _, r := range results {
		rows = append(rows, resultRow(r))
	}
	return rows, err
}

func migrateDown(ctx context.Context, p *goose.Provider) ([]MigrationRow, error) {
	r, err := p.Down(ctx)
	if r == nil {
		return nil, err
	}
	return []MigrationRow{resultRow(r)}, err
}

func resultRow(r *goose.MigrationResult) MigrationRow {
	row := MigrationRow{State: r.Direction, Duration: r.Duration.Round(time.Millisecond).String()}
	if r.Source != nil {
		row.Version = r.Source.Version
		row.Source = r.Source.Path
	}
	if r.Error != nil {
		row.State = "failed"
	}
	return row
}

func runMigration(cmd *cobra.Command, g *globals, direction string, fn func(context.Context, *goose.Provider) ([]MigrationRow, error)) error {
	cfg, err := g.load()
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	db, err := openDB(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	provider, err := newProvider(db)
	if err != nil {
		return clierrors.NewOperationError("migrate "+direction, err)
	}
	rows, err := fn(ctx, provider)
	if err != nil {
		return clierrors.NewOperationError("migrate "+direction, err)
	}
	version, err := provider.GetDBVersion(ctx)
	if err != nil {
		return clierrors.NewOperationError("migrate "+direction, err)
	}

	return emit(cmd.OutOrStdout(), cfg, result{
		command: "migrate " + direction,
		headers: []string{"VERSION", "SOURCE", "STATE", "DURATION"},
		rows:    migrationTable(rows, false),
		data:    rows,
		summary: map[string]any{"applied": len(rows), "version": version},
	})
}

func runMigrateStatus(cmd *cobra.Command, g *globals) error {
	cfg, err := g.load()
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	db, err := openDB(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	provider, err := newProvider(db)
	if err != nil {
		return clierrors.NewOperationError("migrate status", err)
	}
	statuses, err := provider.Status(ctx)
	if err != nil {
		return clierrors.NewOperationError("migrate status", err)
	}

	rows := make([]MigrationRow, 0, len(statuses))
	pending := 0
	for _, s := range statuses {
		row := MigrationRow{State: string(s.State), AppliedAt: s.AppliedAt}
		if s.Source != nil {
			row.Version = s.Source.Version
			row.Source = s.Source.Path
		}
		if s.State == goose.StatePending {
			pending++
		}
		rows = append(rows, row)
	}

	return emit(cmd.OutOrStdout(), cfg, result{
		command: "migrate status",
		headers: []string{"VERSION", "SOURCE", "STATE", "APPLIED AT"},
		rows:    migrationTable(rows, true),
		data:    rows,
		summary: map[string]any{"pending": pending},
	})
}

func migrationTable(rows []MigrationRow, status bool) [][]string {
	out := make([][]string, 0, len(rows))
	for _, r := range rows {
		last := r.Duration
		if status {
			last = "-"
			if !r.AppliedAt.IsZero() {
				last = r.AppliedAt.UTC().Format(time.RFC3339)
			}
		}
		out = append(out, []string{strconv.FormatInt(r.Version, 10), r.Source, r.State, last})
	}
	return out
}
