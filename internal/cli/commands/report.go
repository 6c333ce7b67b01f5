package commands

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/otherjamesbrown/agency-service/internal/cli/clierrors"
	"github.com/otherjamesbrown/agency-service/internal/reports"
)

// ReportCommand groups reporting subcommands.
func ReportCommand(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Dashboard aggregates and CSV exports",
	}
	cmd.AddCommand(reportExportCommand(g))
	return cmd
}

func reportExportCommand(g *globals) *cobra.Command {
	var (
		kind string
		out  string
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the CSV export to a file or print the dashboard",
		Long: `export computes the dashboard directly from the database.

With --out the CSV export (the same document GET /v1/reports/export returns)
is written to the file. Without it the dashboard is printed as a table or,
with --format json, as JSON.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			k := reports.Kind(kind)
			if !k.Valid() {
				return clierrors.NewUsageError(fmt.Sprintf("unknown export type %q", kind))
			}
			cfg, err := g.load()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			store, err := openStore(ctx, cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			svc := reports.NewService(reports.Options{
				Store:     store,
				TopCities: cfg.ReportTopCities,
				Logger:    g.logger(),
			})

			if out != "" {
				data, name, err := svc.Export(ctx, k)
				if err != nil {
					return clierrors.NewOperationError("report export", err)
				}
				if err := os.WriteFile(out, data, 0o644); err != nil {
					return clierrors.NewOperationError("report export", err)
				}
				abs, _ := filepath.Abs(out)
				return emit(cmd.OutOrStdout(), cfg, result{
					command: "report export",
					headers: []string{"FILE", "SUGGESTED NAME", "BYTES"},
					rows:    [][]string{{abs, name, strconv.Itoa(len(data))}},
					data:    map[string]any{"file": abs, "name": name, "bytes": len(data)},
				})
			}

			d, err := svc.Dashboard(ctx)
			if err != nil {
				return clierrors.NewOperationError("report export", err)
			}
			return emit(cmd.OutOrStdout(), cfg, result{
				command: "report export",
				headers: []string{"SECTION", "LABEL", "VALUE"},
				rows:    dashboardRows(k, d),
				data:    d,
			})
		},
	}
	cmd.Flags().StringVar(&kind, "type", "", "Export type: active-by-product, monthly-new, claims-by-state, top-cities, claims-by-year (default all)")
	cmd.Flags().StringVar(&out, "out", "", "Write the CSV export to this file")
	return cmd
}

func dashboardRows(kind reports.Kind, d reports.Dashboard) [][]string {
	rows := [][]string{
		{"snapshot", "persons", strconv.FormatInt(d.Snapshot.PersonCount, 10)},
		{"snapshot", "active policies", strconv.FormatInt(d.Snapshot.ActivePolicies, 10)},
		{"snapshot", "expired policies", strconv.FormatInt(d.Snapshot.ExpiredPolicies, 10)},
		{"snapshot", "claims paid this year", d.Snapshot.ClaimsSumYTD.String()},
	}
	want := func(k reports.Kind) bool { return kind == reports.KindAll || kind == k }

	if want(reports.KindActiveByProduct) {
		for _, v := range d.ActiveByProduct {
			rows = append(rows, []string{string(reports.KindActiveByProduct), v.Label, strconv.FormatInt(v.Value, 10)})
		}
	}
	if want(reports.KindMonthlyNew) {
		for _, p := range d.MonthlyNew {
			rows = append(rows, []string{string(reports.KindMonthlyNew), p.Period, strconv.FormatInt(p.Count, 10)})
		}
	}
	if want(reports.KindClaimsByState) {
		for _, c := range d.ClaimsByState {
			rows = append(rows, []string{string(reports.KindClaimsByState), string(c.State),
				fmt.Sprintf("%d (sum %s, avg %s)", c.Count, c.Sum, c.Average)})
		}
	}
	if want(reports.KindTopCities) {
		for _, c := range d.TopCities {
			rows = append(rows, []string{string(reports.KindTopCities), c.City, strconv.FormatInt(c.Count, 10)})
		}
	}
	if want(reports.KindClaimsByYear) {
		for _, v := range d.ClaimsByYear {
			rows = append(rows, []string{string(reports.KindClaimsByYear), v.Label, strconv.FormatInt(v.Value, 10)})
		}
	}
	return rows
}
