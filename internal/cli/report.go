package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vvka-141/tripmerge/internal/tui"
	"github.com/vvka-141/tripmerge/pkg/tripmerge"
)

type reportFlagValues struct {
	sql       string
	estimate  bool
	warehouse string
	dsn       string
	auth      string
}

func newReportCommand() *cobra.Command {
	var f reportFlagValues
	cmd := &cobra.Command{
		Use:   "report <project> <dataset>",
		Short: "Show master relation statistics and run ad-hoc queries",
		Long: `Report prints, for each master relation in the dataset, its row count next to its
count of distinct identities; the two are equal when the merge invariant holds.

With --sql the query is run and its rows are printed. With --estimate the query
is only planned and the estimated rows and bytes are printed instead.

Examples:
  tripmerge report warehouse nyc
  tripmerge report warehouse nyc --sql "SELECT count(*) FROM nyc.yellow_tripdata" --estimate`,
		Args: RequireArgs("tripmerge report warehouse nyc", "project", "dataset"),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReport(cmd, args, &f)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&f.sql, "sql", "", "Ad-hoc query to run against the warehouse")
	flags.BoolVar(&f.estimate, "estimate", false, "Estimate the cost of --sql without running it")
	flags.StringVar(&f.warehouse, "warehouse", "", "Warehouse driver: postgres|sqlite|memory (default postgres)")
	flags.StringVar(&f.dsn, "dsn", "", "Postgres connection string")
	flags.StringVar(&f.auth, "auth", "", "Postgres authentication: standard|aws-iam")
	return cmd
}

func runReport(cmd *cobra.Command, args []string, f *reportFlagValues) error {
	if f.estimate && f.sql == "" {
		return fmt.Errorf("%w: --estimate requires --sql", tripmerge.ErrUsage)
	}

	cfg, err := loadSettings(cmd)
	if err != nil {
		return err
	}
	override(cmd, "warehouse", &cfg.Warehouse.Driver, f.warehouse)
	override(cmd, "dsn", &cfg.Warehouse.DSN, f.dsn)
	override(cmd, "auth", &cfg.Warehouse.Auth, f.auth)

	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, cancel := runContext(cmd.Context(), 0)
	defer cancel()

	project, dataset := args[0], args[1]
	wh, err := openWarehouse(ctx, cfg, project, dataset, logger)
	if err != nil {
		return err
	}
	defer wh.Close()

	report := tui.Report{Dataset: dataset}
	for _, source := range tripmerge.SourceTypes {
		master := tripmerge.MasterTableFor(source)
		exists, err := wh.TableExists(ctx, master)
		if err != nil {
			return fmt.Errorf("check %s: %w", master, err)
		}
		if !exists {
			continue
		}
		stats, err := wh.MasterStats(ctx, master)
		if err != nil {
			return fmt.Errorf("stats of %s: %w", master, err)
		}
		report.Masters = append(report.Masters, stats)
	}

	switch {
	case f.estimate:
		estimator, ok := wh.(tripmerge.Estimator)
		if !ok || !wh.Capabilities().Estimate {
			return fmt.Errorf("%s warehouse cannot estimate queries: %w", wh.Dialect(), tripmerge.ErrUnsupported)
		}
		est, err := estimator.Estimate(ctx, f.sql)
		if err != nil {
			return fmt.Errorf("estimate: %w", err)
		}
		report.Estimate = &est
	case f.sql != "":
		result, err := wh.Query(ctx, f.sql)
		if err != nil {
			return fmt.Errorf("query: %w", err)
		}
		report.Query = &result
	}

	fmt.Fprint(cmd.OutOrStdout(), tui.RenderReport(report, terminalFor(cmd.OutOrStdout())))
	return nil
}
