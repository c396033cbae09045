package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/vvka-141/tripmerge/internal/feed"
	"github.com/vvka-141/tripmerge/internal/files/filesystem"
	"github.com/vvka-141/tripmerge/internal/identity"
	"github.com/vvka-141/tripmerge/internal/merge"
	"github.com/vvka-141/tripmerge/internal/metrics"
	"github.com/vvka-141/tripmerge/internal/services"
	"github.com/vvka-141/tripmerge/internal/staging"
	"github.com/vvka-141/tripmerge/internal/tui"
	"github.com/vvka-141/tripmerge/pkg/tripmerge"
)

type loadFlagValues struct {
	mode        string
	workers     int
	skipUpload  bool
	prefix      string
	localDir    string
	timeout     time.Duration
	warehouse   string
	dsn         string
	auth        string
	blob        string
	blobRoot    string
	endpoint    string
	region      string
	metricsFile string
	metricsAddr string
}

func newLoadCommand() *cobra.Command {
	var f loadFlagValues
	cmd := &cobra.Command{
		Use:   "load <bucket> <project> <dataset>",
		Short: "Stage batch files and merge them into the master relations",
		Long: `Load discovers batch files, copies each into the object store bucket, loads it
into its staging relation and, in merge mode, tags every row with its identity
and merges unseen rows into the master relation of its source type.

Arguments:
  bucket     Object store bucket holding durable copies of batch files
  project    Warehouse database (postgres) or directory (sqlite)
  dataset    Warehouse schema (postgres) or database file name (sqlite)

Batch files are named {type}_tripdata_{yyyy}-{mm}.{csv|csv.gz|parquet}; other files are skipped.
A failed batch is reported in the summary and does not stop the others.

Examples:
  # Merge every file below ./nyc_taxi_data into a Postgres warehouse
  tripmerge load nyc-trips warehouse nyc --dsn postgresql://loader@localhost/warehouse

  # Stage only, using an embedded SQLite warehouse under ./wh
  tripmerge load nyc-trips ./wh nyc --warehouse sqlite --mode as-is

  # Reload objects already in an S3 bucket
  tripmerge load nyc-trips warehouse nyc --blob s3 --skip-upload --prefix raw`,
		Args: RequireArgs("tripmerge load nyc-trips warehouse nyc", "bucket", "project", "dataset"),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLoad(cmd, args, &f)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&f.mode, "mode", "", "Load mode: as-is (stage only) | merge (default merge)")
	flags.IntVarP(&f.workers, "workers", "w", 0, fmt.Sprintf("Batches processed concurrently (default %d)", tripmerge.DefaultWorkers))
	flags.BoolVar(&f.skipUpload, "skip-upload", false, "Load objects already in the bucket instead of local files")
	flags.StringVar(&f.prefix, "prefix", "", "Object key prefix inside the bucket")
	flags.StringVar(&f.localDir, "local-dir", "", fmt.Sprintf("Directory holding batch files (default %s)", tripmerge.DefaultLocalDir))
	flags.DurationVar(&f.timeout, "timeout", 0, "Abort the whole run after this long (default 2h, 0 disables)")
	flags.StringVar(&f.warehouse, "warehouse", "", "Warehouse driver: postgres|sqlite|memory (default postgres)")
	flags.StringVar(&f.dsn, "dsn", "", "Postgres connection string\n"+
		"Precedence: --dsn > $TRIPMERGE_WAREHOUSE_DSN > $DATABASE_URL > $PG* variables")
	flags.StringVar(&f.auth, "auth", "", "Postgres authentication: standard|aws-iam")
	flags.StringVar(&f.blob, "blob", "", "Object store driver: fs|s3|memory (default fs)")
	flags.StringVar(&f.blobRoot, "blob-root", "", "Base directory of the fs object store")
	flags.StringVar(&f.endpoint, "endpoint", "", "S3-compatible endpoint, e.g. http://localhost:9000 for MinIO")
	flags.StringVar(&f.region, "region", "", "S3 region")
	flags.StringVar(&f.metricsFile, "metrics-file", "", "Write a Prometheus textfile snapshot here after the run")
	flags.StringVar(&f.metricsAddr, "metrics-addr", "", "Serve /metrics on this address while the run is in progress")
	return cmd
}

func runLoad(cmd *cobra.Command, args []string, f *loadFlagValues) error {
	cfg, err := loadSettings(cmd)
	if err != nil {
		return err
	}
	override(cmd, "mode", &cfg.Load.Mode, f.mode)
	override(cmd, "workers", &cfg.Load.Workers, f.workers)
	override(cmd, "skip-upload", &cfg.Load.SkipUpload, f.skipUpload)
	override(cmd, "prefix", &cfg.Load.Prefix, f.prefix)
	override(cmd, "local-dir", &cfg.Load.LocalDir, f.localDir)
	override(cmd, "warehouse", &cfg.Warehouse.Driver, f.warehouse)
	override(cmd, "dsn", &cfg.Warehouse.DSN, f.dsn)
	override(cmd, "auth", &cfg.Warehouse.Auth, f.auth)
	override(cmd, "blob", &cfg.Blob.Driver, f.blob)
	override(cmd, "blob-root", &cfg.Blob.Root, f.blobRoot)
	override(cmd, "endpoint", &cfg.Blob.Endpoint, f.endpoint)
	override(cmd, "region", &cfg.Blob.Region, f.region)
	override(cmd, "metrics-file", &cfg.Metrics.TextFile, f.metricsFile)
	override(cmd, "metrics-addr", &cfg.Metrics.Address, f.metricsAddr)

	timeout, err := cfg.LoadTimeout()
	if err != nil {
		return err
	}
	override(cmd, "timeout", &timeout, f.timeout)

	mode := tripmerge.LoadMode(cfg.Load.Mode)
	if parsed, err := tripmerge.ParseLoadMode(cfg.Load.Mode); err == nil {
		mode = parsed
	}
	run := tripmerge.LoadConfig{
		Bucket:     args[0],
		Project:    args[1],
		Dataset:    args[2],
		LocalDir:   cfg.Load.LocalDir,
		Prefix:     cfg.Load.Prefix,
		SkipUpload: cfg.Load.SkipUpload,
		Mode:       mode,
		Workers:    cfg.Load.Workers,
		Timeout:    timeout,
		Verbose:    cfg.Log.Verbose,
	}
	if err := run.Validate(); err != nil {
		return err
	}

	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, cancel := runContext(cmd.Context(), run.Timeout)
	defer cancel()

	if cfg.Metrics.TextFile != "" || cfg.Metrics.Address != "" {
		cfg.Metrics.Enabled = true
	}
	m := metrics.New(cfg.Metrics)
	if cfg.Metrics.Address != "" {
		go func() {
			if err := m.Serve(ctx, cfg.Metrics.Address); err != nil {
				logger.Error("%v", err)
			}
		}()
	}

	store, err := openStore(ctx, cfg, run.Bucket)
	if err != nil {
		return err
	}
	wh, err := openWarehouse(ctx, cfg, run.Project, run.Dataset, logger)
	if err != nil {
		return err
	}
	defer wh.Close()

	if err := services.Bootstrap(ctx, store, wh, logger); err != nil {
		return err
	}

	scanner := feed.NewScanner(filesystem.NewOSFileSystem(), logger)
	var batches []tripmerge.Batch
	if run.SkipUpload {
		batches, err = scanner.DiscoverObjects(ctx, store, run.Prefix)
	} else {
		batches, err = scanner.Discover(run.LocalDir)
	}
	if err != nil {
		return err
	}

	stager := staging.NewStager(store, wh, logger)
	var (
		deriver    services.IdentityDeriver
		reconciler services.MasterReconciler
	)
	if run.Mode == tripmerge.ModeMerge {
		deriver = identity.NewDeriver(wh, logger)
		reconciler = merge.NewReconciler(wh, logger)
	}
	orchestrator := services.NewOrchestrator(stager, deriver, reconciler, m, logger, services.RunOptions{
		Mode:       run.Mode,
		Workers:    run.Workers,
		Prefix:     run.Prefix,
		SkipUpload: run.SkipUpload,
	})

	summary := orchestrator.Run(ctx, batches)
	fmt.Fprint(cmd.OutOrStdout(), tui.RenderSummary(summary, terminalFor(cmd.OutOrStdout())))

	if err := m.WriteTextfile(cfg.Metrics.TextFile); err != nil {
		logger.Error("%v", err)
	}
	return nil
}
