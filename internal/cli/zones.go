package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/vvka-141/tripmerge/internal/feed"
	"github.com/vvka-141/tripmerge/internal/files/filesystem"
	"github.com/vvka-141/tripmerge/internal/metrics"
	"github.com/vvka-141/tripmerge/internal/services"
	"github.com/vvka-141/tripmerge/internal/zones"
	"github.com/vvka-141/tripmerge/pkg/tripmerge"
)

type zonesFlagValues struct {
	url       string
	file      string
	out       string
	table     string
	prefix    string
	attempts  int
	warehouse string
	dsn       string
	auth      string
	blob      string
	blobRoot  string
	endpoint  string
	region    string
}

func newZonesCommand() *cobra.Command {
	var f zonesFlagValues
	cmd := &cobra.Command{
		Use:   "zones <bucket> <project> <dataset>",
		Short: "Load the taxi zone lookup into its reference relation",
		Long: `Zones downloads taxi_zone_lookup.csv, stores it in the bucket under
reference/ and replaces the taxi_zones relation with it. The relation maps the
PULocationID and DOLocationID of every trip to a borough and zone.

Examples:
  # Download the lookup from the release feed into a Postgres warehouse
  tripmerge zones nyc-trips warehouse nyc --dsn postgresql://loader@localhost/warehouse

  # Load a lookup already on disk into an embedded SQLite warehouse
  tripmerge zones nyc-trips ./wh nyc --warehouse sqlite --file ./taxi_zone_lookup.csv`,
		Args: RequireArgs("tripmerge zones nyc-trips warehouse nyc", "bucket", "project", "dataset"),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runZones(cmd, args, &f)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&f.url, "url", "", "Location of the lookup (default {feed base URL}/misc/"+zones.Filename+")")
	flags.StringVar(&f.file, "file", "", "Load this local file instead of downloading")
	flags.StringVar(&f.out, "out", "", fmt.Sprintf("Download directory (default %s)", tripmerge.DefaultLocalDir))
	flags.StringVar(&f.table, "table", zones.DefaultTable, "Relation to replace")
	flags.StringVar(&f.prefix, "prefix", "", "Object key prefix inside the bucket")
	flags.IntVar(&f.attempts, "attempts", 0, fmt.Sprintf("Download requests before giving up (default %d)", tripmerge.DefaultDownloadRetries))
	flags.StringVar(&f.warehouse, "warehouse", "", "Warehouse driver: postgres|sqlite|memory (default postgres)")
	flags.StringVar(&f.dsn, "dsn", "", "Postgres connection string")
	flags.StringVar(&f.auth, "auth", "", "Postgres authentication: standard|aws-iam")
	flags.StringVar(&f.blob, "blob", "", "Object store driver: fs|s3|memory (default fs)")
	flags.StringVar(&f.blobRoot, "blob-root", "", "Base directory of the fs object store")
	flags.StringVar(&f.endpoint, "endpoint", "", "S3-compatible endpoint")
	flags.StringVar(&f.region, "region", "", "S3 region")
	return cmd
}

func runZones(cmd *cobra.Command, args []string, f *zonesFlagValues) error {
	cfg, err := loadSettings(cmd)
	if err != nil {
		return err
	}
	override(cmd, "out", &cfg.Feed.OutDir, f.out)
	override(cmd, "attempts", &cfg.Feed.Attempts, f.attempts)
	override(cmd, "prefix", &cfg.Load.Prefix, f.prefix)
	override(cmd, "warehouse", &cfg.Warehouse.Driver, f.warehouse)
	override(cmd, "dsn", &cfg.Warehouse.DSN, f.dsn)
	override(cmd, "auth", &cfg.Warehouse.Auth, f.auth)
	override(cmd, "blob", &cfg.Blob.Driver, f.blob)
	override(cmd, "blob-root", &cfg.Blob.Root, f.blobRoot)
	override(cmd, "endpoint", &cfg.Blob.Endpoint, f.endpoint)
	override(cmd, "region", &cfg.Blob.Region, f.region)

	if strings.TrimSpace(f.table) == "" {
		return fmt.Errorf("%w: --table must not be empty", tripmerge.ErrUsage)
	}
	if f.file != "" && cmd.Flags().Changed("url") {
		return fmt.Errorf("%w: --file and --url are mutually exclusive", tripmerge.ErrUsage)
	}

	req := zones.Request{LocalPath: f.file, Table: f.table, Prefix: cfg.Load.Prefix}
	if f.file == "" {
		req.LocalPath = zones.LocalPath(cfg.Feed.OutDir)
		req.URL = f.url
		if req.URL == "" {
			req.URL = zones.URL(cfg.Feed.BaseURL)
		}
	}

	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, cancel := runContext(cmd.Context(), 0)
	defer cancel()

	store, err := openStore(ctx, cfg, args[0])
	if err != nil {
		return err
	}
	wh, err := openWarehouse(ctx, cfg, args[1], args[2], logger)
	if err != nil {
		return err
	}
	defer wh.Close()

	if err := services.Bootstrap(ctx, store, wh, logger); err != nil {
		return err
	}

	downloader := feed.NewDownloader(filesystem.NewOSFileSystem(), metrics.New(metrics.Config{}), logger, feed.DownloadOptions{
		BaseURL:  cfg.Feed.BaseURL,
		OutDir:   cfg.Feed.OutDir,
		Attempts: cfg.Feed.Attempts,
	})
	result, err := zones.NewIngester(downloader, store, wh, logger).Ingest(ctx, req)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%d rows loaded into %s from %s\n",
		result.Job.Rows, result.Job.Table, store.URI(result.ObjectKey))
	return nil
}
