package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vvka-141/tripmerge/internal/feed"
	"github.com/vvka-141/tripmerge/internal/files/filesystem"
	"github.com/vvka-141/tripmerge/internal/metrics"
	"github.com/vvka-141/tripmerge/internal/tui"
	"github.com/vvka-141/tripmerge/pkg/tripmerge"
)

type downloadFlagValues struct {
	types        []string
	years        []int
	months       []int
	out          string
	skipExisting bool
	baseURL      string
	attempts     int
	workers      int
}

func newDownloadCommand() *cobra.Command {
	var f downloadFlagValues
	cmd := &cobra.Command{
		Use:   "download",
		Short: "Download monthly trip files from the public release feed",
		Long: `Download fetches {type}_tripdata_{yyyy}-{mm}.csv.gz for every requested type,
year and month into {out}/{type}/{year}/. Each file is attempted a bounded number
of times; files that still fail are reported and the others are kept.

Examples:
  # Yellow and green taxis for 2019 and 2020
  tripmerge download

  # One year of FHV data, keeping files already on disk
  tripmerge download --types fhv --years 2021 --skip-existing`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDownload(cmd, &f)
		},
	}

	flags := cmd.Flags()
	flags.StringSliceVar(&f.types, "types", []string{"yellow", "green"}, "Source types to download: yellow, green, fhv")
	flags.IntSliceVar(&f.years, "years", []int{2019, 2020}, "Years to download")
	flags.IntSliceVar(&f.months, "months", []int{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12}, "Months to download")
	flags.StringVar(&f.out, "out", "", fmt.Sprintf("Output directory (default %s)", tripmerge.DefaultLocalDir))
	flags.BoolVar(&f.skipExisting, "skip-existing", false, "Skip files that already exist")
	flags.StringVar(&f.baseURL, "base-url", "", "Release endpoint of the feed")
	flags.IntVar(&f.attempts, "attempts", 0, fmt.Sprintf("Requests per file before it is reported failed (default %d)", tripmerge.DefaultDownloadRetries))
	flags.IntVarP(&f.workers, "workers", "w", 0, fmt.Sprintf("Files downloaded concurrently (default %d)", tripmerge.DefaultWorkers))
	return cmd
}

func runDownload(cmd *cobra.Command, f *downloadFlagValues) error {
	cfg, err := loadSettings(cmd)
	if err != nil {
		return err
	}
	override(cmd, "out", &cfg.Feed.OutDir, f.out)
	override(cmd, "base-url", &cfg.Feed.BaseURL, f.baseURL)
	override(cmd, "attempts", &cfg.Feed.Attempts, f.attempts)
	override(cmd, "workers", &cfg.Feed.Workers, f.workers)

	sources := make([]tripmerge.SourceType, 0, len(f.types))
	for _, t := range f.types {
		s, err := tripmerge.ParseSourceType(t)
		if err != nil {
			return err
		}
		sources = append(sources, s)
	}
	keys, err := feed.Keys(sources, f.years, f.months)
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, cancel := runContext(cmd.Context(), 0)
	defer cancel()

	downloader := feed.NewDownloader(filesystem.NewOSFileSystem(), metrics.New(metrics.Config{}), logger, feed.DownloadOptions{
		BaseURL:      cfg.Feed.BaseURL,
		OutDir:       cfg.Feed.OutDir,
		SkipExisting: f.skipExisting,
		Workers:      cfg.Feed.Workers,
		Attempts:     cfg.Feed.Attempts,
	})
	logger.Info("Downloading %d files into %s", len(keys), cfg.Feed.OutDir)
	results := downloader.Download(ctx, keys)

	fmt.Fprint(cmd.OutOrStdout(), tui.RenderDownloads(results, terminalFor(cmd.OutOrStdout())))
	return nil
}
