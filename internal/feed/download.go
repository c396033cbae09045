package feed

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"golang.org/x/sync/errgroup"

	"github.com/vvka-141/tripmerge/internal/files/filesystem"
	"github.com/vvka-141/tripmerge/internal/metrics"
	"github.com/vvka-141/tripmerge/pkg/tripmerge"
)

// Status is the outcome of one file download.
type Status string

const (
	StatusDownloaded Status = "downloaded"
	StatusSkipped    Status = "skipped"
	StatusFailed     Status = "failed"
)

// DownloadOptions controls a download run.
type DownloadOptions struct {
	BaseURL      string
	OutDir       string
	SkipExisting bool
	Workers      int
	// Attempts bounds the requests made per file, including the first.
	Attempts int
}

// DownloadResult reports one file.
type DownloadResult struct {
	Key    tripmerge.BatchKey
	URL    string
	Path   string
	Status Status
	Bytes  int64
	Err    error
}

// Keys expands sources × years × months into batch keys, in that order.
func Keys(sources []tripmerge.SourceType, years, months []int) ([]tripmerge.BatchKey, error) {
	var keys []tripmerge.BatchKey
	for _, source := range sources {
		for _, year := range years {
			for _, month := range months {
				key, err := tripmerge.NewBatchKey(source, year, month)
				if err != nil {
					return nil, err
				}
				keys = append(keys, key)
			}
		}
	}
	return keys, nil
}

// URL returns the release asset of a batch: {base}/{type}/{type}_tripdata_{yyyy}-{mm}.csv.gz.
func URL(baseURL string, key tripmerge.BatchKey) string {
	return strings.TrimRight(baseURL, "/") + "/" + string(key.Source) + "/" + key.Filename("csv.gz")
}

// LocalPath returns {out}/{type}/{year}/{file}.
func LocalPath(outDir string, key tripmerge.BatchKey) string {
	return filepath.Join(outDir, string(key.Source), strconv.Itoa(key.Year), key.Filename("csv.gz"))
}

// Option configures a Downloader.
type Option func(*Downloader)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(d *Downloader) { d.client.HTTPClient = c }
}

// WithRetryWait bounds the wait between attempts.
func WithRetryWait(minWait, maxWait time.Duration) Option {
	return func(d *Downloader) {
		d.client.RetryWaitMin = minWait
		d.client.RetryWaitMax = maxWait
	}
}

// Downloader fetches feed files with bounded retries.
type Downloader struct {
	client  *retryablehttp.Client
	fs      filesystem.FileSystemProvider
	metrics *metrics.Metrics
	logger  tripmerge.Logger
	opts    DownloadOptions
}

// NewDownloader creates a Downloader. It panics on nil dependencies.
func NewDownloader(fsProvider filesystem.FileSystemProvider, m *metrics.Metrics, logger tripmerge.Logger, opts DownloadOptions, options ...Option) *Downloader {
	if fsProvider == nil {
		panic("fsProvider cannot be nil")
	}
	if m == nil {
		panic("metrics cannot be nil")
	}
	if logger == nil {
		panic("logger cannot be nil")
	}
	if opts.BaseURL == "" {
		opts.BaseURL = tripmerge.DefaultFeedBaseURL
	}
	if opts.OutDir == "" {
		opts.OutDir = tripmerge.DefaultLocalDir
	}
	if opts.Workers < 1 {
		opts.Workers = tripmerge.DefaultWorkers
	}
	if opts.Attempts < 1 {
		opts.Attempts = tripmerge.DefaultDownloadRetries
	}

	client := retryablehttp.NewClient()
	client.RetryMax = opts.Attempts - 1
	client.Logger = leveledLogger{logger}

	d := &Downloader{client: client, fs: fsProvider, metrics: m, logger: logger, opts: opts}
	for _, o := range options {
		o(d)
	}
	return d
}

// Download fetches every key and returns one result per key, in input order.
// A failed file never stops the others.
func (d *Downloader) Download(ctx context.Context, keys []tripmerge.BatchKey) []DownloadResult {
	results := make([]DownloadResult, len(keys))

	var g errgroup.Group
	g.SetLimit(d.opts.Workers)
	for i, key := range keys {
		g.Go(func() error {
			results[i] = d.fetch(ctx, key)
			d.metrics.RecordDownload(string(results[i].Status))
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (d *Downloader) fetch(ctx context.Context, key tripmerge.BatchKey) DownloadResult {
	r := DownloadResult{Key: key, URL: URL(d.opts.BaseURL, key), Path: LocalPath(d.opts.OutDir, key)}

	if d.opts.SkipExisting {
		info, err := d.fs.Stat(r.Path)
		switch {
		case err == nil && info.Size() > 0:
			r.Status = StatusSkipped
			r.Bytes = info.Size()
			d.logger.Verbose("Skipping %s: already downloaded", r.Path)
			return r
		case err != nil && !errors.Is(err, fs.ErrNotExist):
			return d.failed(r, fmt.Errorf("stat %s: %w", r.Path, err))
		}
	}

	n, err := d.Fetch(ctx, r.URL, r.Path)
	if err != nil {
		return d.failed(r, err)
	}
	r.Status = StatusDownloaded
	r.Bytes = n
	d.logger.Info("Downloaded %s (%d bytes)", r.Path, n)
	return r
}

// Fetch downloads url into path with the downloader's retry policy and returns the bytes written.
func (d *Downloader) Fetch(ctx context.Context, url, path string) (int64, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, err
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%w: GET %s: %w", tripmerge.ErrTransferFailure, url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("%w: GET %s: %s", tripmerge.ErrTransferFailure, url, resp.Status)
	}
	return d.fs.WriteFile(path, resp.Body)
}

func (d *Downloader) failed(r DownloadResult, err error) DownloadResult {
	r.Status = StatusFailed
	r.Err = err
	d.logger.Error("%s: %v", r.Key, err)
	return r
}

// leveledLogger routes retryablehttp logging into the application logger.
type leveledLogger struct {
	logger tripmerge.Logger
}

func (l leveledLogger) Error(msg string, kv ...any) { l.logger.Error("%s%s", msg, formatKV(kv)) }
func (l leveledLogger) Info(msg string, kv ...any)  { l.logger.Verbose("%s%s", msg, formatKV(kv)) }
func (l leveledLogger) Debug(msg string, kv ...any) { l.logger.Verbose("%s%s", msg, formatKV(kv)) }
func (l leveledLogger) Warn(msg string, kv ...any)  { l.logger.Info("%s%s", msg, formatKV(kv)) }

func formatKV(kv []any) string {
	var b strings.Builder
	for i := 0; i+1 < len(kv); i += 2 {
		fmt.Fprintf(&b, " %v=%v", kv[i], kv[i+1])
	}
	return b.String()
}
