// Package zones ingests the taxi zone lookup, the reference relation that maps
// PULocationID and DOLocationID to borough and zone names.
//
// Unlike trip batches the lookup is not merged: every ingest replaces both the
// stored object and the relation.
package zones

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/vvka-141/tripmerge/internal/blob"
	"github.com/vvka-141/tripmerge/internal/blob/core"
	"github.com/vvka-141/tripmerge/internal/checksum"
	"github.com/vvka-141/tripmerge/internal/retry"
	"github.com/vvka-141/tripmerge/internal/schema"
	"github.com/vvka-141/tripmerge/pkg/tripmerge"
)

const (
	// Filename is the release asset name of the lookup.
	Filename = "taxi_zone_lookup.csv"
	// DefaultTable is the relation the lookup is loaded into.
	DefaultTable = "taxi_zones"
)

// URL returns the release asset of the lookup: {base}/misc/taxi_zone_lookup.csv.
func URL(baseURL string) string {
	if baseURL == "" {
		baseURL = tripmerge.DefaultFeedBaseURL
	}
	return strings.TrimRight(baseURL, "/") + "/misc/" + Filename
}

// ObjectKey returns {prefix/}reference/taxi_zone_lookup.csv.
func ObjectKey(prefix string) string {
	return path.Join(prefix, "reference", Filename)
}

// LocalPath returns {out}/misc/taxi_zone_lookup.csv.
func LocalPath(outDir string) string {
	return filepath.Join(outDir, "misc", Filename)
}

// Fetcher downloads a URL into a local file.
type Fetcher interface {
	Fetch(ctx context.Context, url, path string) (int64, error)
}

// Request describes one ingest.
type Request struct {
	// URL is fetched into LocalPath first. Empty loads LocalPath as it is.
	URL       string
	LocalPath string
	Table     string
	Prefix    string
}

// Result reports an ingest.
type Result struct {
	Downloaded int64
	ObjectKey  string
	Job        tripmerge.LoadJob
}

// Ingester moves the lookup from the feed through the object store into the warehouse.
type Ingester struct {
	fetcher   Fetcher
	store     core.Store
	warehouse tripmerge.Warehouse
	logger    tripmerge.Logger
	executor  *retry.Executor
	checksum  checksum.Calculator
}

// Option customizes an Ingester.
type Option func(*Ingester)

// WithExecutor replaces the retry executor used for the copy and the load.
func WithExecutor(executor *retry.Executor) Option {
	return func(i *Ingester) { i.executor = executor }
}

// NewIngester creates an Ingester. A nil fetcher is allowed when every request
// names a local file. It panics on other nil dependencies.
func NewIngester(fetcher Fetcher, store core.Store, warehouse tripmerge.Warehouse, logger tripmerge.Logger, opts ...Option) *Ingester {
	if store == nil {
		panic("store cannot be nil")
	}
	if warehouse == nil {
		panic("warehouse cannot be nil")
	}
	if logger == nil {
		panic("logger cannot be nil")
	}
	i := &Ingester{
		fetcher:   fetcher,
		store:     store,
		warehouse: warehouse,
		logger:    logger,
		executor:  retry.NewExecutor(retry.NewTransferErrorClassifier(), retry.TransferBackoff(tripmerge.DefaultRetryMaxAttempts)),
		checksum:  checksum.New(),
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Ingest fetches the lookup (when a URL is given), replaces the stored copy and
// replaces the relation with it. Failures wrap tripmerge.ErrTransferFailure.
func (i *Ingester) Ingest(ctx context.Context, req Request) (Result, error) {
	if req.LocalPath == "" {
		return Result{}, fmt.Errorf("zone lookup path is required: %w", tripmerge.ErrInvalidConfig)
	}
	if req.Table == "" {
		req.Table = DefaultTable
	}
	result := Result{ObjectKey: ObjectKey(req.Prefix)}

	if req.URL != "" {
		if i.fetcher == nil {
			return Result{}, fmt.Errorf("no fetcher for %s: %w", req.URL, tripmerge.ErrInvalidConfig)
		}
		i.logger.Info("Downloading %s", req.URL)
		n, err := i.fetcher.Fetch(ctx, req.URL, req.LocalPath)
		if err != nil {
			return Result{}, err
		}
		result.Downloaded = n
	}

	cols, err := schema.ResolveFile(req.LocalPath)
	if err != nil {
		if !errors.Is(err, tripmerge.ErrSchemaUnavailable) {
			return Result{}, err
		}
		i.logger.Info("%v; falling back to autodetection", err)
	}

	executor := i.executor.WithOnRetry(func(attempt int, err error, delay time.Duration) {
		i.logger.Info("Zone lookup: attempt %d failed, retrying in %v: %v", attempt, delay, err)
	})

	if err := executor.Execute(ctx, func(ctx context.Context) error {
		return i.replaceObject(ctx, req.LocalPath, result.ObjectKey)
	}); err != nil {
		return Result{}, fmt.Errorf("%w: copy %s to %s: %w", tripmerge.ErrTransferFailure, req.LocalPath, i.store.URI(result.ObjectKey), err)
	}

	load := tripmerge.LoadRequest{
		Table:       req.Table,
		Source:      blob.Object(i.store, result.ObjectKey),
		Format:      tripmerge.FormatCSV,
		Schema:      cols,
		Disposition: tripmerge.WriteReplace,
	}
	if err := executor.Execute(ctx, func(ctx context.Context) error {
		job, err := i.warehouse.Load(ctx, load)
		result.Job = job
		return err
	}); err != nil {
		return Result{}, fmt.Errorf("%w: load %s into %s: %w", tripmerge.ErrTransferFailure, load.Source.URI(), load.Table, err)
	}

	i.logger.Info("Inserted %d rows into %s", result.Job.Rows, req.Table)
	return result, nil
}

// replaceObject overwrites the stored lookup with the local file.
func (i *Ingester) replaceObject(ctx context.Context, localPath, key string) error {
	sum, err := i.checksum.SumFile(localPath)
	if err != nil {
		return err
	}
	if info, err := i.store.Head(ctx, key); err == nil {
		if known, match := checksum.Compare(info.Metadata, sum); known && match {
			i.logger.Verbose("%s is current, skipping upload", i.store.URI(key))
			return nil
		}
		if _, err := i.store.Delete(ctx, key); err != nil {
			return err
		}
	} else if !errors.Is(err, core.ErrNotFound) {
		return err
	}

	f, err := os.Open(localPath)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = i.store.Put(ctx, key, f, core.PutOptions{
		ContentType: "text/csv",
		Metadata:    map[string]string{checksum.MetadataKey: sum},
	})
	if err != nil {
		return err
	}
	i.logger.Verbose("Uploaded %s to %s", localPath, i.store.URI(key))
	return nil
}
