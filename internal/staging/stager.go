// Package staging copies batch files into the durable object store and loads
// the durable copy into per-batch staging relations.
package staging

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/vvka-141/tripmerge/internal/blob"
	"github.com/vvka-141/tripmerge/internal/blob/core"
	"github.com/vvka-141/tripmerge/internal/checksum"
	"github.com/vvka-141/tripmerge/internal/retry"
	"github.com/vvka-141/tripmerge/pkg/tripmerge"
)

// discardTimeout bounds the cleanup after a failed load.
const discardTimeout = 30 * time.Second

// StageRequest describes one batch to stage.
type StageRequest struct {
	Key       tripmerge.BatchKey
	LocalPath string
	Filename  string
	Format    tripmerge.FileFormat

	// Schema is the header-derived schema. Nil asks the warehouse to autodetect.
	Schema tripmerge.ColumnSchema

	// SkipUpload loads from an object that must already be in the store.
	SkipUpload bool
	Prefix     string
}

// StageResult reports where the batch landed.
type StageResult struct {
	ObjectKey string
	Uploaded  bool
	Job       tripmerge.LoadJob
}

// Stager moves batch files through the object store into staging relations.
type Stager struct {
	store     core.Store
	warehouse tripmerge.Warehouse
	logger    tripmerge.Logger
	executor  *retry.Executor
	checksum  checksum.Calculator
}

// Option customizes a Stager.
type Option func(*Stager)

// WithExecutor replaces the retry executor used for copies and loads.
func WithExecutor(executor *retry.Executor) Option {
	return func(s *Stager) {
		s.executor = executor
	}
}

// NewStager creates a Stager. It panics on nil dependencies.
func NewStager(store core.Store, warehouse tripmerge.Warehouse, logger tripmerge.Logger, opts ...Option) *Stager {
	if store == nil {
		panic("store cannot be nil")
	}
	if warehouse == nil {
		panic("warehouse cannot be nil")
	}
	if logger == nil {
		panic("logger cannot be nil")
	}
	s := &Stager{
		store:     store,
		warehouse: warehouse,
		logger:    logger,
		executor:  retry.NewExecutor(retry.NewTransferErrorClassifier(), retry.TransferBackoff(tripmerge.DefaultRetryMaxAttempts)),
		checksum:  checksum.New(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Stage copies the batch file (unless the object exists) and replaces the staging relation
// with the durable copy. Every failure wraps tripmerge.ErrTransferFailure. When the load
// fails, the batch's staging and tagged relations from earlier runs are dropped.
func (s *Stager) Stage(ctx context.Context, req StageRequest) (StageResult, error) {
	format := req.Format
	if format == "" {
		var err error
		if format, err = tripmerge.FormatFromName(req.Filename); err != nil {
			return StageResult{}, fmt.Errorf("%w: %w", tripmerge.ErrTransferFailure, err)
		}
	}

	result := StageResult{ObjectKey: req.Key.ObjectKey(req.Prefix, req.Filename)}
	executor := s.executor.WithOnRetry(func(attempt int, err error, delay time.Duration) {
		s.logger.Info("%s: transfer attempt %d failed, retrying in %v: %v", req.Key, attempt, delay, err)
	})

	err := executor.Execute(ctx, func(ctx context.Context) error {
		uploaded, err := s.ensureObject(ctx, req, result.ObjectKey, format)
		result.Uploaded = uploaded
		return err
	})
	if err != nil {
		return StageResult{}, fmt.Errorf("%w: copy %s to %s: %w", tripmerge.ErrTransferFailure, req.Filename, s.store.URI(result.ObjectKey), err)
	}

	load := tripmerge.LoadRequest{
		Table:       req.Key.StagingTable(),
		Source:      blob.Object(s.store, result.ObjectKey),
		Format:      format,
		Schema:      req.Schema,
		Disposition: tripmerge.WriteReplace,
	}
	err = executor.Execute(ctx, func(ctx context.Context) error {
		job, err := s.warehouse.Load(ctx, load)
		result.Job = job
		return err
	})
	if err != nil {
		s.discard(ctx, req.Key)
		return StageResult{}, fmt.Errorf("%w: load %s into %s: %w", tripmerge.ErrTransferFailure, load.Source.URI(), load.Table, err)
	}

	s.logger.Verbose("%s: loaded %d rows into %s (job %s, schema %s)",
		req.Key, result.Job.Rows, load.Table, result.Job.ID, result.Job.SchemaSource)
	return result, nil
}

// discard drops the staging and tagged relations left over from an earlier run
// so a failed load leaves nothing for the batch to be derived from.
func (s *Stager) discard(ctx context.Context, key tripmerge.BatchKey) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), discardTimeout)
	defer cancel()
	for _, table := range []string{key.StagingTable(), key.TaggedTable()} {
		if err := s.warehouse.DropTable(ctx, table); err != nil {
			s.logger.Error("%s: dropping %s after failed load: %v", key, table, err)
		}
	}
}

// ensureObject uploads the local file unless the object already exists.
// An existing object whose recorded digest differs from the local file is kept and reported.
func (s *Stager) ensureObject(ctx context.Context, req StageRequest, key string, format tripmerge.FileFormat) (bool, error) {
	info, err := s.store.Head(ctx, key)
	switch {
	case err == nil:
		s.logger.Verbose("%s: %s already in store, skipping upload", req.Key, s.store.URI(key))
		s.checkStoredDigest(req, key, info)
		return false, nil
	case !errors.Is(err, core.ErrNotFound):
		return false, err
	case req.SkipUpload:
		return false, fmt.Errorf("object %s does not exist and uploads are skipped", s.store.URI(key))
	case req.LocalPath == "":
		return false, fmt.Errorf("object %s does not exist and no local file was given", s.store.URI(key))
	}

	sum, err := s.checksum.SumFile(req.LocalPath)
	if err != nil {
		return false, err
	}
	f, err := os.Open(req.LocalPath)
	if err != nil {
		return false, err
	}
	defer f.Close()

	_, err = s.store.Put(ctx, key, f, core.PutOptions{
		ContentType: contentType(format),
		Metadata: map[string]string{
			"source":             string(req.Key.Source),
			"year":               strconv.Itoa(req.Key.Year),
			"month":              strconv.Itoa(req.Key.Month),
			checksum.MetadataKey: sum,
		},
	})
	if errors.Is(err, core.ErrExists) {
		// Another run uploaded the same batch between Head and Put.
		return false, nil
	}
	if err != nil {
		return false, err
	}
	s.logger.Info("Uploaded %s to %s", req.Filename, s.store.URI(key))
	return true, nil
}

func (s *Stager) checkStoredDigest(req StageRequest, key string, info core.Info) {
	if req.LocalPath == "" {
		return
	}
	sum, err := s.checksum.SumFile(req.LocalPath)
	if err != nil {
		s.logger.Verbose("%s: cannot digest %s: %v", req.Key, req.LocalPath, err)
		return
	}
	if known, match := checksum.Compare(info.Metadata, sum); known && !match {
		s.logger.Info("%s: %s differs from local %s; the stored copy is loaded", req.Key, s.store.URI(key), req.Filename)
	}
}

func contentType(format tripmerge.FileFormat) string {
	switch format {
	case tripmerge.FormatCSVGzip:
		return "application/gzip"
	case tripmerge.FormatParquet:
		return "application/vnd.apache.parquet"
	}
	return "text/csv"
}
