package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/vvka-141/tripmerge/internal/blob/core"
	"github.com/vvka-141/tripmerge/internal/merge"
	"github.com/vvka-141/tripmerge/internal/metrics"
	"github.com/vvka-141/tripmerge/internal/schema"
	"github.com/vvka-141/tripmerge/internal/staging"
	"github.com/vvka-141/tripmerge/pkg/tripmerge"
)

// BatchStager copies a batch into the object store and its staging relation.
type BatchStager interface {
	Stage(ctx context.Context, req staging.StageRequest) (staging.StageResult, error)
}

// IdentityDeriver builds the identity-tagged relation of a batch.
type IdentityDeriver interface {
	Derive(ctx context.Context, key tripmerge.BatchKey, filename string) (int64, error)
}

// MasterReconciler merges a tagged relation into its master relation.
type MasterReconciler interface {
	Merge(ctx context.Context, key tripmerge.BatchKey) (merge.Result, error)
}

// HeaderReader returns the column names of a local batch file.
type HeaderReader func(path string) ([]string, error)

// RunOptions controls one orchestrated run.
type RunOptions struct {
	Mode       tripmerge.LoadMode
	Workers    int
	Prefix     string
	SkipUpload bool
}

// Orchestrator drives every batch through schema, stage, identify and merge.
//
// Thread-Safety: Run may be called concurrently; each call owns its results.
// Batches share nothing but the master relations, which the reconciler protects.
type Orchestrator struct {
	stager     BatchStager
	deriver    IdentityDeriver
	reconciler MasterReconciler
	readHeader HeaderReader
	metrics    *metrics.Metrics
	logger     tripmerge.Logger
	opts       RunOptions
}

// NewOrchestrator creates an Orchestrator with all dependencies injected.
// It panics on nil dependencies; a nil deriver or reconciler is allowed in as-is mode.
func NewOrchestrator(
	stager BatchStager,
	deriver IdentityDeriver,
	reconciler MasterReconciler,
	m *metrics.Metrics,
	logger tripmerge.Logger,
	opts RunOptions,
) *Orchestrator {
	if stager == nil {
		panic("stager cannot be nil")
	}
	if opts.Mode == tripmerge.ModeMerge && (deriver == nil || reconciler == nil) {
		panic("deriver and reconciler are required in merge mode")
	}
	if m == nil {
		panic("metrics cannot be nil")
	}
	if logger == nil {
		panic("logger cannot be nil")
	}
	if opts.Workers < 1 {
		opts.Workers = tripmerge.DefaultWorkers
	}
	if opts.Mode == "" {
		opts.Mode = tripmerge.ModeMerge
	}
	return &Orchestrator{
		stager:     stager,
		deriver:    deriver,
		reconciler: reconciler,
		readHeader: schema.ReadHeader,
		metrics:    m,
		logger:     logger,
		opts:       opts,
	}
}

// WithHeaderReader replaces how local headers are read. It returns the receiver.
func (o *Orchestrator) WithHeaderReader(read HeaderReader) *Orchestrator {
	o.readHeader = read
	return o
}

// Run processes batches on a bounded worker pool and returns one result per batch,
// in input order. A failed batch never stops its siblings.
func (o *Orchestrator) Run(ctx context.Context, batches []tripmerge.Batch) tripmerge.Summary {
	started := time.Now()
	results := make([]tripmerge.BatchResult, len(batches))

	o.logger.Info("Processing %d batches with %d workers (mode %s)", len(batches), o.opts.Workers, o.opts.Mode)

	var g errgroup.Group
	g.SetLimit(o.opts.Workers)
	for i, batch := range batches {
		g.Go(func() error {
			o.metrics.WorkerStarted()
			defer o.metrics.WorkerFinished()
			results[i] = o.process(ctx, batch)
			return nil
		})
	}
	_ = g.Wait()

	summary := tripmerge.Summary{Mode: o.opts.Mode, Results: results, Duration: time.Since(started)}
	o.logger.Info("Run finished in %v: %d succeeded, %d failed",
		summary.Duration.Round(time.Millisecond), summary.Succeeded(), summary.Count(tripmerge.StateFailed))
	return summary
}

func (o *Orchestrator) process(ctx context.Context, batch tripmerge.Batch) (r tripmerge.BatchResult) {
	started := time.Now()
	r = tripmerge.BatchResult{Key: batch.Key, Filename: batch.Filename}
	o.transition(&r, tripmerge.StatePending)
	defer func() { r.Duration = time.Since(started) }()

	// schema
	if err := ctx.Err(); err != nil {
		return o.fail(r, tripmerge.StageSchema, err)
	}
	stageStart := time.Now()
	cols := o.resolveSchema(batch)
	o.metrics.RecordStageDuration(tripmerge.StageSchema, time.Since(stageStart))

	// stage
	if err := ctx.Err(); err != nil {
		return o.fail(r, tripmerge.StageStage, err)
	}
	stageStart = time.Now()
	staged, err := o.stager.Stage(ctx, staging.StageRequest{
		Key:        batch.Key,
		LocalPath:  batch.LocalPath,
		Filename:   batch.Filename,
		Format:     batch.Format,
		Schema:     cols,
		SkipUpload: o.opts.SkipUpload,
		Prefix:     o.opts.Prefix,
	})
	o.metrics.RecordStageDuration(tripmerge.StageStage, time.Since(stageStart))
	if err != nil {
		return o.fail(r, tripmerge.StageStage, err)
	}
	r.ObjectKey = staged.ObjectKey
	r.Uploaded = staged.Uploaded
	r.LoadJobID = staged.Job.ID
	r.RowsLoaded = staged.Job.Rows
	r.SchemaSource = staged.Job.SchemaSource
	o.metrics.RecordRowsLoaded(batch.Key.Source, staged.Job.Rows)
	o.transition(&r, tripmerge.StateStaged)

	if o.opts.Mode == tripmerge.ModeAsIs {
		return r
	}

	// identify
	if err := ctx.Err(); err != nil {
		return o.fail(r, tripmerge.StageIdentify, err)
	}
	stageStart = time.Now()
	tagged, err := o.deriver.Derive(ctx, batch.Key, batch.Filename)
	o.metrics.RecordStageDuration(tripmerge.StageIdentify, time.Since(stageStart))
	if err != nil {
		return o.fail(r, tripmerge.StageIdentify, err)
	}
	r.RowsTagged = tagged
	o.transition(&r, tripmerge.StateIdentified)

	// merge
	if err := ctx.Err(); err != nil {
		return o.fail(r, tripmerge.StageMerge, err)
	}
	stageStart = time.Now()
	merged, err := o.reconciler.Merge(ctx, batch.Key)
	o.metrics.RecordStageDuration(tripmerge.StageMerge, time.Since(stageStart))
	if err != nil {
		return o.fail(r, tripmerge.StageMerge, err)
	}
	r.RowsMerged = merged.Inserted
	o.metrics.RecordRowsMerged(batch.Key.Source, merged.Inserted)
	o.transition(&r, tripmerge.StateMerged)
	return r
}

// resolveSchema derives the schema from the local header. Nil means autodetect.
func (o *Orchestrator) resolveSchema(batch tripmerge.Batch) tripmerge.ColumnSchema {
	if batch.LocalPath == "" {
		o.logger.Verbose("%s: no local file, schema will be autodetected", batch.Key)
		return nil
	}
	header, err := o.readHeader(batch.LocalPath)
	if err != nil {
		if errors.Is(err, tripmerge.ErrSchemaUnavailable) {
			o.logger.Info("%s: %v; falling back to autodetection", batch.Key, err)
		} else {
			o.logger.Error("%s: reading header: %v; falling back to autodetection", batch.Key, err)
		}
		return nil
	}
	return schema.Resolve(header)
}

func (o *Orchestrator) transition(r *tripmerge.BatchResult, state tripmerge.BatchState) {
	r.State = state
	o.metrics.RecordTransition(r.Key.Source, state)
	o.logger.Verbose("%s: %s", r.Key, state)
}

func (o *Orchestrator) fail(r tripmerge.BatchResult, stage tripmerge.Stage, err error) tripmerge.BatchResult {
	r.FailedStage = stage
	r.Reason = err.Error()
	r.Err = err
	o.transition(&r, tripmerge.StateFailed)
	o.logger.Error("%s: failed at %s: %v", r.Key, stage, err)
	return r
}

// Bootstrap creates the bucket and the dataset when they do not exist.
func Bootstrap(ctx context.Context, store core.Store, warehouse tripmerge.Warehouse, logger tripmerge.Logger) error {
	if err := store.EnsureBucket(ctx); err != nil {
		return fmt.Errorf("ensure bucket %s: %w", store.Bucket(), err)
	}
	logger.Verbose("Bucket %s ready (%s)", store.Bucket(), store.Driver())
	if err := warehouse.EnsureDataset(ctx); err != nil {
		return fmt.Errorf("ensure dataset: %w", err)
	}
	logger.Verbose("Dataset ready (%s)", warehouse.Dialect())
	return nil
}
