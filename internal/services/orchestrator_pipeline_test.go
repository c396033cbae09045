package services

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vvka-141/tripmerge/internal/blob/memory"
	"github.com/vvka-141/tripmerge/internal/identity"
	"github.com/vvka-141/tripmerge/internal/logging"
	"github.com/vvka-141/tripmerge/internal/merge"
	"github.com/vvka-141/tripmerge/internal/metrics"
	"github.com/vvka-141/tripmerge/internal/retry"
	"github.com/vvka-141/tripmerge/internal/staging"
	whmemory "github.com/vvka-141/tripmerge/internal/warehouse/memory"
	"github.com/vvka-141/tripmerge/internal/warehouse/sqlite"
	"github.com/vvka-141/tripmerge/pkg/tripmerge"
)

const tripHeader = "VendorID,tpep_pickup_datetime,tpep_dropoff_datetime,PULocationID,DOLocationID,fare_amount\n"

const (
	tripA = "1,2024-01-01 00:57:55,2024-01-01 01:17:43,186,79,17.70\n"
	tripB = "1,2024-01-01 00:03:00,2024-01-01 00:09:36,140,236,10.00\n"
	tripC = "2,2024-01-01 00:17:06,2024-01-01 00:35:01,246,231,23.30\n"
)

func writeTripBatch(t *testing.T, dir string, month int, rows string) tripmerge.Batch {
	t.Helper()
	key := tripmerge.BatchKey{Source: tripmerge.SourceYellow, Year: 2024, Month: month}
	filename := key.Filename("csv")
	path := filepath.Join(dir, filename)
	require.NoError(t, os.WriteFile(path, []byte(tripHeader+rows), 0o644))
	return tripmerge.Batch{Key: key, Filename: filename, LocalPath: path, Format: tripmerge.FormatCSV}
}

func newPipeline(store *memory.Store, wh tripmerge.Warehouse, opts RunOptions) *Orchestrator {
	logger := logging.NewNullLogger()
	backoff := retry.NewExponentialBackoff(2, retry.WithInitialDelay(time.Millisecond), retry.WithMaxDelay(time.Millisecond))
	stager := staging.NewStager(store, wh, logger,
		staging.WithExecutor(retry.NewExecutor(retry.NewTransferErrorClassifier(), backoff)))
	reconciler := merge.NewReconciler(wh, logger,
		merge.WithExecutor(retry.NewExecutor(retry.NewMergeConflictClassifier(), backoff)))
	return NewOrchestrator(stager, identity.NewDeriver(wh, logger), reconciler,
		metrics.New(metrics.Config{Enabled: true}), logger, opts)
}

func warehouses(t *testing.T) map[string]func() tripmerge.Warehouse {
	return map[string]func() tripmerge.Warehouse{
		"memory": func() tripmerge.Warehouse { return whmemory.New() },
		"memory-transactional": func() tripmerge.Warehouse {
			return whmemory.New(whmemory.WithoutConditionalInsert())
		},
		"sqlite": func() tripmerge.Warehouse {
			wh, err := sqlite.Open(context.Background(), sqlite.Config{Dir: t.TempDir(), Dataset: "trips"})
			require.NoError(t, err)
			t.Cleanup(func() { wh.Close() })
			return wh
		},
	}
}

func TestPipeline_MergeDeduplicatesAcrossBatches(t *testing.T) {
	for name, open := range warehouses(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			store := memory.New("trips")
			wh := open()
			require.NoError(t, Bootstrap(ctx, store, wh, logging.NewNullLogger()))

			dir := t.TempDir()
			batches := []tripmerge.Batch{
				writeTripBatch(t, dir, 1, tripA+tripB),
				writeTripBatch(t, dir, 2, tripB+tripC),
			}
			summary := newPipeline(store, wh, RunOptions{Mode: tripmerge.ModeMerge, Workers: 2}).Run(ctx, batches)

			for _, r := range summary.Results {
				require.Equal(t, tripmerge.StateMerged, r.State, r.String())
				assert.Equal(t, int64(2), r.RowsLoaded)
				assert.Equal(t, int64(2), r.RowsTagged)
				assert.True(t, r.Uploaded)
				assert.Equal(t, tripmerge.SchemaExplicit, r.SchemaSource)
			}
			assert.Equal(t, int64(3), summary.RowsMerged(), "the shared trip is merged once")

			stats, err := wh.MasterStats(ctx, tripmerge.MasterTableFor(tripmerge.SourceYellow))
			require.NoError(t, err)
			assert.Equal(t, int64(3), stats.Rows)
			assert.Equal(t, int64(3), stats.DistinctIdentities)

			again := newPipeline(store, wh, RunOptions{Mode: tripmerge.ModeMerge, Workers: 2}).Run(ctx, batches)
			assert.Equal(t, 2, again.Count(tripmerge.StateMerged))
			assert.Zero(t, again.RowsMerged(), "rerunning a batch adds nothing")
			for _, r := range again.Results {
				assert.False(t, r.Uploaded, "objects already in the store are reused")
			}
		})
	}
}

func TestPipeline_DuplicateRowsCollapseToOneMasterRow(t *testing.T) {
	const trip = "1,2024-01-01T00:00,2024-01-01T00:10,10,20,12.00\n"

	for name, open := range warehouses(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			store := memory.New("trips")
			wh := open()
			require.NoError(t, Bootstrap(ctx, store, wh, logging.NewNullLogger()))
			master := tripmerge.MasterTableFor(tripmerge.SourceYellow)
			dir := t.TempDir()

			first := newPipeline(store, wh, RunOptions{Mode: tripmerge.ModeMerge}).
				Run(ctx, []tripmerge.Batch{writeTripBatch(t, dir, 1, trip+trip)})
			r := first.Results[0]
			require.Equal(t, tripmerge.StateMerged, r.State, r.String())
			assert.Equal(t, int64(2), r.RowsLoaded)
			assert.Equal(t, int64(1), r.RowsMerged)

			stats, err := wh.MasterStats(ctx, master)
			require.NoError(t, err)
			assert.Equal(t, int64(1), stats.Rows)

			second := newPipeline(store, wh, RunOptions{Mode: tripmerge.ModeMerge}).
				Run(ctx, []tripmerge.Batch{writeTripBatch(t, dir, 2, trip)})
			require.Equal(t, tripmerge.StateMerged, second.Results[0].State, second.Results[0].String())
			assert.Zero(t, second.RowsMerged())

			stats, err = wh.MasterStats(ctx, master)
			require.NoError(t, err)
			assert.Equal(t, int64(1), stats.Rows, "a later batch with the same trip adds nothing")
			assert.Equal(t, int64(1), stats.DistinctIdentities)
		})
	}
}

func TestPipeline_AsIsLeavesMasterAlone(t *testing.T) {
	ctx := context.Background()
	store := memory.New("trips")
	wh := whmemory.New()
	batch := writeTripBatch(t, t.TempDir(), 1, tripA+tripB)

	summary := newPipeline(store, wh, RunOptions{Mode: tripmerge.ModeAsIs}).Run(ctx, []tripmerge.Batch{batch})

	require.Equal(t, tripmerge.StateStaged, summary.Results[0].State)
	exists, err := wh.TableExists(ctx, batch.Key.StagingTable())
	require.NoError(t, err)
	assert.True(t, exists)
	exists, err = wh.TableExists(ctx, batch.Key.MasterTable())
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestPipeline_LoadFailureIsIsolated(t *testing.T) {
	ctx := context.Background()
	store := memory.New("trips")
	wh := whmemory.New()
	dir := t.TempDir()
	batches := []tripmerge.Batch{
		writeTripBatch(t, dir, 1, tripA),
		writeTripBatch(t, dir, 2, tripB),
		writeTripBatch(t, dir, 3, tripC),
	}
	wh.FailLoad(batches[1].Key.StagingTable(), errors.New("quota exceeded"))

	summary := newPipeline(store, wh, RunOptions{Mode: tripmerge.ModeMerge, Workers: 3}).Run(ctx, batches)

	failed := summary.Results[1]
	require.True(t, failed.Failed())
	assert.Equal(t, tripmerge.StageStage, failed.FailedStage)
	assert.ErrorIs(t, failed.Err, tripmerge.ErrTransferFailure)
	assert.Contains(t, failed.Reason, "quota exceeded")
	assert.Equal(t, 2, summary.Count(tripmerge.StateMerged))

	stats, err := wh.MasterStats(ctx, tripmerge.MasterTableFor(tripmerge.SourceYellow))
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.Rows, "the failed batch contributes nothing to the master")
}

func TestPipeline_UnreadableHeaderFallsBackToAutodetect(t *testing.T) {
	ctx := context.Background()
	store := memory.New("trips")
	wh := whmemory.New()
	batch := writeTripBatch(t, t.TempDir(), 1, tripA)

	o := newPipeline(store, wh, RunOptions{Mode: tripmerge.ModeAsIs}).
		WithHeaderReader(func(string) ([]string, error) { return nil, tripmerge.ErrSchemaUnavailable })
	r := o.Run(ctx, []tripmerge.Batch{batch}).Results[0]

	require.Equal(t, tripmerge.StateStaged, r.State, r.String())
	assert.Equal(t, tripmerge.SchemaAutodetect, r.SchemaSource)
}

func TestBootstrap(t *testing.T) {
	ctx := context.Background()
	wh, err := sqlite.Open(ctx, sqlite.Config{Dir: t.TempDir(), Dataset: "trips"})
	require.NoError(t, err)
	defer wh.Close()

	require.NoError(t, Bootstrap(ctx, memory.New("trips"), wh, logging.NewNullLogger()))
	require.NoError(t, Bootstrap(ctx, memory.New("trips"), wh, logging.NewNullLogger()), "bootstrap is idempotent")
}
