// Package merge reconciles identity-tagged relations into the per-source master
// relation without ever producing a duplicate identity.
package merge

import (
	"context"
	"fmt"
	"time"

	"github.com/vvka-141/tripmerge/internal/retry"
	"github.com/vvka-141/tripmerge/pkg/tripmerge"
)

// Path names how a merge was carried out.
type Path string

const (
	// PathConditional is a single conditional-insert statement.
	PathConditional Path = "conditional"
	// PathTransactional selects unseen identities and inserts them in one serializable transaction.
	PathTransactional Path = "transactional"
)

// Result reports one completed merge.
type Result struct {
	Master   string
	Inserted int64
	Path     Path
	Attempts int
}

// Reconciler merges tagged relations into master relations.
type Reconciler struct {
	warehouse tripmerge.Warehouse
	logger    tripmerge.Logger
	executor  *retry.Executor
}

// Option customizes a Reconciler.
type Option func(*Reconciler)

// WithExecutor replaces the retry executor used for conflicting merges.
func WithExecutor(executor *retry.Executor) Option {
	return func(r *Reconciler) {
		r.executor = executor
	}
}

// NewReconciler creates a Reconciler. It panics on nil dependencies.
func NewReconciler(warehouse tripmerge.Warehouse, logger tripmerge.Logger, opts ...Option) *Reconciler {
	if warehouse == nil {
		panic("warehouse cannot be nil")
	}
	if logger == nil {
		panic("logger cannot be nil")
	}
	r := &Reconciler{
		warehouse: warehouse,
		logger:    logger,
		executor:  retry.NewExecutor(retry.NewMergeConflictClassifier(), retry.MergeBackoff(tripmerge.DefaultMergeRetryMaxAttempts)),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Merge inserts every identity of key's tagged relation that the master relation lacks,
// one row per identity. Repeating a merge inserts nothing.
func (r *Reconciler) Merge(ctx context.Context, key tripmerge.BatchKey) (Result, error) {
	tagged := key.TaggedTable()
	master := key.MasterTable()

	exists, err := r.warehouse.TableExists(ctx, tagged)
	if err != nil {
		return Result{}, fmt.Errorf("check tagged relation %s: %w", tagged, err)
	}
	if !exists {
		return Result{}, fmt.Errorf("%s: %w", tagged, tripmerge.ErrStagingMissing)
	}

	merge, path, err := r.strategy()
	if err != nil {
		return Result{}, err
	}

	result := Result{Master: master, Path: path}
	executor := r.executor.WithOnRetry(func(attempt int, err error, delay time.Duration) {
		r.logger.Info("%s: merge conflict on %s (attempt %d), retrying in %v: %v", key, master, attempt, delay, err)
	})
	err = executor.Execute(ctx, func(ctx context.Context) error {
		result.Attempts++
		if err := r.warehouse.EnsureMaster(ctx, master, tagged); err != nil {
			return fmt.Errorf("ensure master %s: %w", master, err)
		}
		n, err := merge(ctx, master, tagged)
		result.Inserted = n
		return err
	})
	if err != nil {
		if retry.NewMergeConflictClassifier().IsTransient(err) {
			return Result{}, fmt.Errorf("%w: %s into %s after %d attempts: %w", tripmerge.ErrMergeConflict, tagged, master, result.Attempts, err)
		}
		return Result{}, fmt.Errorf("merge %s into %s: %w", tagged, master, err)
	}

	r.logger.Verbose("%s: merged %d new rows into %s via %s path", key, result.Inserted, master, path)
	return result, nil
}

type mergeFunc func(ctx context.Context, master, source string) (int64, error)

// strategy prefers the single-statement path and falls back to a serializable transaction.
func (r *Reconciler) strategy() (mergeFunc, Path, error) {
	caps := r.warehouse.Capabilities()
	if cm, ok := r.warehouse.(tripmerge.ConditionalMerger); ok && caps.ConditionalInsert {
		return cm.MergeInsertOnly, PathConditional, nil
	}
	if tm, ok := r.warehouse.(tripmerge.TransactionalMerger); ok && caps.SerializableTx {
		return func(ctx context.Context, master, source string) (int64, error) {
			return mergeInTx(ctx, tm, master, source)
		}, PathTransactional, nil
	}
	return nil, "", fmt.Errorf("%s warehouse: %w", r.warehouse.Dialect(), tripmerge.ErrMergeUnsupported)
}

// mergeInTx never inserts rows it has to remove again: the unseen identities are
// selected first and exactly one row per identity is inserted.
func mergeInTx(ctx context.Context, tm tripmerge.TransactionalMerger, master, source string) (int64, error) {
	var inserted int64
	err := tm.InSerializableTx(ctx, func(ctx context.Context, tx tripmerge.MergeTx) error {
		ids, err := tx.UnseenIdentities(ctx, master, source)
		if err != nil {
			return err
		}
		if len(ids) == 0 {
			return nil
		}
		n, err := tx.InsertIdentities(ctx, master, source, ids)
		if err != nil {
			return err
		}
		if n != int64(len(ids)) {
			return fmt.Errorf("inserted %d rows for %d unseen identities", n, len(ids))
		}
		inserted = n
		return nil
	})
	if err != nil {
		return 0, err
	}
	return inserted, nil
}
