// Package retry provides retry logic with exponential backoff for transient
// failures of object store copies, warehouse load jobs and master merges.
//
// # Example Usage
//
//	executor := retry.NewExecutor(
//	    retry.NewMergeConflictClassifier(),
//	    retry.NewExponentialBackoff(5),
//	)
//
//	err := executor.Execute(ctx, func(ctx context.Context) error {
//	    return reconcile(ctx)
//	})
//
// # Error Classification
//
// Classifiers decide which errors are worth another attempt:
//   - PostgreSQLErrorClassifier: connection, resource and concurrency SQLSTATEs
//   - SQLiteErrorClassifier: busy or locked database
//   - TransferErrorClassifier: network errors, HTTP 429/5xx, transient warehouse errors
//   - MergeConflictClassifier: tripmerge.ErrMergeConflict and serialization failures
package retry
