package tripmerge

import (
	"errors"
	"strings"
)

// Sentinel errors for common failure scenarios.
// These enable callers to distinguish error types using errors.Is().
//
// Example usage:
//
//	result := orchestrator.Run(ctx, batches)
//	if errors.Is(result.Results[0].Err, tripmerge.ErrTransferFailure) {
//	    // The batch file never reached its staging relation
//	}
var (
	// ErrInvalidConfig indicates the run configuration is unusable. It aborts the whole run.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrUsage indicates a command was invoked with missing or malformed arguments.
	ErrUsage = errors.New("usage error")

	// ErrNoInputFiles indicates no recognizable batch files were found.
	ErrNoInputFiles = errors.New("no valid input files")

	// ErrSchemaUnavailable indicates the batch header could not be read.
	// Callers fall back to store-side schema autodetection.
	ErrSchemaUnavailable = errors.New("schema unavailable")

	// ErrTransferFailure indicates the copy to the object store or the staging load failed.
	ErrTransferFailure = errors.New("transfer failed")

	// ErrMergeConflict indicates a concurrent merge touched the master relation.
	// The merge is retried with backoff.
	ErrMergeConflict = errors.New("merge conflict")

	// ErrMergeUnsupported indicates the warehouse offers neither a conditional insert
	// nor serializable transactions.
	ErrMergeUnsupported = errors.New("merge unsupported by warehouse")

	// ErrStagingMissing indicates the staging or identity-tagged relation does not exist.
	ErrStagingMissing = errors.New("staging relation missing")

	// ErrUnsupported indicates an optional warehouse capability is not available.
	ErrUnsupported = errors.New("unsupported operation")

	// ErrConnectionFailed indicates the warehouse or object store could not be reached.
	ErrConnectionFailed = errors.New("connection failed")
)

// ExitCodeForError returns the appropriate exit code for an error.
// Returns ExitSuccess (0) for nil errors, semantic codes for known errors,
// and ExitGeneralError (1) for unclassified errors.
func ExitCodeForError(err error) int {
	if err == nil {
		return ExitSuccess
	}

	switch {
	case errors.Is(err, ErrUsage):
		return ExitUsageError
	case errors.Is(err, ErrInvalidConfig):
		return ExitConfigError
	case errors.Is(err, ErrNoInputFiles):
		return ExitNoInputFiles
	case errors.Is(err, ErrConnectionFailed):
		return ExitConnectionError
	}

	errStr := err.Error()

	// Cobra reports flag and argument problems as plain errors.
	usagePatterns := []string{
		"unknown flag",
		"unknown shorthand flag",
		"unknown command",
		"accepts ",
		"requires at least",
		"required flag",
		"invalid argument",
	}
	for _, pattern := range usagePatterns {
		if strings.Contains(errStr, pattern) {
			return ExitUsageError
		}
	}

	if strings.Contains(errStr, "failed to connect") ||
		strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "no such host") {
		return ExitConnectionError
	}

	return ExitGeneralError
}
