package tripmerge

import "time"

// Exit codes for semantic error classification.
// These follow Unix/GNU conventions:
//   - 0: Success
//   - 1: General error
//   - 2: CLI usage error (misuse of command line)
//   - 3+: Application-specific errors
const (
	ExitSuccess         = 0  // Run completed (individual batches may still have failed)
	ExitGeneralError    = 1  // Unknown or unclassified error
	ExitUsageError      = 2  // CLI usage error (missing args, invalid flags)
	ExitPanic           = 3  // Internal panic (unexpected crash)
	ExitConfigError     = 10 // Invalid configuration or parameters
	ExitConnectionError = 11 // Failed to connect to the warehouse or object store
	ExitNoInputFiles    = 15 // No valid batch files were found
)

const (
	// DefaultRetryInitialDelay is the default initial delay before the first retry attempt.
	DefaultRetryInitialDelay = 100 * time.Millisecond

	// DefaultRetryMaxDelay is the default maximum delay between retry attempts.
	DefaultRetryMaxDelay = 30 * time.Second

	// DefaultRetryMaxAttempts is the default maximum number of retry attempts.
	DefaultRetryMaxAttempts = 3

	// DefaultMergeRetryMaxAttempts bounds retries of a conflicting merge.
	DefaultMergeRetryMaxAttempts = 5

	// DefaultDownloadRetries matches the number of attempts made per feed file.
	DefaultDownloadRetries = 3

	// DefaultWorkers is the default number of batches processed concurrently.
	DefaultWorkers = 4

	// DefaultTimeout bounds a whole load run.
	DefaultTimeout = 2 * time.Hour

	// DefaultFeedBaseURL is the public release endpoint serving monthly trip files.
	DefaultFeedBaseURL = "https://github.com/DataTalksClub/nyc-tlc-data/releases/download"

	// DefaultLocalDir is where downloaded batch files are written and discovered.
	DefaultLocalDir = "./nyc_taxi_data"

	// AutodetectSampleRows is the number of rows sampled when inferring a schema.
	AutodetectSampleRows = 1000

	// IdentityColumn is the name of the derived identity column.
	IdentityColumn = "unique_row_id"

	// SourceFilenameColumn records which batch file a row came from.
	SourceFilenameColumn = "source_filename"
)

// TimestampLayout is the canonical text form of a timestamp in identities and text-typed stores.
const TimestampLayout = "2006-01-02 15:04:05"
