package tripmerge

import (
	"context"
	"io"
)

// WriteDisposition controls what a load does with an existing table.
type WriteDisposition string

const (
	// WriteReplace atomically replaces the table contents.
	WriteReplace WriteDisposition = "replace"
	// WriteAppend appends rows to the table, creating it when missing.
	WriteAppend WriteDisposition = "append"
)

// ObjectSource is a durable copy of a batch file a warehouse can read from.
type ObjectSource interface {
	// URI identifies the object for logs and job metadata.
	URI() string
	// Open streams the object contents.
	Open(ctx context.Context) (io.ReadCloser, error)
}

// LoadRequest describes one load job into a warehouse table.
type LoadRequest struct {
	Table       string
	Source      ObjectSource
	Format      FileFormat
	Schema      ColumnSchema // nil requests autodetection
	Disposition WriteDisposition
}

// LoadJob reports a completed load job.
type LoadJob struct {
	ID           string
	Table        string
	Rows         int64
	Schema       ColumnSchema
	SchemaSource SchemaSource
}

// IdentitySpec describes how to build an identity-tagged relation from a staging relation.
type IdentitySpec struct {
	StagingTable   string
	TaggedTable    string
	KeyColumns     []string
	SourceFilename string
}

// Capabilities advertises optional warehouse features.
type Capabilities struct {
	// ConditionalInsert means the store can insert unseen identities in a single atomic statement.
	ConditionalInsert bool
	// SerializableTx means the store offers serializable multi-statement transactions.
	SerializableTx bool
	// Estimate means the store can estimate the cost of a query without running it.
	Estimate bool
}

// MasterStats summarizes a master relation.
type MasterStats struct {
	Table              string
	Rows               int64
	DistinctIdentities int64
}

// QueryResult holds the rows of an ad-hoc query.
type QueryResult struct {
	Columns []string
	Rows    [][]any
}

// QueryEstimate is a dry-run cost estimate.
type QueryEstimate struct {
	Rows  int64
	Bytes int64
}

// Warehouse is the queryable destination holding staging, tagged and master relations.
// Implementations are safe for concurrent use.
type Warehouse interface {
	Dialect() string
	Capabilities() Capabilities

	// EnsureDataset creates the dataset namespace when it does not exist.
	EnsureDataset(ctx context.Context) error

	TableExists(ctx context.Context, table string) (bool, error)

	// DropTable removes a table. A missing table is not an error.
	DropTable(ctx context.Context, table string) error

	// Load runs a load job. A failed replace load leaves no partial table behind.
	Load(ctx context.Context, req LoadRequest) (LoadJob, error)

	// DeriveIdentity rebuilds the tagged relation and returns its row count.
	DeriveIdentity(ctx context.Context, spec IdentitySpec) (int64, error)

	// EnsureMaster creates an empty master relation shaped like template, with a
	// uniqueness guarantee on the identity column, if it does not exist yet.
	EnsureMaster(ctx context.Context, master, template string) error

	MasterStats(ctx context.Context, master string) (MasterStats, error)

	Query(ctx context.Context, sql string) (QueryResult, error)

	Close() error
}

// ConditionalMerger inserts every unseen identity of source into master in one atomic statement
// and returns the number of inserted rows.
type ConditionalMerger interface {
	MergeInsertOnly(ctx context.Context, master, source string) (int64, error)
}

// MergeTx is the statement surface available inside a serializable merge transaction.
type MergeTx interface {
	// UnseenIdentities returns the distinct identities of source absent from master.
	UnseenIdentities(ctx context.Context, master, source string) ([]string, error)
	// InsertIdentities copies exactly one source row per listed identity into master.
	InsertIdentities(ctx context.Context, master, source string, ids []string) (int64, error)
}

// TransactionalMerger runs fn inside a serializable transaction, committing when fn returns nil.
type TransactionalMerger interface {
	InSerializableTx(ctx context.Context, fn func(ctx context.Context, tx MergeTx) error) error
}

// Estimator estimates query cost without executing it.
type Estimator interface {
	Estimate(ctx context.Context, sql string) (QueryEstimate, error)
}
