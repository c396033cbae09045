package tripmerge

import (
	"fmt"
	"strings"
)

// SourceType identifies the trip-record feed a batch belongs to.
type SourceType string

const (
	SourceYellow SourceType = "yellow"
	SourceGreen  SourceType = "green"
	SourceFHV    SourceType = "fhv"
)

// SourceTypes lists every known feed in a stable order.
var SourceTypes = []SourceType{SourceYellow, SourceGreen, SourceFHV}

// ParseSourceType converts a case-insensitive name into a SourceType.
func ParseSourceType(s string) (SourceType, error) {
	st := SourceType(strings.ToLower(strings.TrimSpace(s)))
	if !st.Valid() {
		return "", fmt.Errorf("unknown source type %q (expected yellow, green or fhv): %w", s, ErrInvalidConfig)
	}
	return st, nil
}

// Valid reports whether the source type is one of the known feeds.
func (s SourceType) Valid() bool {
	switch s {
	case SourceYellow, SourceGreen, SourceFHV:
		return true
	}
	return false
}

// BatchKey uniquely identifies a monthly batch. Two keys are equal when all fields are equal.
type BatchKey struct {
	Source SourceType
	Year   int
	Month  int
}

// NewBatchKey validates its inputs and builds a BatchKey.
func NewBatchKey(source SourceType, year, month int) (BatchKey, error) {
	if !source.Valid() {
		return BatchKey{}, fmt.Errorf("unknown source type %q: %w", source, ErrInvalidConfig)
	}
	if year < 2000 || year > 2999 {
		return BatchKey{}, fmt.Errorf("year %d out of range: %w", year, ErrInvalidConfig)
	}
	if month < 1 || month > 12 {
		return BatchKey{}, fmt.Errorf("month %d out of range: %w", month, ErrInvalidConfig)
	}
	return BatchKey{Source: source, Year: year, Month: month}, nil
}

// String renders the key as yellow/2024-01.
func (k BatchKey) String() string {
	return fmt.Sprintf("%s/%04d-%02d", k.Source, k.Year, k.Month)
}

// Filename returns the canonical feed file name with the given extension (csv, csv.gz, parquet).
func (k BatchKey) Filename(ext string) string {
	return fmt.Sprintf("%s_tripdata_%04d-%02d.%s", k.Source, k.Year, k.Month, ext)
}

// StagingTable names the per-batch staging relation.
func (k BatchKey) StagingTable() string {
	return fmt.Sprintf("%s_tripdata_%04d_%02d", k.Source, k.Year, k.Month)
}

// TaggedTable names the identity-tagged relation derived from the staging relation.
func (k BatchKey) TaggedTable() string {
	return k.StagingTable() + "_with_id"
}

// MasterTable names the consolidated relation shared by every batch of the same source.
func (k BatchKey) MasterTable() string {
	return MasterTableFor(k.Source)
}

// MasterTableFor names the consolidated relation of a source type.
func MasterTableFor(source SourceType) string {
	return fmt.Sprintf("%s_tripdata", source)
}

// ObjectKey returns the durable object-store location of a batch file.
func (k BatchKey) ObjectKey(prefix, filename string) string {
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return fmt.Sprintf("%s%s/%04d/%s", prefix, k.Source, k.Year, filename)
}

// FileFormat is the on-disk encoding of a batch file.
type FileFormat string

const (
	FormatCSV     FileFormat = "csv"
	FormatCSVGzip FileFormat = "csv.gz"
	FormatParquet FileFormat = "parquet"
)

// FormatFromName derives the file format from a file name suffix.
func FormatFromName(name string) (FileFormat, error) {
	lower := strings.ToLower(name)
	switch {
	case strings.HasSuffix(lower, ".csv.gz"):
		return FormatCSVGzip, nil
	case strings.HasSuffix(lower, ".csv"):
		return FormatCSV, nil
	case strings.HasSuffix(lower, ".parquet"):
		return FormatParquet, nil
	}
	return "", fmt.Errorf("unsupported batch file %q", name)
}

// Batch is one unit of work for the orchestrator.
type Batch struct {
	Key BatchKey

	// Filename is the batch file name, used for the object key and source_filename.
	Filename string

	// LocalPath is the file on local disk. Empty when the file is already in the object store.
	LocalPath string

	Format FileFormat
}
