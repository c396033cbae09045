package tripmerge_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vvka-141/tripmerge/pkg/tripmerge"
)

func TestBatchKey_DerivedNames(t *testing.T) {
	key, err := tripmerge.NewBatchKey(tripmerge.SourceYellow, 2024, 1)
	require.NoError(t, err)

	assert.Equal(t, "yellow/2024-01", key.String())
	assert.Equal(t, "yellow_tripdata_2024-01.csv.gz", key.Filename("csv.gz"))
	assert.Equal(t, "yellow_tripdata_2024_01", key.StagingTable())
	assert.Equal(t, "yellow_tripdata_2024_01_with_id", key.TaggedTable())
	assert.Equal(t, "yellow_tripdata", key.MasterTable())
	assert.Equal(t, "yellow/2024/yellow_tripdata_2024-01.csv.gz", key.ObjectKey("", key.Filename("csv.gz")))
	assert.Equal(t, "raw/yellow/2024/f.csv", key.ObjectKey("raw", "f.csv"))
	assert.Equal(t, "raw/yellow/2024/f.csv", key.ObjectKey("raw/", "f.csv"))
}

func TestBatchKey_Equality(t *testing.T) {
	a := tripmerge.BatchKey{Source: tripmerge.SourceGreen, Year: 2020, Month: 3}
	b := tripmerge.BatchKey{Source: tripmerge.SourceGreen, Year: 2020, Month: 3}
	c := tripmerge.BatchKey{Source: tripmerge.SourceGreen, Year: 2020, Month: 4}

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)

	seen := map[tripmerge.BatchKey]bool{a: true}
	assert.True(t, seen[b])
	assert.False(t, seen[c])
}

func TestNewBatchKey_Invalid(t *testing.T) {
	_, err := tripmerge.NewBatchKey("purple", 2024, 1)
	assert.True(t, errors.Is(err, tripmerge.ErrInvalidConfig))

	_, err = tripmerge.NewBatchKey(tripmerge.SourceFHV, 2024, 13)
	assert.True(t, errors.Is(err, tripmerge.ErrInvalidConfig))

	_, err = tripmerge.NewBatchKey(tripmerge.SourceFHV, 1999, 12)
	assert.True(t, errors.Is(err, tripmerge.ErrInvalidConfig))
}

func TestFormatFromName(t *testing.T) {
	tests := map[string]tripmerge.FileFormat{
		"yellow_tripdata_2019-01.csv":    tripmerge.FormatCSV,
		"yellow_tripdata_2019-01.CSV.GZ": tripmerge.FormatCSVGzip,
		"green_tripdata_2019-01.parquet": tripmerge.FormatParquet,
	}
	for name, want := range tests {
		got, err := tripmerge.FormatFromName(name)
		require.NoError(t, err, name)
		assert.Equal(t, want, got, name)
	}

	_, err := tripmerge.FormatFromName("notes.txt")
	assert.Error(t, err)
}

func TestParseSourceType(t *testing.T) {
	st, err := tripmerge.ParseSourceType(" Yellow ")
	require.NoError(t, err)
	assert.Equal(t, tripmerge.SourceYellow, st)

	_, err = tripmerge.ParseSourceType("taxi")
	assert.ErrorIs(t, err, tripmerge.ErrInvalidConfig)
}

func TestSummary_Counts(t *testing.T) {
	s := tripmerge.Summary{
		Mode: tripmerge.ModeMerge,
		Results: []tripmerge.BatchResult{
			{State: tripmerge.StateMerged, RowsMerged: 10},
			{State: tripmerge.StateMerged, RowsMerged: 5},
			{State: tripmerge.StateFailed, FailedStage: tripmerge.StageStage},
		},
	}

	assert.Equal(t, 2, s.Count(tripmerge.StateMerged))
	assert.Equal(t, 1, s.Count(tripmerge.StateFailed))
	assert.Equal(t, 2, s.Succeeded())
	assert.Equal(t, int64(15), s.RowsMerged())
}
