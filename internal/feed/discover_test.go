package feed

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vvka-141/tripmerge/internal/blob/core"
	"github.com/vvka-141/tripmerge/internal/blob/memory"
	"github.com/vvka-141/tripmerge/internal/files/filesystem"
	"github.com/vvka-141/tripmerge/internal/logging"
	"github.com/vvka-141/tripmerge/pkg/tripmerge"
)

func filepathToSlash(p string) string { return filepath.ToSlash(p) }

func TestParseFilename(t *testing.T) {
	tests := []struct {
		name   string
		ok     bool
		key    tripmerge.BatchKey
		format tripmerge.FileFormat
	}{
		{"yellow_tripdata_2021-01.csv.gz", true, tripmerge.BatchKey{Source: tripmerge.SourceYellow, Year: 2021, Month: 1}, tripmerge.FormatCSVGzip},
		{"green_tripdata_2019-12.csv", true, tripmerge.BatchKey{Source: tripmerge.SourceGreen, Year: 2019, Month: 12}, tripmerge.FormatCSV},
		{"fhv_tripdata_2020-06.parquet", true, tripmerge.BatchKey{Source: tripmerge.SourceFHV, Year: 2020, Month: 6}, tripmerge.FormatParquet},
		{"yellow_tripdata_2021-13.csv", false, tripmerge.BatchKey{}, ""},
		{"Yellow_tripdata_2021-01.csv", false, tripmerge.BatchKey{}, ""},
		{"yellow_tripdata_2021-1.csv", false, tripmerge.BatchKey{}, ""},
		{"yellow_tripdata_2021-01.json", false, tripmerge.BatchKey{}, ""},
		{"notes.txt", false, tripmerge.BatchKey{}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key, format, ok := ParseFilename(tt.name)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.key, key)
			assert.Equal(t, tt.format, format)
		})
	}
}

func TestDiscover(t *testing.T) {
	fsys := filesystem.NewMemoryFileSystem()
	fsys.AddFile("/data/yellow/2021/yellow_tripdata_2021-02.csv.gz", []byte("x"))
	fsys.AddFile("/data/yellow/2021/yellow_tripdata_2021-01.csv.gz", []byte("x"))
	fsys.AddFile("/data/green/2021/green_tripdata_2021-01.parquet", []byte("x"))
	fsys.AddFile("/data/yellow/2021/README.md", []byte("x"))

	batches, err := NewScanner(fsys, logging.NewNullLogger()).Discover("/data")
	require.NoError(t, err)
	require.Len(t, batches, 3)

	assert.Equal(t, "green_tripdata_2021-01.parquet", batches[0].Filename)
	assert.Equal(t, tripmerge.FormatParquet, batches[0].Format)
	assert.Equal(t, "/data/green/2021/green_tripdata_2021-01.parquet", batches[0].LocalPath)
	assert.Equal(t, 1, batches[1].Key.Month)
	assert.Equal(t, 2, batches[2].Key.Month)
}

func TestDiscover_DuplicateKeyKeepsFirst(t *testing.T) {
	fsys := filesystem.NewMemoryFileSystem()
	fsys.AddFile("/data/a/yellow_tripdata_2021-01.csv", []byte("x"))
	fsys.AddFile("/data/b/yellow_tripdata_2021-01.parquet", []byte("x"))

	batches, err := NewScanner(fsys, logging.NewNullLogger()).Discover("/data")
	require.NoError(t, err)
	require.Len(t, batches, 1)
	assert.Equal(t, "yellow_tripdata_2021-01.csv", batches[0].Filename)
}

func TestDiscover_NoInputFiles(t *testing.T) {
	fsys := filesystem.NewMemoryFileSystem()
	fsys.AddFile("/data/notes.txt", []byte("x"))
	s := NewScanner(fsys, logging.NewNullLogger())

	_, err := s.Discover("/data")
	assert.ErrorIs(t, err, tripmerge.ErrNoInputFiles)

	_, err = s.Discover("/missing")
	assert.ErrorIs(t, err, tripmerge.ErrNoInputFiles)
}

func TestDiscoverObjects(t *testing.T) {
	ctx := context.Background()
	store := memory.New("trips")
	for _, key := range []string{
		"raw/yellow/2021/yellow_tripdata_2021-03.csv.gz",
		"raw/yellow/2021/yellow_tripdata_2021-01.csv.gz",
		"raw/yellow/2021/manifest.json",
		"other/green/2021/green_tripdata_2021-01.csv.gz",
	} {
		_, err := store.Put(ctx, key, strings.NewReader("x"), core.PutOptions{})
		require.NoError(t, err)
	}
	s := NewScanner(filesystem.NewMemoryFileSystem(), logging.NewNullLogger())

	batches, err := s.DiscoverObjects(ctx, store, "raw/")
	require.NoError(t, err)
	require.Len(t, batches, 2)
	assert.Equal(t, 1, batches[0].Key.Month)
	assert.Equal(t, 3, batches[1].Key.Month)
	assert.Empty(t, batches[0].LocalPath)

	_, err = s.DiscoverObjects(ctx, store, "empty/")
	assert.ErrorIs(t, err, tripmerge.ErrNoInputFiles)
}

func TestNewScanner_Panics(t *testing.T) {
	assert.Panics(t, func() { NewScanner(nil, logging.NewNullLogger()) })
	assert.Panics(t, func() { NewScanner(filesystem.NewMemoryFileSystem(), nil) })
}
