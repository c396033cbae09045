package cli

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vvka-141/tripmerge/pkg/tripmerge"
)

const tripCSV = "VendorID,tpep_pickup_datetime,tpep_dropoff_datetime,PULocationID,DOLocationID,fare_amount\n" +
	"1,2024-01-01 00:57:55,2024-01-01 01:17:43,186,79,17.70\n" +
	"1,2024-01-01 00:03:00,2024-01-01 00:09:36,140,236,10.00\n"

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := NewRootCommand()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func writeBatches(t *testing.T, names ...string) string {
	t.Helper()
	dir := t.TempDir()
	for _, name := range names {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(tripCSV), 0o644))
	}
	return dir
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "tripmerge "))
}

func TestLoad_MissingArguments(t *testing.T) {
	_, err := execute(t, "load", "trips")
	require.Error(t, err)
	assert.ErrorIs(t, err, tripmerge.ErrUsage)
	assert.Equal(t, tripmerge.ExitUsageError, tripmerge.ExitCodeForError(err))
	assert.Contains(t, err.Error(), "<project> <dataset>")
}

func TestLoad_InvalidMode(t *testing.T) {
	_, err := execute(t, "load", "trips", "proj", "nyc", "--mode", "sideways", "--warehouse", "memory", "--blob", "memory")
	require.Error(t, err)
	assert.Equal(t, tripmerge.ExitConfigError, tripmerge.ExitCodeForError(err))
	assert.Contains(t, err.Error(), "sideways")
}

func TestLoad_UnknownWarehouseDriver(t *testing.T) {
	dir := writeBatches(t, "yellow_tripdata_2024-01.csv")
	_, err := execute(t, "load", "trips", "proj", "nyc", "--warehouse", "oracle", "--blob", "memory", "--local-dir", dir)
	assert.ErrorIs(t, err, tripmerge.ErrInvalidConfig)
}

func TestLoad_NoInputFiles(t *testing.T) {
	dir := writeBatches(t, "README.md")
	_, err := execute(t, "load", "trips", "proj", "nyc", "--warehouse", "memory", "--blob", "memory", "--local-dir", dir)
	require.Error(t, err)
	assert.ErrorIs(t, err, tripmerge.ErrNoInputFiles)
	assert.Equal(t, tripmerge.ExitNoInputFiles, tripmerge.ExitCodeForError(err))
}

func TestLoad_AsIsInMemory(t *testing.T) {
	dir := writeBatches(t, "yellow_tripdata_2024-01.csv", "green_tripdata_2024-01.csv")
	out, err := execute(t, "load", "trips", "proj", "nyc", "--mode", "as-is",
		"--warehouse", "memory", "--blob", "memory", "--local-dir", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "2 batches, 2 succeeded, 0 failed")
	assert.Contains(t, out, "staged")
	assert.Contains(t, out, "(mode as-is)")
}

func TestLoadThenReport_SQLite(t *testing.T) {
	dir := writeBatches(t, "yellow_tripdata_2024-01.csv", "yellow_tripdata_2024-02.csv")
	work := t.TempDir()
	project := filepath.Join(work, "warehouse")
	metricsFile := filepath.Join(work, "tripmerge.prom")

	out, err := execute(t, "load", "trips", project, "nyc",
		"--warehouse", "sqlite",
		"--blob", "fs", "--blob-root", filepath.Join(work, "objects"),
		"--local-dir", dir,
		"--workers", "2",
		"--metrics-file", metricsFile)
	require.NoError(t, err)
	assert.Contains(t, out, "2 batches, 2 succeeded, 0 failed, 2 rows merged", "identical rows across months merge once")

	prom, err := os.ReadFile(metricsFile)
	require.NoError(t, err)
	assert.Contains(t, string(prom), "tripmerge_rows_merged_total")

	out, err = execute(t, "report", project, "nyc", "--warehouse", "sqlite")
	require.NoError(t, err)
	assert.Contains(t, out, "yellow_tripdata")
	assert.NotContains(t, out, "green_tripdata")

	out, err = execute(t, "report", project, "nyc", "--warehouse", "sqlite",
		"--sql", "SELECT count(*) AS n FROM yellow_tripdata")
	require.NoError(t, err)
	assert.Contains(t, out, "(1 rows)")

	_, err = execute(t, "report", project, "nyc", "--warehouse", "sqlite", "--sql", "SELECT 1", "--estimate")
	assert.ErrorIs(t, err, tripmerge.ErrUnsupported)
}

func TestZonesThenReport_SQLite(t *testing.T) {
	const lookup = "LocationID,Borough,Zone,service_zone\n1,EWR,Newark Airport,EWR\n2,Queens,Jamaica Bay,Boro Zone\n"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, lookup)
	}))
	defer srv.Close()

	work := t.TempDir()
	project := filepath.Join(work, "warehouse")
	out, err := execute(t, "zones", "trips", project, "nyc",
		"--warehouse", "sqlite",
		"--blob", "fs", "--blob-root", filepath.Join(work, "objects"),
		"--url", srv.URL+"/misc/taxi_zone_lookup.csv",
		"--out", filepath.Join(work, "data"))
	require.NoError(t, err)
	assert.Contains(t, out, "2 rows loaded into taxi_zones")

	_, err = os.Stat(filepath.Join(work, "data", "misc", "taxi_zone_lookup.csv"))
	require.NoError(t, err, "the lookup is kept next to downloaded batches")

	out, err = execute(t, "report", project, "nyc", "--warehouse", "sqlite",
		"--sql", "SELECT zone FROM taxi_zones WHERE locationid = 2")
	require.NoError(t, err)
	assert.Contains(t, out, "Jamaica Bay")
}

func TestZones_FileAndURLAreExclusive(t *testing.T) {
	_, err := execute(t, "zones", "trips", "proj", "nyc", "--file", "zones.csv", "--url", "https://example.test/z.csv")
	assert.ErrorIs(t, err, tripmerge.ErrUsage)
}

func TestReport_EstimateRequiresSQL(t *testing.T) {
	_, err := execute(t, "report", "proj", "nyc", "--estimate")
	assert.ErrorIs(t, err, tripmerge.ErrUsage)
}

func TestDownload_InvalidType(t *testing.T) {
	_, err := execute(t, "download", "--types", "purple")
	assert.ErrorIs(t, err, tripmerge.ErrInvalidConfig)
}

func TestUnknownFlagIsUsageError(t *testing.T) {
	_, err := execute(t, "load", "--no-such-flag")
	require.Error(t, err)
	assert.Equal(t, tripmerge.ExitUsageError, tripmerge.ExitCodeForError(err))
}
