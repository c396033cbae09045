package zones

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vvka-141/tripmerge/internal/blob/memory"
	"github.com/vvka-141/tripmerge/internal/checksum"
	"github.com/vvka-141/tripmerge/internal/feed"
	"github.com/vvka-141/tripmerge/internal/files/filesystem"
	"github.com/vvka-141/tripmerge/internal/logging"
	"github.com/vvka-141/tripmerge/internal/metrics"
	"github.com/vvka-141/tripmerge/internal/retry"
	whmemory "github.com/vvka-141/tripmerge/internal/warehouse/memory"
	"github.com/vvka-141/tripmerge/internal/warehouse/sqlite"
	"github.com/vvka-141/tripmerge/pkg/tripmerge"
)

const lookupV1 = `"LocationID","Borough","Zone","service_zone"
1,"EWR","Newark Airport","EWR"
2,"Queens","Jamaica Bay","Boro Zone"
3,"Bronx","Allerton/Pelham Gardens","Boro Zone"
`

const lookupV2 = `"LocationID","Borough","Zone","service_zone"
1,"EWR","Newark Airport","EWR"
4,"Manhattan","Alphabet City","Yellow Zone"
`

func fastExecutor() *retry.Executor {
	return retry.NewExecutor(retry.NewTransferErrorClassifier(),
		retry.NewExponentialBackoff(2, retry.WithInitialDelay(time.Millisecond), retry.WithMaxDelay(time.Millisecond)))
}

func newDownloader(srv *httptest.Server) *feed.Downloader {
	return feed.NewDownloader(filesystem.NewOSFileSystem(), metrics.New(metrics.Config{}), logging.NewNullLogger(),
		feed.DownloadOptions{Attempts: 2},
		feed.WithHTTPClient(srv.Client()), feed.WithRetryWait(time.Millisecond, 2*time.Millisecond))
}

func openSQLite(t *testing.T) *sqlite.Warehouse {
	t.Helper()
	wh, err := sqlite.Open(context.Background(), sqlite.Config{Dir: t.TempDir(), Dataset: "nyc"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = wh.Close() })
	return wh
}

func TestURLAndKeys(t *testing.T) {
	assert.Equal(t, "https://github.com/DataTalksClub/nyc-tlc-data/releases/download/misc/taxi_zone_lookup.csv", URL(""))
	assert.Equal(t, "https://example.test/misc/taxi_zone_lookup.csv", URL("https://example.test/"))
	assert.Equal(t, "reference/taxi_zone_lookup.csv", ObjectKey(""))
	assert.Equal(t, "raw/reference/taxi_zone_lookup.csv", ObjectKey("raw"))
	assert.Equal(t, "out/misc/taxi_zone_lookup.csv", filepath.ToSlash(LocalPath("out")))
}

func TestIngest_DownloadReplacesRelationAndObject(t *testing.T) {
	var body atomic.Value
	body.Store(lookupV1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/misc/taxi_zone_lookup.csv", r.URL.Path)
		_, _ = io.WriteString(w, body.Load().(string))
	}))
	defer srv.Close()

	ctx := context.Background()
	store := memory.New("trips")
	wh := openSQLite(t)
	ingester := NewIngester(newDownloader(srv), store, wh, logging.NewNullLogger(), WithExecutor(fastExecutor()))
	req := Request{URL: URL(srv.URL), LocalPath: LocalPath(t.TempDir())}

	first, err := ingester.Ingest(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, int64(len(lookupV1)), first.Downloaded)
	assert.Equal(t, int64(3), first.Job.Rows)
	assert.Equal(t, DefaultTable, first.Job.Table)
	assert.Equal(t, tripmerge.SchemaExplicit, first.Job.SchemaSource)
	assert.Equal(t, tripmerge.TypeInteger, first.Job.Schema[0].Type)

	body.Store(lookupV2)
	second, err := ingester.Ingest(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, int64(2), second.Job.Rows)

	res, err := wh.Query(ctx, "SELECT count(*) AS n FROM taxi_zones")
	require.NoError(t, err)
	require.Len(t, res.Rows, 1)
	assert.EqualValues(t, 2, res.Rows[0][0], "a second ingest replaces the relation")

	info, rc, err := store.Get(ctx, ObjectKey(""))
	require.NoError(t, err)
	defer rc.Close()
	stored, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, lookupV2, string(stored), "the stored copy is replaced too")
	sum, err := checksum.New().Sum(strings.NewReader(lookupV2))
	require.NoError(t, err)
	assert.Equal(t, sum, info.Metadata[checksum.MetadataKey])
}

func TestIngest_LocalFile(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), Filename)
	require.NoError(t, os.WriteFile(path, []byte(lookupV1), 0o644))
	wh := whmemory.New()

	res, err := NewIngester(nil, memory.New("trips"), wh, logging.NewNullLogger(), WithExecutor(fastExecutor())).
		Ingest(ctx, Request{LocalPath: path, Table: "zones", Prefix: "raw"})
	require.NoError(t, err)
	assert.Zero(t, res.Downloaded)
	assert.Equal(t, "raw/reference/taxi_zone_lookup.csv", res.ObjectKey)

	rows, err := wh.Rows("zones")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, int64(2), rows[1]["locationid"])
	assert.Equal(t, "Jamaica Bay", rows[1]["zone"])
}

func TestIngest_DownloadFailureLoadsNothing(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()
	wh := whmemory.New()

	_, err := NewIngester(newDownloader(srv), memory.New("trips"), wh, logging.NewNullLogger(), WithExecutor(fastExecutor())).
		Ingest(context.Background(), Request{URL: URL(srv.URL), LocalPath: LocalPath(t.TempDir())})

	require.ErrorIs(t, err, tripmerge.ErrTransferFailure)
	exists, err := wh.TableExists(context.Background(), DefaultTable)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestIngest_Validation(t *testing.T) {
	ingester := NewIngester(nil, memory.New("trips"), whmemory.New(), logging.NewNullLogger())

	_, err := ingester.Ingest(context.Background(), Request{})
	assert.ErrorIs(t, err, tripmerge.ErrInvalidConfig)

	_, err = ingester.Ingest(context.Background(), Request{URL: "https://example.test/z.csv", LocalPath: "z.csv"})
	assert.ErrorIs(t, err, tripmerge.ErrInvalidConfig, "a URL needs a fetcher")
}

func TestNewIngester_PanicsOnNil(t *testing.T) {
	logger := logging.NewNullLogger()
	assert.Panics(t, func() { NewIngester(nil, nil, whmemory.New(), logger) })
	assert.Panics(t, func() { NewIngester(nil, memory.New("b"), nil, logger) })
	assert.Panics(t, func() { NewIngester(nil, memory.New("b"), whmemory.New(), nil) })
}
