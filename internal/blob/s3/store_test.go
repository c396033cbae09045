package s3

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vvka-141/tripmerge/internal/blob/core"
)

func TestStore_MockedBasicFlow(t *testing.T) {
	ctx := context.Background()
	store := NewMockForTests("trips")
	require.NoError(t, store.EnsureBucket(ctx))
	require.NoError(t, store.EnsureBucket(ctx))

	info, err := store.Put(ctx, "yellow/2024/yellow_tripdata_2024-01.csv", bytes.NewReader([]byte("hello")), core.PutOptions{ContentType: "text/csv"})
	require.NoError(t, err)
	assert.Equal(t, "yellow/2024/yellow_tripdata_2024-01.csv", info.Key)
	assert.Equal(t, "text/csv", info.ContentType)
	assert.Equal(t, int64(5), info.Size)

	_, err = store.Put(ctx, info.Key, bytes.NewReader([]byte("ignored")), core.PutOptions{})
	assert.ErrorIs(t, err, core.ErrExists)

	_, rc, err := store.Get(ctx, info.Key)
	require.NoError(t, err)
	data, _ := io.ReadAll(rc)
	_ = rc.Close()
	assert.Equal(t, "hello", string(data))

	list, err := store.List(ctx, "yellow/")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, info.Key, list[0].Key)

	ok, err := store.Delete(ctx, info.Key)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = store.Delete(ctx, info.Key)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStore_MissingObjects(t *testing.T) {
	ctx := context.Background()
	store := NewMockForTests("trips")

	_, err := store.Head(ctx, "nope")
	assert.ErrorIs(t, err, core.ErrNotFound)
	_, _, err = store.Get(ctx, "nope")
	assert.ErrorIs(t, err, core.ErrNotFound)

	list, err := store.List(ctx, "no-such-prefix/")
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestStore_URIAndDriver(t *testing.T) {
	store := NewMockForTests("trips")
	assert.Equal(t, core.DriverS3, store.Driver())
	assert.Equal(t, "trips", store.Bucket())
	assert.Equal(t, "s3://trips/green/2023/x.parquet", store.URI("green/2023/x.parquet"))
}

func TestNew(t *testing.T) {
	_, err := New(context.Background(), Config{})
	assert.Error(t, err)

	s, err := New(context.Background(), Config{
		Bucket:          "bkt",
		Endpoint:        "http://localhost:9000",
		AccessKeyID:     "minio",
		SecretAccessKey: "minio123",
		PathStyle:       true,
	})
	require.NoError(t, err)
	assert.Equal(t, defaultRegion, s.region)
}

func TestDecodeAWSChunked(t *testing.T) {
	_, ok := decodeAWSChunked([]byte("not-chunked"))
	assert.False(t, ok)

	got, ok := decodeAWSChunked([]byte("5\r\nhello\r\n0\r\n"))
	require.True(t, ok)
	assert.Equal(t, "hello", string(got))

	got, ok = decodeAWSChunked([]byte("4;chunk-signature=abc\r\na\r\nb\r\n2\r\ncd\r\n0\r\nx-amz-checksum-crc32:AAAA\r\n\r\n"))
	require.True(t, ok)
	assert.Equal(t, "a\r\nbcd", string(got))
}

func TestMockRoundTripper_Unsupported(t *testing.T) {
	rt := &mockRoundTripper{buckets: map[string]bool{}, objects: map[string]mockObj{}}
	req, err := http.NewRequest(http.MethodPatch, "https://mock.s3.local/bucket/key", nil)
	require.NoError(t, err)
	resp, err := rt.RoundTrip(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotImplemented, resp.StatusCode)
}
