package s3

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	aws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// NewMockForTests returns a Store backed by an in-process fake S3 endpoint.
// It implements the bucket and object calls the Store issues: HeadBucket,
// CreateBucket, HeadObject, GetObject, PutObject, DeleteObject and ListObjectsV2.
func NewMockForTests(bucket string) *Store {
	rt := &mockRoundTripper{buckets: make(map[string]bool), objects: make(map[string]mockObj)}
	cfg, _ := config.LoadDefaultConfig(context.Background(),
		config.WithRegion(defaultRegion),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider("AKIA", "SECRET", "")),
	)
	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.HTTPClient = &http.Client{Transport: rt}
		o.UsePathStyle = true
		o.BaseEndpoint = aws.String("https://mock.s3.local")
	})
	return &Store{client: client, bucket: bucket, region: defaultRegion}
}

type mockObj struct {
	body        []byte
	contentType string
	modified    time.Time
}

type mockRoundTripper struct {
	mu      sync.Mutex
	buckets map[string]bool
	objects map[string]mockObj // keyed by bucket/key
}

func emptyResponse(status int, header http.Header) *http.Response {
	if header == nil {
		header = http.Header{}
	}
	return &http.Response{StatusCode: status, Body: io.NopCloser(bytes.NewReader(nil)), Header: header}
}

func (m *mockRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) { //nolint:cyclop
	m.mu.Lock()
	defer m.mu.Unlock()

	parts := strings.SplitN(strings.TrimPrefix(req.URL.Path, "/"), "/", 2)
	bucket := parts[0]
	key := ""
	if len(parts) == 2 {
		key = parts[1]
	}

	if key == "" {
		switch {
		case req.Method == http.MethodHead:
			if m.buckets[bucket] {
				return emptyResponse(http.StatusOK, nil), nil
			}
			return emptyResponse(http.StatusNotFound, nil), nil
		case req.Method == http.MethodPut:
			m.buckets[bucket] = true
			return emptyResponse(http.StatusOK, nil), nil
		case req.Method == http.MethodGet && req.URL.Query().Get("list-type") == "2":
			return m.list(bucket, req.URL.Query().Get("prefix")), nil
		}
		return emptyResponse(http.StatusNotImplemented, nil), nil
	}

	id := bucket + "/" + key
	switch req.Method {
	case http.MethodHead:
		if obj, ok := m.objects[id]; ok {
			return emptyResponse(http.StatusOK, objectHeader(obj)), nil
		}
		return emptyResponse(http.StatusNotFound, nil), nil
	case http.MethodPut:
		if _, exists := m.objects[id]; exists && req.Header.Get("If-None-Match") == "*" {
			return emptyResponse(http.StatusPreconditionFailed, nil), nil
		}
		body, err := io.ReadAll(req.Body)
		if err != nil {
			return nil, err
		}
		if strings.Contains(req.Header.Get("Content-Encoding"), "aws-chunked") || req.Header.Get("X-Amz-Decoded-Content-Length") != "" {
			if dec, ok := decodeAWSChunked(body); ok {
				body = dec
			}
		}
		m.objects[id] = mockObj{body: body, contentType: req.Header.Get("Content-Type"), modified: time.Now().UTC()}
		return emptyResponse(http.StatusOK, http.Header{"ETag": {`"etag"`}}), nil
	case http.MethodGet:
		if obj, ok := m.objects[id]; ok {
			return &http.Response{StatusCode: http.StatusOK, Body: io.NopCloser(bytes.NewReader(obj.body)), Header: objectHeader(obj)}, nil
		}
		return emptyResponse(http.StatusNotFound, nil), nil
	case http.MethodDelete:
		delete(m.objects, id)
		return emptyResponse(http.StatusNoContent, nil), nil
	}
	return emptyResponse(http.StatusNotImplemented, nil), nil
}

func objectHeader(obj mockObj) http.Header {
	return http.Header{
		"Content-Length": {strconv.Itoa(len(obj.body))},
		"Content-Type":   {obj.contentType},
		"ETag":           {`"etag123"`},
		"Last-Modified":  {obj.modified.Format(http.TimeFormat)},
	}
}

func (m *mockRoundTripper) list(bucket, prefix string) *http.Response {
	var keys []string
	for id := range m.objects {
		k, ok := strings.CutPrefix(id, bucket+"/")
		if ok && strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	var b strings.Builder
	b.WriteString(`<?xml version="1.0"?><ListBucketResult><IsTruncated>false</IsTruncated>`)
	for _, k := range keys {
		fmt.Fprintf(&b, "<Contents><Key>%s</Key><Size>%d</Size><LastModified>2024-01-01T00:00:00Z</LastModified></Contents>",
			k, len(m.objects[bucket+"/"+k].body))
	}
	b.WriteString("</ListBucketResult>")
	return &http.Response{
		StatusCode: http.StatusOK,
		Body:       io.NopCloser(strings.NewReader(b.String())),
		Header:     http.Header{"Content-Type": {"application/xml"}},
	}
}

// decodeAWSChunked strips aws-chunked framing: "<hex>[;ext]\r\n<data>\r\n" repeated,
// terminated by a zero-length chunk and optional trailers.
func decodeAWSChunked(b []byte) ([]byte, bool) {
	r := bufio.NewReader(bytes.NewReader(b))
	var out bytes.Buffer
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return nil, false
		}
		line = strings.TrimRight(line, "\r\n")
		if i := strings.IndexByte(line, ';'); i >= 0 {
			line = line[:i]
		}
		n, err := strconv.ParseInt(line, 16, 64)
		if err != nil || n < 0 {
			return nil, false
		}
		if n == 0 {
			return out.Bytes(), true
		}
		if _, err := io.CopyN(&out, r, n); err != nil {
			return nil, false
		}
		if _, err := r.Discard(2); err != nil {
			return nil, false
		}
	}
}
