// Package core defines the object store abstraction that holds durable copies
// of batch files before they are loaded into the warehouse.
package core

import (
	"context"
	"errors"
	"io"
	"time"
)

// Driver identifies a concrete object store backend.
type Driver string

const (
	DriverFilesystem Driver = "fs"     // local filesystem (dev)
	DriverS3         Driver = "s3"     // S3 / MinIO compatible
	DriverMemory     Driver = "memory" // in-memory (tests)
)

// PutOptions specifies optional parameters for Put.
type PutOptions struct {
	ContentType string            // MIME type, optional
	Metadata    map[string]string // user metadata (small, flat key-value)
}

// Info describes a stored object.
type Info struct {
	Key          string            `json:"key"`
	Size         int64             `json:"size_bytes"`
	ContentType  string            `json:"content_type,omitempty"`
	ETag         string            `json:"etag,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	LastModified time.Time         `json:"last_modified"`
}

// Store is a single-bucket, S3-like object store.
type Store interface {
	// EnsureBucket creates the bucket when it does not exist.
	EnsureBucket(ctx context.Context) error
	// Put stores a new object. It fails with ErrExists if the key is taken.
	Put(ctx context.Context, key string, r io.Reader, opts PutOptions) (Info, error)
	// Get returns the object contents. Missing keys yield ErrNotFound.
	Get(ctx context.Context, key string) (Info, io.ReadCloser, error)
	// Head returns metadata only. Missing keys yield ErrNotFound.
	Head(ctx context.Context, key string) (Info, error)
	// Delete removes an object and reports whether it existed.
	Delete(ctx context.Context, key string) (bool, error)
	// List returns objects under prefix ordered by key.
	List(ctx context.Context, prefix string) ([]Info, error)
	// URI renders a location such as s3://bucket/key for logs and load jobs.
	URI(key string) string
	Bucket() string
	Driver() Driver
}

var (
	// ErrNotFound is returned when a key does not exist.
	ErrNotFound = errors.New("blobstore: object not found")
	// ErrExists is returned by Put when the key already exists.
	ErrExists = errors.New("blobstore: object already exists")
)

// CloneMetadata copies a metadata map; nil stays nil.
func CloneMetadata(in map[string]string) map[string]string {
	if in == nil {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
