// Package blob selects an object store backend and adapts stored objects into
// warehouse load sources.
package blob

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/vvka-141/tripmerge/internal/blob/core"
	"github.com/vvka-141/tripmerge/internal/blob/fs"
	"github.com/vvka-141/tripmerge/internal/blob/memory"
	"github.com/vvka-141/tripmerge/internal/blob/s3"
	"github.com/vvka-141/tripmerge/pkg/tripmerge"
)

// Config selects and parameterizes an object store.
type Config struct {
	Driver core.Driver
	Bucket string

	// Root is the base directory of the fs driver.
	Root string

	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	PathStyle       bool
}

// ParseDriver accepts a driver name, defaulting to fs.
func ParseDriver(s string) (core.Driver, error) {
	switch d := core.Driver(strings.ToLower(strings.TrimSpace(s))); d {
	case "", "file", core.DriverFilesystem:
		return core.DriverFilesystem, nil
	case "minio", core.DriverS3:
		return core.DriverS3, nil
	case core.DriverMemory:
		return d, nil
	}
	return "", fmt.Errorf("unknown blob driver %q (expected s3, fs or memory): %w", s, tripmerge.ErrInvalidConfig)
}

// Open constructs the configured store. It does not create the bucket.
func Open(ctx context.Context, cfg Config) (core.Store, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket is required: %w", tripmerge.ErrInvalidConfig)
	}
	switch cfg.Driver {
	case core.DriverS3:
		store, err := s3.New(ctx, s3.Config{
			Region:          cfg.Region,
			Bucket:          cfg.Bucket,
			Endpoint:        cfg.Endpoint,
			AccessKeyID:     cfg.AccessKeyID,
			SecretAccessKey: cfg.SecretAccessKey,
			PathStyle:       cfg.PathStyle,
		})
		if err != nil {
			return nil, err
		}
		return store, nil
	case core.DriverFilesystem, "":
		store, err := fs.New(cfg.Root, cfg.Bucket)
		if err != nil {
			return nil, err
		}
		return store, nil
	case core.DriverMemory:
		return memory.New(cfg.Bucket), nil
	}
	return nil, fmt.Errorf("unknown blob driver %q (expected s3, fs or memory): %w", cfg.Driver, tripmerge.ErrInvalidConfig)
}

// Object exposes a stored object as a warehouse load source.
func Object(store core.Store, key string) tripmerge.ObjectSource {
	return &object{store: store, key: key}
}

type object struct {
	store core.Store
	key   string
}

func (o *object) URI() string { return o.store.URI(o.key) }

func (o *object) Open(ctx context.Context) (io.ReadCloser, error) {
	_, rc, err := o.store.Get(ctx, o.key)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", o.URI(), err)
	}
	return rc, nil
}
