package testing

import (
	"context"
	"os"
	"sync"
	"testing"

	"github.com/vvka-141/tripmerge/internal/testinfra"
)

var (
	minioOnce     sync.Once
	minioEndpoint string
	minioErr      error
)

// ObjectStore locates an S3-compatible server for integration tests.
type ObjectStore struct {
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
}

// RequireObjectStore returns an S3-compatible endpoint or skips the test.
// Priority: TRIPMERGE_TEST_S3_ENDPOINT env var > auto-started MinIO container > skip test.
func RequireObjectStore(t *testing.T) ObjectStore {
	t.Helper()

	SkipIfShort(t)

	if endpoint := os.Getenv("TRIPMERGE_TEST_S3_ENDPOINT"); endpoint != "" {
		return ObjectStore{
			Endpoint:        endpoint,
			AccessKeyID:     os.Getenv("AWS_ACCESS_KEY_ID"),
			SecretAccessKey: os.Getenv("AWS_SECRET_ACCESS_KEY"),
		}
	}

	minioOnce.Do(func() {
		ctr, err := testinfra.StartMinIO(context.Background())
		if err != nil {
			minioErr = err
			return
		}
		minioEndpoint = ctr.Endpoint
	})
	if minioErr != nil {
		t.Skipf("TRIPMERGE_TEST_S3_ENDPOINT not set and Docker unavailable: %v", minioErr)
	}
	return ObjectStore{
		Endpoint:        minioEndpoint,
		AccessKeyID:     testinfra.MinIOAccessKey,
		SecretAccessKey: testinfra.MinIOSecretKey,
	}
}
