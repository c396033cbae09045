package checksum

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
)

// MetadataKey is the object metadata entry holding a file's digest.
const MetadataKey = "sha256"

// Calculator computes content digests.
type Calculator interface {
	// Sum digests everything r yields.
	Sum(r io.Reader) (string, error)

	// SumFile digests the file at path.
	SumFile(path string) (string, error)
}

// SHA256 implements Calculator using SHA-256 with lower-case hex output.
//
// SHA256 is a zero-size type and is safe for concurrent use by multiple goroutines.
type SHA256 struct{}

// New creates a new SHA-256 based calculator.
func New() SHA256 {
	return SHA256{}
}

// Sum streams r through SHA-256.
func (c SHA256) Sum(r io.Reader) (string, error) {
	h := sha256.New()
	if _, err := io.Copy(h, r); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// SumFile digests a file without reading it into memory.
func (c SHA256) SumFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	return c.Sum(f)
}

// Compare checks a digest against object metadata. known is false when the
// metadata carries no digest, in which case match is meaningless.
func Compare(metadata map[string]string, sum string) (known, match bool) {
	recorded, ok := metadata[MetadataKey]
	if !ok || recorded == "" {
		return false, false
	}
	return true, recorded == sum
}
