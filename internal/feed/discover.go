// Package feed downloads monthly trip files from the public release endpoint
// and discovers batch files on local disk or in the object store.
package feed

import (
	"context"
	"fmt"
	"path"
	"regexp"
	"sort"
	"strconv"

	"github.com/vvka-141/tripmerge/internal/blob/core"
	"github.com/vvka-141/tripmerge/internal/files/filesystem"
	"github.com/vvka-141/tripmerge/pkg/tripmerge"
)

var batchFilePattern = regexp.MustCompile(`^(yellow|green|fhv)_tripdata_(\d{4})-(\d{2})\.(csv|csv\.gz|parquet)$`)

// ParseFilename recognizes a batch file name such as yellow_tripdata_2021-01.csv.gz.
func ParseFilename(name string) (tripmerge.BatchKey, tripmerge.FileFormat, bool) {
	m := batchFilePattern.FindStringSubmatch(name)
	if m == nil {
		return tripmerge.BatchKey{}, "", false
	}
	year, _ := strconv.Atoi(m[2])
	month, _ := strconv.Atoi(m[3])
	key, err := tripmerge.NewBatchKey(tripmerge.SourceType(m[1]), year, month)
	if err != nil {
		return tripmerge.BatchKey{}, "", false
	}
	return key, tripmerge.FileFormat(m[4]), true
}

// Scanner finds batch files below a local directory.
// Scanner is safe for concurrent use when its provider is.
type Scanner struct {
	fs     filesystem.FileSystemProvider
	logger tripmerge.Logger
}

// NewScanner creates a Scanner. It panics if fsProvider or logger is nil.
func NewScanner(fsProvider filesystem.FileSystemProvider, logger tripmerge.Logger) *Scanner {
	if fsProvider == nil {
		panic("fsProvider cannot be nil")
	}
	if logger == nil {
		panic("logger cannot be nil")
	}
	return &Scanner{fs: fsProvider, logger: logger}
}

// Discover walks dir recursively and returns one batch per recognized file, ordered by key.
// Unrecognized files are skipped. It fails with tripmerge.ErrNoInputFiles when nothing matches.
func (s *Scanner) Discover(dir string) ([]tripmerge.Batch, error) {
	root, err := s.fs.Open(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", tripmerge.ErrNoInputFiles, dir, err)
	}

	var found []tripmerge.Batch
	err = root.Walk(func(file filesystem.File, err error) error {
		if err != nil {
			return fmt.Errorf("error walking %s: %w", dir, err)
		}
		if file.Info().IsDir() {
			return nil
		}
		name := file.Info().Name()
		key, format, ok := ParseFilename(name)
		if !ok {
			s.logger.Verbose("Skipping unrecognized file %s", file.RelativePath())
			return nil
		}
		found = append(found, tripmerge.Batch{Key: key, Filename: name, LocalPath: file.Path(), Format: format})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.finish(found, dir)
}

// DiscoverObjects lists batch objects already in the store under prefix.
func (s *Scanner) DiscoverObjects(ctx context.Context, store core.Store, prefix string) ([]tripmerge.Batch, error) {
	objects, err := store.List(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", store.URI(prefix), err)
	}

	var found []tripmerge.Batch
	for _, obj := range objects {
		name := path.Base(obj.Key)
		key, format, ok := ParseFilename(name)
		if !ok {
			s.logger.Verbose("Skipping unrecognized object %s", obj.Key)
			continue
		}
		found = append(found, tripmerge.Batch{Key: key, Filename: name, Format: format})
	}
	return s.finish(found, store.URI(prefix))
}

// finish orders batches by key and keeps the first file seen for each key.
func (s *Scanner) finish(found []tripmerge.Batch, where string) ([]tripmerge.Batch, error) {
	sort.SliceStable(found, func(i, j int) bool { return lessKey(found[i].Key, found[j].Key) })

	batches := found[:0]
	for i, b := range found {
		if i > 0 && b.Key == batches[len(batches)-1].Key {
			s.logger.Info("Skipping %s: batch %s already provided by %s", b.Filename, b.Key, batches[len(batches)-1].Filename)
			continue
		}
		batches = append(batches, b)
	}
	if len(batches) == 0 {
		return nil, fmt.Errorf("%w in %s", tripmerge.ErrNoInputFiles, where)
	}
	s.logger.Verbose("Discovered %d batch files in %s", len(batches), where)
	return batches, nil
}

func lessKey(a, b tripmerge.BatchKey) bool {
	if a.Source != b.Source {
		return a.Source < b.Source
	}
	if a.Year != b.Year {
		return a.Year < b.Year
	}
	return a.Month < b.Month
}
