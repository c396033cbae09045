package tripmerge

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// LoadMode selects how far each batch is carried.
type LoadMode string

const (
	// ModeAsIs stops after the staging load.
	ModeAsIs LoadMode = "as-is"
	// ModeMerge derives identities and reconciles into the master relation.
	ModeMerge LoadMode = "merge"
)

// ParseLoadMode validates a mode name.
func ParseLoadMode(s string) (LoadMode, error) {
	switch LoadMode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeAsIs, "asis", "as_is":
		return ModeAsIs, nil
	case ModeMerge:
		return ModeMerge, nil
	}
	return "", fmt.Errorf("unknown mode %q (expected as-is or merge): %w", s, ErrInvalidConfig)
}

// LoadConfig carries the parameters of one load run.
type LoadConfig struct {
	// Bucket is the durable object store bucket.
	Bucket string
	// Project selects the warehouse database (Postgres) or directory (SQLite).
	Project string
	// Dataset is the warehouse namespace holding staging and master relations.
	Dataset string

	LocalDir   string
	Prefix     string
	SkipUpload bool
	Mode       LoadMode
	Workers    int
	Timeout    time.Duration
	Verbose    bool
}

// Validate reports every problem with the configuration at once.
// A failure here is fatal for the whole run.
func (c LoadConfig) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Bucket) == "" {
		errs = append(errs, errors.New("bucket is required"))
	}
	if strings.TrimSpace(c.Project) == "" {
		errs = append(errs, errors.New("project is required"))
	}
	if strings.TrimSpace(c.Dataset) == "" {
		errs = append(errs, errors.New("dataset is required"))
	}
	if c.Mode != ModeAsIs && c.Mode != ModeMerge {
		errs = append(errs, fmt.Errorf("unknown mode %q", c.Mode))
	}
	if c.Workers < 1 {
		errs = append(errs, fmt.Errorf("workers must be positive, got %d", c.Workers))
	}
	if !c.SkipUpload && strings.TrimSpace(c.LocalDir) == "" {
		errs = append(errs, errors.New("local directory is required unless uploads are skipped"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}
