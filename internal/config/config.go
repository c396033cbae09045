// Package config loads tripmerge.yaml, .env files and TRIPMERGE_* environment variables.
//
// Precedence, highest first: command-line flags (applied by the CLI), environment,
// tripmerge.yaml, built-in defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/vvka-141/tripmerge/internal/metrics"
	"github.com/vvka-141/tripmerge/pkg/tripmerge"
)

// ErrConfigNotFound is returned when the config file does not exist.
// Callers can check for this with errors.Is(err, config.ErrConfigNotFound).
var ErrConfigNotFound = errors.New("config file not found")

const ConfigFileName = "tripmerge.yaml"

// EnvPrefix prefixes every environment variable read by ApplyEnv.
const EnvPrefix = "TRIPMERGE_"

type WarehouseConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn,omitempty"`
	Auth   string `yaml:"auth,omitempty"`
}

type BlobConfig struct {
	Driver          string `yaml:"driver"`
	Root            string `yaml:"root,omitempty"`
	Region          string `yaml:"region,omitempty"`
	Endpoint        string `yaml:"endpoint,omitempty"`
	AccessKeyID     string `yaml:"access_key_id,omitempty"`
	SecretAccessKey string `yaml:"secret_access_key,omitempty"`
	PathStyle       bool   `yaml:"path_style,omitempty"`
}

type LoadConfig struct {
	Mode       string `yaml:"mode"`
	Workers    int    `yaml:"workers"`
	LocalDir   string `yaml:"local_dir"`
	Prefix     string `yaml:"prefix,omitempty"`
	SkipUpload bool   `yaml:"skip_upload,omitempty"`
	Timeout    string `yaml:"timeout,omitempty"`
}

type FeedConfig struct {
	BaseURL  string `yaml:"base_url"`
	OutDir   string `yaml:"out_dir"`
	Attempts int    `yaml:"attempts"`
	Workers  int    `yaml:"workers"`
}

type LogConfig struct {
	Format  string `yaml:"format"`
	Verbose bool   `yaml:"verbose,omitempty"`
}

// FileConfig is the layout of tripmerge.yaml.
type FileConfig struct {
	Warehouse WarehouseConfig `yaml:"warehouse"`
	Blob      BlobConfig      `yaml:"blob"`
	Load      LoadConfig      `yaml:"load"`
	Feed      FeedConfig      `yaml:"feed"`
	Metrics   metrics.Config  `yaml:"metrics"`
	Log       LogConfig       `yaml:"log"`
}

// Defaults returns the built-in configuration.
func Defaults() *FileConfig {
	return &FileConfig{
		Warehouse: WarehouseConfig{Driver: "postgres", Auth: "standard"},
		Blob:      BlobConfig{Driver: "fs", Root: ".tripmerge/objects"},
		Load: LoadConfig{
			Mode:     string(tripmerge.ModeMerge),
			Workers:  tripmerge.DefaultWorkers,
			LocalDir: tripmerge.DefaultLocalDir,
			Timeout:  tripmerge.DefaultTimeout.String(),
		},
		Feed: FeedConfig{
			BaseURL:  tripmerge.DefaultFeedBaseURL,
			OutDir:   tripmerge.DefaultLocalDir,
			Attempts: tripmerge.DefaultDownloadRetries,
			Workers:  tripmerge.DefaultWorkers,
		},
		Log: LogConfig{Format: "console"},
	}
}

// Load reads dir/tripmerge.yaml over the defaults.
func Load(dir string) (*FileConfig, error) {
	return LoadFile(filepath.Join(dir, ConfigFileName))
}

// LoadFile reads a config file over the defaults.
func LoadFile(path string) (*FileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrConfigNotFound
		}
		return nil, err
	}

	cfg := Defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", tripmerge.ErrInvalidConfig, path, err)
	}
	return cfg, nil
}

// Resolve loads .env (when present), then the config file, then the environment.
// An explicit path must exist; otherwise a missing tripmerge.yaml in the working directory is not an error.
func Resolve(path string) (*FileConfig, error) {
	_ = godotenv.Load()

	explicit := path != ""
	if !explicit {
		path = ConfigFileName
	}
	cfg, err := LoadFile(path)
	switch {
	case errors.Is(err, ErrConfigNotFound) && !explicit:
		cfg = Defaults()
	case errors.Is(err, ErrConfigNotFound):
		return nil, fmt.Errorf("%w: %s: %w", tripmerge.ErrInvalidConfig, path, err)
	case err != nil:
		return nil, err
	}

	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides fields from TRIPMERGE_* variables.
func (c *FileConfig) ApplyEnv(lookup func(string) (string, bool)) error {
	var errs []error
	str := func(name string, dst *string) {
		if v, ok := lookup(EnvPrefix + name); ok && v != "" {
			*dst = v
		}
	}
	integer := func(name string, dst *int) {
		if v, ok := lookup(EnvPrefix + name); ok && v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("$%s%s: %q is not a number", EnvPrefix, name, v))
				return
			}
			*dst = n
		}
	}
	boolean := func(name string, dst *bool) {
		if v, ok := lookup(EnvPrefix + name); ok && v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("$%s%s: %q is not a boolean", EnvPrefix, name, v))
				return
			}
			*dst = b
		}
	}

	str("WAREHOUSE_DRIVER", &c.Warehouse.Driver)
	str("WAREHOUSE_DSN", &c.Warehouse.DSN)
	str("WAREHOUSE_AUTH", &c.Warehouse.Auth)

	str("BLOB_DRIVER", &c.Blob.Driver)
	str("BLOB_ROOT", &c.Blob.Root)
	str("BLOB_REGION", &c.Blob.Region)
	str("BLOB_ENDPOINT", &c.Blob.Endpoint)
	str("BLOB_ACCESS_KEY_ID", &c.Blob.AccessKeyID)
	str("BLOB_SECRET_ACCESS_KEY", &c.Blob.SecretAccessKey)
	boolean("BLOB_PATH_STYLE", &c.Blob.PathStyle)

	str("LOAD_MODE", &c.Load.Mode)
	integer("LOAD_WORKERS", &c.Load.Workers)
	str("LOCAL_DIR", &c.Load.LocalDir)
	str("PREFIX", &c.Load.Prefix)
	boolean("SKIP_UPLOAD", &c.Load.SkipUpload)
	str("LOAD_TIMEOUT", &c.Load.Timeout)

	str("FEED_BASE_URL", &c.Feed.BaseURL)
	str("FEED_OUT_DIR", &c.Feed.OutDir)
	integer("FEED_ATTEMPTS", &c.Feed.Attempts)

	boolean("METRICS_ENABLED", &c.Metrics.Enabled)
	str("METRICS_ADDRESS", &c.Metrics.Address)
	str("METRICS_FILE", &c.Metrics.TextFile)

	str("LOG_FORMAT", &c.Log.Format)
	boolean("VERBOSE", &c.Log.Verbose)

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", tripmerge.ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}

// LoadTimeout parses load.timeout. Zero means no timeout.
func (c *FileConfig) LoadTimeout() (time.Duration, error) {
	s := strings.TrimSpace(c.Load.Timeout)
	if s == "" || s == "0" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%w: invalid load timeout %q: %w", tripmerge.ErrInvalidConfig, s, err)
	}
	return d, nil
}
