package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vvka-141/tripmerge/pkg/tripmerge"
)

func lookupFrom(env map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}
}

func TestLoad_AllSections(t *testing.T) {
	dir := t.TempDir()
	content := `warehouse:
  driver: sqlite
  dsn: postgresql://loader@warehouse:5432/trips
  auth: aws-iam

blob:
  driver: s3
  region: eu-west-1
  endpoint: http://localhost:9000
  path_style: true

load:
  mode: as-is
  workers: 8
  local_dir: /srv/nyc
  prefix: raw
  timeout: 30m

feed:
  base_url: https://mirror.example/releases
  attempts: 5

metrics:
  enabled: true
  textfile: /var/lib/node_exporter/tripmerge.prom

log:
  format: json
  verbose: true
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, ConfigFileName), []byte(content), 0644))

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Warehouse.Driver)
	assert.Equal(t, "aws-iam", cfg.Warehouse.Auth)
	assert.Equal(t, "s3", cfg.Blob.Driver)
	assert.Equal(t, "eu-west-1", cfg.Blob.Region)
	assert.True(t, cfg.Blob.PathStyle)
	assert.Equal(t, "as-is", cfg.Load.Mode)
	assert.Equal(t, 8, cfg.Load.Workers)
	assert.Equal(t, "raw", cfg.Load.Prefix)
	assert.Equal(t, "https://mirror.example/releases", cfg.Feed.BaseURL)
	assert.Equal(t, 5, cfg.Feed.Attempts)
	assert.True(t, cfg.Metrics.Enabled)
	assert.Equal(t, "/var/lib/node_exporter/tripmerge.prom", cfg.Metrics.TextFile)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.True(t, cfg.Log.Verbose)

	timeout, err := cfg.LoadTimeout()
	require.NoError(t, err)
	assert.Equal(t, 30*time.Minute, timeout)
}

func TestLoad_PartialFileKeepsDefaults(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ConfigFileName), []byte("load:\n  workers: 2\n"), 0644))

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, 2, cfg.Load.Workers)
	assert.Equal(t, string(tripmerge.ModeMerge), cfg.Load.Mode)
	assert.Equal(t, tripmerge.DefaultLocalDir, cfg.Load.LocalDir)
	assert.Equal(t, "postgres", cfg.Warehouse.Driver)
	assert.Equal(t, tripmerge.DefaultDownloadRetries, cfg.Feed.Attempts)
}

func TestLoad_NotFound(t *testing.T) {
	_, err := Load(t.TempDir())
	assert.ErrorIs(t, err, ErrConfigNotFound)
}

func TestLoad_InvalidYAML(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ConfigFileName), []byte("load: [unclosed"), 0644))

	_, err := Load(dir)
	assert.ErrorIs(t, err, tripmerge.ErrInvalidConfig)
}

func TestApplyEnv_OverridesFile(t *testing.T) {
	cfg := Defaults()
	cfg.Load.Workers = 2

	err := cfg.ApplyEnv(lookupFrom(map[string]string{
		"TRIPMERGE_LOAD_WORKERS":     "6",
		"TRIPMERGE_WAREHOUSE_DRIVER": "memory",
		"TRIPMERGE_SKIP_UPLOAD":      "true",
		"TRIPMERGE_METRICS_FILE":     "/tmp/m.prom",
		"TRIPMERGE_LOG_FORMAT":       "",
	}))
	require.NoError(t, err)

	assert.Equal(t, 6, cfg.Load.Workers)
	assert.Equal(t, "memory", cfg.Warehouse.Driver)
	assert.True(t, cfg.Load.SkipUpload)
	assert.Equal(t, "/tmp/m.prom", cfg.Metrics.TextFile)
	assert.Equal(t, "console", cfg.Log.Format, "empty variables are ignored")
}

func TestApplyEnv_ReportsEveryBadValue(t *testing.T) {
	cfg := Defaults()
	err := cfg.ApplyEnv(lookupFrom(map[string]string{
		"TRIPMERGE_LOAD_WORKERS": "many",
		"TRIPMERGE_VERBOSE":      "sometimes",
	}))

	require.Error(t, err)
	assert.ErrorIs(t, err, tripmerge.ErrInvalidConfig)
	assert.Contains(t, err.Error(), "$TRIPMERGE_LOAD_WORKERS")
	assert.Contains(t, err.Error(), "$TRIPMERGE_VERBOSE")
}

func TestResolve_ExplicitMissingFile(t *testing.T) {
	_, err := Resolve(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.ErrorIs(t, err, tripmerge.ErrInvalidConfig)
}

func TestResolve_ExplicitFileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "custom.yaml")
	require.NoError(t, os.WriteFile(path, []byte("load:\n  mode: as-is\n  workers: 3\n"), 0644))
	t.Setenv("TRIPMERGE_LOAD_WORKERS", "5")

	cfg, err := Resolve(path)
	require.NoError(t, err)
	assert.Equal(t, "as-is", cfg.Load.Mode)
	assert.Equal(t, 5, cfg.Load.Workers)
}

func TestLoadTimeout(t *testing.T) {
	cfg := Defaults()
	d, err := cfg.LoadTimeout()
	require.NoError(t, err)
	assert.Equal(t, tripmerge.DefaultTimeout, d)

	cfg.Load.Timeout = "0"
	d, err = cfg.LoadTimeout()
	require.NoError(t, err)
	assert.Zero(t, d)

	cfg.Load.Timeout = "soon"
	_, err = cfg.LoadTimeout()
	assert.ErrorIs(t, err, tripmerge.ErrInvalidConfig)
}
