// Package warehouse opens the configured warehouse driver.
package warehouse

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/vvka-141/tripmerge/internal/db"
	"github.com/vvka-141/tripmerge/internal/warehouse/memory"
	"github.com/vvka-141/tripmerge/internal/warehouse/postgres"
	"github.com/vvka-141/tripmerge/internal/warehouse/sqlite"
	"github.com/vvka-141/tripmerge/pkg/tripmerge"
)

// Driver names a warehouse implementation.
type Driver string

const (
	DriverPostgres Driver = "postgres"
	DriverSQLite   Driver = "sqlite"
	DriverMemory   Driver = "memory"
)

// Config selects and locates the warehouse of a run.
type Config struct {
	Driver Driver
	// Project is the Postgres database, or the directory holding SQLite dataset files.
	Project string
	Dataset string

	// DSN and Auth apply to the postgres driver. Empty DSN falls back to the environment.
	DSN  string
	Auth db.AuthMethod
	Env  *db.EnvVars
}

// ParseDriver accepts a driver name, defaulting to postgres.
func ParseDriver(s string) (Driver, error) {
	switch d := Driver(strings.ToLower(strings.TrimSpace(s))); d {
	case "", "postgresql", DriverPostgres:
		return DriverPostgres, nil
	case DriverSQLite, DriverMemory:
		return d, nil
	}
	return "", fmt.Errorf("unknown warehouse driver %q (expected postgres, sqlite or memory): %w", s, tripmerge.ErrInvalidConfig)
}

// Open constructs the warehouse. The caller closes it.
func Open(ctx context.Context, cfg Config, logger tripmerge.Logger) (tripmerge.Warehouse, error) {
	if cfg.Dataset == "" {
		return nil, fmt.Errorf("dataset is required: %w", tripmerge.ErrInvalidConfig)
	}

	switch cfg.Driver {
	case DriverPostgres, "":
		env := cfg.Env
		if env == nil {
			env = db.LoadFromEnvironment()
		}
		conn, err := db.ResolveConnection(cfg.DSN, cfg.Auth, env)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", tripmerge.ErrInvalidConfig, err)
		}
		if cfg.Project != "" {
			conn.Database = cfg.Project
		}
		wh, err := postgres.Open(ctx, postgres.Config{Connection: conn, Dataset: cfg.Dataset}, logger)
		if err != nil {
			return nil, err
		}
		return wh, nil

	case DriverSQLite:
		dir := cfg.Project
		if dir == "" {
			dir = "."
		}
		wh, err := sqlite.Open(ctx, sqlite.Config{Dir: filepath.Clean(dir), Dataset: cfg.Dataset})
		if err != nil {
			return nil, err
		}
		logger.Verbose("Opened sqlite dataset %s", wh.Path())
		return wh, nil

	case DriverMemory:
		return memory.New(), nil
	}
	return nil, fmt.Errorf("unknown warehouse driver %q: %w", cfg.Driver, tripmerge.ErrInvalidConfig)
}
