package warehouse

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vvka-141/tripmerge/internal/logging"
	"github.com/vvka-141/tripmerge/internal/warehouse/sqlite"
	"github.com/vvka-141/tripmerge/pkg/tripmerge"
)

func TestParseDriver(t *testing.T) {
	for input, want := range map[string]Driver{
		"":           DriverPostgres,
		"PostgreSQL": DriverPostgres,
		"sqlite":     DriverSQLite,
		" memory ":   DriverMemory,
	} {
		got, err := ParseDriver(input)
		require.NoError(t, err, input)
		assert.Equal(t, want, got)
	}

	_, err := ParseDriver("bigquery")
	assert.ErrorIs(t, err, tripmerge.ErrInvalidConfig)
}

func TestOpen_SQLiteUsesProjectDirectory(t *testing.T) {
	dir := t.TempDir()
	wh, err := Open(context.Background(), Config{Driver: DriverSQLite, Project: dir, Dataset: "nyc"}, logging.NewNullLogger())
	require.NoError(t, err)
	defer wh.Close()

	require.IsType(t, &sqlite.Warehouse{}, wh)
	assert.Equal(t, filepath.Join(dir, "nyc.db"), wh.(*sqlite.Warehouse).Path())
	assert.True(t, wh.Capabilities().SerializableTx)
}

func TestOpen_Memory(t *testing.T) {
	wh, err := Open(context.Background(), Config{Driver: DriverMemory, Dataset: "nyc"}, logging.NewNullLogger())
	require.NoError(t, err)
	assert.Equal(t, "memory", wh.Dialect())
}

func TestOpen_Errors(t *testing.T) {
	ctx := context.Background()
	logger := logging.NewNullLogger()

	_, err := Open(ctx, Config{Driver: DriverMemory}, logger)
	assert.ErrorIs(t, err, tripmerge.ErrInvalidConfig)

	_, err = Open(ctx, Config{Driver: "oracle", Dataset: "nyc"}, logger)
	assert.ErrorIs(t, err, tripmerge.ErrInvalidConfig)

	_, err = Open(ctx, Config{Driver: DriverPostgres, Dataset: "nyc", DSN: "garbage"}, logger)
	assert.ErrorIs(t, err, tripmerge.ErrInvalidConfig)
}
