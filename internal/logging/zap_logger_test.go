package logging

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/vvka-141/tripmerge/pkg/tripmerge"
)

var (
	_ tripmerge.Logger = (*ZapLogger)(nil)
	_ tripmerge.Logger = (*NullLogger)(nil)
)

func TestZapLogger_Levels(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	logger := NewZapLoggerFromCore(core, true)

	logger.Verbose("resolving %s", "yellow/2024-01")
	logger.Info("staged %d rows", 42)
	logger.Error("merge failed: %v", "boom")

	entries := logs.AllUntimed()
	require.Len(t, entries, 3)
	assert.Equal(t, zapcore.DebugLevel, entries[0].Level)
	assert.Equal(t, "resolving yellow/2024-01", entries[0].Message)
	assert.Equal(t, zapcore.InfoLevel, entries[1].Level)
	assert.Equal(t, "staged 42 rows", entries[1].Message)
	assert.Equal(t, zapcore.ErrorLevel, entries[2].Level)
	assert.Equal(t, "merge failed: boom", entries[2].Message)
}

func TestZapLogger_VerboseDisabled(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	logger := NewZapLoggerFromCore(core, false)

	logger.Verbose("hidden")
	logger.Info("shown")

	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "shown", logs.All()[0].Message)
}

func TestZapLogger_With(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	logger := NewZapLoggerFromCore(core, false).With("batch", "green/2020-03")

	logger.Info("merged")

	entries := logs.FilterField(zap.String("batch", "green/2020-03")).All()
	assert.Len(t, entries, 1)
}

func TestNewZapLogger_Formats(t *testing.T) {
	for _, format := range []string{"", FormatConsole, FormatJSON} {
		logger, err := NewZapLogger(false, format)
		require.NoError(t, err, format)
		assert.NotNil(t, logger)
	}

	_, err := NewZapLogger(false, "xml")
	assert.Error(t, err)
}

func TestZapLogger_ConcurrentSafety(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	logger := NewZapLoggerFromCore(core, true)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			logger.Info("message %d", id)
			logger.Verbose("verbose %d", id)
			logger.Error("error %d", id)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 30, logs.Len())
}

func TestNullLogger_ConcurrentSafety(t *testing.T) {
	logger := NewNullLogger()

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			logger.Info("message %d", id)
			logger.Verbose("verbose %d", id)
			logger.Error("error %d", id)
		}(i)
	}
	wg.Wait()
}
