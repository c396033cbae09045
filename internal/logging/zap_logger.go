package logging

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Output encodings accepted by NewZapLogger.
const (
	FormatConsole = "console"
	FormatJSON    = "json"
)

// ZapLogger implements tripmerge.Logger on top of a zap SugaredLogger.
// Verbose messages are emitted at debug level and only when verbose is enabled.
type ZapLogger struct {
	sugar   *zap.SugaredLogger
	verbose bool
}

// NewZapLogger builds a logger writing to stderr in the given format.
func NewZapLogger(verbose bool, format string) (*ZapLogger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Sampling = nil
	cfg.DisableStacktrace = true
	cfg.DisableCaller = !verbose
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	switch strings.ToLower(format) {
	case "", FormatConsole:
		cfg.Encoding = FormatConsole
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	case FormatJSON:
		cfg.Encoding = FormatJSON
	default:
		return nil, fmt.Errorf("unknown log format %q (expected console or json)", format)
	}

	if verbose {
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}

	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}
	return &ZapLogger{sugar: logger.Sugar(), verbose: verbose}, nil
}

// NewZapLoggerFromCore wraps an existing zap core.
func NewZapLoggerFromCore(core zapcore.Core, verbose bool) *ZapLogger {
	return &ZapLogger{sugar: zap.New(core).Sugar(), verbose: verbose}
}

// With returns a child logger that attaches the given key/value pairs to every entry.
func (l *ZapLogger) With(keysAndValues ...interface{}) *ZapLogger {
	return &ZapLogger{sugar: l.sugar.With(keysAndValues...), verbose: l.verbose}
}

// Verbose logs detailed diagnostic information if verbose mode is enabled.
func (l *ZapLogger) Verbose(format string, args ...interface{}) {
	if !l.verbose {
		return
	}
	l.sugar.Debugf(format, args...)
}

// Info logs informational messages about normal operations.
func (l *ZapLogger) Info(format string, args ...interface{}) {
	l.sugar.Infof(format, args...)
}

// Error logs error messages.
func (l *ZapLogger) Error(format string, args ...interface{}) {
	l.sugar.Errorf(format, args...)
}

// Sync flushes buffered entries.
func (l *ZapLogger) Sync() error {
	return l.sugar.Sync()
}
