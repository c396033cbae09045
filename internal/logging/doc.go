// Package logging provides concrete implementations of the tripmerge.Logger interface.
//
// Available implementations:
//   - ZapLogger: structured logging backed by go.uber.org/zap (console or JSON encoding)
//   - NullLogger: discards all messages (useful for testing)
//
// All logger implementations are safe for concurrent use by multiple goroutines.
package logging
