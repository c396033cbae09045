package retry

import (
	"context"
	"errors"
	"net"
	"strings"
	"syscall"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/vvka-141/tripmerge/pkg/tripmerge"
)

// PostgreSQL error codes for transient conditions.
// See: https://www.postgresql.org/docs/current/errcodes-appendix.html
const (
	pgCodeSerializationFailure = "40001"
	pgCodeDeadlockDetected     = "40P01"
	pgCodeLockNotAvailable     = "55P03"
)

// PostgreSQLErrorClassifier treats connection, resource and concurrency failures as transient.
type PostgreSQLErrorClassifier struct{}

// NewPostgreSQLErrorClassifier creates a new PostgreSQL error classifier.
func NewPostgreSQLErrorClassifier() *PostgreSQLErrorClassifier {
	return &PostgreSQLErrorClassifier{}
}

// IsTransient determines if an error is temporary and retryable.
func (c *PostgreSQLErrorClassifier) IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return isTransientPgCode(pgErr.Code)
	}

	return isNetworkError(err) || hasTransientMessage(err)
}

func isTransientPgCode(code string) bool {
	// Class 08 connection exception, 53 insufficient resources, 57 operator intervention.
	for _, class := range []string{"08", "53", "57"} {
		if strings.HasPrefix(code, class) {
			return true
		}
	}
	return isConflictPgCode(code)
}

func isConflictPgCode(code string) bool {
	switch code {
	case pgCodeSerializationFailure, pgCodeDeadlockDetected, pgCodeLockNotAvailable:
		return true
	}
	return false
}

// SQLiteErrorClassifier treats a busy or locked database as transient.
type SQLiteErrorClassifier struct{}

// NewSQLiteErrorClassifier creates a new SQLite error classifier.
func NewSQLiteErrorClassifier() *SQLiteErrorClassifier {
	return &SQLiteErrorClassifier{}
}

// IsTransient reports whether err is a lock contention error.
func (c *SQLiteErrorClassifier) IsTransient(err error) bool {
	return err != nil && isSQLiteBusy(err)
}

func isSQLiteBusy(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "sqlite_busy") ||
		strings.Contains(msg, "database table is locked")
}

// MergeConflictClassifier retries concurrent-writer conflicts on the master relation.
// It recognizes tripmerge.ErrMergeConflict, PostgreSQL serialization/deadlock/lock
// failures and SQLite busy errors.
type MergeConflictClassifier struct{}

// NewMergeConflictClassifier creates a new merge conflict classifier.
func NewMergeConflictClassifier() *MergeConflictClassifier {
	return &MergeConflictClassifier{}
}

// IsTransient reports whether err is a merge conflict.
func (c *MergeConflictClassifier) IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, tripmerge.ErrMergeConflict) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return isConflictPgCode(pgErr.Code)
	}
	return isSQLiteBusy(err)
}

// TransferErrorClassifier covers object store copies and warehouse load jobs:
// network failures, throttling and 5xx responses, and transient warehouse errors.
type TransferErrorClassifier struct {
	pg     *PostgreSQLErrorClassifier
	sqlite *SQLiteErrorClassifier
}

// NewTransferErrorClassifier creates a new transfer error classifier.
func NewTransferErrorClassifier() *TransferErrorClassifier {
	return &TransferErrorClassifier{
		pg:     NewPostgreSQLErrorClassifier(),
		sqlite: NewSQLiteErrorClassifier(),
	}
}

// IsTransient reports whether a copy or load should be attempted again.
func (c *TransferErrorClassifier) IsTransient(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}

	// aws-sdk-go-v2 response errors expose the HTTP status code.
	var statusErr interface{ HTTPStatusCode() int }
	if errors.As(err, &statusErr) {
		code := statusErr.HTTPStatusCode()
		return code == 429 || code >= 500
	}

	return c.pg.IsTransient(err) || c.sqlite.IsTransient(err)
}

// isNetworkError checks for network-level errors.
func isNetworkError(err error) bool {
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return dnsErr.Temporary() || dnsErr.Timeout()
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		if opErr.Timeout() {
			return true
		}
		if opErr.Err != nil {
			for _, errno := range []error{syscall.ECONNREFUSED, syscall.ECONNRESET, syscall.ENETUNREACH, syscall.EHOSTUNREACH} {
				if errors.Is(opErr.Err, errno) {
					return true
				}
			}
		}
	}

	return false
}

func hasTransientMessage(err error) bool {
	msg := strings.ToLower(err.Error())
	transientPatterns := []string{
		"connection refused",
		"connection reset",
		"connection timeout",
		"connection failure",
		"no such host",
		"network is unreachable",
		"i/o timeout",
		"broken pipe",
		"too many connections",
		"server closed the connection",
		"unexpected eof",
		"connection pool exhausted",
	}
	for _, pattern := range transientPatterns {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}
