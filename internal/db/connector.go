package db

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/vvka-141/tripmerge/internal/retry"
	"github.com/vvka-141/tripmerge/pkg/tripmerge"
)

// Connection pool configuration constants
const (
	// DefaultMaxConns bounds warehouse connections across concurrent batch workers.
	DefaultMaxConns = 8

	// DefaultMinConns maintains at least one connection in the pool.
	DefaultMinConns = 1

	// DefaultMaxConnIdleTime keeps connections alive between long staging loads.
	DefaultMaxConnIdleTime = 30 * time.Minute
)

// Connector opens a pool against the warehouse.
type Connector interface {
	Connect(ctx context.Context) (*pgxpool.Pool, error)
}

func configurePool(poolConfig *pgxpool.Config, logger tripmerge.Logger) {
	poolConfig.MaxConns = DefaultMaxConns
	poolConfig.MinConns = DefaultMinConns
	poolConfig.MaxConnIdleTime = DefaultMaxConnIdleTime
	poolConfig.ConnConfig.OnNotice = func(_ *pgconn.PgConn, notice *pgconn.Notice) {
		logger.Verbose("[%s] %s", strings.ToLower(notice.Severity), notice.Message)
	}
}

// StandardConnector connects with username/password authentication and
// retries transient failures.
type StandardConnector struct {
	config        *ConnectionConfig
	logger        tripmerge.Logger
	retryExecutor *retry.Executor
}

// NewStandardConnector creates a new StandardConnector with the given configuration.
func NewStandardConnector(config *ConnectionConfig, logger tripmerge.Logger) *StandardConnector {
	if config == nil {
		panic("config cannot be nil")
	}
	if logger == nil {
		panic("logger cannot be nil")
	}
	return &StandardConnector{
		config:        config,
		logger:        logger,
		retryExecutor: newConnectExecutor(logger),
	}
}

// Connect establishes a connection pool using standard authentication with automatic retry.
func (c *StandardConnector) Connect(ctx context.Context) (*pgxpool.Pool, error) {
	connStr := BuildConnectionString(c.config)

	var pool *pgxpool.Pool
	err := c.retryExecutor.Execute(ctx, func(ctx context.Context) error {
		var err error
		pool, err = openPool(ctx, connStr, c.config, c.logger)
		return err
	})
	if err != nil {
		return nil, err
	}
	return pool, nil
}

// NewConnector picks the connector for the configured auth method.
func NewConnector(config *ConnectionConfig, logger tripmerge.Logger) (Connector, error) {
	switch config.AuthMethod {
	case AuthMethodStandard, "":
		return NewStandardConnector(config, logger), nil
	case AuthMethodAWSIAM:
		tokenProvider, err := NewRDSTokenProvider(config.Endpoint(), config.AWSRegion, config.Username)
		if err != nil {
			return nil, fmt.Errorf("failed to create AWS IAM token provider: %w", err)
		}
		return NewTokenBasedConnector(config, tokenProvider, "AWS IAM", logger), nil
	default:
		return nil, fmt.Errorf("unsupported auth method %q: %w", config.AuthMethod, tripmerge.ErrInvalidConfig)
	}
}

func newConnectExecutor(logger tripmerge.Logger) *retry.Executor {
	return retry.NewDefaultExecutor(retry.NewPostgreSQLErrorClassifier(), tripmerge.DefaultRetryMaxAttempts).
		WithOnRetry(func(attempt int, err error, delay time.Duration) {
			logger.Verbose("connect attempt %d failed, retrying in %v: %v", attempt, delay, err)
		})
}

func openPool(ctx context.Context, connStr string, config *ConnectionConfig, logger tripmerge.Logger) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection config: %w", err)
	}

	configurePool(poolConfig, logger)

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, wrapConnectionError(err, config.Host, config.Port, config.Database)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, wrapConnectionError(err, config.Host, config.Port, config.Database)
	}
	return pool, nil
}

// wrapConnectionError wraps raw pgx connection errors with actionable guidance.
// The result matches both tripmerge.ErrConnectionFailed and the original error.
func wrapConnectionError(err error, host string, port int, database string) error {
	errStr := strings.ToLower(err.Error())
	addr := fmt.Sprintf("%s:%d", host, port)

	switch {
	case strings.Contains(errStr, "connection refused") || strings.Contains(errStr, "actively refused"):
		return fmt.Errorf(`%w: connection refused to %s

Possible causes:
  - PostgreSQL is not running (check: pg_isready -h %s -p %d)
  - Wrong host or port
  - Firewall blocking the connection

Original error: %w`, tripmerge.ErrConnectionFailed, addr, host, port, err)

	case strings.Contains(errStr, "no such host") || strings.Contains(errStr, "no host"):
		return fmt.Errorf(`%w: cannot resolve host "%s"

Possible causes:
  - Hostname is misspelled
  - DNS is not configured or reachable

Original error: %w`, tripmerge.ErrConnectionFailed, host, err)

	case strings.Contains(errStr, "password authentication failed"):
		return fmt.Errorf(`%w: password authentication failed for database "%s"

Possible causes:
  - Wrong password (check $PGPASSWORD or ~/.pgpass)
  - Wrong username
  - IAM token rejected (check --auth and $AWS_REGION)

Original error: %w`, tripmerge.ErrConnectionFailed, database, err)

	case strings.Contains(errStr, "does not exist"):
		return fmt.Errorf(`%w: database "%s" does not exist

To create it:
  createdb %s

Original error: %w`, tripmerge.ErrConnectionFailed, database, database, err)

	case strings.Contains(errStr, "timeout") || strings.Contains(errStr, "timed out"):
		return fmt.Errorf(`%w: connection timed out to %s

Possible causes:
  - Server is overloaded or unresponsive
  - Firewall silently dropping packets
  - Wrong host/port (server not listening)

Original error: %w`, tripmerge.ErrConnectionFailed, addr, err)

	case strings.Contains(errStr, "ssl") || strings.Contains(errStr, "tls"):
		return fmt.Errorf(`%w: SSL/TLS connection error

Possible causes:
  - Server requires SSL but sslmode is wrong
  - Certificate verification failed (try sslmode=require)

Original error: %w`, tripmerge.ErrConnectionFailed, err)

	case strings.Contains(errStr, "too many connections"):
		return fmt.Errorf(`%w: too many connections to database "%s"

Possible causes:
  - max_connections limit reached in postgresql.conf
  - Too many --workers for the server

Original error: %w`, tripmerge.ErrConnectionFailed, database, err)

	default:
		return fmt.Errorf("%w: failed to connect to database: %w", tripmerge.ErrConnectionFailed, err)
	}
}
