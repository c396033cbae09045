package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/vvka-141/tripmerge/internal/retry"
	"github.com/vvka-141/tripmerge/pkg/tripmerge"
)

// TokenBasedConnector authenticates with a short-lived token used as the
// PostgreSQL password.
type TokenBasedConnector struct {
	config        *ConnectionConfig
	tokenProvider TokenProvider
	retryExecutor *retry.Executor
	providerName  string
	logger        tripmerge.Logger
}

// NewTokenBasedConnector creates a connector that uses a TokenProvider for authentication.
// providerName is used in error and warning messages.
func NewTokenBasedConnector(config *ConnectionConfig, tokenProvider TokenProvider, providerName string, logger tripmerge.Logger) *TokenBasedConnector {
	if tokenProvider == nil {
		panic("tokenProvider cannot be nil")
	}
	if logger == nil {
		panic("logger cannot be nil")
	}
	return &TokenBasedConnector{
		config:        config,
		tokenProvider: tokenProvider,
		retryExecutor: newConnectExecutor(logger),
		providerName:  providerName,
		logger:        logger,
	}
}

func (c *TokenBasedConnector) Connect(ctx context.Context) (*pgxpool.Pool, error) {
	var pool *pgxpool.Pool

	err := c.retryExecutor.Execute(ctx, func(ctx context.Context) error {
		token, expiresOn, err := c.tokenProvider.GetToken(ctx)
		if err != nil {
			return fmt.Errorf("%w: failed to acquire %s token: %w", tripmerge.ErrConnectionFailed, c.providerName, err)
		}

		if remaining := time.Until(expiresOn); remaining < 5*time.Minute {
			c.logger.Info("Warning: %s token expires in %v", c.providerName, remaining.Round(time.Second))
		}

		configWithToken := *c.config
		configWithToken.Password = token

		pool, err = openPool(ctx, BuildConnectionString(&configWithToken), c.config, c.logger)
		return err
	})
	if err != nil {
		return nil, err
	}
	return pool, nil
}
