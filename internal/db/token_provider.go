package db

import (
	"context"
	"time"
)

// TokenProvider acquires short-lived credentials used as the database password.
type TokenProvider interface {
	// GetToken returns the token and its expiry time.
	GetToken(ctx context.Context) (token string, expiresOn time.Time, err error)

	// String describes the provider for logs. It must not include secrets.
	String() string
}
