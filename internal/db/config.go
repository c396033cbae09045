package db

import (
	"fmt"
	"strings"
	"time"

	"github.com/vvka-141/tripmerge/pkg/tripmerge"
)

// AuthMethod selects how the warehouse connection authenticates.
type AuthMethod string

const (
	// AuthMethodStandard uses the password from the DSN, $PGPASSWORD or ~/.pgpass.
	AuthMethodStandard AuthMethod = "standard"
	// AuthMethodAWSIAM uses a short-lived RDS IAM token as the password.
	AuthMethodAWSIAM AuthMethod = "aws-iam"
)

// ParseAuthMethod accepts the names used on the command line and in tripmerge.yaml.
func ParseAuthMethod(s string) (AuthMethod, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "standard", "password":
		return AuthMethodStandard, nil
	case "aws-iam", "aws", "iam":
		return AuthMethodAWSIAM, nil
	}
	return "", fmt.Errorf("unknown auth method %q (expected standard or aws-iam): %w", s, tripmerge.ErrInvalidConfig)
}

// ConnectionConfig describes a PostgreSQL warehouse connection.
type ConnectionConfig struct {
	Host           string
	Port           int
	Database       string
	Username       string
	Password       string
	SSLMode        string
	AppName        string
	ConnectTimeout time.Duration

	AuthMethod AuthMethod
	AWSRegion  string

	AdditionalParams map[string]string
}

func defaultConfig() *ConnectionConfig {
	return &ConnectionConfig{
		Host:             "localhost",
		Port:             5432,
		Database:         "postgres",
		SSLMode:          "prefer",
		AppName:          "tripmerge",
		AuthMethod:       AuthMethodStandard,
		AdditionalParams: make(map[string]string),
	}
}

// Endpoint renders host:port.
func (c *ConnectionConfig) Endpoint() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// String renders the connection for logs without the password.
func (c *ConnectionConfig) String() string {
	return fmt.Sprintf("postgresql://%s@%s/%s (auth=%s)", c.Username, c.Endpoint(), c.Database, c.AuthMethod)
}
