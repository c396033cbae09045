package db

import (
	"fmt"
	"os"
	"strconv"
)

// EnvVars holds the libpq environment variables tripmerge honors.
type EnvVars struct {
	PGHOST      string
	PGPORT      string
	PGUSER      string
	PGPASSWORD  string
	PGDATABASE  string
	PGSSLMODE   string
	DatabaseURL string
	AWSRegion   string
}

// LoadFromEnvironment reads EnvVars from the process environment.
func LoadFromEnvironment() *EnvVars {
	region := os.Getenv("AWS_REGION")
	if region == "" {
		region = os.Getenv("AWS_DEFAULT_REGION")
	}
	return &EnvVars{
		PGHOST:      os.Getenv("PGHOST"),
		PGPORT:      os.Getenv("PGPORT"),
		PGUSER:      os.Getenv("PGUSER"),
		PGPASSWORD:  os.Getenv("PGPASSWORD"),
		PGDATABASE:  os.Getenv("PGDATABASE"),
		PGSSLMODE:   os.Getenv("PGSSLMODE"),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		AWSRegion:   region,
	}
}

// ResolveConnection picks the warehouse connection. The first source that is set wins:
//
//  1. dsn (the --dsn flag, TRIPMERGE_DSN or tripmerge.yaml)
//  2. $DATABASE_URL
//  3. $PGHOST, $PGPORT, $PGUSER, $PGDATABASE, $PGSSLMODE
//  4. localhost:5432/postgres
//
// $PGPASSWORD fills in a password the connection string leaves out.
func ResolveConnection(dsn string, auth AuthMethod, env *EnvVars) (*ConnectionConfig, error) {
	if env == nil {
		env = &EnvVars{}
	}
	if dsn == "" {
		dsn = env.DatabaseURL
	}

	var (
		cfg *ConnectionConfig
		err error
	)
	if dsn != "" {
		if cfg, err = ParseConnectionString(dsn); err != nil {
			return nil, fmt.Errorf("invalid connection string: %w", err)
		}
	} else if cfg, err = fromEnvironment(env); err != nil {
		return nil, err
	}

	if cfg.Password == "" {
		cfg.Password = env.PGPASSWORD
	}

	if auth == "" {
		auth = AuthMethodStandard
	}
	cfg.AuthMethod = auth
	if auth == AuthMethodAWSIAM {
		cfg.AWSRegion = env.AWSRegion
		// IAM tokens are only accepted over TLS.
		if cfg.SSLMode == "" || cfg.SSLMode == "prefer" || cfg.SSLMode == "disable" {
			cfg.SSLMode = "require"
		}
	}
	return cfg, nil
}

func fromEnvironment(env *EnvVars) (*ConnectionConfig, error) {
	cfg := defaultConfig()
	if env.PGHOST != "" {
		cfg.Host = env.PGHOST
	}
	if env.PGPORT != "" {
		port, err := strconv.Atoi(env.PGPORT)
		if err != nil {
			return nil, fmt.Errorf("invalid $PGPORT value '%s': must be an integer", env.PGPORT)
		}
		cfg.Port = port
	}
	cfg.Username = env.PGUSER
	if cfg.Username == "" {
		cfg.Username = os.Getenv("USER")
	}
	if env.PGDATABASE != "" {
		cfg.Database = env.PGDATABASE
	}
	if env.PGSSLMODE != "" {
		cfg.SSLMode = env.PGSSLMODE
	}
	return cfg, nil
}
