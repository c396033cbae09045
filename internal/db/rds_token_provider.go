package db

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/rds/auth"
)

const (
	// RDSTokenLifetime is how long RDS accepts a signed IAM token.
	RDSTokenLifetime = 15 * time.Minute

	// rdsTokenRefreshMargin re-signs a cached token this long before it expires.
	rdsTokenRefreshMargin = 2 * time.Minute
)

// RDSTokenProvider signs IAM tokens that a warehouse on RDS or Aurora accepts as
// the password of an IAM-enabled user. Signing is local; a token is reused until
// it is close to expiry so pool reconnects during a long load stay cheap.
type RDSTokenProvider struct {
	endpoint string // host:port
	region   string
	username string
	now      func() time.Time

	mu        sync.Mutex
	creds     aws.CredentialsProvider
	token     string
	expiresOn time.Time
}

// RDSTokenOption customizes an RDSTokenProvider.
type RDSTokenOption func(*RDSTokenProvider)

// WithCredentials signs with the given credentials instead of the default AWS chain.
func WithCredentials(creds aws.CredentialsProvider) RDSTokenOption {
	return func(p *RDSTokenProvider) {
		p.creds = creds
	}
}

// withClock replaces time.Now in tests.
func withClock(now func() time.Time) RDSTokenOption {
	return func(p *RDSTokenProvider) {
		p.now = now
	}
}

// NewRDSTokenProvider creates a provider for the warehouse endpoint (host:port),
// AWS region and database user.
func NewRDSTokenProvider(endpoint, region, username string, opts ...RDSTokenOption) (*RDSTokenProvider, error) {
	switch {
	case endpoint == "":
		return nil, fmt.Errorf("AWS IAM auth requires the warehouse endpoint (host:port)")
	case region == "":
		return nil, fmt.Errorf("AWS IAM auth requires a region (set $AWS_REGION)")
	case username == "":
		return nil, fmt.Errorf("AWS IAM auth requires a database user")
	}

	p := &RDSTokenProvider{
		endpoint: endpoint,
		region:   region,
		username: username,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// GetToken returns a cached token, signing a fresh one when the cached token is
// missing or about to expire.
func (p *RDSTokenProvider) GetToken(ctx context.Context) (string, time.Time, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	if p.token != "" && p.expiresOn.Sub(now) > rdsTokenRefreshMargin {
		return p.token, p.expiresOn, nil
	}

	if p.creds == nil {
		cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(p.region))
		if err != nil {
			return "", time.Time{}, fmt.Errorf("load AWS config: %w", err)
		}
		p.creds = cfg.Credentials
	}

	token, err := auth.BuildAuthToken(ctx, p.endpoint, p.region, p.username, p.creds)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign RDS auth token: %w", err)
	}
	p.token = token
	p.expiresOn = now.Add(RDSTokenLifetime)
	return p.token, p.expiresOn, nil
}

func (p *RDSTokenProvider) String() string {
	return fmt.Sprintf("RDSTokenProvider(endpoint=%s, region=%s, user=%s)", p.endpoint, p.region, p.username)
}
