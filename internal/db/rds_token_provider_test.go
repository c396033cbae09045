package db

import (
	"context"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRDSTokenProvider_Validation(t *testing.T) {
	tests := []struct {
		name     string
		endpoint string
		region   string
		user     string
		wantErr  string
	}{
		{"missing endpoint", "", "us-east-1", "loader", "endpoint"},
		{"missing region", "wh.example:5432", "", "loader", "region"},
		{"missing user", "wh.example:5432", "us-east-1", "", "database user"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewRDSTokenProvider(tt.endpoint, tt.region, tt.user)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestRDSTokenProvider_SignsAndCaches(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	creds := credentials.NewStaticCredentialsProvider("AKIDEXAMPLE", "secret", "")
	p, err := NewRDSTokenProvider("wh.example:5432", "us-east-1", "loader",
		WithCredentials(creds), withClock(func() time.Time { return now }))
	require.NoError(t, err)

	token, expiresOn, err := p.GetToken(context.Background())
	require.NoError(t, err)
	assert.Contains(t, token, "wh.example:5432")
	assert.Contains(t, token, "Action=connect")
	assert.Contains(t, token, "DBUser=loader")
	assert.Equal(t, now.Add(RDSTokenLifetime), expiresOn)

	now = now.Add(5 * time.Minute)
	again, againExpires, err := p.GetToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, token, again, "token is reused while fresh")
	assert.Equal(t, expiresOn, againExpires)

	now = now.Add(9 * time.Minute)
	_, renewedExpires, err := p.GetToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, now.Add(RDSTokenLifetime), renewedExpires, "token is re-signed near expiry")
}

func TestRDSTokenProvider_StringHidesToken(t *testing.T) {
	p, err := NewRDSTokenProvider("wh.example:5432", "us-east-1", "loader")
	require.NoError(t, err)
	assert.Equal(t, "RDSTokenProvider(endpoint=wh.example:5432, region=us-east-1, user=loader)", p.String())
}
