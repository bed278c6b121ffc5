package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danielokafor/smartvault/internal/models"
)

func TestParseExpiry(t *testing.T) {
	tests := []struct {
		in      string
		want    time.Duration
		wantErr bool
	}{
		{"7d", 7 * 24 * time.Hour, false},
		{"1d", 24 * time.Hour, false},
		{"12h", 12 * time.Hour, false},
		{" 2h ", 2 * time.Hour, false},
		{"0d", 0, true},
		{"-1h", 0, true},
		{"5m", 0, true},
		{"d", 0, true},
		{"", 0, true},
		{"abc", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseExpiry(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNewShareToken(t *testing.T) {
	a := newShareToken()
	b := newShareToken()
	assert.Len(t, a, 40) // 20 random bytes, hex encoded
	assert.NotEqual(t, a, b)
}

func TestShareLinkExpired(t *testing.T) {
	now := time.Now()

	open := &models.ShareLink{}
	assert.False(t, open.Expired(now), "link without expiry never expires")

	live := &models.ShareLink{ExpiresAt: now.Add(time.Hour)}
	assert.False(t, live.Expired(now))

	dead := &models.ShareLink{ExpiresAt: now.Add(-time.Hour)}
	assert.True(t, dead.Expired(now))
}

func TestShareDownloadTokenRoundTrip(t *testing.T) {
	s := NewShareService(nil, nil, "test-secret")

	link := &models.ShareLink{ID: "link-1", PasswordHash: "x"}
	token, err := s.issueDownloadToken(link.ID)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	assert.NoError(t, s.checkDownloadToken(token, "link-1"))
	assert.Error(t, s.checkDownloadToken(token, "link-2"), "token is bound to one link")
	assert.Error(t, s.checkDownloadToken("garbage", "link-1"))

	other := NewShareService(nil, nil, "other-secret")
	assert.Error(t, other.checkDownloadToken(token, "link-1"), "token signed with a different secret")
}
