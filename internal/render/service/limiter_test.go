package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elidickinson/shot-power-scraper/internal/common/configtypes"
	"github.com/elidickinson/shot-power-scraper/pkg/types"
)

func TestNewRateLimiter_Disabled(t *testing.T) {
	l := NewRateLimiter(configtypes.RateLimitConfig{})
	assert.Nil(t, l)
	assert.True(t, l.Allow("203.0.113.1"))
}

func TestRateLimiter_BurstPerClient(t *testing.T) {
	l := NewRateLimiter(configtypes.RateLimitConfig{Enabled: true, RequestsPerSecond: 1, Burst: 2})
	require.NotNil(t, l)
	clock := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return clock }

	assert.True(t, l.Allow("a"))
	assert.True(t, l.Allow("a"))
	assert.False(t, l.Allow("a"), "burst exhausted")
	assert.True(t, l.Allow("b"), "clients have separate buckets")

	clock = clock.Add(time.Second)
	assert.True(t, l.Allow("a"), "one token refilled")
	assert.False(t, l.Allow("a"))
}

func TestRateLimiter_ForgetsIdleClients(t *testing.T) {
	l := NewRateLimiter(configtypes.RateLimitConfig{
		Enabled: true, RequestsPerSecond: 5, Burst: 5,
		IdleTTL: types.Duration(time.Minute),
	})
	clock := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return clock }

	l.Allow("a")
	l.Allow("b")
	assert.Equal(t, 2, l.Clients())

	clock = clock.Add(30 * time.Second)
	l.Allow("b")
	clock = clock.Add(45 * time.Second)
	l.Allow("c")
	assert.Equal(t, 2, l.Clients(), "a was idle past the ttl")
}
