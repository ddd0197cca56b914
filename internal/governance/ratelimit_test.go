package governance

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRateLimiterBurstThenReject(t *testing.T) {
	rl := NewRateLimiter(map[string]RateLimiterConfig{
		"webhook": {RequestsPerSecond: 1, BurstSize: 3},
	})

	for i := 0; i < 3; i++ {
		assert.True(t, rl.Allow("webhook"), "burst request %d", i)
	}
	assert.False(t, rl.Allow("webhook"))
}

func TestRateLimiterUnknownRouteUnlimited(t *testing.T) {
	rl := NewRateLimiter(nil)

	for i := 0; i < 100; i++ {
		require.True(t, rl.Allow("anything"))
	}
}

func TestRateLimiterRefills(t *testing.T) {
	rl := NewRateLimiter(map[string]RateLimiterConfig{
		"webhook": {RequestsPerSecond: 100, BurstSize: 1},
	})

	require.True(t, rl.Allow("webhook"))
	require.False(t, rl.Allow("webhook"))

	time.Sleep(25 * time.Millisecond)
	assert.True(t, rl.Allow("webhook"))
}

// Reconfiguring keeps the spent token balance for surviving routes so a
// reload cannot be used to bypass the limit.
func TestRateLimiterReconfigurePreservesBalance(t *testing.T) {
	rl := NewRateLimiter(map[string]RateLimiterConfig{
		"webhook": {RequestsPerSecond: 1, BurstSize: 2},
	})

	require.True(t, rl.Allow("webhook"))
	require.True(t, rl.Allow("webhook"))
	require.False(t, rl.Allow("webhook"))

	rl.Configure(map[string]RateLimiterConfig{
		"webhook": {RequestsPerSecond: 1, BurstSize: 5},
	})

	assert.False(t, rl.Allow("webhook"), "reload must not refill spent tokens")
}

func TestRateLimiterReconfigureDropsRemovedRoutes(t *testing.T) {
	rl := NewRateLimiter(map[string]RateLimiterConfig{
		"webhook": {RequestsPerSecond: 1, BurstSize: 1},
	})
	require.True(t, rl.Allow("webhook"))
	require.False(t, rl.Allow("webhook"))

	rl.Configure(nil)

	assert.True(t, rl.Allow("webhook"), "removed routes become unlimited")
}
