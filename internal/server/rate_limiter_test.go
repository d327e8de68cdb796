package server

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// TestRateLimiterBurst verifies that the bucket allows its full burst and
// then refuses.
func TestRateLimiterBurst(t *testing.T) {
	rl := newRateLimiter(3, time.Hour)

	for i := 0; i < 3; i++ {
		assert.True(t, rl.allow(), "call %d within burst should pass", i)
	}
	assert.False(t, rl.allow(), "call beyond burst should be refused")
}

// TestRateLimiterRefills verifies that tokens come back over time.
func TestRateLimiterRefills(t *testing.T) {
	rl := newRateLimiter(2, 20*time.Millisecond)

	assert.True(t, rl.allow())
	assert.True(t, rl.allow())
	assert.False(t, rl.allow())

	time.Sleep(30 * time.Millisecond)
	assert.True(t, rl.allow(), "bucket should refill after the interval")
}

// TestRateLimiterDefensiveDefaults verifies the fallback for nonsense
// construction parameters.
func TestRateLimiterDefensiveDefaults(t *testing.T) {
	rl := newRateLimiter(0, 0)
	assert.True(t, rl.allow())
	assert.False(t, rl.allow())
}
