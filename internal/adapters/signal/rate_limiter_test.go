package signal

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRoomRateLimiter_SlidingWindow(t *testing.T) {
	now := time.Unix(1000, 0)
	rl := NewRoomRateLimiter(2, time.Minute)
	rl.now = func() time.Time { return now }

	assert.True(t, rl.Allow("a"))
	assert.True(t, rl.Allow("a"))
	assert.False(t, rl.Allow("a"))
	assert.True(t, rl.Allow("b"))

	now = now.Add(61 * time.Second)
	assert.True(t, rl.Allow("a"))
}

func TestRoomRateLimiter_Disabled(t *testing.T) {
	var nilLimiter *RoomRateLimiter
	assert.True(t, nilLimiter.Allow("a"))

	rl := NewRoomRateLimiter(0, time.Minute)
	for range 10 {
		assert.True(t, rl.Allow("a"))
	}
}

func TestRoomRateLimiter_ForgetsIdleClients(t *testing.T) {
	now := time.Unix(1000, 0)
	rl := NewRoomRateLimiter(2, time.Minute)
	rl.now = func() time.Time { return now }

	for _, key := range []string{"10.0.0.1", "10.0.0.2", "10.0.0.3"} {
		assert.True(t, rl.Allow(key))
	}
	assert.Equal(t, 3, rl.tracked())

	// When the window has passed for everyone but a new client
	now = now.Add(2 * time.Minute)
	assert.True(t, rl.Allow("10.0.0.4"))

	// Then only the active client is still tracked
	assert.Equal(t, 1, rl.tracked())
}
