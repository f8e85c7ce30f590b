package api

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLimiter(t *testing.T) {
	now := time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)
	l := newLimiter(2, time.Minute)
	l.now = func() time.Time { return now }

	assert.True(t, l.Allow("s1"))
	assert.True(t, l.Allow("s1"))
	assert.False(t, l.Allow("s1"), "burst exhausted")
	assert.True(t, l.Allow("s2"), "keys are independent")

	now = now.Add(30 * time.Second)
	assert.True(t, l.Allow("s1"), "one token refills every 30s")
	assert.False(t, l.Allow("s1"))
}

func TestLimiter_SweepsIdleKeys(t *testing.T) {
	now := time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)
	l := newLimiter(1, time.Minute)
	l.now = func() time.Time { return now }

	l.Allow("s1")
	now = now.Add(10 * time.Minute)
	l.Allow("s2")

	l.mu.Lock()
	defer l.mu.Unlock()
	assert.NotContains(t, l.visitors, "s1")
	assert.Contains(t, l.visitors, "s2")
}

func TestLimiter_Disabled(t *testing.T) {
	l := newLimiter(0, time.Minute)
	for range 10 {
		assert.True(t, l.Allow("s1"))
	}
}
