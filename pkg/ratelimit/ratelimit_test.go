package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAllowWithinBurst(t *testing.T) {
	l := New(1, 3)

	for i := 0; i < 3; i++ {
		assert.True(t, l.Allow("user-a", "lights"), "request %d", i)
	}
	assert.False(t, l.Allow("user-a", "lights"))
}

func TestCallersAreIndependent(t *testing.T) {
	l := New(1, 1)

	assert.True(t, l.Allow("user-a", "lights"))
	assert.False(t, l.Allow("user-a", "lights"))

	// A different caller and a different endpoint each get their own bucket.
	assert.True(t, l.Allow("user-b", "lights"))
	assert.True(t, l.Allow("user-a", "heating"))
}

func TestPruneDropsIdleEntries(t *testing.T) {
	l := New(1, 1)
	l.idleTTL = 10 * time.Millisecond

	l.Allow("user-a", "lights")
	assert.Len(t, l.entries, 1)

	time.Sleep(20 * time.Millisecond)
	l.Allow("user-b", "heating")

	l.mu.Lock()
	_, stale := l.entries["user-a\x00lights"]
	l.mu.Unlock()
	assert.False(t, stale)
}
