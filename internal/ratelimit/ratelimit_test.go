package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestAllowConsumesBurstThenBlocks(t *testing.T) {
	l := New(1, 3, time.Minute)

	for i := 0; i < 3; i++ {
		res := l.Allow("1.2.3.4")
		require.True(t, res.Allowed, "burst request %d should be allowed", i)
	}

	res := l.Allow("1.2.3.4")
	require.False(t, res.Allowed)
	require.Greater(t, res.RetryAfter, time.Duration(0))
}

func TestAllowTracksClientsIndependently(t *testing.T) {
	l := New(1, 1, time.Minute)

	require.True(t, l.Allow("a").Allowed)
	require.False(t, l.Allow("a").Allowed)
	require.True(t, l.Allow("b").Allowed, "a separate client must have its own bucket")
}

func TestEvictIdleDropsOldBuckets(t *testing.T) {
	l := New(1, 1, time.Millisecond)
	l.Allow("stale")

	time.Sleep(5 * time.Millisecond)
	l.EvictIdle()

	l.mu.Lock()
	_, exists := l.buckets["stale"]
	l.mu.Unlock()
	require.False(t, exists)
}

func TestEvictIdleKeepsRecentBuckets(t *testing.T) {
	l := New(1, 1, time.Hour)
	l.Allow("fresh")
	l.EvictIdle()

	l.mu.Lock()
	_, exists := l.buckets["fresh"]
	l.mu.Unlock()
	require.True(t, exists)
}
