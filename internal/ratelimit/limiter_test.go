package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/btasarimambalaj-afk/adminara-sub000/internal/store"
)

type testClock struct {
	now time.Time
}

func (c *testClock) Now() time.Time { return c.now }

func newTestLimiter() (*Limiter, *store.MemoryStore, *testClock) {
	st := store.NewMemoryStore()
	clock := &testClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	st.SetClock(clock.Now)
	return New(st, zap.NewNop()), st, clock
}

func TestCheckWithinLimit(t *testing.T) {
	ctx := context.Background()
	limiter, _, _ := newTestLimiter()

	for i := 0; i < 5; i++ {
		result, err := limiter.Check(ctx, "k", 5, time.Second)
		require.NoError(t, err)
		require.False(t, result.Limited, "request %d should pass", i+1)
	}

	result, err := limiter.Check(ctx, "k", 5, time.Second)
	require.NoError(t, err)
	require.True(t, result.Limited)
	require.Equal(t, ReasonRateLimit, result.Reason)
	require.Greater(t, result.RetryAfter, time.Duration(0))
}

func TestCheckFreshWindow(t *testing.T) {
	ctx := context.Background()
	limiter, _, clock := newTestLimiter()

	for i := 0; i < 3; i++ {
		_, err := limiter.Check(ctx, "k", 2, time.Second)
		require.NoError(t, err)
	}
	result, err := limiter.Check(ctx, "k", 2, time.Second)
	require.NoError(t, err)
	require.True(t, result.Limited)

	clock.now = clock.now.Add(2 * time.Second)
	result, err = limiter.Check(ctx, "k", 2, time.Second)
	require.NoError(t, err)
	require.False(t, result.Limited)
}

func TestCheckZeroLimit(t *testing.T) {
	limiter, _, _ := newTestLimiter()
	result, err := limiter.Check(context.Background(), "k", 0, time.Second)
	require.NoError(t, err)
	require.True(t, result.Limited)
}

func TestLockOverridesWindow(t *testing.T) {
	ctx := context.Background()
	limiter, _, clock := newTestLimiter()

	require.NoError(t, limiter.Lock(ctx, "k", time.Minute, "otp_lockout"))

	// The counter never gets a chance: the lock answers first.
	result, err := limiter.Check(ctx, "k", 100, time.Second)
	require.NoError(t, err)
	require.True(t, result.Limited)
	require.Equal(t, "otp_lockout", result.Reason)
	require.Equal(t, 60, result.RetryAfterSeconds())

	// Window elapsing does not clear the lock.
	clock.now = clock.now.Add(30 * time.Second)
	result, err = limiter.Check(ctx, "k", 100, time.Second)
	require.NoError(t, err)
	require.True(t, result.Limited)
	require.Equal(t, "otp_lockout", result.Reason)

	// The lock's own TTL does.
	clock.now = clock.now.Add(31 * time.Second)
	result, err = limiter.Check(ctx, "k", 100, time.Second)
	require.NoError(t, err)
	require.False(t, result.Limited)
}

func TestLockedProbeDoesNotCount(t *testing.T) {
	ctx := context.Background()
	limiter, _, _ := newTestLimiter()

	for i := 0; i < 10; i++ {
		result, err := limiter.Locked(ctx, "k")
		require.NoError(t, err)
		require.False(t, result.Limited)
	}

	// Probing left the counter untouched.
	result, err := limiter.Check(ctx, "k", 1, time.Second)
	require.NoError(t, err)
	require.False(t, result.Limited)
}

func TestCountAndClearCounter(t *testing.T) {
	ctx := context.Background()
	limiter, _, _ := newTestLimiter()

	for i := int64(1); i <= 3; i++ {
		count, err := limiter.Count(ctx, "fails", time.Minute)
		require.NoError(t, err)
		require.Equal(t, i, count)
	}

	require.NoError(t, limiter.ClearCounter(ctx, "fails"))
	count, err := limiter.Count(ctx, "fails", time.Minute)
	require.NoError(t, err)
	require.Equal(t, int64(1), count)
}

func TestSweepLifecycle(t *testing.T) {
	limiter, st, clock := newTestLimiter()

	_, err := limiter.Count(context.Background(), "a", time.Millisecond)
	require.NoError(t, err)
	clock.now = clock.now.Add(time.Second)

	limiter.StartSweep(5 * time.Millisecond)
	require.Eventually(t, func() bool {
		return st.Len() == 0
	}, time.Second, 5*time.Millisecond)
	limiter.StopSweep()

	// Stopping twice is safe.
	limiter.StopSweep()
}
