package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// fakeClock is a controllable time source for expiry tests.
type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestStore() (*MemoryStore, *fakeClock) {
	st := NewMemoryStore()
	clock := &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	st.SetClock(clock.Now)
	return st, clock
}

func TestMemoryStoreSetGetDelete(t *testing.T) {
	ctx := context.Background()
	st, _ := newTestStore()

	value, found, err := st.Get(ctx, "missing")
	require.NoError(t, err)
	require.False(t, found)
	require.Empty(t, value)

	require.NoError(t, st.Set(ctx, "k", "v", 0))
	value, found, err = st.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "v", value)

	require.NoError(t, st.Delete(ctx, "k"))
	_, found, err = st.Get(ctx, "k")
	require.NoError(t, err)
	require.False(t, found)
}

func TestMemoryStoreExpiry(t *testing.T) {
	ctx := context.Background()
	st, clock := newTestStore()

	require.NoError(t, st.SetWithExpiry(ctx, "k", "v", time.Minute))

	ttl, err := st.RemainingTTL(ctx, "k")
	require.NoError(t, err)
	require.Equal(t, time.Minute, ttl)

	clock.Advance(61 * time.Second)
	_, found, err := st.Get(ctx, "k")
	require.NoError(t, err)
	require.False(t, found)

	ttl, err = st.RemainingTTL(ctx, "k")
	require.NoError(t, err)
	require.Equal(t, TTLMissing, ttl)
}

func TestMemoryStoreIncrWithExpiry(t *testing.T) {
	ctx := context.Background()
	st, clock := newTestStore()

	for i := int64(1); i <= 3; i++ {
		count, err := st.IncrWithExpiry(ctx, "counter", time.Second)
		require.NoError(t, err)
		require.Equal(t, i, count)
	}

	// A fresh window restarts the count.
	clock.Advance(2 * time.Second)
	count, err := st.IncrWithExpiry(ctx, "counter", time.Second)
	require.NoError(t, err)
	require.Equal(t, int64(1), count)
}

func TestMemoryStoreCompareAndDelete(t *testing.T) {
	ctx := context.Background()
	st, clock := newTestStore()

	require.NoError(t, st.SetWithExpiry(ctx, "otp:admin", "123456", time.Minute))

	deleted, err := st.CompareAndDelete(ctx, "otp:admin", "000000")
	require.NoError(t, err)
	require.False(t, deleted)

	deleted, err = st.CompareAndDelete(ctx, "otp:admin", "123456")
	require.NoError(t, err)
	require.True(t, deleted)

	// Single use: the second attempt sees nothing.
	deleted, err = st.CompareAndDelete(ctx, "otp:admin", "123456")
	require.NoError(t, err)
	require.False(t, deleted)

	// Expired challenges never match.
	require.NoError(t, st.SetWithExpiry(ctx, "otp:admin", "654321", time.Minute))
	clock.Advance(2 * time.Minute)
	deleted, err = st.CompareAndDelete(ctx, "otp:admin", "654321")
	require.NoError(t, err)
	require.False(t, deleted)
}

func TestMemoryStoreSweepExpired(t *testing.T) {
	ctx := context.Background()
	st, clock := newTestStore()

	require.NoError(t, st.SetWithExpiry(ctx, "a", "1", time.Second))
	require.NoError(t, st.SetWithExpiry(ctx, "b", "2", time.Minute))
	require.NoError(t, st.Set(ctx, "c", "3", 0))

	clock.Advance(10 * time.Second)
	require.Equal(t, 1, st.SweepExpired())
	require.Equal(t, 2, st.Len())
}

func TestMemoryStoreHealthCheck(t *testing.T) {
	st, _ := newTestStore()
	require.True(t, st.HealthCheck(context.Background()))
}
