package reconcile

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPolicy_DefaultIsFixedThirtySeconds(t *testing.T) {
	p := DefaultPolicy()
	for _, attempt := range []int{1, 2, 50, 120} {
		assert.Equal(t, 30*time.Second, p.Delay(attempt))
	}
	assert.Equal(t, 120*30*time.Second, p.Budget())
}

func TestPolicy_BackoffIsCapped(t *testing.T) {
	p := Policy{InitialDelay: 5 * time.Second, Interval: 10 * time.Second, MaxInterval: 35 * time.Second, Backoff: 2, MaxAttempts: 6}

	got := []time.Duration{}
	for i := 1; i <= 6; i++ {
		got = append(got, p.Delay(i))
	}
	assert.Equal(t, []time.Duration{
		5 * time.Second,
		10 * time.Second,
		20 * time.Second,
		35 * time.Second,
		35 * time.Second,
		35 * time.Second,
	}, got)
	assert.Equal(t, 140*time.Second, p.Budget())
}

func TestPolicy_NormalizesBadValues(t *testing.T) {
	p := Policy{InitialDelay: -time.Second, Backoff: 0.5}.normalized()
	assert.Zero(t, p.InitialDelay)
	assert.Equal(t, 1.0, p.Backoff)
	assert.Equal(t, 30*time.Second, p.Interval)
	assert.Equal(t, 120, p.MaxAttempts)
	assert.Equal(t, time.Minute, p.StepTimeout)
	assert.GreaterOrEqual(t, p.MaxInterval, p.Interval)
}

func TestPolicy_LeaseCoversDelayAndStep(t *testing.T) {
	p := Policy{Interval: 30 * time.Second, StepTimeout: 20 * time.Second}
	assert.Equal(t, 30*time.Second+20*time.Second+leaseSlack, p.Lease(30*time.Second))
	assert.Equal(t, 20*time.Second+leaseSlack, p.Lease(-time.Second))
}

func TestMemoryLocker(t *testing.T) {
	l := NewMemoryLocker()
	now := time.Unix(1700000000, 0)
	l.now = func() time.Time { return now }
	ctx := context.Background()

	ok, err := l.TryLock(ctx, "reconcile:c-1", "a", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = l.TryLock(ctx, "reconcile:c-1", "b", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, l.Unlock(ctx, "reconcile:c-1", "b"))
	ok, _ = l.TryLock(ctx, "reconcile:c-1", "b", time.Minute)
	assert.False(t, ok, "non-owner unlock keeps the lock")

	require.NoError(t, l.Unlock(ctx, "reconcile:c-1", "a"))
	ok, _ = l.TryLock(ctx, "reconcile:c-1", "b", time.Minute)
	assert.True(t, ok)

	_, err = l.TryLock(ctx, "", "a", time.Minute)
	assert.Error(t, err)
	_, err = l.TryLock(ctx, "reconcile:c-2", "", time.Minute)
	assert.Error(t, err)
}

func TestMemoryLocker_ExpiredHolderCannotFreeNewHolder(t *testing.T) {
	l := NewMemoryLocker()
	now := time.Unix(1700000000, 0)
	l.now = func() time.Time { return now }
	ctx := context.Background()
	key := "reconcile:c-1"

	ok, _ := l.TryLock(ctx, key, "a", time.Minute)
	require.True(t, ok)

	now = now.Add(2 * time.Minute)
	ok, _ = l.TryLock(ctx, key, "b", time.Minute)
	require.True(t, ok, "expired lock is reclaimed")

	require.NoError(t, l.Unlock(ctx, key, "a"))
	ok, _ = l.TryLock(ctx, key, "c", time.Minute)
	assert.False(t, ok, "b still holds the lock")

	refreshed, err := l.Refresh(ctx, key, "a", time.Minute)
	require.NoError(t, err)
	assert.False(t, refreshed)
}

func TestMemoryLocker_RefreshExtendsLease(t *testing.T) {
	l := NewMemoryLocker()
	now := time.Unix(1700000000, 0)
	l.now = func() time.Time { return now }
	ctx := context.Background()
	key := "reconcile:c-1"

	ok, _ := l.TryLock(ctx, key, "a", time.Minute)
	require.True(t, ok)

	now = now.Add(50 * time.Second)
	refreshed, err := l.Refresh(ctx, key, "a", time.Minute)
	require.NoError(t, err)
	assert.True(t, refreshed)

	now = now.Add(50 * time.Second)
	ok, _ = l.TryLock(ctx, key, "b", time.Minute)
	assert.False(t, ok, "refreshed lease is still held")

	now = now.Add(time.Minute)
	refreshed, _ = l.Refresh(ctx, key, "a", time.Minute)
	assert.False(t, refreshed, "expired lease cannot be revived")
}

func TestRedisLocker_NotConfigured(t *testing.T) {
	var l *RedisLocker
	_, err := l.TryLock(context.Background(), "k", "a", time.Second)
	assert.Error(t, err)
	_, err = l.Refresh(context.Background(), "k", "a", time.Second)
	assert.Error(t, err)
	assert.Error(t, NewRedisLocker(nil).Unlock(context.Background(), "k", "a"))
}
