package repository

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	quotadomain "github.com/natebag/MLG-BETA/internal/quota/domain"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupQuotaRedis(t *testing.T, now time.Time) (*miniredis.Miniredis, quotadomain.Store) {
	t.Helper()

	mr := miniredis.RunT(t)
	mr.SetTime(now)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, NewRedisStore(client)
}

func TestRedisStoreConsumeUpToLimit(t *testing.T) {
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	_, store := setupQuotaRedis(t, now)
	ctx := context.Background()
	slot := slotAt(now, 3)

	for i := 1; i <= 3; i++ {
		used, granted, err := store.TryConsume(ctx, slot, now)
		require.NoError(t, err)
		assert.True(t, granted)
		assert.Equal(t, i, used)
	}

	used, granted, err := store.TryConsume(ctx, slot, now)
	require.NoError(t, err)
	assert.False(t, granted)
	assert.Equal(t, 3, used)

	state, err := store.Get(ctx, "user-1", "vote")
	require.NoError(t, err)
	require.NotNil(t, state)
	assert.Equal(t, 3, state.UsedCount)
	assert.Equal(t, "2026-03-10", state.PeriodKey)
	assert.True(t, now.Equal(state.UpdatedAt))
}

func TestRedisStoreResetsOnNewPeriod(t *testing.T) {
	day1 := time.Date(2026, 3, 10, 23, 59, 0, 0, time.UTC)
	day2 := day1.Add(2 * time.Minute)
	mr, store := setupQuotaRedis(t, day1)
	ctx := context.Background()

	_, granted, err := store.TryConsume(ctx, slotAt(day1, 1), day1)
	require.NoError(t, err)
	require.True(t, granted)
	_, granted, err = store.TryConsume(ctx, slotAt(day1, 1), day1)
	require.NoError(t, err)
	require.False(t, granted)

	mr.SetTime(day2)
	used, granted, err := store.TryConsume(ctx, slotAt(day2, 1), day2)
	require.NoError(t, err)
	assert.True(t, granted)
	assert.Equal(t, 1, used)

	_, granted, err = store.TryConsume(ctx, slotAt(day2, 1), day2)
	require.NoError(t, err)
	assert.False(t, granted)
}

func TestRedisStoreExpiresAtPeriodEnd(t *testing.T) {
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	mr, store := setupQuotaRedis(t, now)
	ctx := context.Background()
	slot := slotAt(now, 1)

	_, granted, err := store.TryConsume(ctx, slot, now)
	require.NoError(t, err)
	require.True(t, granted)

	key := quotaKey("user-1", "vote")
	assert.Equal(t, slot.ResetsAt.Sub(now), mr.TTL(key))

	mr.FastForward(slot.ResetsAt.Sub(now))
	assert.False(t, mr.Exists(key))

	state, err := store.Get(ctx, "user-1", "vote")
	require.NoError(t, err)
	assert.Nil(t, state)
}

func TestRedisStoreConcurrentConsumeAcrossBoundary(t *testing.T) {
	day1 := time.Date(2026, 3, 10, 23, 59, 59, 0, time.UTC)
	day2 := day1.Add(time.Second)
	mr, store := setupQuotaRedis(t, day1)
	ctx := context.Background()

	_, granted, err := store.TryConsume(ctx, slotAt(day1, 1), day1)
	require.NoError(t, err)
	require.True(t, granted)
	mr.SetTime(day2)

	const workers = 16
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		grants  int
		lastErr error
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, ok, err := store.TryConsume(ctx, slotAt(day2, 1), day2)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				lastErr = err
				return
			}
			if ok {
				grants++
			}
		}()
	}
	wg.Wait()

	require.NoError(t, lastErr)
	assert.Equal(t, 1, grants)
}

func TestRedisStoreReleaseOnlyInSamePeriod(t *testing.T) {
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	_, store := setupQuotaRedis(t, now)
	ctx := context.Background()
	slot := slotAt(now, 1)

	_, granted, err := store.TryConsume(ctx, slot, now)
	require.NoError(t, err)
	require.True(t, granted)

	stale := slot
	stale.PeriodKey = "2026-03-09"
	require.NoError(t, store.Release(ctx, stale, now))
	state, err := store.Get(ctx, "user-1", "vote")
	require.NoError(t, err)
	require.NotNil(t, state)
	assert.Equal(t, 1, state.UsedCount)

	require.NoError(t, store.Release(ctx, slot, now))
	// A second release never drives the counter negative.
	require.NoError(t, store.Release(ctx, slot, now))

	state, err = store.Get(ctx, "user-1", "vote")
	require.NoError(t, err)
	assert.Equal(t, 0, state.UsedCount)

	_, granted, err = store.TryConsume(ctx, slot, now)
	require.NoError(t, err)
	assert.True(t, granted)
}

func TestRedisStoreWithoutClient(t *testing.T) {
	store := NewRedisStore(nil)
	ctx := context.Background()
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

	_, _, err := store.TryConsume(ctx, slotAt(now, 1), now)
	assert.Error(t, err)
	assert.Error(t, store.Release(ctx, slotAt(now, 1), now))
	_, err = store.Get(ctx, "user-1", "vote")
	assert.Error(t, err)

	deleted, err := store.DeleteStale(ctx, now)
	require.NoError(t, err)
	assert.Zero(t, deleted)
}
