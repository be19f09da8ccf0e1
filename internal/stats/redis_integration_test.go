//go:build integration

package stats_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rafaeljc/herald/internal/stats"
	"github.com/rafaeljc/herald/internal/testsupport"
)

// TestRedisTracker_Integration runs the update script against a real Redis server.
func TestRedisTracker_Integration(t *testing.T) {
	// 1. Infrastructure Setup
	ctx := context.Background()

	redisCtr, err := testsupport.StartRedisContainer(ctx)
	require.NoError(t, err)
	defer redisCtr.Terminate(ctx)

	var mu sync.Mutex
	now := time.Date(2024, 3, 4, 22, 0, 0, 0, time.UTC)
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}

	tracker, err := stats.NewRedisTracker(redisCtr.Client, "herald:it", 48*time.Hour,
		stats.WithClock(clock), stats.WithLocation(time.UTC))
	require.NoError(t, err)

	t.Run("Should count concurrent updates exactly", func(t *testing.T) {
		var wg sync.WaitGroup
		for range 50 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				assert.NoError(t, tracker.Update(ctx, "u-concurrent"))
			}()
		}
		wg.Wait()

		s, err := tracker.GetOrCreate(ctx, "u-concurrent")
		require.NoError(t, err)
		assert.Equal(t, 50, s.DailyCount)
		require.NotNil(t, s.LastNotificationTime)
		assert.True(t, s.LastNotificationTime.Equal(now))
	})

	t.Run("Should roll over on a new day", func(t *testing.T) {
		require.NoError(t, tracker.Update(ctx, "u-rollover"))

		mu.Lock()
		now = now.Add(3 * time.Hour)
		mu.Unlock()

		s, err := tracker.GetOrCreate(ctx, "u-rollover")
		require.NoError(t, err)
		assert.Equal(t, 0, s.DailyCount)

		require.NoError(t, tracker.Update(ctx, "u-rollover"))
		s, err = tracker.GetOrCreate(ctx, "u-rollover")
		require.NoError(t, err)
		assert.Equal(t, 1, s.DailyCount)
		assert.Equal(t, time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC), s.LastResetDate)

		ttl, err := redisCtr.Client.TTL(ctx, "herald:it:u-rollover").Result()
		require.NoError(t, err)
		assert.Greater(t, ttl, 47*time.Hour)
	})
}
