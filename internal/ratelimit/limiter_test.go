package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupMiniredis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return client, mr
}

func fixedClock(ts time.Time) func() time.Time {
	return func() time.Time { return ts }
}

func TestFixedWindow_UnderLimit(t *testing.T) {
	rdb, _ := setupMiniredis(t)
	now := time.UnixMilli(1_700_000_000_000)
	l := NewFixedWindow(rdb, "generate", time.Minute).WithClock(fixedClock(now))
	ctx := context.Background()

	for i := 1; i <= 10; i++ {
		res, err := l.Check(ctx, "user-1", 10)
		require.NoError(t, err)
		assert.True(t, res.Success, "request %d should pass", i)
		assert.Equal(t, 10, res.Limit)
		assert.Equal(t, 10-i, res.Remaining)
	}
}

func TestFixedWindow_OverLimitKeepsCounting(t *testing.T) {
	rdb, _ := setupMiniredis(t)
	now := time.UnixMilli(1_700_000_000_000)
	l := NewFixedWindow(rdb, "edit", time.Minute).WithClock(fixedClock(now))
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := l.Check(ctx, "user-1", 5)
		require.NoError(t, err)
	}

	res, err := l.Check(ctx, "user-1", 5)
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, 0, res.Remaining)

	// Rejected calls still increment.
	count, err := rdb.Get(ctx, l.windowKey("user-1")).Int()
	require.NoError(t, err)
	assert.Equal(t, 6, count)
}

func TestFixedWindow_NewWindowResets(t *testing.T) {
	rdb, _ := setupMiniredis(t)
	now := time.UnixMilli(1_700_000_000_000)
	l := NewFixedWindow(rdb, "generate", time.Minute).WithClock(func() time.Time { return now })
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := l.Check(ctx, "user-1", 2)
		require.NoError(t, err)
	}

	now = now.Add(time.Minute)
	res, err := l.Check(ctx, "user-1", 2)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, 1, res.Remaining)
}

func TestFixedWindow_TokensAndNamespacesIndependent(t *testing.T) {
	rdb, _ := setupMiniredis(t)
	now := time.UnixMilli(1_700_000_000_000)
	gen := NewFixedWindow(rdb, "generate", time.Minute).WithClock(fixedClock(now))
	edit := NewFixedWindow(rdb, "edit", time.Minute).WithClock(fixedClock(now))
	ctx := context.Background()

	res, err := gen.Check(ctx, "user-1", 1)
	require.NoError(t, err)
	require.True(t, res.Success)

	res, err = gen.Check(ctx, "user-2", 1)
	require.NoError(t, err)
	assert.True(t, res.Success)

	res, err = edit.Check(ctx, "user-1", 1)
	require.NoError(t, err)
	assert.True(t, res.Success)
}

func TestFixedWindow_SetsExpiry(t *testing.T) {
	rdb, mr := setupMiniredis(t)
	now := time.UnixMilli(1_700_000_000_000)
	l := NewFixedWindow(rdb, "generate", time.Minute).WithClock(fixedClock(now))

	_, err := l.Check(context.Background(), "user-1", 10)
	require.NoError(t, err)
	assert.Equal(t, time.Minute, mr.TTL(l.windowKey("user-1")))
}

func TestFixedWindow_KeyFormat(t *testing.T) {
	rdb, _ := setupMiniredis(t)
	now := time.UnixMilli(120_000)
	l := NewFixedWindow(rdb, "generate", time.Minute).WithClock(fixedClock(now))
	assert.Equal(t, "ratelimit:generate:user-1:2", l.windowKey("user-1"))

	bare := NewFixedWindow(rdb, "", time.Minute).WithClock(fixedClock(now))
	assert.Equal(t, "ratelimit:user-1:2", bare.windowKey("user-1"))
}

func TestFixedWindow_ConcurrentCallsCountExactly(t *testing.T) {
	rdb, _ := setupMiniredis(t)
	now := time.UnixMilli(1_700_000_000_000)
	l := NewFixedWindow(rdb, "generate", time.Minute).WithClock(fixedClock(now))
	ctx := context.Background()

	var wg sync.WaitGroup
	var mu sync.Mutex
	passed := 0
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := l.Check(ctx, "user-1", 10)
			if err != nil {
				return
			}
			if res.Success {
				mu.Lock()
				passed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 10, passed)
}

func TestFixedWindow_RedisDown(t *testing.T) {
	rdb, mr := setupMiniredis(t)
	l := NewFixedWindow(rdb, "generate", time.Minute)
	mr.Close()

	_, err := l.Check(context.Background(), "user-1", 10)
	assert.Error(t, err)
}
