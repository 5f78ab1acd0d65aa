package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type snapshot struct {
	Symbol string  `json:"symbol"`
	Score  float64 `json:"score"`
}

type fakeClock struct{ t time.Time }

func (f *fakeClock) Now() time.Time { return f.t }

func TestMemoryCacheTypedRoundTrip(t *testing.T) {
	c := NewMemoryCache(WithMemoryCleanup(0))
	defer c.Close()
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "latest", []snapshot{{Symbol: "BTC", Score: 72.5}}, 0))

	var got []snapshot
	require.NoError(t, c.Get(ctx, "latest", &got))
	assert.Equal(t, []snapshot{{Symbol: "BTC", Score: 72.5}}, got)

	typed, err := GetTyped[[]snapshot](ctx, c, "latest")
	require.NoError(t, err)
	assert.Len(t, typed, 1)
}

func TestMemoryCacheExpiry(t *testing.T) {
	clock := &fakeClock{t: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	c := NewMemoryCache(WithMemoryCleanup(0), WithMemoryClock(clock.Now))
	defer c.Close()
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", "v", time.Minute))
	ok, _ := c.Exists(ctx, "k")
	assert.True(t, ok)

	clock.t = clock.t.Add(2 * time.Minute)
	var s string
	assert.ErrorIs(t, c.Get(ctx, "k", &s), ErrCacheMiss)
}

func TestMemoryCacheEvictsLeastRecentlyUsed(t *testing.T) {
	clock := &fakeClock{t: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	c := NewMemoryCache(WithMemoryCleanup(0), WithMemoryMaxSize(2), WithMemoryClock(clock.Now))
	defer c.Close()
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "a", 1, 0))
	clock.t = clock.t.Add(time.Second)
	require.NoError(t, c.Set(ctx, "b", 2, 0))
	clock.t = clock.t.Add(time.Second)

	var n int
	require.NoError(t, c.Get(ctx, "a", &n))
	clock.t = clock.t.Add(time.Second)
	require.NoError(t, c.Set(ctx, "c", 3, 0))

	assert.Equal(t, 2, c.Len())
	assert.ErrorIs(t, c.Get(ctx, "b", &n), ErrCacheMiss)
}

func TestMemoryCacheDeleteByPattern(t *testing.T) {
	c := NewMemoryCache(WithMemoryCleanup(0))
	defer c.Close()
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "signals:latest", "x", 0))
	require.NoError(t, c.Set(ctx, "signals:live", "y", 0))
	require.NoError(t, c.Set(ctx, "macro:stats", "z", 0))

	require.NoError(t, c.DeleteByPattern(ctx, BuildPattern("signals:")))

	ok, _ := c.Exists(ctx, "signals:latest", "signals:live")
	assert.False(t, ok)
	ok, _ = c.Exists(ctx, "macro:stats")
	assert.True(t, ok)
}

func TestLayeredCacheFallsBackToSecondLevel(t *testing.T) {
	l2 := NewMemoryCache(WithMemoryCleanup(0))
	lc := NewLayeredCache(l2, time.Minute, WithMemoryCleanup(0))
	defer lc.Close()
	ctx := context.Background()

	require.NoError(t, l2.Set(ctx, "macro:stats", snapshot{Symbol: "BTC", Score: 1}, 0))

	var got snapshot
	require.NoError(t, lc.Get(ctx, "macro:stats", &got))
	assert.Equal(t, "BTC", got.Symbol)

	require.NoError(t, lc.Delete(ctx, "macro:stats"))
	assert.ErrorIs(t, lc.Get(ctx, "macro:stats", &got), ErrCacheMiss)
}
