package cache

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stats struct {
	Loaded int64   `json:"loaded"`
	Rate   float64 `json:"rate"`
}

func newTestCache(t *testing.T) (*Cache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return New(client, "analytics", time.Minute, slog.New(slog.NewTextHandler(io.Discard, nil))), mr
}

func TestGetMissThenHit(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	var got stats
	ok, err := c.Get(ctx, "period:2024-01-01:2024-01-31", &got)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Set(ctx, "period:2024-01-01:2024-01-31", stats{Loaded: 10, Rate: 95.5}))
	ok, err = c.Get(ctx, "period:2024-01-01:2024-01-31", &got)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, stats{Loaded: 10, Rate: 95.5}, got)
}

func TestEntriesExpire(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", stats{Loaded: 1}))
	mr.FastForward(2 * time.Minute)

	var got stats
	ok, err := c.Get(ctx, "k", &got)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestInvalidateHidesEarlierEntries(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", stats{Loaded: 1}))
	require.NoError(t, c.Invalidate(ctx))

	var got stats
	ok, err := c.Get(ctx, "k", &got)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Set(ctx, "k", stats{Loaded: 2}))
	ok, err = c.Get(ctx, "k", &got)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(2), got.Loaded)
}

func TestUndecodableEntryIsAMiss(t *testing.T) {
	c, mr := newTestCache(t)
	require.NoError(t, mr.Set("analytics:0:k", "not json"))

	var got stats
	ok, err := c.Get(context.Background(), "k", &got)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestUnavailableServerReturnsError(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 100 * time.Millisecond, MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })
	c := New(client, "analytics", 0, nil)

	var got stats
	_, err := c.Get(context.Background(), "k", &got)
	assert.Error(t, err)
	assert.Error(t, c.Invalidate(context.Background()))
	assert.Equal(t, DefaultTTL, c.ttl)
}
