package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMiniredis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestRedis_FixedWindow(t *testing.T) {
	ctx := context.Background()
	mr, client := newMiniredis(t)
	l := NewRedis(client, "test")

	for i := 0; i < 3; i++ {
		res, err := l.Check(ctx, "1.2.3.4", 3, time.Minute)
		require.NoError(t, err)
		assert.True(t, res.Allowed)
		assert.Equal(t, 3-(i+1), res.Remaining)
	}

	res, err := l.Check(ctx, "1.2.3.4", 3, time.Minute)
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Greater(t, res.RetryAfter, time.Duration(0))
	assert.LessOrEqual(t, res.RetryAfter, time.Minute)

	assert.True(t, mr.Exists("test:1.2.3.4"))

	mr.FastForward(time.Minute + time.Second)
	res, err = l.Check(ctx, "1.2.3.4", 3, time.Minute)
	require.NoError(t, err)
	assert.True(t, res.Allowed, "window expired")
}

func TestRedis_Reset(t *testing.T) {
	ctx := context.Background()
	_, client := newMiniredis(t)
	l := NewRedis(client, "")

	_, err := l.Check(ctx, "k", 1, time.Minute)
	require.NoError(t, err)
	res, err := l.Check(ctx, "k", 1, time.Minute)
	require.NoError(t, err)
	require.False(t, res.Allowed)

	require.NoError(t, l.Reset(ctx, "k"))
	res, err = l.Check(ctx, "k", 1, time.Minute)
	require.NoError(t, err)
	assert.True(t, res.Allowed)
}

func TestRedis_ErrorWhenUnavailable(t *testing.T) {
	mr, client := newMiniredis(t)
	mr.Close()

	_, err := NewRedis(client, "").Check(context.Background(), "k", 1, time.Minute)
	require.Error(t, err)
}
