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

func newTestLimiter(t *testing.T, limit int, window time.Duration) (*SlidingWindowLimiter, *time.Time) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	l := NewSlidingWindowLimiter(client, limit, window)
	l.now = func() time.Time { return now }
	return l, &now
}

func TestSlidingWindowLimiter_Allow(t *testing.T) {
	l, now := newTestLimiter(t, 2, time.Minute)
	ctx := context.Background()

	ok, _ := l.Allow(ctx, "compute:1.2.3.4")
	assert.True(t, ok)
	*now = now.Add(10 * time.Second)
	ok, _ = l.Allow(ctx, "compute:1.2.3.4")
	assert.True(t, ok)

	ok, wait := l.Allow(ctx, "compute:1.2.3.4")
	assert.False(t, ok)
	assert.Equal(t, 50*time.Second, wait)

	ok, _ = l.Allow(ctx, "compute:5.6.7.8")
	assert.True(t, ok, "keys are independent")

	*now = now.Add(51 * time.Second)
	ok, _ = l.Allow(ctx, "compute:1.2.3.4")
	assert.True(t, ok, "oldest entry left the window")
}

func TestSlidingWindowLimiter_FailsOpen(t *testing.T) {
	var nilLimiter *SlidingWindowLimiter
	ok, _ := nilLimiter.Allow(context.Background(), "k")
	assert.True(t, ok)

	ok, _ = NewSlidingWindowLimiter(nil, 1, time.Second).Allow(context.Background(), "k")
	assert.True(t, ok)

	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", MaxRetries: -1})
	defer client.Close()
	l := NewSlidingWindowLimiter(client, 1, time.Second)
	ok, _ = l.Allow(context.Background(), "k")
	assert.True(t, ok)
	ok, _ = l.Allow(context.Background(), "k")
	assert.True(t, ok)
}

func TestNewSlidingWindowLimiter_Defaults(t *testing.T) {
	l := NewSlidingWindowLimiter(nil, 0, 0)
	require.NotNil(t, l)
	assert.Equal(t, 1, l.Limit())
	assert.Equal(t, time.Minute, l.Window())
}
