// Package ratelimit throttles expensive endpoints with a Redis sliding window.
package ratelimit

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const keyPrefix = "crm:ratelimit:"

// slidingWindow trims entries older than the window, then admits the request
// when the remaining count is below the limit. A rejected call returns the
// negative number of milliseconds until the oldest entry expires.
var slidingWindow = redis.NewScript(`
	local key = KEYS[1]
	local now = tonumber(ARGV[1])
	local window_start = tonumber(ARGV[2])
	local max_requests = tonumber(ARGV[3])
	local window_ms = tonumber(ARGV[4])
	local member = ARGV[5]

	redis.call('ZREMRANGEBYSCORE', key, '-inf', window_start)

	local count = redis.call('ZCARD', key)
	if count < max_requests then
		redis.call('ZADD', key, now, member)
		redis.call('PEXPIRE', key, window_ms * 2)
		return 1
	end

	local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
	if #oldest > 0 then
		return -(tonumber(oldest[2]) + window_ms - now)
	end
	return 0
`)

// SlidingWindowLimiter admits at most limit requests per key in any window.
type SlidingWindowLimiter struct {
	redis  *redis.Client
	limit  int
	window time.Duration
	now    func() time.Time
}

// NewSlidingWindowLimiter returns a limiter. A nil client admits everything.
func NewSlidingWindowLimiter(client *redis.Client, limit int, window time.Duration) *SlidingWindowLimiter {
	if limit <= 0 {
		limit = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &SlidingWindowLimiter{
		redis:  client,
		limit:  limit,
		window: window,
		now:    time.Now,
	}
}

func (l *SlidingWindowLimiter) Limit() int { return l.limit }

func (l *SlidingWindowLimiter) Window() time.Duration { return l.window }

// Allow reports whether the request for key may proceed and, if not, how
// long the caller should wait. Redis failures fail open.
func (l *SlidingWindowLimiter) Allow(ctx context.Context, key string) (bool, time.Duration) {
	if l == nil || l.redis == nil {
		return true, 0
	}

	now := l.now()
	result, err := slidingWindow.Run(ctx, l.redis, []string{keyPrefix + key},
		now.UnixMilli(),
		now.Add(-l.window).UnixMilli(),
		l.limit,
		l.window.Milliseconds(),
		uuid.NewString(),
	).Int64()
	if err != nil {
		return true, 0
	}

	switch {
	case result == 1:
		return true, 0
	case result < 0:
		return false, time.Duration(-result) * time.Millisecond
	default:
		return false, l.window
	}
}
