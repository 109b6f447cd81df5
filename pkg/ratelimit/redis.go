package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// acquireScript trims the sorted set to the longest window, then for each
// (limit, duration) pair checks whether the window is full. It returns the
// wait in milliseconds, or 0 after recording the request. Time comes from
// the Redis server so every process sees the same clock.
var acquireScript = redis.NewScript(`
local t = redis.call('TIME')
local now = tonumber(t[1]) * 1000 + math.floor(tonumber(t[2]) / 1000)
local key = KEYS[1]
local member = ARGV[1]
local longest = tonumber(ARGV[2])

redis.call('ZREMRANGEBYSCORE', key, '-inf', now - longest)

local wait = 0
for i = 3, #ARGV, 2 do
  local limit = tonumber(ARGV[i])
  local dur = tonumber(ARGV[i + 1])
  local floor = '(' .. (now - dur)
  local count = redis.call('ZCOUNT', key, floor, '+inf')
  if count >= limit then
    local oldest = redis.call('ZRANGEBYSCORE', key, floor, '+inf', 'WITHSCORES', 'LIMIT', count - limit, 1)
    local w = tonumber(oldest[2]) + dur - now
    if w > wait then
      wait = w
    end
  end
end

if wait > 0 then
  return wait
end

redis.call('ZADD', key, now, member)
redis.call('PEXPIRE', key, longest)
return 0
`)

// RedisWindow enforces rolling-window ceilings shared by every process
// pointed at the same Redis key.
type RedisWindow struct {
	rdb     redis.Scripter
	key     string
	windows []Window
	longest time.Duration
	sleep   func(ctx context.Context, d time.Duration) error
}

// NewRedisWindow creates a shared limiter stored under key
func NewRedisWindow(rdb redis.Scripter, key string, windows []Window) (*RedisWindow, error) {
	if len(windows) == 0 {
		return nil, fmt.Errorf("at least one window is required")
	}

	rw := &RedisWindow{rdb: rdb, key: key, sleep: sleepContext}
	for _, w := range windows {
		if w.Limit <= 0 || w.Duration < time.Millisecond {
			return nil, fmt.Errorf("invalid window %s", w)
		}
		rw.windows = append(rw.windows, w)
		if w.Duration > rw.longest {
			rw.longest = w.Duration
		}
	}
	return rw, nil
}

// Acquire blocks until the shared windows admit one more request
func (rw *RedisWindow) Acquire(ctx context.Context) error {
	args := make([]interface{}, 0, 2+2*len(rw.windows))
	args = append(args, "", rw.longest.Milliseconds())
	for _, w := range rw.windows {
		args = append(args, w.Limit, w.Duration.Milliseconds())
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		args[0] = uuid.NewString()
		waitMs, err := acquireScript.Run(ctx, rw.rdb, []string{rw.key}, args...).Int64()
		if err != nil {
			return fmt.Errorf("redis rate limit %s: %w", rw.key, err)
		}
		if waitMs <= 0 {
			return nil
		}
		if err := rw.sleep(ctx, time.Duration(waitMs)*time.Millisecond); err != nil {
			return err
		}
	}
}
