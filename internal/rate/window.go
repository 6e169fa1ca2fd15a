package rate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var releaseLua = redis.NewScript(`
local n = tonumber(redis.call("GET", KEYS[1]) or "0")
if n <= 0 then
  return 0
end
return redis.call("DECR", KEYS[1])
`)

var hitLua = redis.NewScript(`
local n = redis.call("INCR", KEYS[1])
if n == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return n
`)

// Window counts events per key within a fixed window.
type Window struct {
	redis  redis.UniversalClient
	length time.Duration
}

// NewWindow builds a Window of the given length.
func NewWindow(redisClient redis.UniversalClient, length time.Duration) *Window {
	return &Window{
		redis:  redisClient,
		length: length,
	}
}

// Length returns the window length.
func (w *Window) Length() time.Duration {
	return w.length
}

// Count returns the number of hits recorded for key in the current window.
func (w *Window) Count(ctx context.Context, key string) (int64, error) {
	count, err := w.redis.Get(ctx, key).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if count < 0 {
		return 0, nil
	}
	return count, nil
}

// Take records one event and returns ErrRateLimited when the new count
// exceeds max. The increment and the comparison see the same value, so
// concurrent callers cannot all slip under max.
func (w *Window) Take(ctx context.Context, key string, max int) (int64, error) {
	count, err := w.Hit(ctx, key)
	if err != nil {
		return 0, err
	}
	if count > int64(max) {
		return count, ErrRateLimited
	}
	return count, nil
}

// Hit records one event and returns the new count.
func (w *Window) Hit(ctx context.Context, key string) (int64, error) {
	count, err := hitLua.Run(ctx, w.redis, []string{key}, w.length.Milliseconds()).Int64()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return count, nil
}

// Release gives back one event recorded by Take. It never drops the count
// below zero and leaves the window expiry untouched.
func (w *Window) Release(ctx context.Context, key string) error {
	if err := releaseLua.Run(ctx, w.redis, []string{key}).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// Reset clears key.
func (w *Window) Reset(ctx context.Context, key string) error {
	if err := w.redis.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}
