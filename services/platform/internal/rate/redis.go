package rate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultRedisPrefix = "sentinel:platform:rl:"

var ErrInvalidWindow = errors.New("rate limit window must be at least 1ms")

// windowScript counts a hit and returns {hits, ttl_ms}. The expiry is set by
// whichever call first sees the key without one.
var windowScript = redis.NewScript(`
local hits = redis.call("INCR", KEYS[1])
local ttl = redis.call("PTTL", KEYS[1])
if ttl < 0 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
  ttl = tonumber(ARGV[1])
end
return {hits, ttl}
`)

// RedisLimiter shares fixed-window counters between replicas.
type RedisLimiter struct {
	client redis.Scripter
	limit  int64
	window time.Duration
	prefix string
}

func NewRedisLimiter(client redis.Scripter, limit int, window time.Duration, prefix string) *RedisLimiter {
	if prefix == "" {
		prefix = defaultRedisPrefix
	}
	return &RedisLimiter{client: client, limit: int64(limit), window: window, prefix: prefix}
}

func (l *RedisLimiter) Allow(ctx context.Context, key string, _ time.Time) (bool, time.Duration, error) {
	if l.window < time.Millisecond {
		return false, 0, ErrInvalidWindow
	}

	reply, err := windowScript.Run(ctx, l.client, []string{l.prefix + key}, l.window.Milliseconds()).Int64Slice()
	if err != nil {
		return false, 0, err
	}
	if len(reply) != 2 {
		return false, 0, fmt.Errorf("rate limit script returned %d values", len(reply))
	}

	hits, ttl := reply[0], time.Duration(max(reply[1], 0))*time.Millisecond
	if hits > l.limit {
		return false, ttl, nil
	}
	return true, 0, nil
}
