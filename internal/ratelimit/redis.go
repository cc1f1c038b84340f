package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "ratelimit:"

var ErrRedisUnavailable = errors.New("redis unavailable")

// The first hit of a window sets its expiry so the counter resets on its own.
var fixedWindowLua = redis.NewScript(`
local current = redis.call("INCR", KEYS[1])
if current == 1 then
	redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return {current, redis.call("PTTL", KEYS[1])}
`)

// RedisLimiter shares fixed-window counters across instances.
type RedisLimiter struct {
	client redis.UniversalClient
	config Config
}

func NewRedisLimiter(client redis.UniversalClient, config Config) *RedisLimiter {
	return &RedisLimiter{client: client, config: config.withDefaults()}
}

// Allow fails open: when Redis cannot be reached the request is admitted and
// the error is returned for logging.
func (l *RedisLimiter) Allow(ctx context.Context, key string) (Decision, error) {
	if !l.config.Enabled {
		return Decision{Allowed: true, Remaining: l.config.MaxRequests}, nil
	}

	values, err := fixedWindowLua.Run(ctx, l.client, []string{redisKeyPrefix + key}, l.config.Window.Milliseconds()).Int64Slice()
	if err != nil {
		return Decision{Allowed: true}, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if len(values) != 2 {
		return Decision{Allowed: true}, fmt.Errorf("%w: unexpected script reply %v", ErrRedisUnavailable, values)
	}

	count, ttl := values[0], time.Duration(values[1])*time.Millisecond
	if count <= int64(l.config.MaxRequests) {
		return Decision{Allowed: true, Remaining: l.config.MaxRequests - int(count)}, nil
	}

	if ttl < time.Second {
		ttl = time.Second
	}
	return Decision{Allowed: false, RetryAfter: ttl}, nil
}
