package limiters

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrCounterUnavailable indicates the counter backend is unreachable.
var ErrCounterUnavailable = errors.New("failed-login counter unavailable")

// The first failure opens the window, later ones leave the TTL alone.
const incrementScript = `
local n = redis.call("INCR", KEYS[1])
if n == 1 and tonumber(ARGV[1]) > 0 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return n
`

var incrementLua = redis.NewScript(incrementScript)

// Redis counts failed logins per login name in Redis.
type Redis struct {
	redis  redis.UniversalClient
	prefix string
	window time.Duration
}

// NewRedis returns a Redis counter. window of zero keeps counters until Reset.
func NewRedis(client redis.UniversalClient, prefix string, window time.Duration) *Redis {
	if prefix == "" {
		prefix = "flc:"
	}
	return &Redis{redis: client, prefix: prefix, window: window}
}

func (l *Redis) key(login string) string {
	return l.prefix + login
}

// Increment records one failure and returns the updated count.
func (l *Redis) Increment(ctx context.Context, login string) (int, error) {
	if login == "" {
		return 0, nil
	}

	count, err := incrementLua.Run(ctx, l.redis, []string{l.key(login)}, l.window.Milliseconds()).Int64()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrCounterUnavailable, err)
	}
	return int(count), nil
}

// Count returns the current number of failures.
func (l *Redis) Count(ctx context.Context, login string) (int, error) {
	if login == "" {
		return 0, nil
	}

	count, err := l.redis.Get(ctx, l.key(login)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrCounterUnavailable, err)
	}
	return int(count), nil
}

// Reset clears the failures of login.
func (l *Redis) Reset(ctx context.Context, login string) error {
	if login == "" {
		return nil
	}

	if err := l.redis.Del(ctx, l.key(login)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrCounterUnavailable, err)
	}
	return nil
}
