package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultBucketKey = "ratelimit:mass-email"

// reserveScript keeps {tokens, ts} in a hash. Tokens may go negative: a
// negative balance is a queue of reservations, and the returned value is the
// caller's wait in milliseconds.
var reserveScript = redis.NewScript(`
local capacity = tonumber(ARGV[1])
local rate = tonumber(ARGV[2])
local now = tonumber(ARGV[3])

local state = redis.call('HMGET', KEYS[1], 'tokens', 'ts')
local tokens = tonumber(state[1])
local ts = tonumber(state[2])
if tokens == nil or ts == nil then
	tokens = 0
	ts = now
end

if now > ts then
	tokens = math.min(capacity, tokens + (now - ts) * rate / 1000)
	ts = now
end

tokens = tokens - 1
redis.call('HSET', KEYS[1], 'tokens', tostring(tokens), 'ts', tostring(ts))
redis.call('PEXPIRE', KEYS[1], 60000 + math.ceil(math.max(0, -tokens) * 1000 / rate))

if tokens >= 0 then
	return 0
end
return math.ceil(-tokens * 1000 / rate)
`)

// RedisTokenBucket is the TokenBucket shared across processes through Redis.
type RedisTokenBucket struct {
	client    redis.UniversalClient
	key       string
	perSecond int
	now       func() time.Time
	sleep     func(ctx context.Context, d time.Duration) error
}

func NewRedisTokenBucket(client redis.UniversalClient, key string, perSecond int) *RedisTokenBucket {
	if key == "" {
		key = defaultBucketKey
	}
	if perSecond < 1 {
		perSecond = 1
	}
	return &RedisTokenBucket{
		client:    client,
		key:       key,
		perSecond: perSecond,
		now:       time.Now,
		sleep:     sleepContext,
	}
}

func (b *RedisTokenBucket) Wait(ctx context.Context) error {
	delay, err := b.reserve(ctx)
	if err != nil {
		return err
	}
	if delay <= 0 {
		return nil
	}
	return b.sleep(ctx, delay)
}

func (b *RedisTokenBucket) reserve(ctx context.Context) (time.Duration, error) {
	waitMs, err := reserveScript.Run(ctx, b.client, []string{b.key},
		b.perSecond, b.perSecond, b.now().UnixMilli(),
	).Int64()
	if err != nil {
		return 0, fmt.Errorf("failed to reserve rate limit token: %w", err)
	}
	return time.Duration(waitMs) * time.Millisecond, nil
}

func (b *RedisTokenBucket) PerSecond() int {
	return b.perSecond
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
