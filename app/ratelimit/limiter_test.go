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

func TestTokenBucketStartsEmpty(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	bucket := newTokenBucketAt(90, now)

	first := bucket.delayAt(now)
	assert.InDelta(t, float64(time.Second/90), float64(first), float64(time.Millisecond))
}

func TestTokenBucketNineHundredSendsTakeTenSeconds(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	bucket := newTokenBucketAt(90, now)

	var last time.Duration
	for i := 0; i < 900; i++ {
		last = bucket.delayAt(now)
	}
	assert.GreaterOrEqual(t, last, 10*time.Second-time.Millisecond)
}

func TestTokenBucketWaitHonoursContext(t *testing.T) {
	bucket := NewTokenBucket(1)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	assert.Error(t, bucket.Wait(ctx))
}

func newTestRedisBucket(t *testing.T, perSecond int) (*RedisTokenBucket, *time.Time, *[]time.Duration) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	slept := []time.Duration{}
	bucket := NewRedisTokenBucket(client, "ratelimit:test", perSecond)
	bucket.now = func() time.Time { return now }
	bucket.sleep = func(_ context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}
	return bucket, &now, &slept
}

func TestRedisTokenBucketNineHundredSendsTakeTenSeconds(t *testing.T) {
	bucket, _, slept := newTestRedisBucket(t, 90)
	ctx := context.Background()

	for i := 0; i < 900; i++ {
		require.NoError(t, bucket.Wait(ctx))
	}
	require.Len(t, *slept, 900)
	assert.GreaterOrEqual(t, (*slept)[899], 10*time.Second)
}

func TestRedisTokenBucketRefills(t *testing.T) {
	bucket, now, slept := newTestRedisBucket(t, 10)
	ctx := context.Background()

	require.NoError(t, bucket.Wait(ctx))
	require.Len(t, *slept, 1)
	assert.Equal(t, 100*time.Millisecond, (*slept)[0])

	*now = now.Add(5 * time.Second)
	require.NoError(t, bucket.Wait(ctx))
	assert.Len(t, *slept, 1, "a refilled bucket grants immediately")
}
