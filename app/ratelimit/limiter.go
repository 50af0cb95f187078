package ratelimit

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Limiter gates outbound sends. Wait blocks until a token is available or
// ctx is done.
type Limiter interface {
	Wait(ctx context.Context) error
}

// TokenBucket is an in-process bucket whose capacity and refill rate are
// both perSecond. The bucket starts empty, so N sends take at least
// N/perSecond seconds.
type TokenBucket struct {
	limiter   *rate.Limiter
	perSecond int
}

func NewTokenBucket(perSecond int) *TokenBucket {
	return newTokenBucketAt(perSecond, time.Now())
}

func newTokenBucketAt(perSecond int, now time.Time) *TokenBucket {
	if perSecond < 1 {
		perSecond = 1
	}
	limiter := rate.NewLimiter(rate.Limit(perSecond), perSecond)
	limiter.ReserveN(now, perSecond)
	return &TokenBucket{limiter: limiter, perSecond: perSecond}
}

func (b *TokenBucket) Wait(ctx context.Context) error {
	return b.limiter.Wait(ctx)
}

// delayAt reserves one token at now and returns how long the caller would
// have to wait for it.
func (b *TokenBucket) delayAt(now time.Time) time.Duration {
	return b.limiter.ReserveN(now, 1).DelayFrom(now)
}

func (b *TokenBucket) PerSecond() int {
	return b.perSecond
}
