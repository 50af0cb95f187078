package queue

import (
	"math"
	"math/rand/v2"
	"time"
)

type RetryPolicy struct {
	BaseDelay time.Duration
	MaxDelay  time.Duration
	// Jitter returns a value in [0, 1); nil means math/rand.
	Jitter func() float64
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{BaseDelay: 2 * time.Second, MaxDelay: 5 * time.Minute}
}

// Delay is the exponential backoff for the given attempt, capped at
// MaxDelay, with full jitter applied.
func (p RetryPolicy) Delay(attempt int) time.Duration {
	base := p.BaseDelay
	if base <= 0 {
		base = 2 * time.Second
	}
	maxDelay := p.MaxDelay
	if maxDelay <= 0 {
		maxDelay = 5 * time.Minute
	}
	if attempt < 1 {
		attempt = 1
	}

	backoff := float64(base) * math.Pow(2, float64(attempt-1))
	if backoff > float64(maxDelay) {
		backoff = float64(maxDelay)
	}

	jitter := p.Jitter
	if jitter == nil {
		jitter = rand.Float64
	}
	return time.Duration(backoff * jitter())
}
