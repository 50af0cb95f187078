package queue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type recordingSink struct {
	mu   sync.Mutex
	jobs []*Job
}

func (s *recordingSink) Archive(_ context.Context, job *Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs = append(s.jobs, job)
	return nil
}

func (s *recordingSink) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}

func noJitter() float64 { return 1 }

func newTestRedisBroker(t *testing.T) (*RedisBroker, *fakeClock, *recordingSink, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	clock := newFakeClock()
	sink := &recordingSink{}
	broker := NewRedisBroker(client, RedisBrokerOptions{
		Retry: RetryPolicy{BaseDelay: time.Second, MaxDelay: time.Minute, Jitter: noJitter},
		Sink:  sink,
		Now:   clock.Now,
	})
	return broker, clock, sink, mr
}

func TestRedisBrokerEnqueueDequeueComplete(t *testing.T) {
	broker, _, _, _ := newTestRedisBroker(t)
	ctx := context.Background()

	id, err := broker.Enqueue(ctx, TrackingQueue, map[string]string{"order_id": "o-1"})
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	job, err := broker.Dequeue(ctx, TrackingQueue, 0)
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, id, job.ID)
	assert.Equal(t, StateActive, job.State)
	assert.Equal(t, 1, job.Attempt)

	var payload map[string]string
	require.NoError(t, job.Decode(&payload))
	assert.Equal(t, "o-1", payload["order_id"])

	stats, err := broker.Stats(ctx, TrackingQueue)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Active)

	require.NoError(t, broker.Complete(ctx, job))
	stats, err = broker.Stats(ctx, TrackingQueue)
	require.NoError(t, err)
	assert.Equal(t, int64(0), stats.Active)
	assert.Equal(t, int64(1), stats.Completed)
}

func TestRedisBrokerDequeueEmpty(t *testing.T) {
	broker, _, _, _ := newTestRedisBroker(t)

	job, err := broker.Dequeue(context.Background(), TrackingQueue, 0)
	assert.NoError(t, err)
	assert.Nil(t, job)
}

func TestRedisBrokerIdempotentJobID(t *testing.T) {
	broker, _, _, _ := newTestRedisBroker(t)
	ctx := context.Background()

	first, err := broker.Enqueue(ctx, LeadEmailQueue, "a", WithJobID("lead-email:c1:a@x.com"))
	require.NoError(t, err)
	second, err := broker.Enqueue(ctx, LeadEmailQueue, "b", WithJobID("lead-email:c1:a@x.com"))
	require.NoError(t, err)
	assert.Equal(t, first, second)

	stats, err := broker.Stats(ctx, LeadEmailQueue)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Waiting)
}

func TestRedisBrokerDelayedJobIsPromotedWhenDue(t *testing.T) {
	broker, clock, _, _ := newTestRedisBroker(t)
	ctx := context.Background()

	_, err := broker.Enqueue(ctx, MassEmailCampaignQueue, "c", WithDelay(time.Second))
	require.NoError(t, err)

	job, err := broker.Dequeue(ctx, MassEmailCampaignQueue, 0)
	require.NoError(t, err)
	assert.Nil(t, job)

	clock.Advance(time.Second)
	job, err = broker.Dequeue(ctx, MassEmailCampaignQueue, 0)
	require.NoError(t, err)
	require.NotNil(t, job)
}

func TestRedisBrokerRetriesThenDeadLetters(t *testing.T) {
	broker, clock, sink, _ := newTestRedisBroker(t)
	ctx := context.Background()
	cause := errors.New("provider timeout")

	id, err := broker.Enqueue(ctx, PaymentCreationQueue, "p", WithMaxAttempts(2))
	require.NoError(t, err)

	job, err := broker.Dequeue(ctx, PaymentCreationQueue, 0)
	require.NoError(t, err)
	retrying, err := broker.Fail(ctx, job, cause)
	require.NoError(t, err)
	assert.True(t, retrying)

	stats, err := broker.Stats(ctx, PaymentCreationQueue)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Delayed)
	assert.Equal(t, int64(1), stats.Retried)

	// first retry waits BaseDelay
	clock.Advance(999 * time.Millisecond)
	job, err = broker.Dequeue(ctx, PaymentCreationQueue, 0)
	require.NoError(t, err)
	assert.Nil(t, job)

	clock.Advance(time.Millisecond)
	job, err = broker.Dequeue(ctx, PaymentCreationQueue, 0)
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, 2, job.Attempt)

	retrying, err = broker.Fail(ctx, job, cause)
	require.NoError(t, err)
	assert.False(t, retrying)
	assert.Equal(t, 1, sink.Len())

	dead, err := broker.DeadJobs(ctx, PaymentCreationQueue, 10)
	require.NoError(t, err)
	require.Len(t, dead, 1)
	assert.Equal(t, id, dead[0].ID)
	assert.Equal(t, StateFailed, dead[0].State)
	assert.Equal(t, "provider timeout", dead[0].LastError)
}

func TestRedisBrokerPermanentErrorSkipsRetry(t *testing.T) {
	broker, _, sink, _ := newTestRedisBroker(t)
	ctx := context.Background()

	_, err := broker.Enqueue(ctx, PaymentCreationQueue, "p")
	require.NoError(t, err)
	job, err := broker.Dequeue(ctx, PaymentCreationQueue, 0)
	require.NoError(t, err)

	retrying, err := broker.Fail(ctx, job, Permanent(errors.New("gateway not registered")))
	require.NoError(t, err)
	assert.False(t, retrying)
	assert.Equal(t, 1, sink.Len())
}

func TestRedisBrokerRequeue(t *testing.T) {
	broker, _, _, _ := newTestRedisBroker(t)
	ctx := context.Background()

	id, err := broker.Enqueue(ctx, TrackingQueue, "t", WithMaxAttempts(1))
	require.NoError(t, err)
	job, err := broker.Dequeue(ctx, TrackingQueue, 0)
	require.NoError(t, err)
	_, err = broker.Fail(ctx, job, errors.New("boom"))
	require.NoError(t, err)

	assert.ErrorIs(t, broker.Requeue(ctx, TrackingQueue, "missing"), ErrJobNotFound)
	require.NoError(t, broker.Requeue(ctx, TrackingQueue, id))

	job, err = broker.Dequeue(ctx, TrackingQueue, 0)
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, 1, job.Attempt)
}

func TestRedisBrokerRecoverStuck(t *testing.T) {
	broker, clock, _, _ := newTestRedisBroker(t)
	ctx := context.Background()

	_, err := broker.Enqueue(ctx, TrackingQueue, "t")
	require.NoError(t, err)
	_, err = broker.Dequeue(ctx, TrackingQueue, 0)
	require.NoError(t, err)

	n, err := broker.RecoverStuck(ctx, TrackingQueue, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	clock.Advance(2 * time.Minute)
	n, err = broker.RecoverStuck(ctx, TrackingQueue, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	stats, err := broker.Stats(ctx, TrackingQueue)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Waiting)
	assert.Equal(t, int64(0), stats.Active)
}

func TestRedisBrokerPendingJobOutlivesJobTTL(t *testing.T) {
	broker, _, _, mr := newTestRedisBroker(t)
	ctx := context.Background()

	id, err := broker.Enqueue(ctx, TrackingQueue, map[string]string{"order_id": "o-1"})
	require.NoError(t, err)

	mr.FastForward(25 * time.Hour)

	job, err := broker.Dequeue(ctx, TrackingQueue, 0)
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, id, job.ID)

	require.NoError(t, broker.Complete(ctx, job))
	assert.Greater(t, mr.TTL(jobKey(id)), time.Duration(0))
}

func TestRedisBrokerDeadLettersJobWithMissingBody(t *testing.T) {
	broker, _, sink, mr := newTestRedisBroker(t)
	ctx := context.Background()

	id, err := broker.Enqueue(ctx, TrackingQueue, "t")
	require.NoError(t, err)
	mr.Del(jobKey(id))

	job, err := broker.Dequeue(ctx, TrackingQueue, 0)
	require.NoError(t, err)
	assert.Nil(t, job)

	stats, err := broker.Stats(ctx, TrackingQueue)
	require.NoError(t, err)
	assert.Equal(t, int64(0), stats.Active)
	assert.Equal(t, int64(1), stats.Dead)
	assert.Equal(t, 1, sink.Len())

	dead, err := broker.DeadJobs(ctx, TrackingQueue, 10)
	require.NoError(t, err)
	require.Len(t, dead, 1)
	assert.Equal(t, id, dead[0].ID)
	assert.Equal(t, ErrJobNotFound.Error(), dead[0].LastError)
}

func TestRedisBrokerCompletedJobIDStillDeduplicates(t *testing.T) {
	broker, _, _, mr := newTestRedisBroker(t)
	ctx := context.Background()

	_, err := broker.Enqueue(ctx, LeadEmailQueue, "a", WithJobID("lead-email:c1:a@x.com"))
	require.NoError(t, err)
	job, err := broker.Dequeue(ctx, LeadEmailQueue, 0)
	require.NoError(t, err)
	require.NoError(t, broker.Complete(ctx, job))

	_, err = broker.Enqueue(ctx, LeadEmailQueue, "a", WithJobID("lead-email:c1:a@x.com"))
	require.NoError(t, err)
	stats, err := broker.Stats(ctx, LeadEmailQueue)
	require.NoError(t, err)
	assert.Equal(t, int64(0), stats.Waiting)

	mr.FastForward(defaultJobTTL + time.Second)
	_, err = broker.Enqueue(ctx, LeadEmailQueue, "a", WithJobID("lead-email:c1:a@x.com"))
	require.NoError(t, err)
	stats, err = broker.Stats(ctx, LeadEmailQueue)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Waiting)
}
