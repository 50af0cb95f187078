package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/vibast-solutions/ms-go-logistics/app/factory"
)

const (
	jobKeyPrefix     = "job:"
	queueKeyPrefix   = "queue:"
	defaultJobTTL    = 24 * time.Hour
	promoteBatchSize = 100
)

func jobKey(id string) string { return jobKeyPrefix + id }
func waitingKey(queue string) string { return queueKeyPrefix + queue + ":waiting" }
func activeKey(queue string) string { return queueKeyPrefix + queue + ":active" }
func delayedKey(queue string) string { return queueKeyPrefix + queue + ":delayed" }
func deadKey(queue string) string { return queueKeyPrefix + queue + ":dead" }
func statsKey(queue string) string { return queueKeyPrefix + queue + ":stats" }

// promoteScript moves due delayed job ids onto the waiting list.
var promoteScript = redis.NewScript(`
local ids = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'LIMIT', 0, tonumber(ARGV[2]))
for _, id in ipairs(ids) do
	redis.call('ZREM', KEYS[1], id)
	redis.call('LPUSH', KEYS[2], id)
end
return #ids
`)

type RedisBrokerOptions struct {
	Retry  RetryPolicy
	JobTTL time.Duration
	Sink   DeadLetterSink
	Now    func() time.Time
}

// RedisBroker keeps job bodies under job:<id> and per-queue waiting, active,
// delayed and dead structures under queue:<name>:*. Bodies of pending and dead
// jobs never expire; a completed body is kept for JobTTL so its id keeps
// deduplicating enqueues.
type RedisBroker struct {
	client redis.UniversalClient
	retry  RetryPolicy
	ttl    time.Duration
	sink   DeadLetterSink
	now    func() time.Time
	logger logrus.FieldLogger
}

func NewRedisBroker(client redis.UniversalClient, opts RedisBrokerOptions) *RedisBroker {
	ttl := opts.JobTTL
	if ttl <= 0 {
		ttl = defaultJobTTL
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &RedisBroker{
		client: client,
		retry:  opts.Retry,
		ttl:    ttl,
		sink:   opts.Sink,
		now:    now,
		logger: factory.NewModuleLogger("redis-broker"),
	}
}

func (b *RedisBroker) Enqueue(ctx context.Context, queue string, payload any, opts ...EnqueueOption) (string, error) {
	job, delay, err := newJob(queue, payload, b.now(), opts)
	if err != nil {
		return "", err
	}

	data, err := json.Marshal(job)
	if err != nil {
		return "", fmt.Errorf("failed to marshal job: %w", err)
	}

	created, err := b.client.SetNX(ctx, jobKey(job.ID), data, 0).Result()
	if err != nil {
		return "", fmt.Errorf("failed to store job: %w", err)
	}
	if !created {
		return job.ID, nil
	}

	pipe := b.client.TxPipeline()
	if delay > 0 {
		pipe.ZAdd(ctx, delayedKey(queue), redis.Z{Score: float64(job.RunAt.UnixMilli()), Member: job.ID})
	} else {
		pipe.LPush(ctx, waitingKey(queue), job.ID)
	}
	pipe.HIncrBy(ctx, statsKey(queue), "enqueued", 1)
	if _, err := pipe.Exec(ctx); err != nil {
		_ = b.client.Del(ctx, jobKey(job.ID)).Err()
		return "", fmt.Errorf("failed to enqueue job: %w", err)
	}
	return job.ID, nil
}

func (b *RedisBroker) Dequeue(ctx context.Context, queue string, wait time.Duration) (*Job, error) {
	if err := b.promote(ctx, queue); err != nil {
		return nil, err
	}

	var (
		id  string
		err error
	)
	if wait > 0 {
		id, err = b.client.BRPopLPush(ctx, waitingKey(queue), activeKey(queue), wait).Result()
	} else {
		id, err = b.client.RPopLPush(ctx, waitingKey(queue), activeKey(queue)).Result()
	}
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	job, err := b.load(ctx, id)
	if errors.Is(err, ErrJobNotFound) {
		return nil, b.parkOrphan(ctx, queue, id)
	}
	if err != nil {
		return nil, err
	}

	job.markActive(b.now())
	if err := b.save(ctx, job); err != nil {
		return nil, err
	}
	return job, nil
}

func (b *RedisBroker) Complete(ctx context.Context, job *Job) error {
	job.markCompleted(b.now())
	data, err := json.Marshal(job)
	if err != nil {
		return err
	}
	pipe := b.client.TxPipeline()
	pipe.LRem(ctx, activeKey(job.Queue), 1, job.ID)
	pipe.Set(ctx, jobKey(job.ID), data, b.ttl)
	pipe.HIncrBy(ctx, statsKey(job.Queue), "completed", 1)
	_, err = pipe.Exec(ctx)
	return err
}

func (b *RedisBroker) Fail(ctx context.Context, job *Job, cause error) (bool, error) {
	now := b.now()
	if job.canRetry(cause) {
		runAt := now.Add(b.retry.Delay(job.Attempt))
		job.markDelayed(runAt, cause)
		data, err := json.Marshal(job)
		if err != nil {
			return false, err
		}
		pipe := b.client.TxPipeline()
		pipe.Set(ctx, jobKey(job.ID), data, 0)
		pipe.LRem(ctx, activeKey(job.Queue), 1, job.ID)
		pipe.ZAdd(ctx, delayedKey(job.Queue), redis.Z{Score: float64(runAt.UnixMilli()), Member: job.ID})
		pipe.HIncrBy(ctx, statsKey(job.Queue), "retried", 1)
		if _, err := pipe.Exec(ctx); err != nil {
			return false, err
		}
		return true, nil
	}

	job.markFailed(now, cause)
	data, err := json.Marshal(job)
	if err != nil {
		return false, err
	}
	pipe := b.client.TxPipeline()
	pipe.Set(ctx, jobKey(job.ID), data, 0)
	pipe.LRem(ctx, activeKey(job.Queue), 1, job.ID)
	pipe.LPush(ctx, deadKey(job.Queue), job.ID)
	pipe.HIncrBy(ctx, statsKey(job.Queue), "failed", 1)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, err
	}

	b.archive(ctx, job)
	return false, nil
}

// parkOrphan dead-letters an id whose body is gone, keeping a placeholder
// body so the dead list and the archive still show it.
func (b *RedisBroker) parkOrphan(ctx context.Context, queue, id string) error {
	now := b.now()
	job := &Job{ID: id, Queue: queue, State: StateFailed, EnqueuedAt: now, FinishedAt: &now, LastError: ErrJobNotFound.Error()}
	data, err := json.Marshal(job)
	if err != nil {
		return err
	}
	pipe := b.client.TxPipeline()
	pipe.SetNX(ctx, jobKey(id), data, 0)
	pipe.LRem(ctx, activeKey(queue), 1, id)
	pipe.LPush(ctx, deadKey(queue), id)
	pipe.HIncrBy(ctx, statsKey(queue), "failed", 1)
	if _, err := pipe.Exec(ctx); err != nil {
		return err
	}
	b.logger.WithField("job_id", id).WithField("queue", queue).WithField("alarm", true).Error("job_body_missing")
	b.archive(ctx, job)
	return nil
}

func (b *RedisBroker) archive(ctx context.Context, job *Job) {
	if b.sink == nil {
		return
	}
	if err := b.sink.Archive(ctx, job); err != nil {
		b.logger.WithError(err).WithField("job_id", job.ID).WithField("queue", job.Queue).Error("dead_letter_archive_failed")
	}
}

func (b *RedisBroker) Stats(ctx context.Context, queue string) (Stats, error) {
	pipe := b.client.Pipeline()
	waiting := pipe.LLen(ctx, waitingKey(queue))
	active := pipe.LLen(ctx, activeKey(queue))
	delayed := pipe.ZCard(ctx, delayedKey(queue))
	dead := pipe.LLen(ctx, deadKey(queue))
	counters := pipe.HGetAll(ctx, statsKey(queue))
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return Stats{}, err
	}

	stats := Stats{
		Queue:   queue,
		Waiting: waiting.Val(),
		Active:  active.Val(),
		Delayed: delayed.Val(),
		Dead:    dead.Val(),
	}
	for name, raw := range counters.Val() {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			continue
		}
		switch name {
		case "completed":
			stats.Completed = n
		case "failed":
			stats.Failed = n
		case "retried":
			stats.Retried = n
		}
	}
	return stats, nil
}

func (b *RedisBroker) DeadJobs(ctx context.Context, queue string, limit int) ([]*Job, error) {
	if limit <= 0 {
		limit = 50
	}
	ids, err := b.client.LRange(ctx, deadKey(queue), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, err
	}
	jobs := make([]*Job, 0, len(ids))
	for _, id := range ids {
		job, err := b.load(ctx, id)
		if errors.Is(err, ErrJobNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

// Requeue moves a dead job back to waiting with a fresh attempt budget.
func (b *RedisBroker) Requeue(ctx context.Context, queue, jobID string) error {
	removed, err := b.client.LRem(ctx, deadKey(queue), 1, jobID).Result()
	if err != nil {
		return err
	}
	if removed == 0 {
		return ErrJobNotFound
	}

	job, err := b.load(ctx, jobID)
	if err != nil {
		return err
	}
	job.Attempt = 0
	job.State = StateWaiting
	job.FinishedAt = nil
	job.StartedAt = nil

	data, err := json.Marshal(job)
	if err != nil {
		return err
	}
	pipe := b.client.TxPipeline()
	pipe.Set(ctx, jobKey(job.ID), data, 0)
	pipe.LPush(ctx, waitingKey(queue), job.ID)
	_, err = pipe.Exec(ctx)
	return err
}

// RecoverStuck moves jobs active for longer than olderThan back to waiting.
func (b *RedisBroker) RecoverStuck(ctx context.Context, queue string, olderThan time.Duration) (int, error) {
	ids, err := b.client.LRange(ctx, activeKey(queue), 0, -1).Result()
	if err != nil {
		return 0, err
	}

	now := b.now()
	recovered := 0
	for _, id := range ids {
		job, err := b.load(ctx, id)
		if errors.Is(err, ErrJobNotFound) {
			if err := b.parkOrphan(ctx, queue, id); err != nil {
				return recovered, err
			}
			continue
		}
		if err != nil {
			return recovered, err
		}
		if job.State != StateActive {
			_ = b.client.LRem(ctx, activeKey(queue), 1, id).Err()
			continue
		}
		started := job.EnqueuedAt
		if job.StartedAt != nil {
			started = *job.StartedAt
		}
		if now.Sub(started) <= olderThan {
			continue
		}

		b.logger.WithField("job_id", job.ID).WithField("queue", queue).
			WithField("age", now.Sub(started).String()).Warn("recovering_stuck_job")
		job.State = StateWaiting
		job.LastError = "recovered by sweeper"
		if err := b.save(ctx, job); err != nil {
			return recovered, err
		}
		pipe := b.client.TxPipeline()
		pipe.LRem(ctx, activeKey(queue), 1, id)
		pipe.RPush(ctx, waitingKey(queue), id)
		if _, err := pipe.Exec(ctx); err != nil {
			return recovered, err
		}
		recovered++
	}
	return recovered, nil
}

func (b *RedisBroker) promote(ctx context.Context, queue string) error {
	err := promoteScript.Run(ctx, b.client,
		[]string{delayedKey(queue), waitingKey(queue)},
		b.now().UnixMilli(), promoteBatchSize,
	).Err()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	return err
}

func (b *RedisBroker) load(ctx context.Context, id string) (*Job, error) {
	data, err := b.client.Get(ctx, jobKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, err
	}
	var job Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("failed to unmarshal job %s: %w", id, err)
	}
	return &job, nil
}

func (b *RedisBroker) save(ctx context.Context, job *Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return err
	}
	return b.client.Set(ctx, jobKey(job.ID), data, 0).Err()
}
