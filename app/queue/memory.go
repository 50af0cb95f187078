package queue

import (
	"context"
	"sort"
	"sync"
	"time"
)

type memoryQueue struct {
	waiting []string
	active  map[string]struct{}
	delayed map[string]time.Time
	dead    []string
	stats   Stats
}

// MemoryBroker is an in-process Broker with the same retry, dead-letter and
// completed-id semantics as RedisBroker. Jobs do not survive a restart.
type MemoryBroker struct {
	mu     sync.Mutex
	jobs   map[string]*Job
	done   map[string]time.Time
	ttl    time.Duration
	swept  time.Time
	queues map[string]*memoryQueue
	notify chan struct{}
	retry  RetryPolicy
	sink   DeadLetterSink
	now    func() time.Time
}

func NewMemoryBroker(retry RetryPolicy, sink DeadLetterSink) *MemoryBroker {
	return &MemoryBroker{
		jobs:   make(map[string]*Job),
		done:   make(map[string]time.Time),
		ttl:    defaultJobTTL,
		queues: make(map[string]*memoryQueue),
		notify: make(chan struct{}),
		retry:  retry,
		sink:   sink,
		now:    time.Now,
	}
}

// SetClock replaces the broker clock.
func (b *MemoryBroker) SetClock(now func() time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.now = now
}

// SetCompletedTTL sets how long a completed job id keeps deduplicating.
func (b *MemoryBroker) SetCompletedTTL(ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.ttl = ttl
}

func (b *MemoryBroker) queue(name string) *memoryQueue {
	q, ok := b.queues[name]
	if !ok {
		q = &memoryQueue{
			active:  make(map[string]struct{}),
			delayed: make(map[string]time.Time),
			stats:   Stats{Queue: name},
		}
		b.queues[name] = q
	}
	return q
}

func (b *MemoryBroker) wake() {
	close(b.notify)
	b.notify = make(chan struct{})
}

func (b *MemoryBroker) Enqueue(_ context.Context, queue string, payload any, opts ...EnqueueOption) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	job, delay, err := newJob(queue, payload, b.now(), opts)
	if err != nil {
		return "", err
	}
	b.expireCompleted(job.ID)
	if _, exists := b.jobs[job.ID]; exists {
		return job.ID, nil
	}

	b.jobs[job.ID] = job
	q := b.queue(queue)
	if delay > 0 {
		q.delayed[job.ID] = *job.RunAt
	} else {
		q.waiting = append(q.waiting, job.ID)
	}
	b.wake()
	return job.ID, nil
}

func (b *MemoryBroker) Dequeue(ctx context.Context, queue string, wait time.Duration) (*Job, error) {
	var deadline <-chan time.Time
	if wait > 0 {
		timer := time.NewTimer(wait)
		defer timer.Stop()
		deadline = timer.C
	}

	for {
		b.mu.Lock()
		job := b.take(queue)
		notify := b.notify
		b.mu.Unlock()

		if job != nil {
			return job, nil
		}
		if deadline == nil {
			return nil, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-deadline:
			return nil, nil
		case <-notify:
		case <-time.After(50 * time.Millisecond):
		}
	}
}

func (b *MemoryBroker) take(queue string) *Job {
	q := b.queue(queue)
	now := b.now()

	due := make([]string, 0)
	for id, runAt := range q.delayed {
		if !runAt.After(now) {
			due = append(due, id)
		}
	}
	sort.Slice(due, func(i, j int) bool { return q.delayed[due[i]].Before(q.delayed[due[j]]) })
	for _, id := range due {
		delete(q.delayed, id)
		q.waiting = append(q.waiting, id)
	}

	for len(q.waiting) > 0 {
		id := q.waiting[0]
		q.waiting = q.waiting[1:]
		job, ok := b.jobs[id]
		if !ok {
			continue
		}
		job.markActive(now)
		q.active[id] = struct{}{}
		copied := *job
		return &copied
	}
	return nil
}

func (b *MemoryBroker) Complete(_ context.Context, job *Job) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	job.markCompleted(b.now())
	q := b.queue(job.Queue)
	delete(q.active, job.ID)
	stored := *job
	b.jobs[job.ID] = &stored
	b.done[job.ID] = b.now().Add(b.ttl)
	q.stats.Completed++
	return nil
}

// expireCompleted forgets id once its completion has expired, and sweeps all
// expired completions at most once a minute.
func (b *MemoryBroker) expireCompleted(id string) {
	now := b.now()
	if expiresAt, ok := b.done[id]; ok && !now.Before(expiresAt) {
		delete(b.done, id)
		delete(b.jobs, id)
	}
	if now.Sub(b.swept) < time.Minute {
		return
	}
	b.swept = now
	for doneID, expiresAt := range b.done {
		if now.Before(expiresAt) {
			continue
		}
		delete(b.done, doneID)
		delete(b.jobs, doneID)
	}
}

func (b *MemoryBroker) Fail(ctx context.Context, job *Job, cause error) (bool, error) {
	b.mu.Lock()
	now := b.now()
	q := b.queue(job.Queue)
	delete(q.active, job.ID)

	if job.canRetry(cause) {
		runAt := now.Add(b.retry.Delay(job.Attempt))
		job.markDelayed(runAt, cause)
		stored := *job
		b.jobs[job.ID] = &stored
		q.delayed[job.ID] = runAt
		q.stats.Retried++
		b.wake()
		b.mu.Unlock()
		return true, nil
	}

	job.markFailed(now, cause)
	stored := *job
	b.jobs[job.ID] = &stored
	q.dead = append([]string{job.ID}, q.dead...)
	q.stats.Failed++
	sink := b.sink
	b.mu.Unlock()

	if sink != nil {
		if err := sink.Archive(ctx, job); err != nil {
			return false, err
		}
	}
	return false, nil
}

func (b *MemoryBroker) Stats(_ context.Context, queue string) (Stats, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	q := b.queue(queue)
	stats := q.stats
	stats.Waiting = int64(len(q.waiting))
	stats.Active = int64(len(q.active))
	stats.Delayed = int64(len(q.delayed))
	stats.Dead = int64(len(q.dead))
	return stats, nil
}

func (b *MemoryBroker) DeadJobs(_ context.Context, queue string, limit int) ([]*Job, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if limit <= 0 {
		limit = 50
	}
	q := b.queue(queue)
	jobs := make([]*Job, 0, len(q.dead))
	for _, id := range q.dead {
		if len(jobs) == limit {
			break
		}
		if job, ok := b.jobs[id]; ok {
			copied := *job
			jobs = append(jobs, &copied)
		}
	}
	return jobs, nil
}

func (b *MemoryBroker) Requeue(_ context.Context, queue, jobID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	q := b.queue(queue)
	idx := -1
	for i, id := range q.dead {
		if id == jobID {
			idx = i
			break
		}
	}
	job, ok := b.jobs[jobID]
	if idx < 0 || !ok {
		return ErrJobNotFound
	}

	q.dead = append(q.dead[:idx], q.dead[idx+1:]...)
	job.Attempt = 0
	job.State = StateWaiting
	job.StartedAt = nil
	job.FinishedAt = nil
	q.waiting = append(q.waiting, jobID)
	b.wake()
	return nil
}

func (b *MemoryBroker) RecoverStuck(_ context.Context, queue string, olderThan time.Duration) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	q := b.queue(queue)
	now := b.now()
	recovered := 0
	for id := range q.active {
		job, ok := b.jobs[id]
		if !ok {
			delete(q.active, id)
			continue
		}
		if job.StartedAt == nil || now.Sub(*job.StartedAt) <= olderThan {
			continue
		}
		delete(q.active, id)
		job.State = StateWaiting
		job.LastError = "recovered by sweeper"
		q.waiting = append(q.waiting, id)
		recovered++
	}
	if recovered > 0 {
		b.wake()
	}
	return recovered, nil
}
