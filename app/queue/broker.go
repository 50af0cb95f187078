package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

var ErrJobNotFound = errors.New("job not found")

type Broker interface {
	Enqueue(ctx context.Context, queue string, payload any, opts ...EnqueueOption) (string, error)
	// Dequeue returns nil, nil when no job arrives within wait.
	Dequeue(ctx context.Context, queue string, wait time.Duration) (*Job, error)
	Complete(ctx context.Context, job *Job) error
	// Fail records a failed run and reports whether the job will run again.
	Fail(ctx context.Context, job *Job, cause error) (bool, error)
	Stats(ctx context.Context, queue string) (Stats, error)
}

// Admin exposes dead-letter and recovery operations.
type Admin interface {
	DeadJobs(ctx context.Context, queue string, limit int) ([]*Job, error)
	Requeue(ctx context.Context, queue, jobID string) error
	RecoverStuck(ctx context.Context, queue string, olderThan time.Duration) (int, error)
}

// DeadLetterSink archives jobs that exhausted their attempts.
type DeadLetterSink interface {
	Archive(ctx context.Context, job *Job) error
}

type Stats struct {
	Queue     string `json:"queue"`
	Waiting   int64  `json:"waiting"`
	Active    int64  `json:"active"`
	Delayed   int64  `json:"delayed"`
	Dead      int64  `json:"dead"`
	Completed int64  `json:"completed"`
	Failed    int64  `json:"failed"`
	Retried   int64  `json:"retried"`
}

type enqueueOptions struct {
	maxAttempts int
	delay       time.Duration
	jobID       string
}

type EnqueueOption func(*enqueueOptions)

func WithMaxAttempts(n int) EnqueueOption {
	return func(o *enqueueOptions) {
		if n > 0 {
			o.maxAttempts = n
		}
	}
}

func WithDelay(d time.Duration) EnqueueOption {
	return func(o *enqueueOptions) {
		if d > 0 {
			o.delay = d
		}
	}
}

// WithJobID makes the enqueue idempotent: while a job with the same id is
// pending, dead, or completed within the job TTL, the call is a no-op.
func WithJobID(id string) EnqueueOption {
	return func(o *enqueueOptions) {
		o.jobID = strings.TrimSpace(id)
	}
}

func newJob(queue string, payload any, now time.Time, opts []EnqueueOption) (*Job, time.Duration, error) {
	if strings.TrimSpace(queue) == "" {
		return nil, 0, errors.New("queue name is required")
	}

	o := enqueueOptions{maxAttempts: DefaultMaxAttempts}
	for _, opt := range opts {
		opt(&o)
	}

	raw, ok := payload.(json.RawMessage)
	if !ok {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to marshal job payload: %w", err)
		}
		raw = encoded
	}

	id := o.jobID
	if id == "" {
		id = uuid.NewString()
	}

	job := &Job{
		ID:          id,
		Queue:       queue,
		Payload:     raw,
		MaxAttempts: o.maxAttempts,
		State:       StateWaiting,
		EnqueuedAt:  now,
	}
	if o.delay > 0 {
		runAt := now.Add(o.delay)
		job.State = StateDelayed
		job.RunAt = &runAt
	}
	return job, o.delay, nil
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying; the broker dead-letters the
// job on the first failure.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}
