package queue

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/vibast-solutions/ms-go-logistics/app/factory"
)

type Handler interface {
	Handle(ctx context.Context, job *Job) error
}

type HandlerFunc func(ctx context.Context, job *Job) error

func (f HandlerFunc) Handle(ctx context.Context, job *Job) error {
	return f(ctx, job)
}

type registration struct {
	queue       string
	concurrency int
	handler     Handler
}

type PoolOptions struct {
	// PollWait bounds each blocking dequeue so shutdown is noticed promptly.
	PollWait      time.Duration
	StuckAfter    time.Duration
	SweepInterval time.Duration
}

// Pool consumes registered queues, running at most concurrency handlers per
// queue at a time.
type Pool struct {
	broker Broker
	opts   PoolOptions
	regs   []registration
	logger logrus.FieldLogger
}

func NewPool(broker Broker, opts PoolOptions) *Pool {
	if opts.PollWait <= 0 {
		opts.PollWait = time.Second
	}
	return &Pool{
		broker: broker,
		opts:   opts,
		logger: factory.NewModuleLogger("queue-pool"),
	}
}

func (p *Pool) Register(queue string, concurrency int, handler Handler) {
	if concurrency < 1 {
		concurrency = 1
	}
	p.regs = append(p.regs, registration{queue: queue, concurrency: concurrency, handler: handler})
}

// Queues returns the registered queue names in registration order.
func (p *Pool) Queues() []string {
	names := make([]string, 0, len(p.regs))
	for _, reg := range p.regs {
		names = append(names, reg.queue)
	}
	return names
}

// Run blocks until ctx is cancelled and all in-flight jobs have returned.
func (p *Pool) Run(ctx context.Context) error {
	if len(p.regs) == 0 {
		return fmt.Errorf("no queues registered")
	}

	var wg sync.WaitGroup
	for _, reg := range p.regs {
		wg.Add(1)
		go func(reg registration) {
			defer wg.Done()
			p.consume(ctx, reg)
		}(reg)
	}

	if admin, ok := p.broker.(Admin); ok && p.opts.StuckAfter > 0 && p.opts.SweepInterval > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.sweep(ctx, admin)
		}()
	}

	wg.Wait()
	return nil
}

func (p *Pool) consume(ctx context.Context, reg registration) {
	sem := make(chan struct{}, reg.concurrency)
	var inflight sync.WaitGroup
	defer inflight.Wait()

	logger := p.logger.WithField("queue", reg.queue)
	logger.WithField("concurrency", reg.concurrency).Info("queue_consumer_started")

	for {
		select {
		case <-ctx.Done():
			logger.Info("queue_consumer_stopped")
			return
		case sem <- struct{}{}:
		}

		job, err := p.broker.Dequeue(ctx, reg.queue, p.opts.PollWait)
		if err != nil {
			<-sem
			if ctx.Err() != nil {
				continue
			}
			logger.WithError(err).Warn("dequeue_failed")
			select {
			case <-ctx.Done():
			case <-time.After(p.opts.PollWait):
			}
			continue
		}
		if job == nil {
			<-sem
			continue
		}

		inflight.Add(1)
		go func(job *Job) {
			defer inflight.Done()
			defer func() { <-sem }()
			p.process(context.WithoutCancel(ctx), reg, job)
		}(job)
	}
}

func (p *Pool) process(ctx context.Context, reg registration, job *Job) {
	start := time.Now()
	err := p.invoke(ctx, reg.handler, job)
	latency := time.Since(start)

	entry := p.logger.WithFields(logrus.Fields{
		"job":     job.Queue,
		"job_id":  job.ID,
		"attempt": job.Attempt,
		"latency": latency.String(),
	})

	if err == nil {
		if cerr := p.broker.Complete(ctx, job); cerr != nil {
			entry.WithError(cerr).Error("job_complete_failed")
			return
		}
		entry.Info("job_completed")
		return
	}

	retrying, ferr := p.broker.Fail(ctx, job, err)
	if ferr != nil {
		entry.WithError(ferr).Error("job_fail_record_failed")
	}
	entry.WithError(err).WithField("retrying", retrying).Error("job_failed")
}

func (p *Pool) invoke(ctx context.Context, handler Handler, job *Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.WithField("job_id", job.ID).WithField("stack", string(debug.Stack())).Error("job_panic")
			err = fmt.Errorf("job panicked: %v", r)
		}
	}()
	return handler.Handle(ctx, job)
}

func (p *Pool) sweep(ctx context.Context, admin Admin) {
	ticker := time.NewTicker(p.opts.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, reg := range p.regs {
				n, err := admin.RecoverStuck(ctx, reg.queue, p.opts.StuckAfter)
				if err != nil {
					p.logger.WithError(err).WithField("queue", reg.queue).Warn("stuck_sweep_failed")
					continue
				}
				if n > 0 {
					p.logger.WithField("queue", reg.queue).WithField("recovered", n).Info("stuck_jobs_recovered")
				}
			}
		}
	}
}
