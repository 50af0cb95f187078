package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/vibast-solutions/ms-go-logistics/app/entity"
	"github.com/vibast-solutions/ms-go-logistics/app/queue"
)

type queueStatsReader interface {
	Stats(ctx context.Context, queue string) (queue.Stats, error)
}

type deadLetterArchive interface {
	List(ctx context.Context, queueName string, limit int) ([]entity.DeadLetterJob, error)
	MarkRequeued(ctx context.Context, jobID string) error
}

// QueueService backs the queue maintenance commands.
type QueueService struct {
	stats   queueStatsReader
	admin   queue.Admin
	archive deadLetterArchive
	queues  []string
}

func NewQueueService(stats queueStatsReader, admin queue.Admin, archive deadLetterArchive) *QueueService {
	return &QueueService{stats: stats, admin: admin, archive: archive, queues: queue.Queues}
}

// Stats returns the counters of the named queues, or of every queue when
// none is given.
func (s *QueueService) Stats(ctx context.Context, names ...string) ([]queue.Stats, error) {
	names, err := s.resolve(names)
	if err != nil {
		return nil, err
	}
	out := make([]queue.Stats, 0, len(names))
	for _, name := range names {
		st, err := s.stats.Stats(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("stats for %s: %w", name, err)
		}
		out = append(out, st)
	}
	return out, nil
}

// Dead lists parked jobs still held by the broker.
func (s *QueueService) Dead(ctx context.Context, name string, limit int) ([]*queue.Job, error) {
	if _, err := s.resolve([]string{name}); err != nil {
		return nil, err
	}
	return s.admin.DeadJobs(ctx, name, limit)
}

// Archived lists dead-letter rows from the durable archive.
func (s *QueueService) Archived(ctx context.Context, name string, limit int) ([]entity.DeadLetterJob, error) {
	if s.archive == nil {
		return nil, nil
	}
	return s.archive.List(ctx, strings.TrimSpace(name), limit)
}

func (s *QueueService) Requeue(ctx context.Context, name, jobID string) error {
	if _, err := s.resolve([]string{name}); err != nil {
		return err
	}
	jobID = strings.TrimSpace(jobID)
	if jobID == "" {
		return ErrInvalidRequest
	}

	if err := s.admin.Requeue(ctx, name, jobID); err != nil {
		if errors.Is(err, queue.ErrJobNotFound) {
			return ErrJobNotFound
		}
		return err
	}
	if s.archive != nil {
		// Jobs parked before the archive existed have no row.
		_ = s.archive.MarkRequeued(ctx, jobID)
	}
	return nil
}

// Sweep moves jobs active for longer than olderThan back to waiting.
func (s *QueueService) Sweep(ctx context.Context, olderThan time.Duration) (map[string]int, error) {
	recovered := make(map[string]int, len(s.queues))
	for _, name := range s.queues {
		n, err := s.admin.RecoverStuck(ctx, name, olderThan)
		if err != nil {
			return recovered, fmt.Errorf("sweep %s: %w", name, err)
		}
		recovered[name] = n
	}
	return recovered, nil
}

func (s *QueueService) resolve(names []string) ([]string, error) {
	if len(names) == 0 {
		return s.queues, nil
	}
	out := make([]string, 0, len(names))
	for _, name := range names {
		name = strings.TrimSpace(name)
		if !s.known(name) {
			return nil, fmt.Errorf("%w: unknown queue %q", ErrInvalidRequest, name)
		}
		out = append(out, name)
	}
	return out, nil
}

func (s *QueueService) known(name string) bool {
	for _, q := range s.queues {
		if q == name {
			return true
		}
	}
	return false
}
