package scheduler

import (
	"context"
	"log/slog"
	"time"

	"jotihunt/internal/domain"
)

// Job is one unit of periodic work.
type Job interface {
	Run(ctx context.Context) error
}

// JobFunc adapts a function to Job.
type JobFunc func(ctx context.Context) error

func (f JobFunc) Run(ctx context.Context) error { return f(ctx) }

// Syncer defines the interface for sync operations.
type Syncer interface {
	Sync(ctx context.Context) (*domain.SyncStats, error)
}

// SyncJob runs a Syncer as a Job, discarding its stats.
func SyncJob(s Syncer) Job {
	return JobFunc(func(ctx context.Context) error {
		_, err := s.Sync(ctx)
		return err
	})
}

// Scheduler runs a job immediately and then on every tick of a fixed
// interval. Runs never overlap; a tick that fires during a run is dropped.
type Scheduler struct {
	name     string
	job      Job
	interval time.Duration
	timeout  time.Duration
	logger   *slog.Logger
}

func NewScheduler(name string, job Job, interval, timeout time.Duration, logger *slog.Logger) *Scheduler {
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &Scheduler{
		name:     name,
		job:      job,
		interval: interval,
		timeout:  timeout,
		logger:   logger.With("scheduler", name),
	}
}

func (s *Scheduler) Start(ctx context.Context) error {
	s.logger.Info("scheduler started", "interval", s.interval)

	s.runJob(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return ctx.Err()
		case <-ticker.C:
			s.runJob(ctx)
		}
	}
}

func (s *Scheduler) runJob(ctx context.Context) {
	jobCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if err := s.job.Run(jobCtx); err != nil {
		s.logger.Error("job failed", "error", err)
	}
}
