package service

import (
	"context"
	"errors"
	"sync"

	"github.com/robfig/cron/v3"
	"github.com/studio233/batchd/batch/data/repository"
	"github.com/studio233/batchd/batch/structs"
	"github.com/studio233/batchd/logging/logger"
	"github.com/studio233/batchd/logging/observes"
	"github.com/studio233/batchd/metrics"
)

const sweepBatch = 500

// Sweep fails jobs that have not moved for cfg.StaleAfter and refunds them.
// It covers callbacks the worker never delivered, then retries refunds that
// failed earlier.
func (s *Service) Sweep(ctx context.Context) (int, error) {
	cutoff := s.now().UTC().Add(-s.cfg.StaleAfter)
	ids, err := s.repo.StaleJobs(ctx, cutoff, sweepBatch)
	if err != nil {
		return 0, err
	}
	swept := 0
	for _, id := range ids {
		next, changed, err := s.repo.UpdateJob(ctx, id, func(j *structs.Job) (*structs.Job, bool, error) {
			if j.Status.Terminal() || j.UpdatedAt.After(cutoff) {
				return j, false, nil
			}
			n, ok := structs.Fail(j, ReasonTimedOut, s.now().UTC())
			return n, ok, nil
		})
		if errors.Is(err, repository.ErrNotFound) {
			s.untrack(ctx, id)
			continue
		}
		if err != nil {
			logger.Warn(ctx, "sweep job failed", "job_id", id, "error", err)
			continue
		}
		if changed {
			swept++
			logger.Warn(ctx, "stale job failed", "job_id", id, "attempts", next.Attempts)
			s.settle(ctx, next)
		}
	}
	if swept > 0 {
		metrics.JobsSwept(swept)
		logger.Info(ctx, "stale jobs swept", "count", swept)
	}
	if err := s.retryRefunds(ctx); err != nil {
		return swept, err
	}
	return swept, nil
}

// retryRefunds credits failed jobs whose refund did not go through. Jobs
// younger than settleTimeout may still be settling and wait for the next run.
func (s *Service) retryRefunds(ctx context.Context) error {
	ids, err := s.repo.PendingRefunds(ctx, s.now().UTC().Add(-settleTimeout), sweepBatch)
	if err != nil {
		return err
	}
	refunded := 0
	for _, id := range ids {
		job, err := s.repo.GetJob(ctx, id)
		if errors.Is(err, repository.ErrNotFound) {
			s.untrack(ctx, id)
			continue
		}
		if err != nil {
			logger.Warn(ctx, "load job for refund failed", "job_id", id, "error", err)
			continue
		}
		if err := s.refund(ctx, job); err == nil && job.Refunded {
			refunded++
		}
	}
	if refunded > 0 {
		logger.Info(ctx, "pending refunds settled", "count", refunded)
	}
	return nil
}

// untrack drops index entries whose job record already expired
func (s *Service) untrack(ctx context.Context, id string) {
	if err := s.repo.Untrack(ctx, id); err != nil {
		logger.Warn(ctx, "untrack job failed", "job_id", id, "error", err)
		return
	}
	logger.Debug(ctx, "expired job untracked", "job_id", id)
}

// Sweeper runs Sweep on a cron schedule
type Sweeper struct {
	svc  *Service
	cron *cron.Cron
	mu   sync.Mutex
}

// NewSweeper schedules svc.Sweep on a cron schedule, e.g. "@every 1m"
func NewSweeper(svc *Service, schedule string) (*Sweeper, error) {
	sw := &Sweeper{svc: svc, cron: cron.New()}
	if _, err := sw.cron.AddFunc(schedule, sw.run); err != nil {
		return nil, err
	}
	return sw, nil
}

func (sw *Sweeper) run() {
	// skip a tick while the previous sweep is still running
	if !sw.mu.TryLock() {
		return
	}
	defer sw.mu.Unlock()
	if _, err := sw.svc.Sweep(context.Background()); err != nil {
		logger.Error(context.Background(), "sweep failed", "error", err)
		observes.CaptureError(context.Background(), err)
	}
}

// Start begins the schedule
func (sw *Sweeper) Start() { sw.cron.Start() }

// Stop halts the schedule and waits for a running sweep until ctx expires
func (sw *Sweeper) Stop(ctx context.Context) {
	done := sw.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
	}
}
