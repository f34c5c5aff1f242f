// Package service orchestrates the batch job lifecycle: submission with
// quota debit, dispatch, event reconciliation, refunds and completion
// notices.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/studio233/batchd/batch/data/repository"
	"github.com/studio233/batchd/batch/structs"
	"github.com/studio233/batchd/billing"
	"github.com/studio233/batchd/config"
	"github.com/studio233/batchd/ctxutil"
	"github.com/studio233/batchd/dispatch"
	"github.com/studio233/batchd/logging/logger"
	"github.com/studio233/batchd/logging/observes"
	"github.com/studio233/batchd/metrics"
	"github.com/studio233/batchd/nanoid"
	"github.com/studio233/batchd/notify"
)

var (
	ErrInvalidRequest       = errors.New("invalid request")
	ErrBatchTooLarge        = errors.New("too many jobs in batch")
	ErrUnknownOperation     = errors.New("unknown operation")
	ErrQuotaExceeded        = errors.New("usage quota exceeded")
	ErrNotFound             = errors.New("not found")
	ErrBatchClosed          = errors.New("batch has no queued jobs")
	ErrSubmissionInProgress = errors.New("submission with this idempotency key is in progress")
	ErrInvalidEvent         = errors.New("invalid event")
)

const settleTimeout = 30 * time.Second

// Reasons recorded on jobs failed by the service itself
const (
	ReasonCanceled = "canceled"
	ReasonTimedOut = "timed out"
)

// Service implements the batch lifecycle
type Service struct {
	cfg         *config.Batch
	repo        repository.Repository
	quota       billing.Service
	costs       *billing.Costs
	dispatcher  dispatch.Dispatcher
	notifier    notify.Notifier
	operations  map[string]bool
	callbackURL string

	now        func() time.Time
	newBatchID func() string
	newJobID   func() string
}

// NewService wires the lifecycle. callbackURL is handed to workers as the
// webhook target for events; it may be empty when events ride the bus.
func NewService(cfg *config.Batch, repo repository.Repository, quota billing.Service, costs *billing.Costs, dispatcher dispatch.Dispatcher, notifier notify.Notifier, operations []string, callbackURL string) *Service {
	ops := make(map[string]bool, len(operations))
	for _, op := range operations {
		ops[op] = true
	}
	if notifier == nil {
		notifier = notify.Noop{}
	}
	return &Service{
		cfg:         cfg,
		repo:        repo,
		quota:       quota,
		costs:       costs,
		dispatcher:  dispatcher,
		notifier:    notifier,
		operations:  ops,
		callbackURL: callbackURL,
		now:         time.Now,
		newBatchID:  nanoid.PrimaryKey("bat_"),
		newJobID:    nanoid.PrimaryKey("job_"),
	}
}

// IsPermanent reports whether err will recur on every redelivery of the same event
func IsPermanent(err error) bool {
	return errors.Is(err, ErrInvalidEvent) ||
		errors.Is(err, ErrNotFound) ||
		errors.Is(err, structs.ErrUnknownEvent) ||
		errors.Is(err, structs.ErrMissingResult) ||
		errors.Is(err, structs.ErrJobMismatch)
}

// Balance returns the caller's remaining quota
func (s *Service) Balance(ctx context.Context, userID string) (int64, error) {
	return s.quota.Balance(ctx, userID)
}

// Ping checks the job store
func (s *Service) Ping(ctx context.Context) error {
	return s.repo.Ping(ctx)
}

// refund returns the cost of a failed job once. The Refunded flag and the
// job:<id> idempotency key both guard against double credit. A failed
// refund leaves the job in the refund index for Sweep to retry.
func (s *Service) refund(ctx context.Context, job *structs.Job) error {
	if !job.NeedsRefund() {
		return nil
	}
	err := s.quota.Refund(ctx, job.UserID, job.Cost, "job:"+job.ID)
	metrics.QuotaOp("refund", err)
	if err != nil {
		logger.Error(ctx, "job refund failed", "job_id", job.ID, "user_id", job.UserID, "cost", job.Cost, "error", err)
		observes.CaptureError(ctx, fmt.Errorf("refund job %s: %w", job.ID, err))
		return err
	}
	_, _, err = s.repo.UpdateJob(ctx, job.ID, func(j *structs.Job) (*structs.Job, bool, error) {
		if j.Refunded {
			return j, false, nil
		}
		next := j.Clone()
		next.Refunded = true
		return next, true, nil
	})
	if err != nil {
		logger.Error(ctx, "mark job refunded failed", "job_id", job.ID, "error", err)
		return err
	}
	job.Refunded = true
	logger.Info(ctx, "job refunded", "job_id", job.ID, "user_id", job.UserID, "cost", job.Cost)
	return nil
}

// retryRefund runs refund detached from the caller's cancellation
func (s *Service) retryRefund(ctx context.Context, job *structs.Job) {
	ctx, cancel := ctxutil.WithAsyncContext(ctx, settleTimeout)
	defer cancel()
	_ = s.refund(ctx, job)
}

// settle runs the side effects of a job reaching a terminal state,
// detached from the caller's cancellation.
func (s *Service) settle(ctx context.Context, job *structs.Job) {
	ctx, cancel := ctxutil.WithAsyncContext(ctx, settleTimeout)
	defer cancel()
	metrics.JobTransition(job.Operation, string(job.Status), true, job.Duration())
	if job.Status == structs.StatusFailed {
		_ = s.refund(ctx, job)
	}
	s.notifyIfDone(ctx, job.BatchID)
}

// notifyIfDone sends the completion notice the first time every job of the batch is terminal
func (s *Service) notifyIfDone(ctx context.Context, batchID string) {
	summary, err := s.summary(ctx, batchID)
	if err != nil {
		logger.Warn(ctx, "batch summary failed", "batch_id", batchID, "error", err)
		return
	}
	if !summary.Done {
		return
	}
	first, err := s.repo.MarkNotified(ctx, batchID)
	if err != nil || !first {
		return
	}
	logger.Info(ctx, "batch done", "batch_id", batchID, "completed", summary.Succeeded(), "failed", summary.Failed())
	if err := s.notifier.BatchDone(ctx, summary); err != nil {
		logger.Error(ctx, "batch notification failed", "batch_id", batchID, "error", err)
	}
}

func (s *Service) summary(ctx context.Context, batchID string) (*structs.BatchSummary, error) {
	b, err := s.repo.GetBatch(ctx, batchID)
	if err != nil {
		return nil, mapRepoErr(err)
	}
	jobs, err := s.repo.GetJobs(ctx, b.JobIDs)
	if err != nil {
		return nil, err
	}
	return structs.Summarize(b, jobs), nil
}

func mapRepoErr(err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return ErrNotFound
	}
	return err
}
