package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/studio233/batchd/batch/structs"
	"github.com/studio233/batchd/billing"
	"github.com/studio233/batchd/logging/logger"
	"github.com/studio233/batchd/logging/observes"
	"github.com/studio233/batchd/metrics"
	"github.com/studio233/batchd/validator"
	"go.opentelemetry.io/otel/attribute"
)

// Submit debits the quota for a batch, stores its jobs and dispatches them.
// A repeated idempotency key returns the batch created by the first call.
func (s *Service) Submit(ctx context.Context, body *structs.SubmitBatchBody) (summary *structs.BatchSummary, err error) {
	ctx, span := observes.StartSpan(ctx, "batch.submit",
		attribute.String("user_id", body.UserID),
		attribute.Int("items", len(body.Items)))
	defer func() { observes.EndSpan(span, err) }()

	if err := s.validateSubmit(body); err != nil {
		return nil, err
	}

	batchID := s.newBatchID()
	if body.IdempotencyKey != "" {
		existing, claimed, err := s.repo.ClaimIdempotency(ctx, body.UserID, body.IdempotencyKey, batchID)
		if err != nil {
			return nil, err
		}
		if !claimed {
			return s.replay(ctx, body.UserID, existing)
		}
	}
	release := func() {
		if body.IdempotencyKey == "" {
			return
		}
		if err := s.repo.ReleaseIdempotency(ctx, body.UserID, body.IdempotencyKey); err != nil {
			logger.Warn(ctx, "release idempotency key failed", "batch_id", batchID, "error", err)
		}
	}

	// stored scores carry microseconds
	now := s.now().UTC().Truncate(time.Microsecond)
	b := &structs.Batch{
		ID:             batchID,
		UserID:         body.UserID,
		Email:          body.Email,
		IdempotencyKey: body.IdempotencyKey,
		CreatedAt:      now,
	}
	jobs := make([]*structs.Job, len(body.Items))
	perOp := make(map[string]int)
	for i, item := range body.Items {
		cost := s.costs.Of(item.Operation)
		jobs[i] = &structs.Job{
			ID:          s.newJobID(),
			BatchID:     batchID,
			UserID:      body.UserID,
			SourceURL:   item.SourceURL,
			Operation:   item.Operation,
			Params:      item.Params,
			Status:      structs.StatusQueued,
			MaxAttempts: s.cfg.MaxAttempts,
			Cost:        cost,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		b.JobIDs = append(b.JobIDs, jobs[i].ID)
		b.Cost += cost
		perOp[item.Operation]++
	}

	debitKey := "batch:" + batchID
	if b.Cost > 0 {
		err := s.quota.Debit(ctx, body.UserID, b.Cost, debitKey)
		metrics.QuotaOp("debit", err)
		if err != nil {
			release()
			if errors.Is(err, billing.ErrInsufficientQuota) {
				return nil, ErrQuotaExceeded
			}
			return nil, fmt.Errorf("debit quota: %w", err)
		}
	}

	if err := s.repo.CreateBatch(ctx, b, jobs); err != nil {
		if b.Cost > 0 {
			rerr := s.quota.Refund(ctx, body.UserID, b.Cost, "refund:"+debitKey)
			metrics.QuotaOp("refund", rerr)
			if rerr != nil {
				logger.Error(ctx, "batch refund after failed persist", "batch_id", batchID, "cost", b.Cost, "error", rerr)
				observes.CaptureError(ctx, fmt.Errorf("refund batch %s: %w", batchID, rerr))
			}
		}
		release()
		return nil, fmt.Errorf("persist batch: %w", err)
	}
	metrics.BatchSubmitted(perOp)
	logger.Info(ctx, "batch submitted", "batch_id", batchID, "user_id", body.UserID, "jobs", len(jobs), "cost", b.Cost)

	for i, job := range jobs {
		msg := structs.NewDispatchMessage(job, s.callbackURL, now)
		derr := s.dispatcher.Dispatch(ctx, msg)
		if derr == nil {
			continue
		}
		logger.Error(ctx, "dispatch failed", "job_id", job.ID, "batch_id", batchID, "error", derr)
		failed, changed, uerr := s.repo.UpdateJob(ctx, job.ID, func(j *structs.Job) (*structs.Job, bool, error) {
			next, ok := structs.Fail(j, "dispatch failed: "+derr.Error(), s.now().UTC())
			return next, ok, nil
		})
		if uerr != nil {
			logger.Error(ctx, "mark undispatched job failed", "job_id", job.ID, "error", uerr)
			continue
		}
		if changed {
			metrics.JobTransition(failed.Operation, string(failed.Status), true, failed.Duration())
			s.refund(ctx, failed)
		}
		jobs[i] = failed
	}

	summary = structs.Summarize(b, jobs)
	if summary.Done {
		s.notifyIfDone(ctx, batchID)
	}
	return summary, nil
}

func (s *Service) validateSubmit(body *structs.SubmitBatchBody) error {
	if body.UserID == "" {
		return fmt.Errorf("%w: missing user", ErrInvalidRequest)
	}
	if err := validator.Struct(body); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	if s.cfg.MaxJobs > 0 && len(body.Items) > s.cfg.MaxJobs {
		return fmt.Errorf("%w: %d > %d", ErrBatchTooLarge, len(body.Items), s.cfg.MaxJobs)
	}
	for _, item := range body.Items {
		if !s.operations[item.Operation] {
			return fmt.Errorf("%w: %s", ErrUnknownOperation, item.Operation)
		}
	}
	return nil
}

// replay returns the batch bound to an idempotency key
func (s *Service) replay(ctx context.Context, userID, batchID string) (*structs.BatchSummary, error) {
	summary, err := s.summary(ctx, batchID)
	if errors.Is(err, ErrNotFound) {
		return nil, ErrSubmissionInProgress
	}
	if err != nil {
		return nil, err
	}
	if summary.UserID != userID {
		return nil, ErrSubmissionInProgress
	}
	logger.Info(ctx, "batch submission replayed", "batch_id", batchID, "user_id", userID)
	return summary, nil
}
