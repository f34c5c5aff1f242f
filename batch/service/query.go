package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/studio233/batchd/batch/structs"
	"github.com/studio233/batchd/logging/logger"
	"github.com/studio233/batchd/paging"
)

// GetJob returns a job owned by userID
func (s *Service) GetJob(ctx context.Context, userID, jobID string) (*structs.Job, error) {
	j, err := s.repo.GetJob(ctx, jobID)
	if err != nil {
		return nil, mapRepoErr(err)
	}
	if j.UserID != userID {
		return nil, ErrNotFound
	}
	return j, nil
}

// GetBatch returns the polling summary of a batch owned by userID
func (s *Service) GetBatch(ctx context.Context, userID, batchID string) (*structs.BatchSummary, error) {
	summary, err := s.summary(ctx, batchID)
	if err != nil {
		return nil, err
	}
	if summary.UserID != userID {
		return nil, ErrNotFound
	}
	return summary, nil
}

// ListBatches pages through a user's batches, newest first
func (s *Service) ListBatches(ctx context.Context, params *structs.ListParams) (*paging.Result[*structs.Batch], error) {
	fetch := func(ctx context.Context, after paging.Cursor, limit int) ([]*structs.Batch, int, error) {
		return s.repo.ListBatches(ctx, params.UserID, after, limit)
	}
	position := func(b *structs.Batch) paging.Cursor { return paging.Cursor{At: b.CreatedAt, ID: b.ID} }

	page, err := paging.Paginate(ctx, paging.Params{Cursor: params.Cursor, Limit: params.Limit}, fetch, position)
	if errors.Is(err, paging.ErrInvalidCursor) {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	return page, err
}

// Cancel fails every queued job of the batch and refunds them.
// Jobs already picked up by a worker keep running.
func (s *Service) Cancel(ctx context.Context, userID, batchID string) (*structs.BatchSummary, error) {
	b, err := s.repo.GetBatch(ctx, batchID)
	if err != nil {
		return nil, mapRepoErr(err)
	}
	if b.UserID != userID {
		return nil, ErrNotFound
	}

	canceled := 0
	for _, id := range b.JobIDs {
		next, changed, err := s.repo.UpdateJob(ctx, id, func(j *structs.Job) (*structs.Job, bool, error) {
			if j.Status != structs.StatusQueued {
				return j, false, nil
			}
			n, ok := structs.Fail(j, ReasonCanceled, s.now().UTC())
			return n, ok, nil
		})
		if err != nil {
			logger.Warn(ctx, "cancel job failed", "job_id", id, "error", err)
			continue
		}
		if changed {
			canceled++
			s.settle(ctx, next)
		}
	}
	if canceled == 0 {
		return nil, ErrBatchClosed
	}
	logger.Info(ctx, "batch canceled", "batch_id", batchID, "user_id", userID, "jobs", canceled)
	return s.summary(ctx, batchID)
}
