package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/studio233/batchd/batch/data/repository"
	"github.com/studio233/batchd/batch/structs"
	"github.com/studio233/batchd/logging/logger"
	"github.com/studio233/batchd/logging/observes"
	"github.com/studio233/batchd/metrics"
	"github.com/studio233/batchd/validator"
	"go.opentelemetry.io/otel/attribute"
)

// EventResult describes what an event did to its job
type EventResult struct {
	Outcome string       `json:"outcome"`
	Job     *structs.Job `json:"job,omitempty"`
}

// ApplyEvent reconciles a worker event into the job record. The transition
// runs as an atomic read-modify-write so concurrent deliveries cannot regress
// the status. The delivery id is recorded only after the write lands, so a
// delivery that failed midway is applied again when the broker redelivers it.
func (s *Service) ApplyEvent(ctx context.Context, ev *structs.Event) (res *EventResult, err error) {
	ctx, span := observes.StartSpan(ctx, "batch.apply_event",
		attribute.String("job_id", ev.JobID),
		attribute.String("event_type", string(ev.Type)),
		attribute.Int("attempt", ev.Attempt))
	defer func() { observes.EndSpan(span, err) }()

	if err := validator.Struct(ev); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEvent, err)
	}

	next, changed, err := s.repo.UpdateJob(ctx, ev.JobID, func(j *structs.Job) (*structs.Job, bool, error) {
		return structs.Transition(j, ev, s.now().UTC())
	})
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("job %s: %w", ev.JobID, ErrNotFound)
		}
		return nil, err
	}

	first, merr := s.repo.MarkEvent(ctx, ev.ID, s.cfg.EventTTL)
	if merr != nil {
		logger.Warn(ctx, "mark event failed", "event_id", ev.ID, "error", merr)
		first = true
	}

	if !changed {
		if next.NeedsRefund() {
			// an earlier refund of this job failed
			s.retryRefund(ctx, next)
		}
		if !first {
			logger.Debug(ctx, "duplicate event", "event_id", ev.ID, "job_id", ev.JobID)
			return &EventResult{Outcome: metrics.OutcomeDuplicate, Job: next}, nil
		}
		logger.Debug(ctx, "event ignored", "event_id", ev.ID, "job_id", ev.JobID, "type", ev.Type, "attempt", ev.Attempt)
		return &EventResult{Outcome: metrics.OutcomeIgnored, Job: next}, nil
	}

	logger.Info(ctx, "job transitioned", "job_id", next.ID, "status", next.Status, "attempt", next.Attempts)
	if next.Status.Terminal() {
		s.settle(ctx, next)
	} else {
		metrics.JobTransition(next.Operation, string(next.Status), false, 0)
	}
	return &EventResult{Outcome: metrics.OutcomeApplied, Job: next}, nil
}
