package structs

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrUnknownEvent  = errors.New("unknown event type")
	ErrMissingResult = errors.New("completed event requires a result url")
	ErrJobMismatch   = errors.New("event does not belong to job")
)

const defaultFailure = "failed"

// Transition applies ev to job and returns the next state.
// The input job is never modified. changed is false when the event is a
// duplicate, out of order, from an older attempt or hits a terminal job.
func Transition(job *Job, ev *Event, now time.Time) (next *Job, changed bool, err error) {
	if ev.JobID != "" && ev.JobID != job.ID {
		return job, false, fmt.Errorf("%w: %s != %s", ErrJobMismatch, ev.JobID, job.ID)
	}
	target := ev.Target()
	if target == "" {
		return job, false, fmt.Errorf("%w: %q", ErrUnknownEvent, ev.Type)
	}
	if target == StatusCompleted && ev.ResultURL == "" {
		return job, false, ErrMissingResult
	}
	if job.Status.Terminal() {
		return job, false, nil
	}

	attempt := ev.Attempt
	if attempt <= 0 {
		attempt = max(job.Attempts, 1)
	}
	if attempt < job.Attempts {
		return job, false, nil
	}

	current := job.Status
	retry := attempt > job.Attempts
	if retry {
		// a new attempt starts over from queued, whatever the previous attempt reached
		current = StatusQueued
	}
	if target.Rank() <= current.Rank() {
		return job, false, nil
	}

	next = job.Clone()
	if retry {
		next.Attempts = attempt
		next.ResultURL = ""
		next.Error = ""
	}
	next.Status = target
	next.UpdatedAt = now
	if next.StartedAt == nil {
		started := now
		next.StartedAt = &started
	}
	switch target {
	case StatusCompleted:
		next.ResultURL = ev.ResultURL
		next.Error = ""
		finish(next, now)
	case StatusFailed:
		next.Error = ev.Error
		if next.Error == "" {
			next.Error = defaultFailure
		}
		finish(next, now)
	}
	return next, true, nil
}

// Fail moves a non-terminal job to failed with reason. Terminal jobs are returned unchanged.
func Fail(job *Job, reason string, now time.Time) (*Job, bool) {
	if job.Status.Terminal() {
		return job, false
	}
	next := job.Clone()
	next.Status = StatusFailed
	next.Error = reason
	if next.Error == "" {
		next.Error = defaultFailure
	}
	next.UpdatedAt = now
	finish(next, now)
	return next, true
}

func finish(j *Job, now time.Time) {
	finished := now
	j.FinishedAt = &finished
}
