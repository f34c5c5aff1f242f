package structs

import "time"

// Batch groups jobs submitted together
type Batch struct {
	ID             string    `json:"id"`
	UserID         string    `json:"user_id"`
	Email          string    `json:"email,omitempty"`
	JobIDs         []string  `json:"job_ids"`
	Cost           int64     `json:"cost"`
	IdempotencyKey string    `json:"idempotency_key,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// BatchSummary is the polling view of a batch
type BatchSummary struct {
	*Batch
	Jobs     []*Job         `json:"jobs"`
	Counts   map[Status]int `json:"counts"`
	Refunded int64          `json:"refunded"`
	Done     bool           `json:"done"`
	Progress int            `json:"progress"`
}

// Summarize aggregates jobs of b. Jobs missing from storage count as failed.
func Summarize(b *Batch, jobs []*Job) *BatchSummary {
	s := &BatchSummary{
		Batch:  b,
		Jobs:   jobs,
		Counts: make(map[Status]int, len(Statuses)),
	}
	for _, st := range Statuses {
		s.Counts[st] = 0
	}
	terminal := 0
	for _, j := range jobs {
		s.Counts[j.Status]++
		if j.Status.Terminal() {
			terminal++
		}
		if j.Refunded {
			s.Refunded += j.Cost
		}
	}
	if missing := len(b.JobIDs) - len(jobs); missing > 0 {
		s.Counts[StatusFailed] += missing
		terminal += missing
	}
	total := len(b.JobIDs)
	if total == 0 {
		s.Done = true
		s.Progress = 100
		return s
	}
	s.Done = terminal >= total
	s.Progress = terminal * 100 / total
	return s
}

// Succeeded returns the number of completed jobs
func (s *BatchSummary) Succeeded() int { return s.Counts[StatusCompleted] }

// Failed returns the number of failed jobs
func (s *BatchSummary) Failed() int { return s.Counts[StatusFailed] }
