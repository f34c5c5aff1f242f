package structs

import "time"

// Job is one image operation inside a batch
type Job struct {
	ID          string         `json:"id"`
	BatchID     string         `json:"batch_id"`
	UserID      string         `json:"user_id"`
	SourceURL   string         `json:"source_url"`
	Operation   string         `json:"operation"`
	Params      map[string]any `json:"params,omitempty"`
	Status      Status         `json:"status"`
	Attempts    int            `json:"attempts"`
	MaxAttempts int            `json:"max_attempts,omitempty"`
	ResultURL   string         `json:"result_url,omitempty"`
	Error       string         `json:"error,omitempty"`
	Cost        int64          `json:"cost"`
	Refunded    bool           `json:"refunded,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	StartedAt   *time.Time     `json:"started_at,omitempty"`
	FinishedAt  *time.Time     `json:"finished_at,omitempty"`
}

// Clone returns a deep copy of the job
func (j *Job) Clone() *Job {
	if j == nil {
		return nil
	}
	c := *j
	if j.Params != nil {
		c.Params = make(map[string]any, len(j.Params))
		for k, v := range j.Params {
			c.Params[k] = v
		}
	}
	if j.StartedAt != nil {
		t := *j.StartedAt
		c.StartedAt = &t
	}
	if j.FinishedAt != nil {
		t := *j.FinishedAt
		c.FinishedAt = &t
	}
	return &c
}

// NeedsRefund reports whether the job failed and its cost has not been returned yet
func (j *Job) NeedsRefund() bool {
	return j.Status == StatusFailed && !j.Refunded && j.Cost > 0
}

// Duration returns the time from creation to finish, zero while running
func (j *Job) Duration() time.Duration {
	if j.FinishedAt == nil {
		return 0
	}
	return j.FinishedAt.Sub(j.CreatedAt)
}

// DispatchMessage is the payload handed to the hosted job queue for a job
type DispatchMessage struct {
	JobID       string         `json:"job_id"`
	BatchID     string         `json:"batch_id"`
	UserID      string         `json:"user_id"`
	Operation   string         `json:"operation"`
	SourceURL   string         `json:"source_url"`
	Params      map[string]any `json:"params,omitempty"`
	MaxAttempts int            `json:"max_attempts"`
	CallbackURL string         `json:"callback_url,omitempty"`
	EnqueuedAt  time.Time      `json:"enqueued_at"`
}

// NewDispatchMessage builds the queue payload for j
func NewDispatchMessage(j *Job, callbackURL string, now time.Time) *DispatchMessage {
	return &DispatchMessage{
		JobID:       j.ID,
		BatchID:     j.BatchID,
		UserID:      j.UserID,
		Operation:   j.Operation,
		SourceURL:   j.SourceURL,
		Params:      j.Params,
		MaxAttempts: j.MaxAttempts,
		CallbackURL: callbackURL,
		EnqueuedAt:  now,
	}
}
