package structs

import "time"

// EventType is the kind of progress a worker reports
type EventType string

const (
	EventStarted   EventType = "started"
	EventVerifying EventType = "verifying"
	EventCompleted EventType = "completed"
	EventFailed    EventType = "failed"
)

// Event is a worker callback for a single job attempt.
// ID identifies the delivery and is used for deduplication.
type Event struct {
	ID         string    `json:"id" validate:"required,max=128"`
	JobID      string    `json:"job_id" validate:"required"`
	Type       EventType `json:"type" validate:"required,oneof=started verifying completed failed"`
	Attempt    int       `json:"attempt" validate:"gte=0"`
	ResultURL  string    `json:"result_url,omitempty" validate:"omitempty,httpurl"`
	Error      string    `json:"error,omitempty" validate:"max=2048"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Target maps the event type to the status it moves a job to
func (e *Event) Target() Status {
	switch e.Type {
	case EventStarted:
		return StatusProcessing
	case EventVerifying:
		return StatusVerifying
	case EventCompleted:
		return StatusCompleted
	case EventFailed:
		return StatusFailed
	}
	return ""
}
