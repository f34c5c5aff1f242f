package structs

// Status represents the lifecycle state of a job
type Status string

const (
	StatusQueued     Status = "queued"
	StatusProcessing Status = "processing"
	StatusVerifying  Status = "verifying"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Statuses lists every status in lifecycle order
var Statuses = []Status{StatusQueued, StatusProcessing, StatusVerifying, StatusCompleted, StatusFailed}

// Valid reports whether s is a known status
func (s Status) Valid() bool {
	switch s {
	case StatusQueued, StatusProcessing, StatusVerifying, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// Terminal reports whether s absorbs every further event
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Rank orders statuses along the lifecycle; both terminal states share the top rank.
// Unknown statuses rank -1.
func (s Status) Rank() int {
	switch s {
	case StatusQueued:
		return 0
	case StatusProcessing:
		return 1
	case StatusVerifying:
		return 2
	case StatusCompleted, StatusFailed:
		return 3
	}
	return -1
}

func (s Status) String() string { return string(s) }
