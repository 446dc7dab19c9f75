package task

// Status is the lifecycle state of an evaluation task. Submitted is
// terminal: once reached, every mutation on the task is rejected.
type Status string

const (
	StatusNotStarted       Status = "NOT_STARTED"
	StatusInProgress       Status = "IN_PROGRESS"
	StatusSubmissionQueued Status = "SUBMISSION_QUEUED"
	StatusSubmitted        Status = "SUBMITTED"
)

func (s Status) Terminal() bool {
	return s == StatusSubmitted
}

func (s Status) Valid() bool {
	switch s {
	case StatusNotStarted, StatusInProgress, StatusSubmissionQueued, StatusSubmitted:
		return true
	}
	return false
}

// Task is the per-reviewer evaluation assignment moving through the four
// workflow stages.
type Task struct {
	ID        string `json:"id"`
	UserID    string `json:"userId,omitempty"`
	StepOrder int    `json:"stepOrder"`
	Status    Status `json:"status"`
}
