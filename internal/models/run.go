package models

import "time"

// RunStatus represents the state of a batch run.
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// RunSummary describes the outcome of one batch run over a dataset.
type RunSummary struct {
	RunID   string    `json:"run_id"`
	Tool    string    `json:"tool"`
	Dataset string    `json:"dataset"`
	Model   string    `json:"model"`
	Status  RunStatus `json:"status"`
	Error   *string   `json:"error,omitempty"`

	Total       int `json:"total"`
	Processed   int `json:"processed"`
	Skipped     int `json:"skipped"`
	Failed      int `json:"failed"`
	Resumed     int `json:"resumed"`
	Invalidated int `json:"invalidated"`

	FailedIDs []string `json:"failed_ids,omitempty"`

	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Duration returns the wall time of a finished run.
func (s RunSummary) Duration() time.Duration {
	if s.CompletedAt == nil {
		return 0
	}
	return s.CompletedAt.Sub(s.StartedAt)
}
