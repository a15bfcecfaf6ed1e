package models

import "time"

// Job ledger states.
const (
	JobQueued     = "queued"
	JobProcessing = "processing"
	JobCompleted  = "completed"
	JobFailed     = "failed"
)

// JobRecord tracks a request through the pipeline for producers that poll.
type JobRecord struct {
	RequestID    string    `json:"request_id"`
	UserID       string    `json:"user_id"`
	Status       string    `json:"status"`
	ReportID     string    `json:"report_id,omitempty"`
	ErrorMessage string    `json:"error_message,omitempty"`
	Attempts     int       `json:"attempts"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}
