package models

import "time"

const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
)

// ResponseMessage is published on the response queue once per consumed request.
type ResponseMessage struct {
	RequestID    string    `json:"request_id"`
	UserID       string    `json:"user_id"`
	ReportID     string    `json:"report_id"`
	Status       string    `json:"status"`
	ErrorMessage *string   `json:"error_message"`
	Timestamp    time.Time `json:"timestamp"`
}

// EnqueueResponse is returned to HTTP producers after a request is queued.
type EnqueueResponse struct {
	RequestID string `json:"request_id"`
	UserID    string `json:"user_id"`
	Status    string `json:"status"`
}
