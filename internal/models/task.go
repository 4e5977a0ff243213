package models

import (
	"encoding/json"
	"time"
)

// Task statuses. pending → processing → {completed | failed}.
// completed and failed are terminal: no transition ever leaves them.
const (
	TaskStatusPending    = "pending"
	TaskStatusProcessing = "processing"
	TaskStatusCompleted  = "completed"
	TaskStatusFailed     = "failed"
)

// TerminalStatus reports whether status is completed or failed.
func TerminalStatus(status string) bool {
	return status == TaskStatusCompleted || status == TaskStatusFailed
}

// Task is one unit of submitted, paid-for scoring work. Rows are never
// deleted; a terminal task is the audit record of the attempt.
type Task struct {
	ID                  int64           `json:"id"`
	AccountID           int64           `json:"account_id"`
	ModelID             int64           `json:"model_id"`
	InputData           json.RawMessage `json:"input_data"`
	Status              string          `json:"status"`
	Prediction          *float64        `json:"prediction,omitempty"`
	ErrorMessage        *string         `json:"error_message,omitempty"`
	CreditsChargedCents int64           `json:"credits_charged_cents"`
	CreatedAt           time.Time       `json:"created_at"`
	StartedAt           *time.Time      `json:"started_at,omitempty"`
	CompletedAt         *time.Time      `json:"completed_at,omitempty"`
}
