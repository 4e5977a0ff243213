package models

import "time"

// PredictionRecord is the denormalized history row written when a task
// completes. Created once, in the same transaction as the task's completed
// transition, and never mutated; history queries never touch the live tasks
// table.
type PredictionRecord struct {
	ID                  int64     `json:"id"`
	AccountID           int64     `json:"account_id"`
	ModelID             int64     `json:"model_id"`
	TotalDebt           float64   `json:"total_debt"`
	PenaltyAmount       float64   `json:"penalty_amount"`
	DaysOverdue         int       `json:"days_overdue"`
	PaymentsRatio       float64   `json:"payments_ratio"`
	IsPhysicalPerson    bool      `json:"is_physical_person"`
	Prediction          float64   `json:"prediction"`
	CreditsChargedCents int64     `json:"credits_charged_cents"`
	CreatedAt           time.Time `json:"created_at"`
}
