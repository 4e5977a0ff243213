package models

import (
	"time"

	"github.com/google/uuid"
)

// Ledger entry kinds.
const (
	LedgerKindCredit = "credit"
	LedgerKindDebit  = "debit"
)

// CentsPerCredit converts whole credits (model prices) into ledger cents.
// All ledger amounts are int64 hundredths of a credit.
const CentsPerCredit = 100

// LedgerEntry is an immutable record of one balance change. Amount is the
// absolute value moved; the sign is carried by Kind. OpKey, when non-nil, is
// the caller's idempotency token: two operations with the same key apply once.
type LedgerEntry struct {
	ID          int64      `json:"id"`
	AccountID   int64      `json:"account_id"`
	AmountCents int64      `json:"amount_cents"`
	Kind        string     `json:"kind"`
	Reason      string     `json:"reason"`
	OpKey       *uuid.UUID `json:"op_key,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// Signed returns the entry's delta as applied to the account balance.
func (e *LedgerEntry) Signed() int64 {
	if e.Kind == LedgerKindDebit {
		return -e.AmountCents
	}
	return e.AmountCents
}
