package models

// ScoringModel is a catalog entry for one pluggable scorer variant.
// Read-mostly: seeded at startup, never mutated by request traffic.
type ScoringModel struct {
	ID           int64  `json:"id"`
	Name         string `json:"name"`
	Description  string `json:"description"`
	PriceCredits int64  `json:"price_credits"`
}

// PriceCents returns the charge for one task in ledger cents.
func (m *ScoringModel) PriceCents() int64 {
	return m.PriceCredits * CentsPerCredit
}
