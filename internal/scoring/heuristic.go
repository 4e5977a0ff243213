package scoring

import "context"

// Seeded catalog model names.
const (
	ModelCourtOrderSuitability = "court_order_suitability_v1"
	ModelDebtRiskScorer        = "debt_risk_scorer_v1"
)

// CourtOrderScore is the reference heuristic for court-order suitability.
// A real deployment would swap in a trained model behind the same signature.
func CourtOrderScore(_ context.Context, f Features) (float64, error) {
	score := 0.5

	if f.TotalDebt > 0 && f.TotalDebt <= 100000 {
		score += 0.2
	} else if f.TotalDebt > 100000 {
		score -= 0.1
	}

	if f.DaysOverdue > 90 {
		score += 0.1
	}

	if f.IsPhysicalPerson {
		score += 0.05
	}

	score -= f.PaymentsRatio * 0.2

	return clamp01(score), nil
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
