package extract

import "math"

// Weights for the completeness half of the composite score. Total dominates
// because a receipt without one is rarely usable downstream.
const (
	weightTotal    = 0.35
	weightDate     = 0.25
	weightMerchant = 0.20
	weightTax      = 0.20

	engineShare       = 0.55
	completenessShare = 45.0
)

// Score blends the engine's mean word confidence (0..100) with field
// completeness into a single 0..100 composite. reviewThreshold bounds the
// empty case: with zero resolved fields the composite stays strictly below
// the threshold no matter how sure the engine was, so a receipt that
// yielded nothing always reaches a human.
func Score(engineConfidence, reviewThreshold float64, fields Fields) float64 {
	engine := clamp(engineConfidence, 0, 100)

	completeness := 0.0
	if fields.Total != nil {
		completeness += weightTotal
	}
	if fields.PurchaseDate != nil {
		completeness += weightDate
	}
	if fields.Merchant != nil {
		completeness += weightMerchant
	}
	if fields.SalesTax != nil {
		completeness += weightTax
	}

	score := engineShare*engine + completenessShare*completeness
	if fields.ResolvedCount() == 0 {
		// One rounding grain under the threshold.
		if limit := reviewThreshold - 0.01; score > limit {
			score = limit
		}
	}
	return math.Round(clamp(score, 0, 100)*100) / 100
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
