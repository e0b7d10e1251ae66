// Package budget derives the thermic effect of a meal and the user's
// remaining daily energy budget.
package budget

import (
	"math"

	"github.com/starford/macrolog/internal/models"
)

// Thermic effect rates per macro. Fiber is part of carbs.
const (
	ProteinTEFRate = 0.30
	CarbsTEFRate   = 0.12
	FatTEFRate     = 0.02
)

// TEFBreakdown is the thermic effect of feeding of a meal in kcal.
type TEFBreakdown struct {
	Kcal    float64 `json:"kcal"`
	Protein float64 `json:"protein"`
	Carbs   float64 `json:"carbs"`
	Fat     float64 `json:"fat"`
}

// TEF computes the energy spent digesting totals.
func TEF(totals models.MealTotals) TEFBreakdown {
	b := TEFBreakdown{
		Protein: round1(totals.ProteinG * 4 * ProteinTEFRate),
		Carbs:   round1(totals.CarbsG * 4 * CarbsTEFRate),
		Fat:     round1(totals.FatG * 9 * FatTEFRate),
	}
	b.Kcal = round1(b.Protein + b.Carbs + b.Fat)
	return b
}

// round1 rounds half up to one decimal and floors at zero.
func round1(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return math.Max(0, math.Floor(v*10+0.5)/10)
}
