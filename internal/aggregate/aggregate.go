// Package aggregate sums resolved items into meal totals and reconciles the
// total energy against the macro-derived energy.
package aggregate

import (
	"fmt"
	"math"

	"github.com/starford/macrolog/internal/models"
)

// Tolerance is the largest relative deviation between reported and
// macro-derived kcal that is accepted as-is.
const Tolerance = 0.10

// Reconciliation describes a correction applied to the meal totals.
type Reconciliation struct {
	Reconciled     bool    `json:"reconciled"`
	Reason         string  `json:"reason,omitempty"`
	OriginalKcal   float64 `json:"original_kcal,omitempty"`
	CalculatedKcal float64 `json:"calculated_kcal,omitempty"`
}

// Result is an aggregated meal.
type Result struct {
	Items          []models.MacroResult `json:"items"`
	Totals         models.MealTotals    `json:"totals"`
	Reconciliation Reconciliation       `json:"reconciliation"`
}

// Aggregate sums results and reconciles the totals. No intermediate
// rounding is applied.
func Aggregate(results []models.MacroResult) Result {
	totals, rec := Reconcile(Sum(results))
	items := make([]models.MacroResult, len(results))
	copy(items, results)
	return Result{Items: items, Totals: totals, Reconciliation: rec}
}

// Sum returns the field-wise sum of the macros of results.
func Sum(results []models.MacroResult) models.MealTotals {
	var t models.MealTotals
	for _, r := range results {
		t = t.Add(r.Macros)
	}
	return t
}

// Reconcile applies the 4/4/9 rule: when the reported kcal deviates from
// 4P+4C+9F by more than Tolerance, the macros win and kcal is replaced.
// Totals without macro energy are returned unchanged.
func Reconcile(totals models.MealTotals) (models.MealTotals, Reconciliation) {
	calc := totals.AtwaterKcal()
	if calc <= 0 {
		return totals, Reconciliation{}
	}
	if math.Abs(totals.Kcal-calc)/calc <= Tolerance {
		return totals, Reconciliation{}
	}
	rec := Reconciliation{
		Reconciled:     true,
		Reason:         fmt.Sprintf("Adjusted kcal from %.0f to %.0f to match macros (4/4/9 rule)", totals.Kcal, calc),
		OriginalKcal:   totals.Kcal,
		CalculatedKcal: calc,
	}
	totals.Kcal = calc
	return totals, rec
}
