package pipeline

import (
	"fmt"
	"math"
	"strings"
)

// VerificationView renders the confirmation card shown for meals routed to
// verify.
func VerificationView(a *Analysis) string {
	var b strings.Builder
	b.WriteString("Review and confirm:\n\n")

	for _, it := range a.Items {
		m := it.Result.Macros
		fmt.Fprintf(&b, "%s (%dg basis)\n", itemLine(it.Quantity, it.Unit, it.Name), whole(it.Result.GramsPerServing))
		fmt.Fprintf(&b, "• Calories: %d kcal\n", whole(m.Kcal))
		fmt.Fprintf(&b, "• Protein: %s g\n", oneDecimal(m.ProteinG))
		fmt.Fprintf(&b, "• Carbs: %s g\n", oneDecimal(m.CarbsG))
		fmt.Fprintf(&b, "• Fat: %s g\n", oneDecimal(m.FatG))
		if m.FiberG > 0 {
			fmt.Fprintf(&b, "• Fiber: %s g\n", oneDecimal(m.FiberG))
		}
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "Total: %d kcal\n", whole(a.Totals.Kcal))
	if a.Totals.FiberG > 0 {
		fmt.Fprintf(&b, "Total fiber: %s g\n", oneDecimal(a.Totals.FiberG))
	}
	fmt.Fprintf(&b, "TEF: %d kcal\n", whole(a.TEF.Kcal))
	fmt.Fprintf(&b, "Net: %d kcal\n\n", whole(a.Totals.Kcal-a.TEF.Kcal))
	fmt.Fprintf(&b, "Remaining today: %d kcal\n\n", whole(a.Budget.RemainingKcal))
	b.WriteString("[Confirm & Log]")
	return b.String()
}

func itemLine(qty float64, unit, name string) string {
	parts := []string{oneDecimal(qty)}
	if unit != "" {
		parts = append(parts, unit)
	}
	return strings.Join(append(parts, name), " ")
}

func whole(v float64) int {
	return int(math.Floor(v + 0.5))
}

// oneDecimal formats v with at most one decimal, dropping a trailing ".0".
func oneDecimal(v float64) string {
	s := fmt.Sprintf("%.1f", math.Floor(v*10+0.5)/10)
	return strings.TrimSuffix(s, ".0")
}
