// Package confidence scores a resolved meal and decides whether it can be
// saved without asking the user.
package confidence

import (
	"math"
	"strings"

	"github.com/starford/macrolog/internal/models"
)

// Route is the outcome of the gate.
type Route string

const (
	RouteAutosave      Route = "autosave"
	RouteClarification Route = "clarification"
	RouteVerify        Route = "verify"
)

// Weights blend the four factors into the overall score.
type Weights struct {
	Extraction    float64
	Completeness  float64
	MacroValidity float64
	CalorieRange  float64
}

// Config holds the weights and thresholds of the gate.
type Config struct {
	Weights         Weights
	MinOverall      float64
	MinCompleteness float64
	MinKcal         float64
	MaxKcal         float64
	// LowConfidence is the item confidence below which a warning is raised.
	LowConfidence float64
}

// DefaultConfig returns the stock weights 0.4/0.3/0.2/0.1 and the stock gates.
func DefaultConfig() Config {
	return Config{
		Weights:         Weights{Extraction: 0.4, Completeness: 0.3, MacroValidity: 0.2, CalorieRange: 0.1},
		MinOverall:      0.90,
		MinCompleteness: 0.90,
		MinKcal:         50,
		MaxKcal:         1500,
		LowConfidence:   0.7,
	}
}

// Factors are the individual signals, each in [0,1].
type Factors struct {
	Extraction    float64 `json:"llm_or_extraction"`
	Completeness  float64 `json:"completeness"`
	MacroValidity float64 `json:"macro_validity"`
	CalorieRange  float64 `json:"calorie_range_sanity"`
}

// Gates must all pass for a meal to be saved automatically.
type Gates struct {
	ConfidencePass  bool `json:"confidence_pass"`
	HasItems        bool `json:"has_items"`
	HasCompleteData bool `json:"has_complete_data"`
	ValidCalories   bool `json:"valid_calories"`
}

// Pass reports whether every gate passed.
func (g Gates) Pass() bool {
	return g.ConfidencePass && g.HasItems && g.HasCompleteData && g.ValidCalories
}

// Score is the evaluated confidence of a meal.
type Score struct {
	Overall float64 `json:"overall"`
	Factors Factors `json:"factors"`
	Gates   Gates   `json:"gates"`
}

// Gate evaluates and routes meals.
type Gate struct {
	cfg Config
}

// New returns a gate using cfg.
func New(cfg Config) *Gate {
	return &Gate{cfg: cfg}
}

// Config returns the gate configuration.
func (g *Gate) Config() Config { return g.cfg }

// Evaluate scores items and totals. extraction is the confidence reported by
// the extraction step.
func (g *Gate) Evaluate(items []models.ResolvedItem, totals models.MealTotals, extraction float64) Score {
	f := Factors{
		Extraction:    clamp01(extraction),
		Completeness:  Completeness(items),
		MacroValidity: MacroValidity(items, totals),
		CalorieRange:  g.calorieRange(totals.Kcal),
	}
	w := g.cfg.Weights
	overall := f.Extraction*w.Extraction +
		f.Completeness*w.Completeness +
		f.MacroValidity*w.MacroValidity +
		f.CalorieRange*w.CalorieRange

	return Score{
		Overall: overall,
		Factors: f,
		Gates: Gates{
			ConfidencePass:  overall >= g.cfg.MinOverall,
			HasItems:        len(items) >= 1,
			HasCompleteData: f.Completeness >= g.cfg.MinCompleteness,
			ValidCalories:   totals.Kcal >= g.cfg.MinKcal && totals.Kcal <= g.cfg.MaxKcal,
		},
	}
}

// Completeness averages the per-item completeness. Each item earns a quarter
// for a name, a positive quantity, a unit and resolved macros.
func Completeness(items []models.ResolvedItem) float64 {
	if len(items) == 0 {
		return 0
	}
	var total float64
	for _, it := range items {
		var s float64
		if strings.TrimSpace(it.Name) != "" {
			s += 0.25
		}
		if it.Quantity > 0 {
			s += 0.25
		}
		if hasUnit(it.CanonicalItem) {
			s += 0.25
		}
		if it.HasMacros() {
			s += 0.25
		}
		total += s
	}
	return total / float64(len(items))
}

// MacroValidity starts at 1 and subtracts 0.3 when summed item kcal deviate
// from summed item macro energy by more than 5%, 0.3 when the total kcal
// deviate from the total macro energy by more than 10%, and 0.4 when any
// total is negative.
func MacroValidity(items []models.ResolvedItem, totals models.MealTotals) float64 {
	if len(items) == 0 {
		return 0
	}
	score := 1.0

	var itemKcal, itemCalc float64
	for _, it := range items {
		itemKcal += it.Result.Macros.Kcal
		itemCalc += it.Result.Macros.AtwaterKcal()
	}
	if itemCalc > 0 && math.Abs(itemKcal-itemCalc)/itemCalc > 0.05 {
		score -= 0.3
	}
	if totals.Kcal > 0 && math.Abs(totals.AtwaterKcal()-totals.Kcal)/totals.Kcal > 0.10 {
		score -= 0.3
	}
	if totals.HasNegative() {
		score -= 0.4
	}
	return math.Max(0, score)
}

// calorieRange is 0 below the minimum, ramps up to 100 kcal, is 1 inside the
// range and decays linearly over the 1000 kcal above the maximum.
func (g *Gate) calorieRange(kcal float64) float64 {
	switch {
	case kcal < g.cfg.MinKcal:
		return 0
	case kcal > g.cfg.MaxKcal:
		return math.Max(0, 1-(kcal-g.cfg.MaxKcal)/1000)
	case kcal < 100:
		return kcal / 100
	}
	return 1
}

// hasUnit treats a serving or size label as a unit of measure.
func hasUnit(it models.CanonicalItem) bool {
	return strings.TrimSpace(it.Unit) != "" || it.ServingLabel != "" || it.SizeLabel != ""
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Min(1, math.Max(0, v))
}
