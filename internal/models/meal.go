// Package models defines the domain types shared by the meal resolution pipeline.
package models

import "time"

// Source identifies which provider produced a MacroResult.
type Source string

const (
	SourceBrand    Source = "brand"
	SourceEstimate Source = "externalEstimate"
	SourceGeneric  Source = "generic"
	SourceStub     Source = "stub"
	// SourceManual marks item macros entered or edited by the user.
	SourceManual Source = "manual"
)

// Meal slots.
const (
	SlotBreakfast = "breakfast"
	SlotLunch     = "lunch"
	SlotDinner    = "dinner"
	SlotSnack     = "snack"
)

// RawMention is one food phrase as produced by the extraction model.
// A nil Quantity means the phrase carried no amount.
type RawMention struct {
	Name     string   `json:"name"`
	Quantity *float64 `json:"quantity"`
	Unit     string   `json:"unit,omitempty"`
}

// CanonicalItem is the sanitized form of a RawMention.
// IsBranded is true exactly when Brand is non-empty.
type CanonicalItem struct {
	Name         string  `json:"name"`
	Quantity     float64 `json:"quantity"`
	Unit         string  `json:"unit,omitempty"`
	Brand        string  `json:"brand,omitempty"`
	ServingLabel string  `json:"serving_label,omitempty"`
	SizeLabel    string  `json:"size_label,omitempty"`
	IsBranded    bool    `json:"is_branded"`
}

// Macros holds energy and macro-nutrient amounts.
type Macros struct {
	Kcal     float64 `json:"kcal" yaml:"kcal"`
	ProteinG float64 `json:"protein_g" yaml:"protein_g"`
	CarbsG   float64 `json:"carbs_g" yaml:"carbs_g"`
	FatG     float64 `json:"fat_g" yaml:"fat_g"`
	FiberG   float64 `json:"fiber_g" yaml:"fiber_g"`
}

// MealTotals is the sum of all item macros of a meal.
type MealTotals = Macros

// Scale returns m with every field multiplied by f.
func (m Macros) Scale(f float64) Macros {
	return Macros{
		Kcal:     m.Kcal * f,
		ProteinG: m.ProteinG * f,
		CarbsG:   m.CarbsG * f,
		FatG:     m.FatG * f,
		FiberG:   m.FiberG * f,
	}
}

// Add returns the field-wise sum of m and o.
func (m Macros) Add(o Macros) Macros {
	return Macros{
		Kcal:     m.Kcal + o.Kcal,
		ProteinG: m.ProteinG + o.ProteinG,
		CarbsG:   m.CarbsG + o.CarbsG,
		FatG:     m.FatG + o.FatG,
		FiberG:   m.FiberG + o.FiberG,
	}
}

// AtwaterKcal returns 4*protein + 4*carbs + 9*fat.
func (m Macros) AtwaterKcal() float64 {
	return 4*m.ProteinG + 4*m.CarbsG + 9*m.FatG
}

// IsZero reports whether every field is zero.
func (m Macros) IsZero() bool {
	return m == Macros{}
}

// HasNegative reports whether any field is below zero.
func (m Macros) HasNegative() bool {
	return m.Kcal < 0 || m.ProteinG < 0 || m.CarbsG < 0 || m.FatG < 0 || m.FiberG < 0
}

// MacroResult is the resolved nutrition of one item.
type MacroResult struct {
	Name            string  `json:"name"`
	ServingLabel    string  `json:"serving_label"`
	GramsPerServing float64 `json:"grams_per_serving"`
	Macros          Macros  `json:"macros"`
	Confidence      float64 `json:"confidence"`
	Source          Source  `json:"source"`
}

// ResolvedItem pairs a canonical item with the result that resolved it.
type ResolvedItem struct {
	CanonicalItem
	Result MacroResult `json:"result"`
}

// HasMacros reports whether a provider actually supplied nutrition for the item.
func (r ResolvedItem) HasMacros() bool {
	return r.Result.Source != SourceStub && r.Result.Macros.Kcal > 0
}

// MealLogRecord is a persisted meal with its items.
type MealLogRecord struct {
	ID             string           `json:"id"`
	UserID         string           `json:"user_id"`
	IdempotencyKey string           `json:"idempotency_key"`
	EatenAt        time.Time        `json:"eaten_at"`
	MealSlot       string           `json:"meal_slot"`
	Source         string           `json:"source"`
	Totals         Macros           `json:"totals"`
	Items          []MealItemRecord `json:"items"`
	CreatedAt      time.Time        `json:"created_at"`
}

// MealItemRecord is one persisted item of a meal.
type MealItemRecord struct {
	MealLogID    string  `json:"meal_log_id,omitempty"`
	Position     int     `json:"position"`
	Name         string  `json:"name"`
	Quantity     float64 `json:"quantity"`
	Unit         string  `json:"unit,omitempty"`
	Brand        string  `json:"brand,omitempty"`
	ServingLabel string  `json:"serving_label,omitempty"`
	Macros       Macros  `json:"macros"`
	Confidence   float64 `json:"confidence"`
	Source       Source  `json:"source"`
}

// Projection is the end-of-day outlook included in an EnergyBudget.
type Projection struct {
	Total     float64 `json:"total"`
	Remaining float64 `json:"remaining"`
}

// EnergyBudget is the derived daily calorie budget of a user.
type EnergyBudget struct {
	TargetKcal          float64    `json:"target_kcal"`
	UsedKcal            float64    `json:"used_kcal"`
	RemainingKcal       float64    `json:"remaining_kcal"`
	RemainingPercentage float64    `json:"remaining_percentage"`
	MealsToday          int        `json:"meals_today"`
	Projection          Projection `json:"projection"`
	Fallback            bool       `json:"fallback,omitempty"`
}
