package models

// UserTargets holds the stored energy targets of a user. Zero means unset.
type UserTargets struct {
	ProteinG    float64 `json:"protein_g"`
	CarbsG      float64 `json:"carbs_g"`
	FatG        float64 `json:"fat_g"`
	TDEE        float64 `json:"tdee"`
	ProfileKcal float64 `json:"profile_kcal"`
}

// BodyMetrics are the inputs of the derived TDEE calculation.
type BodyMetrics struct {
	Sex           string  `json:"sex"`
	Age           int     `json:"age"`
	HeightCm      float64 `json:"height_cm"`
	WeightKg      float64 `json:"weight_kg"`
	ActivityLevel string  `json:"activity_level"`
	BodyFatPct    float64 `json:"body_fat_pct,omitempty"`
}

// Preferences are per-user locale settings.
type Preferences struct {
	Timezone    string `json:"timezone"`
	CountryCode string `json:"country_code"`
}

// Usage is a user's logged energy for the current local day.
type Usage struct {
	UsedKcal  float64 `json:"used_kcal"`
	MealCount int     `json:"meal_count"`
}

// GenericFood is a reference nutrition row for an unbranded food.
// An empty CountryCode applies to every country.
type GenericFood struct {
	Name            string  `json:"name" yaml:"name"`
	CountryCode     string  `json:"country_code,omitempty" yaml:"country"`
	ServingLabel    string  `json:"serving_label" yaml:"serving"`
	GramsPerServing float64 `json:"grams_per_serving" yaml:"grams"`
	Macros          Macros  `json:"macros" yaml:"macros"`
	Confidence      float64 `json:"confidence" yaml:"confidence"`
}
