package budget

import (
	"math"
	"strings"

	"github.com/starford/macrolog/internal/models"
)

// Body fat cutoffs choosing between Katch-McArdle, Mifflin-St Jeor and
// their average.
const (
	maleKatchCutoff     = 15
	femaleKatchCutoff   = 22
	maleMifflinCutoff   = 25
	femaleMifflinCutoff = 35
)

var activityMultipliers = map[string]float64{
	"sedentary":   1.2,
	"light":       1.375,
	"moderate":    1.55,
	"active":      1.725,
	"very_active": 1.9,
}

// ActivityMultiplier returns the TDEE multiplier for level, defaulting to
// sedentary.
func ActivityMultiplier(level string) float64 {
	level = strings.ReplaceAll(strings.ToLower(strings.TrimSpace(level)), " ", "_")
	if m, ok := activityMultipliers[level]; ok {
		return m
	}
	return activityMultipliers["sedentary"]
}

// BMR returns the basal metabolic rate of m, or 0 when the metrics are
// incomplete. Lean users with a known body fat use Katch-McArdle, users
// above the Mifflin cutoff use Mifflin-St Jeor and the band in between uses
// the average of both.
func BMR(m models.BodyMetrics) float64 {
	sex := strings.ToLower(m.Sex)
	if m.WeightKg <= 0 || m.HeightCm <= 0 || m.Age <= 0 || (sex != "male" && sex != "female") {
		return 0
	}

	mifflin := 10*m.WeightKg + 6.25*m.HeightCm - 5*float64(m.Age)
	if sex == "male" {
		mifflin += 5
	} else {
		mifflin -= 161
	}
	if m.BodyFatPct <= 0 {
		return mifflin
	}

	bf := math.Max(3, math.Min(m.BodyFatPct, 60))
	katch := 370 + 21.6*m.WeightKg*(1-bf/100)

	katchCutoff, mifflinCutoff := float64(maleKatchCutoff), float64(maleMifflinCutoff)
	if sex == "female" {
		katchCutoff, mifflinCutoff = femaleKatchCutoff, femaleMifflinCutoff
	}
	switch {
	case bf <= katchCutoff:
		return katch
	case bf >= mifflinCutoff:
		return mifflin
	}
	return (mifflin + katch) / 2
}

// DerivedTarget is the daily target computed from body metrics, or 0.
func DerivedTarget(m models.BodyMetrics) float64 {
	bmr := BMR(m)
	if bmr <= 0 {
		return 0
	}
	return math.Round(bmr * ActivityMultiplier(m.ActivityLevel))
}
