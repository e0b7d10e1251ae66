package api

import (
	"errors"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/macrolog/internal/models"
	"github.com/starford/macrolog/internal/pipeline"
)

var slots = []any{models.SlotBreakfast, models.SlotLunch, models.SlotDinner, models.SlotSnack}

// AnalyzeRequest is the request body of POST /meals/analyze.
type AnalyzeRequest struct {
	Text       string            `json:"text" example:"2 eggs, toast and a banana"`
	EatenAt    *time.Time        `json:"eaten_at,omitempty"`
	MealSlot   string            `json:"meal_slot,omitempty" example:"breakfast"`
	AutoLog    bool              `json:"auto_log"`
	BrandHints map[string]string `json:"brand_hints,omitempty"`
}

// Validate validates the request.
func (r *AnalyzeRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.Text, validation.Required, validation.Length(1, 2000)),
		validation.Field(&r.MealSlot, validation.In(slots...)),
		validation.Field(&r.BrandHints, validation.Length(0, 20)),
	)
}

// ConfirmItem is one reviewed item of POST /meals/confirm.
type ConfirmItem struct {
	Name     string         `json:"name" example:"greek yogurt"`
	Quantity float64        `json:"quantity" example:"1"`
	Unit     string         `json:"unit,omitempty" example:"cup"`
	Brand    string         `json:"brand,omitempty"`
	Macros   *models.Macros `json:"macros,omitempty"`
}

// Validate validates the item.
func (c ConfirmItem) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Name, validation.Required, validation.Length(1, 200)),
		validation.Field(&c.Quantity, validation.Min(0.0)),
		validation.Field(&c.Macros, validation.By(func(v any) error {
			if m, _ := v.(*models.Macros); m != nil && m.HasNegative() {
				return errors.New("must not be negative")
			}
			return nil
		})),
	)
}

// ConfirmRequest is the request body of POST /meals/confirm.
type ConfirmRequest struct {
	Items    []ConfirmItem `json:"items"`
	EatenAt  *time.Time    `json:"eaten_at,omitempty"`
	MealSlot string        `json:"meal_slot,omitempty"`
}

// Validate validates the request and each item.
func (r *ConfirmRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.Items, validation.Required, validation.Length(1, 50)),
		validation.Field(&r.MealSlot, validation.In(slots...)),
	)
}

func (r *ConfirmRequest) toPipeline(userID string) pipeline.ConfirmRequest {
	out := pipeline.ConfirmRequest{UserID: userID, MealSlot: r.MealSlot}
	if r.EatenAt != nil {
		out.EatenAt = *r.EatenAt
	}
	for _, it := range r.Items {
		out.Items = append(out.Items, pipeline.ConfirmItem{
			Name:     it.Name,
			Quantity: it.Quantity,
			Unit:     it.Unit,
			Brand:    it.Brand,
			Macros:   it.Macros,
		})
	}
	return out
}

// TargetsRequest is the request body of PUT /users/me/targets.
type TargetsRequest models.UserTargets

// Validate validates the request.
func (r *TargetsRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.ProteinG, validation.Min(0.0), validation.Max(1000.0)),
		validation.Field(&r.CarbsG, validation.Min(0.0), validation.Max(2000.0)),
		validation.Field(&r.FatG, validation.Min(0.0), validation.Max(1000.0)),
		validation.Field(&r.TDEE, validation.Min(0.0), validation.Max(10000.0)),
		validation.Field(&r.ProfileKcal, validation.Min(0.0), validation.Max(10000.0)),
	)
}

// PreferencesRequest is the request body of PUT /users/me/preferences.
type PreferencesRequest models.Preferences

// Validate validates the request. Timezones must be IANA names.
func (r *PreferencesRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.Timezone, validation.By(func(v any) error {
			tz, _ := v.(string)
			if tz == "" {
				return nil
			}
			if _, err := time.LoadLocation(tz); err != nil {
				return errors.New("unknown timezone")
			}
			return nil
		})),
		validation.Field(&r.CountryCode, validation.Length(2, 2)),
	)
}

// MetricsRequest is the request body of PUT /users/me/metrics.
type MetricsRequest models.BodyMetrics

// Validate validates the request.
func (r *MetricsRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.Sex, validation.Required, validation.In("male", "female")),
		validation.Field(&r.Age, validation.Required, validation.Min(10), validation.Max(120)),
		validation.Field(&r.HeightCm, validation.Required, validation.Min(50.0), validation.Max(272.0)),
		validation.Field(&r.WeightKg, validation.Required, validation.Min(20.0), validation.Max(500.0)),
		validation.Field(&r.ActivityLevel, validation.In("sedentary", "light", "moderate", "active", "very_active")),
		validation.Field(&r.BodyFatPct, validation.Min(0.0), validation.Max(70.0)),
	)
}

// MealListResponse wraps meal listings.
type MealListResponse struct {
	Meals []models.MealLogRecord `json:"meals"`
}
