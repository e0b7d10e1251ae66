package budget

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/starford/macrolog/internal/apperr"
	"github.com/starford/macrolog/internal/models"
)

// DefaultTargetKcal is the target used when nothing is stored for a user.
const DefaultTargetKcal = 2000

// Store provides the stored targets and the day's usage.
type Store interface {
	Targets(ctx context.Context, userID string) (models.UserTargets, error)
	Metrics(ctx context.Context, userID string) (*models.BodyMetrics, error)
	Preferences(ctx context.Context, userID string) (models.Preferences, error)
	UsageBetween(ctx context.Context, userID string, from, to time.Time) (models.Usage, error)
}

// Calculator computes energy budgets.
type Calculator struct {
	store    Store
	fallback float64
	logger   *slog.Logger
}

// New returns a calculator. fallbackKcal is the target of last resort.
func New(store Store, fallbackKcal float64, logger *slog.Logger) *Calculator {
	if fallbackKcal <= 0 {
		fallbackKcal = DefaultTargetKcal
	}
	return &Calculator{store: store, fallback: fallbackKcal, logger: logger}
}

// Target resolves the user's daily target: macro targets, then the target
// derived from body metrics, then the stored TDEE, then the profile target,
// then the fallback. Each step is used only when positive.
func (c *Calculator) Target(ctx context.Context, userID string) (float64, error) {
	t, err := c.store.Targets(ctx, userID)
	if err != nil {
		return 0, err
	}
	if t.ProteinG > 0 && t.CarbsG > 0 && t.FatG > 0 {
		if kcal := math.Round(t.ProteinG*4 + t.CarbsG*4 + t.FatG*9); kcal > 0 {
			return kcal, nil
		}
	}

	m, err := c.store.Metrics(ctx, userID)
	switch {
	case err == nil:
		if kcal := DerivedTarget(*m); kcal > 0 {
			return kcal, nil
		}
	case !errors.Is(err, apperr.ErrNotFound):
		return 0, err
	}

	if t.TDEE > 0 {
		return math.Round(t.TDEE), nil
	}
	if t.ProfileKcal > 0 {
		return t.ProfileKcal, nil
	}
	return c.fallback, nil
}

// DayBounds returns the user's local day containing at as [start, end).
func (c *Calculator) DayBounds(ctx context.Context, userID string, at time.Time) (time.Time, time.Time, error) {
	p, err := c.store.Preferences(ctx, userID)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	loc := time.UTC
	if p.Timezone != "" {
		if loc, err = time.LoadLocation(p.Timezone); err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("budget: timezone %q: %w", p.Timezone, err)
		}
	}
	local := at.In(loc)
	start := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	return start, start.AddDate(0, 0, 1), nil
}

// Remaining returns the budget after a meal eaten at at with totals and
// thermic effect tef, on top of what the user already logged that day.
// Lookup failures yield the fallback budget.
func (c *Calculator) Remaining(ctx context.Context, userID string, at time.Time, totals models.MealTotals, tef float64) models.EnergyBudget {
	return c.compute(ctx, userID, at, round1(totals.Kcal+tef), 1)
}

// Current returns the budget of the day containing at from logged meals only.
func (c *Calculator) Current(ctx context.Context, userID string, at time.Time) models.EnergyBudget {
	return c.compute(ctx, userID, at, 0, 0)
}

func (c *Calculator) compute(ctx context.Context, userID string, at time.Time, mealKcal float64, meals int) models.EnergyBudget {
	from, to, err := c.DayBounds(ctx, userID, at)
	if err != nil {
		return c.fallbackBudget(userID, err)
	}
	usage, err := c.store.UsageBetween(ctx, userID, from, to)
	if err != nil {
		return c.fallbackBudget(userID, err)
	}
	target, err := c.Target(ctx, userID)
	if err != nil {
		return c.fallbackBudget(userID, err)
	}

	used := round1(usage.UsedKcal + mealKcal)
	b := Compose(target, used)
	b.MealsToday = usage.MealCount + meals
	return b
}

// Compose derives the remaining figures from a target and the used energy.
func Compose(target, used float64) models.EnergyBudget {
	remaining := math.Max(0, round1(target-used))
	pct := 0.0
	if target > 0 {
		pct = round1(remaining / target * 100)
	}
	if math.IsNaN(pct) || math.IsInf(pct, 0) {
		pct = 0
	}
	pct = math.Max(0, math.Min(100, pct))

	total := math.Min(target, used)
	return models.EnergyBudget{
		TargetKcal:          target,
		UsedKcal:            used,
		RemainingKcal:       remaining,
		RemainingPercentage: pct,
		Projection: models.Projection{
			Total:     total,
			Remaining: math.Max(0, round1(target-total)),
		},
	}
}

func (c *Calculator) fallbackBudget(userID string, err error) models.EnergyBudget {
	c.logger.Warn("energy budget unavailable, using fallback",
		slog.String("user_id", userID),
		slog.String("error", err.Error()))
	return models.EnergyBudget{
		TargetKcal:          c.fallback,
		RemainingKcal:       c.fallback,
		RemainingPercentage: 100,
		Projection:          models.Projection{Remaining: c.fallback},
		Fallback:            true,
	}
}
