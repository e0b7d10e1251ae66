package pipeline

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/starford/macrolog/internal/models"
)

// InferSlot maps a local hour to a meal slot.
func InferSlot(local time.Time) string {
	switch h := local.Hour(); {
	case h >= 6 && h <= 10:
		return models.SlotBreakfast
	case h >= 11 && h <= 15:
		return models.SlotLunch
	case h >= 16 && h <= 21:
		return models.SlotDinner
	default:
		return models.SlotSnack
	}
}

// ValidSlot reports whether s names a meal slot.
func ValidSlot(s string) bool {
	switch s {
	case models.SlotBreakfast, models.SlotLunch, models.SlotDinner, models.SlotSnack:
		return true
	}
	return false
}

// mealSlot returns explicit when set, otherwise the slot of eatenAt in the
// user's timezone.
func (p *Pipeline) mealSlot(ctx context.Context, userID string, eatenAt time.Time, explicit string) string {
	if s := strings.ToLower(strings.TrimSpace(explicit)); s != "" {
		return s
	}
	loc := time.UTC
	prefs, err := p.Store.Preferences(ctx, userID)
	if err != nil {
		p.Logger.Warn("preferences unavailable, inferring slot in UTC",
			slog.String("user_id", userID),
			slog.String("error", err.Error()))
	} else if prefs.Timezone != "" {
		if l, lerr := time.LoadLocation(prefs.Timezone); lerr == nil {
			loc = l
		}
	}
	return InferSlot(eatenAt.In(loc))
}
