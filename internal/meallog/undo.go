package meallog

import (
	"context"
	"fmt"
	"time"

	"github.com/starford/macrolog/internal/models"
)

// UndoWindow bounds how far back the last meal may be undone.
const UndoWindow = 24 * time.Hour

// History finds and removes logged meals.
type History interface {
	LastMealSince(ctx context.Context, userID string, since time.Time) (*models.MealLogRecord, error)
	DeleteMeal(ctx context.Context, mealID string) error
}

// UndoLast deletes the user's most recently eaten meal within UndoWindow of
// now, items included, and returns it. It returns apperr.ErrNotFound when
// there is nothing to undo.
func UndoLast(ctx context.Context, h History, userID string, now time.Time) (*models.MealLogRecord, error) {
	last, err := h.LastMealSince(ctx, userID, now.Add(-UndoWindow))
	if err != nil {
		return nil, fmt.Errorf("meallog: undo: %w", err)
	}
	if err := h.DeleteMeal(ctx, last.ID); err != nil {
		return nil, fmt.Errorf("meallog: undo %s: %w", last.ID, err)
	}
	return last, nil
}
