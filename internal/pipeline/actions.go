package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/starford/macrolog/internal/apperr"
	"github.com/starford/macrolog/internal/meallog"
	"github.com/starford/macrolog/internal/models"
	"github.com/starford/macrolog/internal/sanitize"
	"github.com/starford/macrolog/internal/sse"
)

// ConfirmItem is an item the user reviewed. Items are sanitized like
// extracted mentions; an explicit Brand overrides brand detection. Items
// carrying macros are logged as given; the rest are resolved again.
type ConfirmItem struct {
	Name     string         `json:"name"`
	Quantity float64        `json:"quantity"`
	Unit     string         `json:"unit,omitempty"`
	Brand    string         `json:"brand,omitempty"`
	Macros   *models.Macros `json:"macros,omitempty"`
}

// ConfirmRequest logs a reviewed meal regardless of the gate.
type ConfirmRequest struct {
	UserID   string
	EatenAt  time.Time
	MealSlot string
	Items    []ConfirmItem
}

// Confirm logs a meal the user reviewed. The analysis is recomputed from the
// confirmed items so totals, score and budget match what was stored.
func (p *Pipeline) Confirm(ctx context.Context, req ConfirmRequest) (*Analysis, error) {
	if strings.TrimSpace(req.UserID) == "" || len(req.Items) == 0 {
		return nil, fmt.Errorf("pipeline: user and items are required: %w", apperr.ErrInvalidInput)
	}

	mentions := make([]models.RawMention, len(req.Items))
	for i, ci := range req.Items {
		name := strings.TrimSpace(ci.Name)
		if name == "" {
			return nil, fmt.Errorf("pipeline: item %d has no name: %w", i, apperr.ErrInvalidInput)
		}
		if ci.Macros != nil && ci.Macros.HasNegative() {
			return nil, fmt.Errorf("pipeline: item %q has negative macros: %w", name, apperr.ErrInvalidInput)
		}
		mentions[i] = models.RawMention{Name: name, Unit: ci.Unit}
		if ci.Quantity > 0 {
			q := ci.Quantity
			mentions[i].Quantity = &q
		}
	}
	items := sanitize.Sanitize(p.Catalog.Current(), mentions, p.hints(nil))

	resolved := make([]models.ResolvedItem, len(items))
	var pending []int
	for i, item := range items {
		ci := req.Items[i]
		if brand := strings.TrimSpace(ci.Brand); brand != "" {
			item.Brand = brand
			item.IsBranded = true
		}
		if item.Quantity <= 0 {
			item.Quantity = 1
		}
		resolved[i] = models.ResolvedItem{CanonicalItem: item}
		if ci.Macros != nil {
			resolved[i].Result = models.MacroResult{
				Name:       item.Name,
				Macros:     *ci.Macros,
				Confidence: 1,
				Source:     models.SourceManual,
			}
			continue
		}
		pending = append(pending, i)
	}

	if len(pending) > 0 {
		todo := make([]models.CanonicalItem, len(pending))
		for j, i := range pending {
			todo[j] = resolved[i].CanonicalItem
		}
		for j, r := range p.resolveAll(ctx, todo, req.UserID) {
			resolved[pending[j]] = r
		}
	}

	a := p.score(ctx, req.UserID, resolved, 1, req.EatenAt, req.MealSlot)
	if err := p.save(ctx, req.UserID, a); err != nil {
		return a, err
	}
	return a, nil
}

// Undo is the outcome of UndoLast.
type Undo struct {
	Meal   *models.MealLogRecord `json:"meal"`
	Budget models.EnergyBudget   `json:"budget"`
}

// UndoLast removes the user's most recent meal logged within the undo window.
func (p *Pipeline) UndoLast(ctx context.Context, userID string) (*Undo, error) {
	now := p.now()
	meal, err := meallog.UndoLast(ctx, p.Store, userID, now)
	if err != nil {
		return nil, err
	}
	p.Logger.Info("meal undone",
		slog.String("user_id", userID),
		slog.String("meal_log_id", meal.ID))

	b := p.Budgeter.Current(ctx, userID, now)
	if p.Notifier != nil {
		p.Notifier.PublishMealEvent(sse.MealUndone, userID, meal, b)
	}
	return &Undo{Meal: meal, Budget: b}, nil
}

// Budget returns the user's budget as of at.
func (p *Pipeline) Budget(ctx context.Context, userID string, at time.Time) models.EnergyBudget {
	if at.IsZero() {
		at = p.now()
	}
	return p.Budgeter.Current(ctx, userID, at)
}

// ListMeals returns the user's meals eaten in [from, to), newest first. A zero
// to means now and a zero from means seven days before to.
func (p *Pipeline) ListMeals(ctx context.Context, userID string, from, to time.Time, limit int) ([]models.MealLogRecord, error) {
	if to.IsZero() {
		to = p.now().Add(time.Second)
	}
	if from.IsZero() {
		from = to.Add(-7 * 24 * time.Hour)
	}
	if !from.Before(to) {
		return nil, fmt.Errorf("pipeline: from must precede to: %w", apperr.ErrInvalidInput)
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return p.Store.ListMeals(ctx, userID, from, to, limit)
}
