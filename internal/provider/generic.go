package provider

import (
	"context"
	"errors"
	"strings"

	"github.com/starford/macrolog/internal/apperr"
	"github.com/starford/macrolog/internal/catalog"
	"github.com/starford/macrolog/internal/models"
)

const defaultGenericConfidence = 0.8

// GenericFoods is the reference table queried by the generic provider.
type GenericFoods interface {
	FindGenericFood(ctx context.Context, name, country string) (*models.GenericFood, error)
}

// Generic resolves unbranded foods against the generic nutrition table.
type Generic struct {
	foods          GenericFoods
	prefs          PreferenceSource
	defaultCountry string
}

// NewGeneric returns a generic provider over foods.
func NewGeneric(foods GenericFoods, prefs PreferenceSource, defaultCountry string) *Generic {
	if defaultCountry == "" {
		defaultCountry = catalog.DefaultCountry
	}
	return &Generic{foods: foods, prefs: prefs, defaultCountry: defaultCountry}
}

func (g *Generic) Name() string { return "generic" }

func (g *Generic) Priority(branded bool) int {
	if branded {
		return 3
	}
	return 1
}

func (g *Generic) Supports(models.CanonicalItem) bool { return true }

func (g *Generic) Fetch(ctx context.Context, item models.CanonicalItem, userID string) (*models.MacroResult, error) {
	cc := country(ctx, g.prefs, userID, g.defaultCountry)

	var food *models.GenericFood
	for _, name := range lookupNames(item.Name) {
		f, err := g.find(ctx, name, cc)
		if err != nil {
			return nil, err
		}
		if f != nil {
			food = f
			break
		}
	}
	if food == nil {
		return nil, nil
	}

	gps := food.GramsPerServing
	if gps <= 0 {
		gps = 100
	}
	var multiplier float64
	if item.Unit == "" {
		multiplier = effectiveQuantity(item)
	} else {
		multiplier = toGrams(item, gps) / gps
	}

	conf := food.Confidence
	if conf <= 0 {
		conf = defaultGenericConfidence
	}
	return &models.MacroResult{
		Name:            item.Name,
		ServingLabel:    food.ServingLabel,
		GramsPerServing: gps,
		Macros:          food.Macros.Scale(multiplier),
		Confidence:      conf,
		Source:          models.SourceGeneric,
	}, nil
}

// find tries the country-specific rows, then the rows valid everywhere.
func (g *Generic) find(ctx context.Context, name, country string) (*models.GenericFood, error) {
	if country != "" {
		f, err := g.foods.FindGenericFood(ctx, name, country)
		if err == nil {
			return f, nil
		}
		if !errors.Is(err, apperr.ErrNotFound) {
			return nil, err
		}
	}
	f, err := g.foods.FindGenericFood(ctx, name, "")
	if errors.Is(err, apperr.ErrNotFound) {
		return nil, nil
	}
	return f, err
}

var nameSynonyms = []struct{ from, to string }{
	{"new york strip", "beef strip loin"},
	{"ny strip", "beef strip loin"},
	{"strip steak", "beef strip loin"},
	{"sourdough bread", "bread sourdough"},
	{"sourdough toast", "bread sourdough"},
}

// lookupNames returns the names to query for an item, most specific first.
func lookupNames(name string) []string {
	n := strings.ToLower(strings.TrimSpace(name))
	for _, s := range nameSynonyms {
		if strings.Contains(n, s.from) {
			n = s.to
			break
		}
	}
	names := []string{n}
	if singular, ok := strings.CutSuffix(n, "s"); ok && len(singular) > 2 && !strings.HasSuffix(singular, "s") {
		names = append(names, singular)
	}
	return names
}

var gramsPerUnit = map[string]float64{
	"g":    1,
	"kg":   1000,
	"oz":   28.35,
	"lb":   453.59,
	"cup":  240,
	"tbsp": 15,
	"tsp":  5,
	"ml":   1,
	"l":    1000,
}

// toGrams converts the item amount to grams. Known food-and-unit pairs are
// special-cased before the unit table; servings and pieces count whole
// reference servings; unknown units assume 100 g each.
func toGrams(item models.CanonicalItem, gramsPerServing float64) float64 {
	qty := effectiveQuantity(item)
	name := item.Name
	switch {
	case strings.Contains(name, "egg") && (item.Unit == "large" || strings.Contains(name, "large")):
		return 50 * qty
	case strings.Contains(name, "bacon") && item.Unit == "slice":
		return 10 * qty
	case (strings.Contains(name, "bread") || strings.Contains(name, "sourdough") || strings.Contains(name, "toast")) && item.Unit == "slice":
		return 50 * qty
	}
	if g, ok := gramsPerUnit[item.Unit]; ok {
		return g * qty
	}
	switch item.Unit {
	case "serving", "piece", "item", "slice":
		return gramsPerServing * qty
	}
	return 100 * qty
}

var _ Provider = (*Generic)(nil)
