package provider

import (
	"context"

	"github.com/starford/macrolog/internal/catalog"
	"github.com/starford/macrolog/internal/models"
)

// BrandConfidence is the confidence of curated branded servings.
const BrandConfidence = 0.95

// Brand looks items up in the curated brand catalog.
type Brand struct {
	catalog        *catalog.Holder
	prefs          PreferenceSource
	defaultCountry string
}

// NewBrand returns a brand provider reading from h.
func NewBrand(h *catalog.Holder, prefs PreferenceSource, defaultCountry string) *Brand {
	if defaultCountry == "" {
		defaultCountry = catalog.DefaultCountry
	}
	return &Brand{catalog: h, prefs: prefs, defaultCountry: defaultCountry}
}

func (b *Brand) Name() string { return "brand" }

func (b *Brand) Priority(branded bool) int {
	if branded {
		return 1
	}
	return 9
}

func (b *Brand) Supports(item models.CanonicalItem) bool {
	return item.IsBranded
}

func (b *Brand) Fetch(ctx context.Context, item models.CanonicalItem, userID string) (*models.MacroResult, error) {
	cc := country(ctx, b.prefs, userID, b.defaultCountry)
	s, ok := b.catalog.Current().Lookup(item.Brand, cc, item.Name, item.ServingLabel, item.SizeLabel)
	if !ok {
		return nil, nil
	}
	return &models.MacroResult{
		Name:            item.Name,
		ServingLabel:    s.Label,
		GramsPerServing: s.Grams,
		Macros:          s.Macros.Scale(effectiveQuantity(item)),
		Confidence:      BrandConfidence,
		Source:          models.SourceBrand,
	}, nil
}

var _ Provider = (*Brand)(nil)
