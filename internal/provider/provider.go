// Package provider resolves canonical items to nutrition through an ordered
// cascade of providers.
package provider

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/starford/macrolog/internal/models"
)

// Provider is one source of nutrition data.
type Provider interface {
	// Name identifies the provider in logs.
	Name() string
	// Priority orders providers for branded or unbranded items; lower runs first.
	Priority(branded bool) int
	// Supports reports whether the provider can handle item at all.
	Supports(item models.CanonicalItem) bool
	// Fetch returns nil without error when the provider has no data for item.
	Fetch(ctx context.Context, item models.CanonicalItem, userID string) (*models.MacroResult, error)
}

// PreferenceSource returns per-user locale settings.
type PreferenceSource interface {
	Preferences(ctx context.Context, userID string) (models.Preferences, error)
}

// StubConfidence is the confidence of the placeholder result.
const StubConfidence = 0.1

// Resolver runs the provider cascade. Its provider order is fixed at construction.
type Resolver struct {
	branded   []Provider
	unbranded []Provider
	timeout   time.Duration
	logger    *slog.Logger
}

// NewResolver orders providers for branded and unbranded items. Every call
// to a provider is bounded by timeout.
func NewResolver(providers []Provider, timeout time.Duration, logger *slog.Logger) *Resolver {
	if timeout <= 0 {
		timeout = 8 * time.Second
	}
	return &Resolver{
		branded:   ordered(providers, true),
		unbranded: ordered(providers, false),
		timeout:   timeout,
		logger:    logger,
	}
}

func ordered(providers []Provider, branded bool) []Provider {
	out := make([]Provider, len(providers))
	copy(out, providers)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Priority(branded) < out[j].Priority(branded)
	})
	return out
}

// Order returns the provider names tried for item, in order.
func (r *Resolver) Order(item models.CanonicalItem) []string {
	var names []string
	for _, p := range r.chain(item) {
		if p.Supports(item) {
			names = append(names, p.Name())
		}
	}
	return names
}

func (r *Resolver) chain(item models.CanonicalItem) []Provider {
	if item.IsBranded {
		return r.branded
	}
	return r.unbranded
}

// Resolve returns the first result with positive calories. Provider errors,
// panics and timeouts move the cascade on. When nothing matches, a stub
// result is returned so callers always get a value.
func (r *Resolver) Resolve(ctx context.Context, item models.CanonicalItem, userID string) models.MacroResult {
	for _, p := range r.chain(item) {
		if !p.Supports(item) {
			continue
		}
		res, err := r.fetch(ctx, p, item, userID)
		if err != nil {
			r.logger.Debug("provider failed",
				slog.String("provider", p.Name()),
				slog.String("item", item.Name),
				slog.String("error", err.Error()))
			continue
		}
		if res != nil && res.Macros.Kcal > 0 {
			return *res
		}
	}

	r.logger.Warn("no provider resolved item, using stub", slog.String("item", item.Name))
	return Stub(item)
}

func (r *Resolver) fetch(ctx context.Context, p Provider, item models.CanonicalItem, userID string) (res *models.MacroResult, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			res, err = nil, fmt.Errorf("provider %s panicked: %v", p.Name(), rec)
		}
	}()
	cctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	return p.Fetch(cctx, item, userID)
}

// Stub is the zero-nutrition placeholder for an unresolved item.
func Stub(item models.CanonicalItem) models.MacroResult {
	label := item.Unit
	if label == "" {
		label = "serving"
	}
	return models.MacroResult{
		Name:            item.Name,
		ServingLabel:    label,
		GramsPerServing: 100,
		Confidence:      StubConfidence,
		Source:          models.SourceStub,
	}
}

// effectiveQuantity treats a missing quantity as one serving for scaling.
func effectiveQuantity(item models.CanonicalItem) float64 {
	if item.Quantity <= 0 {
		return 1
	}
	return item.Quantity
}

// country returns the user's country code, or def when unknown.
func country(ctx context.Context, prefs PreferenceSource, userID, def string) string {
	if prefs == nil || userID == "" {
		return def
	}
	p, err := prefs.Preferences(ctx, userID)
	if err != nil || p.CountryCode == "" {
		return def
	}
	return p.CountryCode
}
