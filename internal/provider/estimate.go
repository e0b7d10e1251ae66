package provider

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/starford/macrolog/internal/cache"
	"github.com/starford/macrolog/internal/gateway"
	"github.com/starford/macrolog/internal/models"
)

const (
	// DefaultEstimateTTL is how long persisted estimates stay valid.
	DefaultEstimateTTL        = 30 * 24 * time.Hour
	defaultEstimateConfidence = 0.8
)

// Estimator is the external nutrition estimation service.
type Estimator interface {
	Estimate(ctx context.Context, description string) (*gateway.Estimate, error)
}

// Estimate asks the external estimator, behind an in-process cache keyed by
// the full query and a persistent cache keyed by the canonical description.
// The persistent tier stores one serving; results are scaled by quantity.
type Estimate struct {
	estimator  Estimator
	memory     cache.Cache
	persistent cache.Cache
	ttl        time.Duration
	logger     *slog.Logger
}

// NewEstimate returns an estimate provider. persistent may be nil.
func NewEstimate(est Estimator, memory, persistent cache.Cache, ttl time.Duration, logger *slog.Logger) *Estimate {
	if memory == nil {
		memory = cache.NewMemory()
	}
	if ttl <= 0 {
		ttl = DefaultEstimateTTL
	}
	return &Estimate{estimator: est, memory: memory, persistent: persistent, ttl: ttl, logger: logger}
}

func (e *Estimate) Name() string { return "estimate" }

func (e *Estimate) Priority(bool) int { return 2 }

func (e *Estimate) Supports(models.CanonicalItem) bool { return e.estimator != nil }

func (e *Estimate) Fetch(ctx context.Context, item models.CanonicalItem, _ string) (*models.MacroResult, error) {
	qkey := queryKey(item)
	if v, ok, _ := e.memory.Get(ctx, qkey); ok {
		return v, nil
	}

	ckey := cache.CanonicalKey(item.Brand, item.Name, item.ServingLabel, item.SizeLabel, item.Unit)
	if ckey == "" {
		ckey = item.Name
	}

	if e.persistent != nil {
		base, ok, err := e.persistent.Get(ctx, ckey)
		if err != nil {
			e.logger.Warn("estimate cache read failed", slog.String("key", ckey), slog.String("error", err.Error()))
		} else if ok {
			res := scaled(*base, item)
			_ = e.memory.Set(ctx, qkey, res, 0)
			return &res, nil
		}
	}

	est, err := e.estimator.Estimate(ctx, describe(item))
	if err != nil {
		return nil, fmt.Errorf("estimate %q: %w", item.Name, err)
	}
	if est == nil || est.Macros.Kcal <= 0 {
		return nil, nil
	}

	base := models.MacroResult{
		Name:            item.Name,
		ServingLabel:    servingLabel(item),
		GramsPerServing: est.Grams,
		Macros:          est.Macros,
		Confidence:      est.Confidence,
		Source:          models.SourceEstimate,
	}
	if base.GramsPerServing <= 0 {
		base.GramsPerServing = 100
	}
	if base.Confidence <= 0 {
		base.Confidence = defaultEstimateConfidence
	}

	if e.persistent != nil {
		if err := e.persistent.Set(ctx, ckey, base, e.ttl); err != nil {
			e.logger.Warn("estimate cache write failed", slog.String("key", ckey), slog.String("error", err.Error()))
		}
	}
	res := scaled(base, item)
	_ = e.memory.Set(ctx, qkey, res, 0)
	return &res, nil
}

func scaled(base models.MacroResult, item models.CanonicalItem) models.MacroResult {
	base.Macros = base.Macros.Scale(effectiveQuantity(item))
	return base
}

// queryKey identifies the full request, quantity included.
func queryKey(item models.CanonicalItem) string {
	return strings.Join([]string{
		strings.ToLower(item.Brand),
		strings.ToLower(item.Name),
		item.ServingLabel,
		item.SizeLabel,
		item.Unit,
		strconv.FormatFloat(effectiveQuantity(item), 'f', -1, 64),
	}, "|")
}

// describe renders the one-serving description sent to the estimator.
func describe(item models.CanonicalItem) string {
	var b strings.Builder
	if item.Brand != "" {
		b.WriteString(item.Brand)
		b.WriteByte(' ')
	}
	if item.SizeLabel != "" {
		b.WriteString(item.SizeLabel)
		b.WriteByte(' ')
	}
	if item.ServingLabel != "" {
		b.WriteString(item.ServingLabel)
		b.WriteByte(' ')
	}
	b.WriteString(item.Name)
	if item.Unit != "" {
		b.WriteString(", amount: 1 ")
		b.WriteString(item.Unit)
	} else {
		b.WriteString(", amount: 1 serving")
	}
	return b.String()
}

func servingLabel(item models.CanonicalItem) string {
	switch {
	case item.ServingLabel != "":
		return item.ServingLabel
	case item.SizeLabel != "":
		return item.SizeLabel
	case item.Unit != "":
		return "1 " + item.Unit
	}
	return "serving"
}

var _ Provider = (*Estimate)(nil)
