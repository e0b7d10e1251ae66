// Package pipeline turns a free-text meal description into resolved,
// scored and optionally logged meal data.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/starford/macrolog/internal/aggregate"
	"github.com/starford/macrolog/internal/apperr"
	"github.com/starford/macrolog/internal/budget"
	"github.com/starford/macrolog/internal/catalog"
	"github.com/starford/macrolog/internal/confidence"
	"github.com/starford/macrolog/internal/gateway"
	"github.com/starford/macrolog/internal/meallog"
	"github.com/starford/macrolog/internal/models"
	"github.com/starford/macrolog/internal/parser"
	"github.com/starford/macrolog/internal/sanitize"
	"github.com/starford/macrolog/internal/sse"
)

// Extractor turns meal text into food mentions.
type Extractor interface {
	Extract(ctx context.Context, text string) (*gateway.Extraction, error)
}

// Resolver resolves one canonical item. It always returns a result.
type Resolver interface {
	Resolve(ctx context.Context, item models.CanonicalItem, userID string) models.MacroResult
}

// MealLogger persists meals idempotently.
type MealLogger interface {
	Log(ctx context.Context, e meallog.Entry) (meallog.Result, error)
}

// Budgeter computes energy budgets.
type Budgeter interface {
	Remaining(ctx context.Context, userID string, at time.Time, totals models.MealTotals, tef float64) models.EnergyBudget
	Current(ctx context.Context, userID string, at time.Time) models.EnergyBudget
}

// Store is the meal history and user settings used by the pipeline.
type Store interface {
	meallog.History
	Preferences(ctx context.Context, userID string) (models.Preferences, error)
	ListMeals(ctx context.Context, userID string, from, to time.Time, limit int) ([]models.MealLogRecord, error)
}

// Notifier receives meal changes.
type Notifier interface {
	PublishMealEvent(kind, userID string, meal *models.MealLogRecord, budget models.EnergyBudget)
}

// Config tunes the pipeline.
type Config struct {
	// Concurrency bounds how many items of one meal resolve at once.
	Concurrency int
	// NaiveSplitConfidence is the extraction confidence of the fallback splitter.
	NaiveSplitConfidence float64
	// BrandHints maps name substrings to brands for every request.
	BrandHints map[string]string
	// Source labels meals logged through the pipeline.
	Source string
}

// Deps are the collaborators of a Pipeline. Extractor and Notifier may be nil.
type Deps struct {
	Extractor Extractor
	Catalog   *catalog.Holder
	Resolver  Resolver
	Gate      *confidence.Gate
	Meals     MealLogger
	Budgeter  Budgeter
	Store     Store
	Notifier  Notifier
	Logger    *slog.Logger
}

// Pipeline orchestrates extraction, sanitizing, resolution, aggregation,
// scoring, routing and logging.
type Pipeline struct {
	Deps
	cfg Config
	now func() time.Time
}

// New returns a pipeline.
func New(deps Deps, cfg Config) *Pipeline {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if cfg.NaiveSplitConfidence <= 0 {
		cfg.NaiveSplitConfidence = 0.5
	}
	if cfg.Source == "" {
		cfg.Source = "text"
	}
	return &Pipeline{Deps: deps, cfg: cfg, now: time.Now}
}

// Request is a meal description to analyze.
type Request struct {
	UserID     string
	Text       string
	EatenAt    time.Time
	MealSlot   string
	AutoLog    bool
	BrandHints map[string]string
}

// Analysis is the outcome of Analyze.
type Analysis struct {
	Items                []models.ResolvedItem    `json:"items"`
	Totals               models.MealTotals        `json:"totals"`
	Reconciliation       aggregate.Reconciliation `json:"reconciliation"`
	TEF                  budget.TEFBreakdown      `json:"tef"`
	Score                confidence.Score         `json:"confidence"`
	Decision             confidence.Decision      `json:"decision"`
	Warnings             []confidence.Warning     `json:"warnings,omitempty"`
	Budget               models.EnergyBudget      `json:"budget"`
	EatenAt              time.Time                `json:"eaten_at"`
	MealSlot             string                   `json:"meal_slot"`
	ExtractionConfidence float64                  `json:"extraction_confidence"`
	NaiveSplit           bool                     `json:"naive_split,omitempty"`
	Logged               *meallog.Result          `json:"logged,omitempty"`
	View                 string                   `json:"view,omitempty"`
}

// Analyze runs the whole pipeline on req. A meal is logged only when the
// gate routes it to autosave and req.AutoLog is set. The returned analysis
// is valid even when logging fails.
func (p *Pipeline) Analyze(ctx context.Context, req Request) (*Analysis, error) {
	if strings.TrimSpace(req.UserID) == "" || strings.TrimSpace(req.Text) == "" {
		return nil, fmt.Errorf("pipeline: user and text are required: %w", apperr.ErrInvalidInput)
	}

	mentions, extConf, naive := p.extract(ctx, req.Text)
	if len(mentions) == 0 {
		return nil, fmt.Errorf("pipeline: no foods found in %q: %w", req.Text, apperr.ErrInvalidInput)
	}

	items := sanitize.Sanitize(p.Catalog.Current(), mentions, p.hints(req.BrandHints))
	resolved := p.resolveAll(ctx, items, req.UserID)

	a := p.score(ctx, req.UserID, resolved, extConf, req.EatenAt, req.MealSlot)
	a.NaiveSplit = naive

	switch a.Decision.Route {
	case confidence.RouteVerify:
		a.View = VerificationView(a)
	case confidence.RouteAutosave:
		if req.AutoLog {
			if err := p.save(ctx, req.UserID, a); err != nil {
				return a, err
			}
		}
	}
	return a, nil
}

// save logs a and records the outcome on it. A write that was rolled back
// sends the meal to the verify route so the user can retry; only an orphaned
// header is returned as an error.
func (p *Pipeline) save(ctx context.Context, userID string, a *Analysis) error {
	res, err := p.log(ctx, userID, a)
	a.Logged = &res
	if err == nil {
		return nil
	}
	if errors.Is(err, apperr.ErrOrphanedHeader) {
		return err
	}
	p.Logger.Warn("meal not logged, routing to verify",
		slog.String("user_id", userID),
		slog.String("state", res.State.String()),
		slog.String("error", err.Error()))
	a.Decision = confidence.Decision{Route: confidence.RouteVerify}
	a.View = VerificationView(a)
	return nil
}

// extract runs the extraction model and falls back to the naive splitter
// when it fails or finds nothing.
func (p *Pipeline) extract(ctx context.Context, text string) ([]models.RawMention, float64, bool) {
	if p.Extractor != nil {
		ext, err := p.Extractor.Extract(ctx, text)
		switch {
		case err != nil:
			p.Logger.Warn("extraction failed, using naive split", slog.String("error", err.Error()))
		case ext != nil && len(ext.Items) > 0:
			return ext.Items, ext.Confidence, false
		}
	}
	return parser.NaiveSplit(text), p.cfg.NaiveSplitConfidence, true
}

func (p *Pipeline) hints(extra map[string]string) map[string]string {
	if len(extra) == 0 {
		return p.cfg.BrandHints
	}
	out := make(map[string]string, len(p.cfg.BrandHints)+len(extra))
	for k, v := range p.cfg.BrandHints {
		out[k] = v
	}
	for k, v := range extra {
		out[k] = v
	}
	return out
}

// resolveAll resolves items concurrently. Results keep the input order.
func (p *Pipeline) resolveAll(ctx context.Context, items []models.CanonicalItem, userID string) []models.ResolvedItem {
	out := make([]models.ResolvedItem, len(items))
	var g errgroup.Group
	g.SetLimit(p.cfg.Concurrency)
	for i, item := range items {
		g.Go(func() error {
			out[i] = models.ResolvedItem{CanonicalItem: item, Result: p.Resolver.Resolve(ctx, item, userID)}
			return nil
		})
	}
	_ = g.Wait()
	return out
}

// score aggregates, evaluates and routes resolved items and attaches the
// budget the meal would leave.
func (p *Pipeline) score(ctx context.Context, userID string, items []models.ResolvedItem, extConf float64, eatenAt time.Time, slot string) *Analysis {
	results := make([]models.MacroResult, len(items))
	for i, it := range items {
		results[i] = it.Result
	}
	agg := aggregate.Aggregate(results)
	if agg.Reconciliation.Reconciled {
		p.Logger.Info("meal totals reconciled",
			slog.String("user_id", userID),
			slog.Float64("kcal_before", agg.Reconciliation.OriginalKcal),
			slog.Float64("kcal_after", agg.Reconciliation.CalculatedKcal))
	}

	if eatenAt.IsZero() {
		eatenAt = p.now()
	}
	score := p.Gate.Evaluate(items, agg.Totals, extConf)
	tef := budget.TEF(agg.Totals)

	return &Analysis{
		Items:                items,
		Totals:               agg.Totals,
		Reconciliation:       agg.Reconciliation,
		TEF:                  tef,
		Score:                score,
		Decision:             p.Gate.Decide(items, score),
		Warnings:             p.Gate.Warnings(items),
		Budget:               p.Budgeter.Remaining(ctx, userID, eatenAt, agg.Totals, tef.Kcal),
		EatenAt:              eatenAt,
		MealSlot:             p.mealSlot(ctx, userID, eatenAt, slot),
		ExtractionConfidence: extConf,
	}
}

func (p *Pipeline) log(ctx context.Context, userID string, a *Analysis) (meallog.Result, error) {
	entry := meallog.Entry{
		UserID:   userID,
		EatenAt:  a.EatenAt,
		MealSlot: a.MealSlot,
		Source:   p.cfg.Source,
		Totals:   a.Totals,
		Items:    itemRecords(a.Items),
	}
	res, err := p.Meals.Log(ctx, entry)
	if err != nil {
		return res, err
	}
	if !res.IsDuplicate && p.Notifier != nil {
		p.Notifier.PublishMealEvent(sse.MealLogged, userID, &models.MealLogRecord{
			ID:       res.MealLogID,
			UserID:   userID,
			EatenAt:  a.EatenAt,
			MealSlot: a.MealSlot,
			Totals:   a.Totals,
		}, a.Budget)
	}
	return res, nil
}

func itemRecords(items []models.ResolvedItem) []models.MealItemRecord {
	out := make([]models.MealItemRecord, len(items))
	for i, it := range items {
		out[i] = models.MealItemRecord{
			Position:     i,
			Name:         it.Name,
			Quantity:     it.Quantity,
			Unit:         it.Unit,
			Brand:        it.Brand,
			ServingLabel: firstNonEmpty(it.Result.ServingLabel, it.ServingLabel, it.SizeLabel),
			Macros:       it.Result.Macros,
			Confidence:   it.Result.Confidence,
			Source:       it.Result.Source,
		}
	}
	return out
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
