package pipeline

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/starford/macrolog/internal/apperr"
	"github.com/starford/macrolog/internal/budget"
	"github.com/starford/macrolog/internal/catalog"
	"github.com/starford/macrolog/internal/confidence"
	"github.com/starford/macrolog/internal/gateway"
	"github.com/starford/macrolog/internal/meallog"
	"github.com/starford/macrolog/internal/models"
	"github.com/starford/macrolog/internal/sse"
	"github.com/starford/macrolog/internal/store"
	"github.com/starford/macrolog/internal/testutil"
)

var lunchTime = time.Date(2026, 3, 2, 13, 0, 0, 0, time.UTC)

type fakeExtractor struct {
	out *gateway.Extraction
	err error
}

func (f fakeExtractor) Extract(context.Context, string) (*gateway.Extraction, error) {
	return f.out, f.err
}

// tableResolver resolves items whose name contains a table key; everything
// else becomes a stub.
type tableResolver map[string]models.Macros

func (r tableResolver) Resolve(_ context.Context, item models.CanonicalItem, _ string) models.MacroResult {
	for k, m := range r {
		if strings.Contains(item.Name, k) {
			q := item.Quantity
			if q <= 0 {
				q = 1
			}
			return models.MacroResult{Name: item.Name, GramsPerServing: 100, Macros: m.Scale(q), Confidence: 0.9, Source: models.SourceGeneric}
		}
	}
	return models.MacroResult{Name: item.Name, Confidence: 0.1, Source: models.SourceStub}
}

type event struct {
	kind   string
	mealID string
}

type recorder struct {
	mu     sync.Mutex
	events []event
}

func (r *recorder) PublishMealEvent(kind, _ string, meal *models.MealLogRecord, _ models.EnergyBudget) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event{kind: kind, mealID: meal.ID})
}

func (r *recorder) kinds() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, e := range r.events {
		out = append(out, e.kind)
	}
	return out
}

var breakfast = tableResolver{
	"egg":    {Kcal: 72, ProteinG: 6.3, CarbsG: 0.4, FatG: 4.8},
	"toast":  {Kcal: 133, ProteinG: 4.5, CarbsG: 25, FatG: 1.6},
	"banana": {Kcal: 105, ProteinG: 1.3, CarbsG: 27, FatG: 0.4},
	"cake":   {Kcal: 2400, ProteinG: 30, CarbsG: 300, FatG: 117},
}

func fptr(v float64) *float64 { return &v }

func newPipeline(t *testing.T, ext Extractor) (*Pipeline, *store.DB, *recorder) {
	t.Helper()
	db := testutil.TestDB(t)
	c, err := catalog.Default()
	if err != nil {
		t.Fatal(err)
	}
	rec := &recorder{}
	log := testutil.Logger()
	p := New(Deps{
		Extractor: ext,
		Catalog:   catalog.NewHolder(c),
		Resolver:  breakfast,
		Gate:      confidence.New(confidence.DefaultConfig()),
		Meals:     meallog.New(db, log),
		Budgeter:  budget.New(db, budget.DefaultTargetKcal, log),
		Store:     db,
		Notifier:  rec,
		Logger:    log,
	}, Config{})
	p.now = func() time.Time { return lunchTime.Add(time.Hour) }
	return p, db, rec
}

func breakfastExtraction() *gateway.Extraction {
	return &gateway.Extraction{
		Confidence: 0.95,
		Items: []models.RawMention{
			{Name: "eggs", Quantity: fptr(2), Unit: "piece"},
			{Name: "toast", Quantity: fptr(1), Unit: "slice"},
			{Name: "banana", Quantity: fptr(1), Unit: "piece"},
		},
	}
}

func TestAnalyze_AutosaveLogsOnce(t *testing.T) {
	p, db, rec := newPipeline(t, fakeExtractor{out: breakfastExtraction()})
	ctx := context.Background()
	req := Request{UserID: "u1", Text: "2 eggs, toast and a banana", EatenAt: lunchTime, AutoLog: true}

	a, err := p.Analyze(ctx, req)
	if err != nil {
		t.Fatal(err)
	}
	if a.Decision.Route != confidence.RouteAutosave {
		t.Fatalf("route = %s, score = %+v", a.Decision.Route, a.Score)
	}
	if a.Totals.Kcal != 382 {
		t.Errorf("kcal = %v, want 382", a.Totals.Kcal)
	}
	if a.MealSlot != models.SlotLunch {
		t.Errorf("slot = %s, want lunch", a.MealSlot)
	}
	if a.Logged == nil || !a.Logged.Success || a.Logged.IsDuplicate {
		t.Fatalf("logged = %+v", a.Logged)
	}
	if a.Budget.MealsToday != 1 || a.Budget.RemainingKcal >= budget.DefaultTargetKcal {
		t.Errorf("budget = %+v", a.Budget)
	}

	again, err := p.Analyze(ctx, req)
	if err != nil {
		t.Fatal(err)
	}
	if !again.Logged.IsDuplicate || again.Logged.MealLogID != a.Logged.MealLogID {
		t.Errorf("second log = %+v, want duplicate of %s", again.Logged, a.Logged.MealLogID)
	}

	meal, err := db.GetMeal(ctx, a.Logged.MealLogID)
	if err != nil {
		t.Fatal(err)
	}
	if len(meal.Items) != 3 {
		t.Errorf("items = %d, want 3", len(meal.Items))
	}
	if got := rec.kinds(); len(got) != 1 || got[0] != sse.MealLogged {
		t.Errorf("events = %v, want one logged", got)
	}
}

// failingLogger fails every write with err after reaching state.
type failingLogger struct {
	state meallog.State
	err   error
}

func (f failingLogger) Log(context.Context, meallog.Entry) (meallog.Result, error) {
	return meallog.Result{State: f.state}, f.err
}

func TestAnalyze_RolledBackWriteRoutesToVerify(t *testing.T) {
	p, _, rec := newPipeline(t, fakeExtractor{out: breakfastExtraction()})
	p.Meals = failingLogger{state: meallog.StateRolledBack, err: errors.New("meallog: insert items: disk full")}

	a, err := p.Analyze(context.Background(), Request{UserID: "u1", Text: "breakfast", EatenAt: lunchTime, AutoLog: true})
	if err != nil {
		t.Fatalf("err = %v, want the analysis back", err)
	}
	if a.Decision.Route != confidence.RouteVerify {
		t.Errorf("route = %s, want verify", a.Decision.Route)
	}
	if !strings.HasPrefix(a.View, "Review and confirm:") {
		t.Errorf("view = %q", a.View)
	}
	if a.Logged == nil || a.Logged.Success || a.Logged.State != meallog.StateRolledBack {
		t.Errorf("logged = %+v", a.Logged)
	}
	if got := rec.kinds(); len(got) != 0 {
		t.Errorf("events = %v, want none", got)
	}
}

func TestAnalyze_OrphanedHeaderIsReturned(t *testing.T) {
	p, _, _ := newPipeline(t, fakeExtractor{out: breakfastExtraction()})
	p.Meals = failingLogger{state: meallog.StateFailed, err: fmt.Errorf("meallog: %w", apperr.ErrOrphanedHeader)}

	a, err := p.Analyze(context.Background(), Request{UserID: "u1", Text: "breakfast", EatenAt: lunchTime, AutoLog: true})
	if !errors.Is(err, apperr.ErrOrphanedHeader) {
		t.Fatalf("err = %v, want orphaned header", err)
	}
	if a == nil || a.Logged == nil || a.Logged.State != meallog.StateFailed {
		t.Errorf("analysis = %+v", a)
	}
}

func TestAnalyze_WithoutAutoLogDoesNotPersist(t *testing.T) {
	p, db, rec := newPipeline(t, fakeExtractor{out: breakfastExtraction()})
	a, err := p.Analyze(context.Background(), Request{UserID: "u1", Text: "breakfast", EatenAt: lunchTime})
	if err != nil {
		t.Fatal(err)
	}
	if a.Logged != nil {
		t.Errorf("logged = %+v", a.Logged)
	}
	usage, err := db.UsageBetween(context.Background(), "u1", lunchTime.Add(-time.Hour), lunchTime.Add(time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if usage.MealCount != 0 || len(rec.kinds()) != 0 {
		t.Errorf("usage = %+v, events = %v", usage, rec.kinds())
	}
}

func TestAnalyze_ExtractionFailureFallsBackToNaiveSplit(t *testing.T) {
	p, _, _ := newPipeline(t, fakeExtractor{err: gateway.ErrRateLimited})
	a, err := p.Analyze(context.Background(), Request{UserID: "u1", Text: "2 eggs and 1 banana", EatenAt: lunchTime, AutoLog: true})
	if err != nil {
		t.Fatal(err)
	}
	if !a.NaiveSplit || a.ExtractionConfidence != 0.5 {
		t.Errorf("naive = %v, confidence = %v", a.NaiveSplit, a.ExtractionConfidence)
	}
	if len(a.Items) != 2 {
		t.Fatalf("items = %+v", a.Items)
	}
	if a.Decision.Route != confidence.RouteClarification {
		t.Errorf("route = %s, want clarification", a.Decision.Route)
	}
	if a.Logged != nil {
		t.Error("meal logged despite clarification route")
	}
}

func TestAnalyze_NilExtractorUsesNaiveSplit(t *testing.T) {
	p, _, _ := newPipeline(t, nil)
	a, err := p.Analyze(context.Background(), Request{UserID: "u1", Text: "a banana", EatenAt: lunchTime})
	if err != nil {
		t.Fatal(err)
	}
	if !a.NaiveSplit || len(a.Items) != 1 {
		t.Errorf("analysis = %+v", a)
	}
}

func TestAnalyze_RejectsEmptyInput(t *testing.T) {
	p, _, _ := newPipeline(t, nil)
	for _, req := range []Request{
		{UserID: "u1", Text: "   "},
		{UserID: "", Text: "eggs"},
	} {
		if _, err := p.Analyze(context.Background(), req); !errors.Is(err, apperr.ErrInvalidInput) {
			t.Errorf("Analyze(%+v) err = %v, want ErrInvalidInput", req, err)
		}
	}
}

func TestAnalyze_VerifyRouteRendersView(t *testing.T) {
	p, _, _ := newPipeline(t, fakeExtractor{out: &gateway.Extraction{
		Confidence: 0.95,
		Items:      []models.RawMention{{Name: "cake", Quantity: fptr(1), Unit: "slice"}},
	}})
	a, err := p.Analyze(context.Background(), Request{UserID: "u1", Text: "cake", EatenAt: lunchTime, AutoLog: true})
	if err != nil {
		t.Fatal(err)
	}
	if a.Decision.Route != confidence.RouteVerify {
		t.Fatalf("route = %s", a.Decision.Route)
	}
	if a.Logged != nil {
		t.Error("verify route must not log")
	}
	if !strings.HasPrefix(a.View, "Review and confirm:") || !strings.HasSuffix(a.View, "[Confirm & Log]") {
		t.Errorf("view = %q", a.View)
	}
}

func TestAnalyze_SlotFromUserTimezone(t *testing.T) {
	p, db, _ := newPipeline(t, fakeExtractor{out: breakfastExtraction()})
	ctx := context.Background()
	if err := db.SetPreferences(ctx, "u1", models.Preferences{Timezone: "America/New_York"}); err != nil {
		t.Fatal(err)
	}
	// 12:00 UTC is 08:00 in New York during daylight saving time.
	at := time.Date(2026, 7, 1, 12, 0, 0, 0, time.UTC)
	a, err := p.Analyze(ctx, Request{UserID: "u1", Text: "breakfast", EatenAt: at})
	if err != nil {
		t.Fatal(err)
	}
	if a.MealSlot != models.SlotBreakfast {
		t.Errorf("slot = %s, want breakfast", a.MealSlot)
	}

	a, err = p.Analyze(ctx, Request{UserID: "u1", Text: "breakfast", EatenAt: at, MealSlot: "Snack"})
	if err != nil {
		t.Fatal(err)
	}
	if a.MealSlot != models.SlotSnack {
		t.Errorf("explicit slot = %s, want snack", a.MealSlot)
	}
}

func TestConfirm_LogsManualAndResolvedItems(t *testing.T) {
	p, db, rec := newPipeline(t, nil)
	ctx := context.Background()
	a, err := p.Confirm(ctx, ConfirmRequest{
		UserID:  "u1",
		EatenAt: lunchTime,
		Items: []ConfirmItem{
			{Name: "Protein Shake", Quantity: 1, Unit: "scoop", Macros: &models.Macros{Kcal: 120, ProteinG: 24, CarbsG: 3, FatG: 1.5}},
			{Name: "banana", Quantity: 1, Unit: "piece"},
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	if a.Items[0].Result.Source != models.SourceManual || a.Items[1].Result.Source != models.SourceGeneric {
		t.Errorf("sources = %s, %s", a.Items[0].Result.Source, a.Items[1].Result.Source)
	}
	if a.Totals.Kcal != 225 {
		t.Errorf("kcal = %v, want 225", a.Totals.Kcal)
	}
	if a.Logged == nil || !a.Logged.Success {
		t.Fatalf("logged = %+v", a.Logged)
	}
	meal, err := db.GetMeal(ctx, a.Logged.MealLogID)
	if err != nil {
		t.Fatal(err)
	}
	if meal.Items[0].Source != models.SourceManual {
		t.Errorf("stored source = %s", meal.Items[0].Source)
	}
	if got := rec.kinds(); len(got) != 1 {
		t.Errorf("events = %v", got)
	}
}

// riceResolver scales 130 kcal per 100 g by the grams of the item's unit.
type riceResolver struct{}

func (riceResolver) Resolve(_ context.Context, item models.CanonicalItem, _ string) models.MacroResult {
	grams := 100.0
	if item.Unit == "cup" {
		grams = 195
	}
	f := item.Quantity * grams / 100
	return models.MacroResult{
		Name:       item.Name,
		Macros:     models.Macros{Kcal: 130, ProteinG: 2.7, CarbsG: 28, FatG: 0.3}.Scale(f),
		Confidence: 0.9,
		Source:     models.SourceGeneric,
	}
}

func TestConfirm_NormalizesUnits(t *testing.T) {
	p, db, _ := newPipeline(t, nil)
	p.Resolver = riceResolver{}
	ctx := context.Background()

	var want float64
	for i, unit := range []string{"cup", "cups", "Cups"} {
		a, err := p.Confirm(ctx, ConfirmRequest{
			UserID:  fmt.Sprintf("u%d", i),
			EatenAt: lunchTime,
			Items:   []ConfirmItem{{Name: "Rice", Quantity: 2, Unit: unit}},
		})
		if err != nil {
			t.Fatal(err)
		}
		if a.Items[0].Unit != "cup" || a.Items[0].Name != "rice" {
			t.Errorf("%q: item = %+v", unit, a.Items[0].CanonicalItem)
		}
		if i == 0 {
			want = a.Totals.Kcal
		} else if a.Totals.Kcal != want {
			t.Errorf("%q: kcal = %v, want %v", unit, a.Totals.Kcal, want)
		}
		meal, err := db.GetMeal(ctx, a.Logged.MealLogID)
		if err != nil {
			t.Fatal(err)
		}
		if meal.Items[0].Unit != "cup" {
			t.Errorf("%q: stored unit = %q", unit, meal.Items[0].Unit)
		}
	}
	if math.Abs(want-507) > 1e-6 {
		t.Errorf("kcal = %v, want 507", want)
	}
}

func TestConfirm_ExplicitBrandWins(t *testing.T) {
	p, _, _ := newPipeline(t, nil)
	a, err := p.Confirm(context.Background(), ConfirmRequest{
		UserID:  "u1",
		EatenAt: lunchTime,
		Items: []ConfirmItem{{
			Name: "granola bar", Quantity: 1, Brand: "Nature Valley",
			Macros: &models.Macros{Kcal: 190, ProteinG: 4, CarbsG: 29, FatG: 7},
		}},
	})
	if err != nil {
		t.Fatal(err)
	}
	it := a.Items[0]
	if it.Brand != "Nature Valley" || !it.IsBranded {
		t.Errorf("item = %+v", it.CanonicalItem)
	}
}

func TestConfirm_RolledBackWriteRoutesToVerify(t *testing.T) {
	p, _, _ := newPipeline(t, nil)
	p.Meals = failingLogger{state: meallog.StateRolledBack, err: errors.New("meallog: insert items: disk full")}
	a, err := p.Confirm(context.Background(), ConfirmRequest{
		UserID:  "u1",
		EatenAt: lunchTime,
		Items:   []ConfirmItem{{Name: "banana", Quantity: 1, Unit: "piece"}},
	})
	if err != nil {
		t.Fatal(err)
	}
	if a.Decision.Route != confidence.RouteVerify || a.View == "" || a.Logged.Success {
		t.Errorf("route = %s, logged = %+v", a.Decision.Route, a.Logged)
	}
}

func TestConfirm_RejectsNegativeMacros(t *testing.T) {
	p, _, _ := newPipeline(t, nil)
	_, err := p.Confirm(context.Background(), ConfirmRequest{
		UserID: "u1",
		Items:  []ConfirmItem{{Name: "x", Quantity: 1, Macros: &models.Macros{Kcal: -5}}},
	})
	if !errors.Is(err, apperr.ErrInvalidInput) {
		t.Errorf("err = %v, want ErrInvalidInput", err)
	}
}

func TestUndoLast(t *testing.T) {
	p, _, rec := newPipeline(t, fakeExtractor{out: breakfastExtraction()})
	ctx := context.Background()
	a, err := p.Analyze(ctx, Request{UserID: "u1", Text: "breakfast", EatenAt: lunchTime, AutoLog: true})
	if err != nil {
		t.Fatal(err)
	}

	u, err := p.UndoLast(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if u.Meal.ID != a.Logged.MealLogID {
		t.Errorf("undone %s, want %s", u.Meal.ID, a.Logged.MealLogID)
	}
	if u.Budget.MealsToday != 0 || u.Budget.UsedKcal != 0 {
		t.Errorf("budget after undo = %+v", u.Budget)
	}
	if got := rec.kinds(); len(got) != 2 || got[1] != sse.MealUndone {
		t.Errorf("events = %v", got)
	}

	if _, err := p.UndoLast(ctx, "u1"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("second undo err = %v, want ErrNotFound", err)
	}
}

func TestListMeals(t *testing.T) {
	p, _, _ := newPipeline(t, fakeExtractor{out: breakfastExtraction()})
	ctx := context.Background()
	if _, err := p.Analyze(ctx, Request{UserID: "u1", Text: "breakfast", EatenAt: lunchTime, AutoLog: true}); err != nil {
		t.Fatal(err)
	}

	meals, err := p.ListMeals(ctx, "u1", time.Time{}, time.Time{}, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(meals) != 1 {
		t.Errorf("meals = %d, want 1", len(meals))
	}

	if _, err := p.ListMeals(ctx, "u1", lunchTime, lunchTime, 10); !errors.Is(err, apperr.ErrInvalidInput) {
		t.Errorf("empty range err = %v", err)
	}
}

func TestInferSlot(t *testing.T) {
	tests := []struct {
		hour int
		want string
	}{
		{5, models.SlotSnack},
		{6, models.SlotBreakfast},
		{10, models.SlotBreakfast},
		{11, models.SlotLunch},
		{15, models.SlotLunch},
		{16, models.SlotDinner},
		{21, models.SlotDinner},
		{22, models.SlotSnack},
	}
	for _, tt := range tests {
		if got := InferSlot(time.Date(2026, 1, 1, tt.hour, 30, 0, 0, time.UTC)); got != tt.want {
			t.Errorf("InferSlot(%d:30) = %s, want %s", tt.hour, got, tt.want)
		}
	}
}
