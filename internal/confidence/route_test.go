package confidence

import (
	"testing"

	"github.com/starford/macrolog/internal/models"
)

func TestClarify_PrioritizesFoodType(t *testing.T) {
	items := []models.ResolvedItem{
		resolved("apple", 0, "", models.Macros{}, 0.1, models.SourceStub),
		resolved("protein shake", 0, "", models.Macros{}, 0.1, models.SourceStub),
	}
	qs, missing := Clarify(items)
	if len(qs) != 2 {
		t.Fatalf("questions = %d, want 2", len(qs))
	}
	for _, q := range qs {
		if q.Item != "protein shake" {
			t.Errorf("question about %q, want protein shake first", q.Item)
		}
	}
	if len(missing) != 3 {
		t.Errorf("missing = %v, want quantity, unit and brand_or_macros", missing)
	}
}

func TestClarify_AtMostTwoFieldsPerFoodType(t *testing.T) {
	items := []models.ResolvedItem{
		resolved("turkey sandwich", 0, "", models.Macros{}, 0.1, models.SourceStub),
		resolved("ham sandwich", 0, "", models.Macros{}, 0.1, models.SourceStub),
		resolved("mystery", 0, "", models.Macros{}, 0.1, models.SourceStub),
	}
	qs, _ := Clarify(items)
	if len(qs) != 2 {
		t.Fatalf("questions = %d, want 2", len(qs))
	}
	if qs[0].Field == qs[1].Field {
		t.Errorf("asked twice about %s", qs[0].Field)
	}
	for _, q := range qs {
		if q.Priority != 8 {
			t.Errorf("question %+v, want sandwich priority", q)
		}
	}
}

func TestClarify_BrandedItemWithoutMacrosIsNotMissing(t *testing.T) {
	it := resolved("mcrib", 1, "", models.Macros{}, 0.1, models.SourceStub)
	it.Brand = "McDonald's"
	it.IsBranded = true
	it.ServingLabel = "sandwich"
	if got := MissingFields(it); len(got) != 0 {
		t.Errorf("missing = %v, want none", got)
	}
}

func TestDecide_VerifyWithoutMissingFields(t *testing.T) {
	g := New(DefaultConfig())
	items := []models.ResolvedItem{
		resolved("cake", 1, "slice", models.Macros{Kcal: 2400, ProteinG: 30, CarbsG: 300, FatG: 120}, 0.8, models.SourceEstimate),
	}
	score := g.Evaluate(items, totalsOf(items), 0.95)
	d := g.Decide(items, score)
	if d.Route != RouteVerify || len(d.Questions) != 0 {
		t.Errorf("decision = %+v", d)
	}
}
