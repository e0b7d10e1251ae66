package meallog

import (
	"testing"
	"time"

	"github.com/starford/macrolog/internal/models"
)

func item(name string, kcal, p, c, f float64) models.MealItemRecord {
	return models.MealItemRecord{Name: name, Macros: models.Macros{Kcal: kcal, ProteinG: p, CarbsG: c, FatG: f}}
}

func TestFingerprint_SameBucket(t *testing.T) {
	base := time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC)
	items := []models.MealItemRecord{item("Eggs", 144, 12.6, 0.8, 9.6)}

	a := Fingerprint("u1", base.Add(1*time.Second), items)
	b := Fingerprint("u1", base.Add(29*time.Second), items)
	c := Fingerprint("u1", base.Add(30*time.Second), items)
	if a != b {
		t.Errorf("same bucket gave %s and %s", a, b)
	}
	if a == c {
		t.Error("next bucket gave the same key")
	}
	if len(a) != KeyLength {
		t.Errorf("len = %d, want %d", len(a), KeyLength)
	}
}

func TestFingerprint_CanonicalItems(t *testing.T) {
	ts := time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC)
	a := Fingerprint("u1", ts, []models.MealItemRecord{
		item("  Toast ", 133.2, 4.5, 25, 1.6),
		item("eggs", 144, 12.6, 0.8, 9.6),
	})
	b := Fingerprint("u1", ts, []models.MealItemRecord{
		item("EGGS", 143.9, 12.9, 1.1, 9.5),
		item("toast", 132.6, 4.6, 24.7, 1.5),
	})
	if a != b {
		t.Errorf("equivalent meals gave %s and %s", a, b)
	}

	other := Fingerprint("u2", ts, []models.MealItemRecord{item("eggs", 144, 12.6, 0.8, 9.6), item("toast", 133, 4.5, 25, 1.6)})
	if a == other {
		t.Error("different users share a key")
	}
	more := Fingerprint("u1", ts, []models.MealItemRecord{item("eggs", 216, 18.9, 1.2, 14.4), item("toast", 133, 4.5, 25, 1.6)})
	if a == more {
		t.Error("different content shares a key")
	}
}

func TestRound_HalfUp(t *testing.T) {
	cases := map[float64]float64{2.5: 3, 2.49: 2, -2.5: -2, 0: 0}
	for in, want := range cases {
		if got := round(in); got != want {
			t.Errorf("round(%v) = %v, want %v", in, got, want)
		}
	}
}

func TestFingerprint_OrderIndependentOnMacroTies(t *testing.T) {
	ts := time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC)
	whey := item("shake", 200, 30, 10, 4)
	soy := item("shake", 200, 20, 12, 8)
	oat := item("shake", 200, 20, 12, 5)

	ab := Fingerprint("u1", ts, []models.MealItemRecord{whey, soy, oat})
	ba := Fingerprint("u1", ts, []models.MealItemRecord{oat, soy, whey})
	if ab != ba {
		t.Errorf("item order changed the key: %s vs %s", ab, ba)
	}
}
