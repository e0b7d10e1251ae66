package catalog

import (
	"strings"
	"testing"
)

func defaultCatalog(t *testing.T) *Catalog {
	t.Helper()
	c, err := Default()
	if err != nil {
		t.Fatalf("Default: %v", err)
	}
	return c
}

func TestKey(t *testing.T) {
	tests := []struct {
		brand, country, item, serving, size string
		want                                string
	}{
		{"McDonald's", "us", "nuggets", "10-piece", "", "mcdonalds:us:nuggets:10-piece"},
		{"McDonald's", "", "Big Mac", "", "", "mcdonalds:us:bigmac"},
		{"McDonald's", "CA", "fries", "", "Large", "mcdonalds:ca:fries:large"},
	}
	for _, tt := range tests {
		if got := Key(tt.brand, tt.country, tt.item, tt.serving, tt.size); got != tt.want {
			t.Errorf("Key(%q,%q,%q,%q,%q) = %q, want %q", tt.brand, tt.country, tt.item, tt.serving, tt.size, got, tt.want)
		}
	}
}

func TestCandidateKeys_RelaxOrder(t *testing.T) {
	got := candidateKeys("McDonald's", "us", "fries", "2-piece", "large")
	want := []string{
		"mcdonalds:us:fries:2-piece:large",
		"mcdonalds:us:fries:2-piece",
		"mcdonalds:us:fries:large",
		"mcdonalds:us:fries",
	}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("keys = %v, want %v", got, want)
	}
}

func TestLookup_ExactServing(t *testing.T) {
	c := defaultCatalog(t)
	s, ok := c.Lookup("McDonald's", "us", "nuggets", "10-piece", "")
	if !ok {
		t.Fatal("10-piece nuggets not found")
	}
	if s.Macros.Kcal != 420 || s.Label != "10-piece" {
		t.Errorf("got %+v", s)
	}
}

func TestLookup_AliasAndRelaxedSize(t *testing.T) {
	c := defaultCatalog(t)
	s, ok := c.Lookup("McDonald's", "us", "chicken mcnuggets", "6-piece", "medium")
	if !ok {
		t.Fatal("alias with extra size not found")
	}
	if s.Macros.Kcal != 252 {
		t.Errorf("kcal = %v, want 252", s.Macros.Kcal)
	}
}

func TestLookup_DropsServingForSize(t *testing.T) {
	c := defaultCatalog(t)
	s, ok := c.Lookup("McDonald's", "us", "fries", "1-piece", "large")
	if !ok {
		t.Fatal("large fries not found")
	}
	if s.Macros.Kcal != 520 {
		t.Errorf("kcal = %v, want 520", s.Macros.Kcal)
	}
}

func TestLookup_CountrySpecific(t *testing.T) {
	c := defaultCatalog(t)
	us, _ := c.Lookup("McDonald's", "us", "big mac", "", "")
	ca, ok := c.Lookup("McDonald's", "ca", "big mac", "", "")
	if !ok {
		t.Fatal("ca big mac not found")
	}
	if us.Macros.Kcal == ca.Macros.Kcal {
		t.Errorf("expected distinct locale entries, both %v", us.Macros.Kcal)
	}
	if _, ok := c.Lookup("McDonald's", "uk", "mcchicken", "", ""); ok {
		t.Error("uk mcchicken should not exist")
	}
}

func TestDetectBrand_CueBeforePattern(t *testing.T) {
	c := defaultCatalog(t)
	m, ok := c.DetectBrand("big mac from burger king")
	if !ok {
		t.Fatal("no brand detected")
	}
	if m.Brand != "McDonald's" || !m.Cue {
		t.Errorf("got %+v, want McDonald's cue", m)
	}
}

func TestDetectBrand_Pattern(t *testing.T) {
	c := defaultCatalog(t)
	m, ok := c.DetectBrand("mcdonald's fries")
	if !ok || m.Brand != "McDonald's" || m.Cue {
		t.Fatalf("got %+v ok=%v", m, ok)
	}
	if m.Text != "mcdonald's" {
		t.Errorf("text = %q", m.Text)
	}
	if _, ok := c.DetectBrand("homemade oatmeal"); ok {
		t.Error("unexpected brand for oatmeal")
	}
}

func TestParse_InvalidServing(t *testing.T) {
	_, err := Parse([]byte("servings:\n  - {brand: x, item: y, kcal: 10}\n"))
	if err == nil {
		t.Fatal("expected validation error for missing grams")
	}
}

func TestParse_BadPattern(t *testing.T) {
	_, err := Parse([]byte("brands:\n  - {name: x, patterns: ['(']}\n"))
	if err == nil {
		t.Fatal("expected regexp error")
	}
}
