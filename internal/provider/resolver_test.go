package provider

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/starford/macrolog/internal/models"
	"github.com/starford/macrolog/internal/testutil"
)

type fakeProvider struct {
	name     string
	branded  int
	plain    int
	supports bool
	result   *models.MacroResult
	err      error
	panics   bool
	delay    time.Duration
	calls    atomic.Int32
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) Priority(branded bool) int {
	if branded {
		return f.branded
	}
	return f.plain
}

func (f *fakeProvider) Supports(models.CanonicalItem) bool { return f.supports }

func (f *fakeProvider) Fetch(ctx context.Context, _ models.CanonicalItem, _ string) (*models.MacroResult, error) {
	f.calls.Add(1)
	if f.panics {
		panic("boom")
	}
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return f.result, f.err
}

func result(source models.Source, kcal float64) *models.MacroResult {
	return &models.MacroResult{Name: "x", Macros: models.Macros{Kcal: kcal}, Confidence: 0.9, Source: source}
}

func TestResolver_OrderByBranding(t *testing.T) {
	brand := &fakeProvider{name: "brand", branded: 1, plain: 9, supports: true}
	est := &fakeProvider{name: "estimate", branded: 2, plain: 2, supports: true}
	gen := &fakeProvider{name: "generic", branded: 3, plain: 1, supports: true}
	r := NewResolver([]Provider{gen, est, brand}, time.Second, testutil.Logger())

	got := strings.Join(r.Order(models.CanonicalItem{IsBranded: true, Brand: "b"}), ",")
	if got != "brand,estimate,generic" {
		t.Errorf("branded order = %s", got)
	}
	brand.supports = false
	got = strings.Join(r.Order(models.CanonicalItem{}), ",")
	if got != "generic,estimate" {
		t.Errorf("unbranded order = %s", got)
	}
}

func TestResolver_FirstPositiveWins(t *testing.T) {
	zero := &fakeProvider{name: "zero", plain: 1, supports: true, result: result(models.SourceGeneric, 0)}
	failing := &fakeProvider{name: "failing", plain: 2, supports: true, err: errors.New("rate limited")}
	good := &fakeProvider{name: "good", plain: 3, supports: true, result: result(models.SourceEstimate, 250)}
	never := &fakeProvider{name: "never", plain: 4, supports: true, result: result(models.SourceGeneric, 999)}
	r := NewResolver([]Provider{never, good, failing, zero}, time.Second, testutil.Logger())

	res := r.Resolve(context.Background(), models.CanonicalItem{Name: "granola"}, "u1")
	if res.Source != models.SourceEstimate || res.Macros.Kcal != 250 {
		t.Errorf("result = %+v", res)
	}
	if never.calls.Load() != 0 {
		t.Error("cascade continued past a satisfying provider")
	}
}

func TestResolver_PanicAndTimeoutContinue(t *testing.T) {
	panicking := &fakeProvider{name: "panic", plain: 1, supports: true, panics: true}
	slow := &fakeProvider{name: "slow", plain: 2, supports: true, delay: time.Second, result: result(models.SourceEstimate, 100)}
	good := &fakeProvider{name: "good", plain: 3, supports: true, result: result(models.SourceGeneric, 80)}
	r := NewResolver([]Provider{panicking, slow, good}, 30*time.Millisecond, testutil.Logger())

	start := time.Now()
	res := r.Resolve(context.Background(), models.CanonicalItem{Name: "x"}, "u1")
	if res.Source != models.SourceGeneric {
		t.Errorf("source = %s, want generic", res.Source)
	}
	if time.Since(start) > 500*time.Millisecond {
		t.Error("slow provider was not cut off by the per-call timeout")
	}
}

func TestResolver_StubWhenNothingMatches(t *testing.T) {
	miss := &fakeProvider{name: "miss", plain: 1, supports: true}
	unsupported := &fakeProvider{name: "unsupported", plain: 2, result: result(models.SourceBrand, 500)}
	r := NewResolver([]Provider{miss, unsupported}, time.Second, testutil.Logger())

	res := r.Resolve(context.Background(), models.CanonicalItem{Name: "unknown_food_xyz", Quantity: 2, Unit: "cup"}, "u1")
	if res.Source != models.SourceStub || res.Confidence != StubConfidence {
		t.Errorf("result = %+v", res)
	}
	if !res.Macros.IsZero() || res.ServingLabel != "cup" || res.GramsPerServing != 100 {
		t.Errorf("stub = %+v", res)
	}
	if unsupported.calls.Load() != 0 {
		t.Error("unsupported provider was called")
	}
}
