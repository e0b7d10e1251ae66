package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"

	"github.com/starford/macrolog/internal/models"
)

var sample = models.MacroResult{
	Name:            "granola bar",
	ServingLabel:    "serving",
	GramsPerServing: 40,
	Macros:          models.Macros{Kcal: 190, ProteinG: 4, CarbsG: 29, FatG: 7, FiberG: 2},
	Confidence:      0.8,
	Source:          models.SourceEstimate,
}

func TestCanonicalKey(t *testing.T) {
	tests := []struct {
		parts []string
		want  string
	}{
		{[]string{"McDonald's", "Big Mac", "", ""}, "mcdonald s big mac"},
		{[]string{"", "Greek   Yogurt (2%)", "1-cup", "large"}, "greek yogurt 2 1 cup large"},
		{[]string{"", "", "", ""}, ""},
	}
	for _, tt := range tests {
		if got := CanonicalKey(tt.parts...); got != tt.want {
			t.Errorf("CanonicalKey(%q) = %q, want %q", tt.parts, got, tt.want)
		}
	}
}

func TestMemory_GetSet(t *testing.T) {
	ctx := context.Background()
	c := NewMemory()
	if _, ok, _ := c.Get(ctx, "x"); ok {
		t.Fatal("empty cache hit")
	}
	if err := c.Set(ctx, "x", sample, 0); err != nil {
		t.Fatal(err)
	}
	got, ok, err := c.Get(ctx, "x")
	if err != nil || !ok {
		t.Fatalf("ok=%v err=%v", ok, err)
	}
	if *got != sample {
		t.Errorf("got %+v", *got)
	}
	got.Macros.Kcal = 1
	again, _, _ := c.Get(ctx, "x")
	if again.Macros.Kcal != sample.Macros.Kcal {
		t.Error("cached value mutated through returned pointer")
	}
}

func TestMemory_Expiry(t *testing.T) {
	ctx := context.Background()
	c := NewMemory()
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	_ = c.Set(ctx, "x", sample, time.Hour)
	now = now.Add(2 * time.Hour)
	if _, ok, _ := c.Get(ctx, "x"); ok {
		t.Error("expired entry returned")
	}
	if c.Len() != 0 {
		t.Errorf("len = %d, want 0 after eviction", c.Len())
	}
}

type fakeEstimateStore struct {
	rows map[string]models.MacroResult
	exp  map[string]time.Time
}

func (f *fakeEstimateStore) CachedEstimate(_ context.Context, key string, now time.Time) (*models.MacroResult, error) {
	v, ok := f.rows[key]
	if !ok || now.After(f.exp[key]) {
		return nil, nil
	}
	return &v, nil
}

func (f *fakeEstimateStore) PutCachedEstimate(_ context.Context, key string, v models.MacroResult, expiresAt time.Time) error {
	f.rows[key] = v
	f.exp[key] = expiresAt
	return nil
}

func TestStore_AdaptsEstimateStore(t *testing.T) {
	ctx := context.Background()
	fs := &fakeEstimateStore{rows: map[string]models.MacroResult{}, exp: map[string]time.Time{}}
	c := NewStore(fs)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	if err := c.Set(ctx, "granola bar", sample, 30*24*time.Hour); err != nil {
		t.Fatal(err)
	}
	if want := now.Add(30 * 24 * time.Hour); !fs.exp["granola bar"].Equal(want) {
		t.Errorf("expires = %v, want %v", fs.exp["granola bar"], want)
	}
	if _, ok, _ := c.Get(ctx, "granola bar"); !ok {
		t.Error("miss before expiry")
	}
	now = now.Add(31 * 24 * time.Hour)
	if _, ok, _ := c.Get(ctx, "granola bar"); ok {
		t.Error("hit after expiry")
	}
}

func TestRedis_RoundTripAndTTL(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	c := NewRedis(rdb, "test:")
	t.Cleanup(func() { c.Close() })
	ctx := context.Background()

	if _, ok, err := c.Get(ctx, "granola bar"); ok || err != nil {
		t.Fatalf("ok=%v err=%v", ok, err)
	}
	if err := c.Set(ctx, "granola bar", sample, time.Hour); err != nil {
		t.Fatal(err)
	}
	if !mr.Exists("test:granola bar") {
		t.Fatal("key not written with prefix")
	}
	got, ok, err := c.Get(ctx, "granola bar")
	if err != nil || !ok || *got != sample {
		t.Fatalf("got %+v ok=%v err=%v", got, ok, err)
	}

	mr.FastForward(2 * time.Hour)
	if _, ok, _ := c.Get(ctx, "granola bar"); ok {
		t.Error("hit after ttl")
	}
}
