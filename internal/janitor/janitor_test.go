package janitor

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/starford/macrolog/internal/models"
	"github.com/starford/macrolog/internal/testutil"
)

type countingPurger struct {
	calls atomic.Int32
	err   error
}

func (p *countingPurger) PurgeExpiredEstimates(context.Context, time.Time) (int64, error) {
	p.calls.Add(1)
	return 3, p.err
}

func eventually(t *testing.T, timeout time.Duration, fn func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if fn() {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func TestPurgeOnce_Store(t *testing.T) {
	db := testutil.TestDB(t)
	ctx := context.Background()
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	v := models.MacroResult{Name: "granola", Macros: models.Macros{Kcal: 190}, Source: models.SourceEstimate}
	if err := db.PutCachedEstimate(ctx, "expired", v, now.Add(-time.Minute)); err != nil {
		t.Fatal(err)
	}
	if err := db.PutCachedEstimate(ctx, "fresh", v, now.Add(time.Hour)); err != nil {
		t.Fatal(err)
	}

	j := New(db, "", testutil.Logger())
	j.now = func() time.Time { return now }
	if n := j.PurgeOnce(ctx); n != 1 {
		t.Errorf("purged = %d, want 1", n)
	}
	if got, err := db.CachedEstimate(ctx, "fresh", now); err != nil || got == nil {
		t.Errorf("fresh entry gone: %v, %v", got, err)
	}
}

func TestPurgeOnce_ErrorReturnsZero(t *testing.T) {
	p := &countingPurger{err: errors.New("disk full")}
	if n := New(p, "", testutil.Logger()).PurgeOnce(context.Background()); n != 0 {
		t.Errorf("purged = %d, want 0", n)
	}
}

func TestRun_SchedulesPurge(t *testing.T) {
	p := &countingPurger{}
	j := New(p, "@every 1s", testutil.Logger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- j.Run(ctx) }()

	eventually(t, 3*time.Second, func() bool { return p.calls.Load() >= 1 })
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run = %v", err)
		}
	case <-time.After(6 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestRun_InvalidSchedule(t *testing.T) {
	j := New(&countingPurger{}, "not a schedule", testutil.Logger())
	if err := j.Run(context.Background()); err == nil {
		t.Error("expected schedule error")
	}
}
