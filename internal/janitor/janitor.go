// Package janitor runs scheduled maintenance on the persistent estimate cache.
package janitor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// DefaultSchedule runs the purge hourly.
const DefaultSchedule = "@every 1h"

// Purger deletes cache rows that expired before now.
type Purger interface {
	PurgeExpiredEstimates(ctx context.Context, now time.Time) (int64, error)
}

// Janitor purges expired estimates on a cron schedule.
type Janitor struct {
	purger   Purger
	schedule string
	logger   *slog.Logger
	now      func() time.Time
}

// New returns a janitor. An empty schedule means DefaultSchedule.
func New(p Purger, schedule string, logger *slog.Logger) *Janitor {
	if schedule == "" {
		schedule = DefaultSchedule
	}
	return &Janitor{purger: p, schedule: schedule, logger: logger, now: time.Now}
}

// Run schedules the purge and blocks until ctx is done. Running jobs are
// allowed to finish for up to five seconds.
func (j *Janitor) Run(ctx context.Context) error {
	c := cron.New()
	if _, err := c.AddFunc(j.schedule, func() { j.PurgeOnce(ctx) }); err != nil {
		return fmt.Errorf("janitor: schedule %q: %w", j.schedule, err)
	}
	c.Start()
	j.logger.Info("janitor started", slog.String("schedule", j.schedule))

	<-ctx.Done()
	select {
	case <-c.Stop().Done():
	case <-time.After(5 * time.Second):
		j.logger.Warn("janitor stop timed out waiting for running jobs")
	}
	j.logger.Info("janitor stopped")
	return nil
}

// PurgeOnce deletes expired estimates and returns how many were removed.
func (j *Janitor) PurgeOnce(ctx context.Context) int64 {
	n, err := j.purger.PurgeExpiredEstimates(ctx, j.now())
	if err != nil {
		j.logger.Error("estimate purge failed", slog.String("error", err.Error()))
		return 0
	}
	j.logger.Info("expired estimates purged", slog.Int64("count", n))
	return n
}
