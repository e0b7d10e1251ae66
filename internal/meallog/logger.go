package meallog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/starford/macrolog/internal/apperr"
	"github.com/starford/macrolog/internal/models"
)

// State is the progress of one meal write.
type State int

const (
	StateNotStarted State = iota
	StateHeaderWritten
	StateItemsWritten
	StateRolledBack
	// StateFailed means the compensating delete failed and a header without
	// items may remain.
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateNotStarted:
		return "not_started"
	case StateHeaderWritten:
		return "header_written"
	case StateItemsWritten:
		return "items_written"
	case StateRolledBack:
		return "rolled_back"
	case StateFailed:
		return "failed"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// MarshalText encodes the state by name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Store is the persistence used by the logger. InsertMealHeader must return
// an error wrapping apperr.ErrUniqueViolation when the user already has a
// meal with the same idempotency key.
type Store interface {
	FindMealByKey(ctx context.Context, userID, key string) (string, error)
	InsertMealHeader(ctx context.Context, rec *models.MealLogRecord) error
	InsertMealItems(ctx context.Context, mealID string, items []models.MealItemRecord) error
	DeleteMealHeader(ctx context.Context, mealID string) error
}

// Entry is a meal to log.
type Entry struct {
	UserID   string
	EatenAt  time.Time
	MealSlot string
	Source   string
	Totals   models.MealTotals
	Items    []models.MealItemRecord
}

// Result reports the outcome of Log.
type Result struct {
	Success        bool   `json:"success"`
	MealLogID      string `json:"meal_log_id,omitempty"`
	IsDuplicate    bool   `json:"is_duplicate"`
	IdempotencyKey string `json:"idempotency_key"`
	State          State  `json:"state"`
}

// Logger writes meals as a header followed by its items, deleting the header
// again when the items cannot be written.
type Logger struct {
	store  Store
	logger *slog.Logger
	newID  func() string
}

// New returns a logger over store.
func New(store Store, logger *slog.Logger) *Logger {
	return &Logger{store: store, logger: logger, newID: uuid.NewString}
}

// Log persists e unless a meal with the same fingerprint exists. Duplicates
// are successful results with IsDuplicate set. A failed item write is rolled
// back and returned as an error; if the rollback fails too the error wraps
// apperr.ErrOrphanedHeader.
func (l *Logger) Log(ctx context.Context, e Entry) (Result, error) {
	key := Fingerprint(e.UserID, e.EatenAt, e.Items)
	res := Result{IdempotencyKey: key, State: StateNotStarted}

	if id, err := l.store.FindMealByKey(ctx, e.UserID, key); err == nil {
		l.logger.Info("duplicate meal skipped",
			slog.String("user_id", e.UserID),
			slog.String("idempotency_key", key),
			slog.String("meal_log_id", id))
		return l.duplicate(res, id), nil
	} else if !errors.Is(err, apperr.ErrNotFound) {
		return res, fmt.Errorf("meallog: pre-check: %w", err)
	}

	rec := &models.MealLogRecord{
		ID:             l.newID(),
		UserID:         e.UserID,
		IdempotencyKey: key,
		EatenAt:        e.EatenAt,
		MealSlot:       e.MealSlot,
		Source:         e.Source,
		Totals:         e.Totals,
	}
	if err := l.store.InsertMealHeader(ctx, rec); err != nil {
		if !errors.Is(err, apperr.ErrUniqueViolation) {
			return res, fmt.Errorf("meallog: insert header: %w", err)
		}
		id, ferr := l.store.FindMealByKey(ctx, e.UserID, key)
		if ferr != nil {
			return res, fmt.Errorf("meallog: re-select after conflict: %w", ferr)
		}
		l.logger.Info("duplicate meal caught by constraint",
			slog.String("user_id", e.UserID),
			slog.String("idempotency_key", key),
			slog.String("meal_log_id", id))
		return l.duplicate(res, id), nil
	}
	res.State = StateHeaderWritten
	res.MealLogID = rec.ID

	items := make([]models.MealItemRecord, len(e.Items))
	for i, it := range e.Items {
		it.MealLogID = rec.ID
		it.Position = i
		items[i] = it
	}
	if err := l.store.InsertMealItems(ctx, rec.ID, items); err != nil {
		return l.rollback(ctx, res, err)
	}

	res.State = StateItemsWritten
	res.Success = true
	return res, nil
}

func (l *Logger) duplicate(res Result, id string) Result {
	res.Success = true
	res.IsDuplicate = true
	res.MealLogID = id
	return res
}

// rollback removes the header written for res. The delete runs detached from
// ctx so a cancelled request still cleans up. A header that is already gone
// counts as rolled back.
func (l *Logger) rollback(ctx context.Context, res Result, cause error) (Result, error) {
	dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	if err := l.store.DeleteMealHeader(dctx, res.MealLogID); err != nil && !errors.Is(err, apperr.ErrNotFound) {
		res.State = StateFailed
		l.logger.Error("orphaned meal header",
			slog.String("meal_log_id", res.MealLogID),
			slog.String("idempotency_key", res.IdempotencyKey),
			slog.String("cause", cause.Error()),
			slog.String("error", err.Error()))
		return res, fmt.Errorf("meallog: %w: meal %s: items: %v: delete: %v",
			apperr.ErrOrphanedHeader, res.MealLogID, cause, err)
	}

	l.logger.Warn("meal items failed, header rolled back",
		slog.String("meal_log_id", res.MealLogID),
		slog.String("error", cause.Error()))
	res.State = StateRolledBack
	res.MealLogID = ""
	return res, fmt.Errorf("meallog: insert items: %w", cause)
}
