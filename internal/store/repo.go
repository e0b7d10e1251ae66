package store

import (
	"context"
	"time"

	"github.com/starford/macrolog/internal/models"
)

// Repository lists every operation of the store. Consumers depend on
// narrower interfaces of their own.
type Repository interface {
	FindMealByKey(ctx context.Context, userID, key string) (string, error)
	InsertMealHeader(ctx context.Context, rec *models.MealLogRecord) error
	InsertMealItems(ctx context.Context, mealID string, items []models.MealItemRecord) error
	DeleteMealHeader(ctx context.Context, mealID string) error
	DeleteMeal(ctx context.Context, mealID string) error
	GetMeal(ctx context.Context, mealID string) (*models.MealLogRecord, error)
	LastMealSince(ctx context.Context, userID string, since time.Time) (*models.MealLogRecord, error)
	ListMeals(ctx context.Context, userID string, from, to time.Time, limit int) ([]models.MealLogRecord, error)
	UsageBetween(ctx context.Context, userID string, from, to time.Time) (models.Usage, error)

	FindGenericFood(ctx context.Context, name, country string) (*models.GenericFood, error)
	InsertGenericFood(ctx context.Context, f models.GenericFood) error
	SeedGenericFoods(ctx context.Context, foods []models.GenericFood) (int, error)

	CachedEstimate(ctx context.Context, key string, now time.Time) (*models.MacroResult, error)
	PutCachedEstimate(ctx context.Context, key string, v models.MacroResult, expiresAt time.Time) error
	PurgeExpiredEstimates(ctx context.Context, now time.Time) (int64, error)

	Targets(ctx context.Context, userID string) (models.UserTargets, error)
	SetTargets(ctx context.Context, userID string, t models.UserTargets) error
	Metrics(ctx context.Context, userID string) (*models.BodyMetrics, error)
	SetMetrics(ctx context.Context, userID string, m models.BodyMetrics) error
	Preferences(ctx context.Context, userID string) (models.Preferences, error)
	SetPreferences(ctx context.Context, userID string, p models.Preferences) error

	Close() error
}

// Verify *DB satisfies Repository at compile time.
var _ Repository = (*DB)(nil)
