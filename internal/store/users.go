package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/starford/macrolog/internal/apperr"
	"github.com/starford/macrolog/internal/models"
)

// Targets returns the user's stored targets; unset fields are zero.
func (db *DB) Targets(ctx context.Context, userID string) (models.UserTargets, error) {
	var t models.UserTargets
	err := db.conn.QueryRowContext(ctx, `
		SELECT protein_g, carbs_g, fat_g, tdee, profile_kcal FROM user_targets WHERE user_id = ?`,
		userID).Scan(&t.ProteinG, &t.CarbsG, &t.FatG, &t.TDEE, &t.ProfileKcal)
	if errors.Is(err, sql.ErrNoRows) {
		return models.UserTargets{}, nil
	}
	if err != nil {
		return models.UserTargets{}, fmt.Errorf("store: targets: %w", err)
	}
	return t, nil
}

// SetTargets replaces the user's targets.
func (db *DB) SetTargets(ctx context.Context, userID string, t models.UserTargets) error {
	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO user_targets (user_id, protein_g, carbs_g, fat_g, tdee, profile_kcal)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET protein_g = excluded.protein_g, carbs_g = excluded.carbs_g,
			fat_g = excluded.fat_g, tdee = excluded.tdee, profile_kcal = excluded.profile_kcal`,
		userID, t.ProteinG, t.CarbsG, t.FatG, t.TDEE, t.ProfileKcal)
	if err != nil {
		return fmt.Errorf("store: set targets: %w", err)
	}
	return nil
}

// Metrics returns the user's body metrics or apperr.ErrNotFound.
func (db *DB) Metrics(ctx context.Context, userID string) (*models.BodyMetrics, error) {
	var m models.BodyMetrics
	err := db.conn.QueryRowContext(ctx, `
		SELECT sex, age, height_cm, weight_kg, activity_level, body_fat_pct FROM user_metrics WHERE user_id = ?`,
		userID).Scan(&m.Sex, &m.Age, &m.HeightCm, &m.WeightKg, &m.ActivityLevel, &m.BodyFatPct)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: metrics: %w", err)
	}
	return &m, nil
}

// SetMetrics replaces the user's body metrics.
func (db *DB) SetMetrics(ctx context.Context, userID string, m models.BodyMetrics) error {
	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO user_metrics (user_id, sex, age, height_cm, weight_kg, activity_level, body_fat_pct)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET sex = excluded.sex, age = excluded.age,
			height_cm = excluded.height_cm, weight_kg = excluded.weight_kg,
			activity_level = excluded.activity_level, body_fat_pct = excluded.body_fat_pct`,
		userID, m.Sex, m.Age, m.HeightCm, m.WeightKg, m.ActivityLevel, m.BodyFatPct)
	if err != nil {
		return fmt.Errorf("store: set metrics: %w", err)
	}
	return nil
}

// Preferences returns the user's preferences; unset fields are empty.
func (db *DB) Preferences(ctx context.Context, userID string) (models.Preferences, error) {
	var p models.Preferences
	err := db.conn.QueryRowContext(ctx,
		`SELECT timezone, country_code FROM user_preferences WHERE user_id = ?`, userID).Scan(&p.Timezone, &p.CountryCode)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Preferences{}, nil
	}
	if err != nil {
		return models.Preferences{}, fmt.Errorf("store: preferences: %w", err)
	}
	return p, nil
}

// SetPreferences replaces the user's preferences.
func (db *DB) SetPreferences(ctx context.Context, userID string, p models.Preferences) error {
	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO user_preferences (user_id, timezone, country_code) VALUES (?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET timezone = excluded.timezone, country_code = excluded.country_code`,
		userID, p.Timezone, p.CountryCode)
	if err != nil {
		return fmt.Errorf("store: set preferences: %w", err)
	}
	return nil
}
