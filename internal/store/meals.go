package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/starford/macrolog/internal/apperr"
	"github.com/starford/macrolog/internal/models"
)

// FindMealByKey returns the id of the user's meal with the given idempotency key.
func (db *DB) FindMealByKey(ctx context.Context, userID, key string) (string, error) {
	var id string
	err := db.conn.QueryRowContext(ctx,
		`SELECT id FROM meal_logs WHERE user_id = ? AND idempotency_key = ?`, userID, key).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", apperr.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("store: find meal by key: %w", err)
	}
	return id, nil
}

// InsertMealHeader writes the meal row without items. A duplicate
// (user, idempotency key) pair yields apperr.ErrUniqueViolation.
func (db *DB) InsertMealHeader(ctx context.Context, rec *models.MealLogRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO meal_logs (id, user_id, idempotency_key, eaten_at, meal_slot, source,
			kcal, protein_g, carbs_g, fat_g, fiber_g, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.UserID, rec.IdempotencyKey, rec.EatenAt.UnixMilli(), rec.MealSlot, rec.Source,
		rec.Totals.Kcal, rec.Totals.ProteinG, rec.Totals.CarbsG, rec.Totals.FatG, rec.Totals.FiberG,
		rec.CreatedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("store: insert meal header: %w", mapErr(err))
	}
	return nil
}

// InsertMealItems writes all items of a meal in one transaction.
func (db *DB) InsertMealItems(ctx context.Context, mealID string, items []models.MealItemRecord) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO meal_items (meal_log_id, position, name, quantity, unit, brand, serving_label,
			kcal, protein_g, carbs_g, fat_g, fiber_g, confidence, source)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("store: prepare item insert: %w", err)
	}
	defer stmt.Close()

	for i, it := range items {
		if _, err := stmt.ExecContext(ctx, mealID, i, it.Name, it.Quantity, it.Unit, it.Brand, it.ServingLabel,
			it.Macros.Kcal, it.Macros.ProteinG, it.Macros.CarbsG, it.Macros.FatG, it.Macros.FiberG,
			it.Confidence, string(it.Source)); err != nil {
			return fmt.Errorf("store: insert meal item %d: %w", i, mapErr(err))
		}
	}
	return tx.Commit()
}

// DeleteMealHeader removes a meal row that has no items.
func (db *DB) DeleteMealHeader(ctx context.Context, mealID string) error {
	res, err := db.conn.ExecContext(ctx, `DELETE FROM meal_logs WHERE id = ?`, mealID)
	if err != nil {
		return fmt.Errorf("store: delete meal header: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.ErrNotFound
	}
	return nil
}

// DeleteMeal removes a meal and its items in one transaction.
func (db *DB) DeleteMeal(ctx context.Context, mealID string) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `DELETE FROM meal_items WHERE meal_log_id = ?`, mealID); err != nil {
		return fmt.Errorf("store: delete meal items: %w", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM meal_logs WHERE id = ?`, mealID)
	if err != nil {
		return fmt.Errorf("store: delete meal: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.ErrNotFound
	}
	return tx.Commit()
}

const mealColumns = `id, user_id, idempotency_key, eaten_at, meal_slot, source,
	kcal, protein_g, carbs_g, fat_g, fiber_g, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMeal(row rowScanner) (*models.MealLogRecord, error) {
	var (
		m                  models.MealLogRecord
		eatenAt, createdAt int64
	)
	if err := row.Scan(&m.ID, &m.UserID, &m.IdempotencyKey, &eatenAt, &m.MealSlot, &m.Source,
		&m.Totals.Kcal, &m.Totals.ProteinG, &m.Totals.CarbsG, &m.Totals.FatG, &m.Totals.FiberG,
		&createdAt); err != nil {
		return nil, err
	}
	m.EatenAt = time.UnixMilli(eatenAt).UTC()
	m.CreatedAt = time.UnixMilli(createdAt).UTC()
	return &m, nil
}

// GetMeal returns a meal with its items.
func (db *DB) GetMeal(ctx context.Context, mealID string) (*models.MealLogRecord, error) {
	m, err := scanMeal(db.conn.QueryRowContext(ctx,
		`SELECT `+mealColumns+` FROM meal_logs WHERE id = ?`, mealID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: get meal: %w", err)
	}
	if m.Items, err = db.mealItems(ctx, m.ID); err != nil {
		return nil, err
	}
	return m, nil
}

// LastMealSince returns the user's most recently eaten meal at or after since.
func (db *DB) LastMealSince(ctx context.Context, userID string, since time.Time) (*models.MealLogRecord, error) {
	m, err := scanMeal(db.conn.QueryRowContext(ctx,
		`SELECT `+mealColumns+` FROM meal_logs
		 WHERE user_id = ? AND eaten_at >= ?
		 ORDER BY eaten_at DESC, created_at DESC LIMIT 1`, userID, since.UnixMilli()))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: last meal: %w", err)
	}
	return m, nil
}

// ListMeals returns the user's meals eaten in [from, to), newest first, with items.
func (db *DB) ListMeals(ctx context.Context, userID string, from, to time.Time, limit int) ([]models.MealLogRecord, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+mealColumns+` FROM meal_logs
		 WHERE user_id = ? AND eaten_at >= ? AND eaten_at < ?
		 ORDER BY eaten_at DESC LIMIT ?`, userID, from.UnixMilli(), to.UnixMilli(), limit)
	if err != nil {
		return nil, fmt.Errorf("store: list meals: %w", err)
	}
	defer rows.Close()

	var meals []models.MealLogRecord
	for rows.Next() {
		m, err := scanMeal(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scan meal: %w", err)
		}
		meals = append(meals, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	rows.Close()

	for i := range meals {
		if meals[i].Items, err = db.mealItems(ctx, meals[i].ID); err != nil {
			return nil, err
		}
	}
	return meals, nil
}

func (db *DB) mealItems(ctx context.Context, mealID string) ([]models.MealItemRecord, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT position, name, quantity, unit, brand, serving_label,
			kcal, protein_g, carbs_g, fat_g, fiber_g, confidence, source
		FROM meal_items WHERE meal_log_id = ? ORDER BY position`, mealID)
	if err != nil {
		return nil, fmt.Errorf("store: meal items: %w", err)
	}
	defer rows.Close()

	items := []models.MealItemRecord{}
	for rows.Next() {
		it := models.MealItemRecord{MealLogID: mealID}
		var source string
		if err := rows.Scan(&it.Position, &it.Name, &it.Quantity, &it.Unit, &it.Brand, &it.ServingLabel,
			&it.Macros.Kcal, &it.Macros.ProteinG, &it.Macros.CarbsG, &it.Macros.FatG, &it.Macros.FiberG,
			&it.Confidence, &source); err != nil {
			return nil, fmt.Errorf("store: scan meal item: %w", err)
		}
		it.Source = models.Source(source)
		items = append(items, it)
	}
	return items, rows.Err()
}

// UsageBetween sums the calories and counts the meals the user ate in [from, to).
func (db *DB) UsageBetween(ctx context.Context, userID string, from, to time.Time) (models.Usage, error) {
	var u models.Usage
	err := db.conn.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(kcal), 0), COUNT(*) FROM meal_logs
		WHERE user_id = ? AND eaten_at >= ? AND eaten_at < ?`,
		userID, from.UnixMilli(), to.UnixMilli()).Scan(&u.UsedKcal, &u.MealCount)
	if err != nil {
		return models.Usage{}, fmt.Errorf("store: usage: %w", err)
	}
	return u, nil
}
