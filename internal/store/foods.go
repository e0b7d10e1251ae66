package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/starford/macrolog/internal/apperr"
	"github.com/starford/macrolog/internal/models"
)

//go:embed data/generic_foods.yaml
var genericFoodsYAML []byte

// DefaultGenericFoods returns the embedded reference foods.
func DefaultGenericFoods() ([]models.GenericFood, error) {
	var foods []models.GenericFood
	if err := yaml.Unmarshal(genericFoodsYAML, &foods); err != nil {
		return nil, fmt.Errorf("store: parse generic foods: %w", err)
	}
	return foods, nil
}

// FindGenericFood returns the best match for name among rows of the given
// country. An empty country selects the rows that apply to every country.
// Exact name matches rank above substring matches, then confidence decides.
func (db *DB) FindGenericFood(ctx context.Context, name, country string) (*models.GenericFood, error) {
	countryClause := "country_code IS NULL"
	args := []any{name}
	if country != "" {
		countryClause = "country_code = ?"
		args = append(args, country)
	}
	args = append(args, name)

	var (
		f  models.GenericFood
		cc sql.NullString
	)
	err := db.conn.QueryRowContext(ctx, `
		SELECT name, country_code, serving_label, grams_per_serving,
			kcal, protein_g, carbs_g, fat_g, fiber_g, confidence
		FROM generic_foods
		WHERE name LIKE '%' || ? || '%' AND `+countryClause+`
		ORDER BY (name = ?) DESC, confidence DESC, length(name) ASC
		LIMIT 1`, args...).Scan(&f.Name, &cc, &f.ServingLabel, &f.GramsPerServing,
		&f.Macros.Kcal, &f.Macros.ProteinG, &f.Macros.CarbsG, &f.Macros.FatG, &f.Macros.FiberG, &f.Confidence)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: find generic food: %w", err)
	}
	f.CountryCode = cc.String
	return &f, nil
}

// InsertGenericFood adds a reference food row.
func (db *DB) InsertGenericFood(ctx context.Context, f models.GenericFood) error {
	conf := f.Confidence
	if conf <= 0 {
		conf = 0.8
	}
	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO generic_foods (name, country_code, serving_label, grams_per_serving,
			kcal, protein_g, carbs_g, fat_g, fiber_g, confidence)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		f.Name, nullable(f.CountryCode), f.ServingLabel, f.GramsPerServing,
		f.Macros.Kcal, f.Macros.ProteinG, f.Macros.CarbsG, f.Macros.FatG, f.Macros.FiberG, conf)
	if err != nil {
		return fmt.Errorf("store: insert generic food: %w", err)
	}
	return nil
}

// SeedGenericFoods inserts foods when the table is empty and reports how
// many rows were written.
func (db *DB) SeedGenericFoods(ctx context.Context, foods []models.GenericFood) (int, error) {
	var n int
	if err := db.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM generic_foods`).Scan(&n); err != nil {
		return 0, fmt.Errorf("store: count generic foods: %w", err)
	}
	if n > 0 {
		return 0, nil
	}
	for _, f := range foods {
		if err := db.InsertGenericFood(ctx, f); err != nil {
			return 0, err
		}
	}
	return len(foods), nil
}
