// Package store provides the SQLite persistence layer: meal logs, generic
// food reference data, the persistent estimate cache and user settings.
package store

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/mattn/go-sqlite3"

	"github.com/starford/macrolog/internal/apperr"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS meal_logs (
	id              TEXT PRIMARY KEY,
	user_id         TEXT NOT NULL,
	idempotency_key TEXT NOT NULL,
	eaten_at        INTEGER NOT NULL,
	meal_slot       TEXT NOT NULL DEFAULT '',
	source          TEXT NOT NULL DEFAULT '',
	kcal            REAL NOT NULL DEFAULT 0,
	protein_g       REAL NOT NULL DEFAULT 0,
	carbs_g         REAL NOT NULL DEFAULT 0,
	fat_g           REAL NOT NULL DEFAULT 0,
	fiber_g         REAL NOT NULL DEFAULT 0,
	created_at      INTEGER NOT NULL,
	UNIQUE(user_id, idempotency_key)
);

CREATE INDEX IF NOT EXISTS idx_meal_logs_user_eaten ON meal_logs(user_id, eaten_at);

CREATE TABLE IF NOT EXISTS meal_items (
	meal_log_id   TEXT NOT NULL REFERENCES meal_logs(id),
	position      INTEGER NOT NULL,
	name          TEXT NOT NULL,
	quantity      REAL NOT NULL DEFAULT 0,
	unit          TEXT NOT NULL DEFAULT '',
	brand         TEXT NOT NULL DEFAULT '',
	serving_label TEXT NOT NULL DEFAULT '',
	kcal          REAL NOT NULL DEFAULT 0,
	protein_g     REAL NOT NULL DEFAULT 0,
	carbs_g       REAL NOT NULL DEFAULT 0,
	fat_g         REAL NOT NULL DEFAULT 0,
	fiber_g       REAL NOT NULL DEFAULT 0,
	confidence    REAL NOT NULL DEFAULT 0,
	source        TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (meal_log_id, position)
);

CREATE TABLE IF NOT EXISTS generic_foods (
	id                INTEGER PRIMARY KEY AUTOINCREMENT,
	name              TEXT NOT NULL,
	country_code      TEXT,
	serving_label     TEXT NOT NULL DEFAULT '',
	grams_per_serving REAL NOT NULL,
	kcal              REAL NOT NULL DEFAULT 0,
	protein_g         REAL NOT NULL DEFAULT 0,
	carbs_g           REAL NOT NULL DEFAULT 0,
	fat_g             REAL NOT NULL DEFAULT 0,
	fiber_g           REAL NOT NULL DEFAULT 0,
	confidence        REAL NOT NULL DEFAULT 0.8
);

CREATE INDEX IF NOT EXISTS idx_generic_foods_name ON generic_foods(name);

CREATE TABLE IF NOT EXISTS estimate_cache (
	key        TEXT PRIMARY KEY,
	payload    TEXT NOT NULL,
	expires_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS user_targets (
	user_id      TEXT PRIMARY KEY,
	protein_g    REAL NOT NULL DEFAULT 0,
	carbs_g      REAL NOT NULL DEFAULT 0,
	fat_g        REAL NOT NULL DEFAULT 0,
	tdee         REAL NOT NULL DEFAULT 0,
	profile_kcal REAL NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS user_metrics (
	user_id        TEXT PRIMARY KEY,
	sex            TEXT NOT NULL DEFAULT '',
	age            INTEGER NOT NULL DEFAULT 0,
	height_cm      REAL NOT NULL DEFAULT 0,
	weight_kg      REAL NOT NULL DEFAULT 0,
	activity_level TEXT NOT NULL DEFAULT '',
	body_fat_pct   REAL NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS user_preferences (
	user_id      TEXT PRIMARY KEY,
	timezone     TEXT NOT NULL DEFAULT '',
	country_code TEXT NOT NULL DEFAULT ''
);
`

// DB wraps a sql.DB with the application's queries.
type DB struct {
	conn *sql.DB
}

// Open opens (or creates) the SQLite database and applies the schema.
// Write transactions take the write lock up front so concurrent writers
// queue on the busy timeout instead of failing.
func Open(dsn string) (*DB, error) {
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on&_txlock=immediate")
	if err != nil {
		return nil, fmt.Errorf("store: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("store: ping: %w", err)
	}
	if _, err := conn.Exec(schemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("store: apply schema: %w", err)
	}
	return &DB{conn: conn}, nil
}

// Close closes the underlying database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Ping checks that the database is reachable.
func (db *DB) Ping() error {
	return db.conn.Ping()
}

// mapErr converts driver errors into apperr sentinels.
func mapErr(err error) error {
	var se sqlite3.Error
	if errors.As(err, &se) && se.ExtendedCode == sqlite3.ErrConstraintUnique {
		return fmt.Errorf("%w: %v", apperr.ErrUniqueViolation, err)
	}
	return err
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
