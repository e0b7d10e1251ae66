package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/starford/macrolog/internal/models"
)

// CachedEstimate returns the cached estimate for key, or nil when it is
// missing or expired at now.
func (db *DB) CachedEstimate(ctx context.Context, key string, now time.Time) (*models.MacroResult, error) {
	var payload string
	err := db.conn.QueryRowContext(ctx,
		`SELECT payload FROM estimate_cache WHERE key = ? AND expires_at > ?`,
		key, now.UnixMilli()).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: cached estimate: %w", err)
	}
	var v models.MacroResult
	if err := json.Unmarshal([]byte(payload), &v); err != nil {
		return nil, fmt.Errorf("store: decode cached estimate %q: %w", key, err)
	}
	return &v, nil
}

// PutCachedEstimate inserts or replaces the cached estimate for key.
func (db *DB) PutCachedEstimate(ctx context.Context, key string, v models.MacroResult, expiresAt time.Time) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("store: encode estimate: %w", err)
	}
	_, err = db.conn.ExecContext(ctx, `
		INSERT INTO estimate_cache (key, payload, expires_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET payload = excluded.payload, expires_at = excluded.expires_at`,
		key, string(payload), expiresAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("store: put cached estimate: %w", err)
	}
	return nil
}

// PurgeExpiredEstimates deletes cache rows that expired before now.
func (db *DB) PurgeExpiredEstimates(ctx context.Context, now time.Time) (int64, error) {
	res, err := db.conn.ExecContext(ctx, `DELETE FROM estimate_cache WHERE expires_at <= ?`, now.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("store: purge estimates: %w", err)
	}
	return res.RowsAffected()
}
