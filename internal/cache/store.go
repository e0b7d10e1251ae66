package cache

import (
	"context"
	"time"

	"github.com/starford/macrolog/internal/models"
)

// EstimateStore is the persistence surface of the sqlite estimate cache.
type EstimateStore interface {
	CachedEstimate(ctx context.Context, key string, now time.Time) (*models.MacroResult, error)
	PutCachedEstimate(ctx context.Context, key string, v models.MacroResult, expiresAt time.Time) error
}

// Store adapts an EstimateStore to the Cache interface.
type Store struct {
	s   EstimateStore
	now func() time.Time
}

// NewStore returns a persistent cache backed by s.
func NewStore(s EstimateStore) *Store {
	return &Store{s: s, now: time.Now}
}

// Get implements Cache. Expired rows are misses.
func (c *Store) Get(ctx context.Context, key string) (*models.MacroResult, bool, error) {
	v, err := c.s.CachedEstimate(ctx, key, c.now())
	if err != nil {
		return nil, false, err
	}
	return v, v != nil, nil
}

// Set implements Cache.
func (c *Store) Set(ctx context.Context, key string, v models.MacroResult, ttl time.Duration) error {
	return c.s.PutCachedEstimate(ctx, key, v, c.now().Add(ttl))
}

var _ Cache = (*Store)(nil)
