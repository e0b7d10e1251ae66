// Package cache provides the caches that sit in front of the external
// nutrition estimator: an in-process tier and persistent tiers backed by
// sqlite or redis.
package cache

import (
	"context"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/starford/macrolog/internal/models"
)

// Cache stores MacroResults by key.
type Cache interface {
	Get(ctx context.Context, key string) (*models.MacroResult, bool, error)
	Set(ctx context.Context, key string, v models.MacroResult, ttl time.Duration) error
}

var (
	nonKeyCharsRe = regexp.MustCompile(`[^a-z0-9\s]+`)
	spaceRe       = regexp.MustCompile(`\s+`)
)

// CanonicalKey builds the persistent cache key from the non-empty parts:
// lowercased, special characters replaced by spaces, whitespace collapsed.
func CanonicalKey(parts ...string) string {
	kept := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			kept = append(kept, p)
		}
	}
	s := strings.ToLower(strings.Join(kept, " "))
	s = nonKeyCharsRe.ReplaceAllString(s, " ")
	return strings.TrimSpace(spaceRe.ReplaceAllString(s, " "))
}

type memEntry struct {
	v       models.MacroResult
	expires time.Time
}

// Memory is a process-local cache. Expiry is only checked when ttl > 0 was
// given on Set.
type Memory struct {
	mu sync.RWMutex
	m  map[string]memEntry
	// now is replaceable in tests.
	now func() time.Time
}

// NewMemory returns an empty Memory cache.
func NewMemory() *Memory {
	return &Memory{m: make(map[string]memEntry), now: time.Now}
}

// Get implements Cache.
func (c *Memory) Get(_ context.Context, key string) (*models.MacroResult, bool, error) {
	c.mu.RLock()
	e, ok := c.m[key]
	c.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	if !e.expires.IsZero() && c.now().After(e.expires) {
		c.mu.Lock()
		delete(c.m, key)
		c.mu.Unlock()
		return nil, false, nil
	}
	v := e.v
	return &v, true, nil
}

// Set implements Cache.
func (c *Memory) Set(_ context.Context, key string, v models.MacroResult, ttl time.Duration) error {
	e := memEntry{v: v}
	if ttl > 0 {
		e.expires = c.now().Add(ttl)
	}
	c.mu.Lock()
	c.m[key] = e
	c.mu.Unlock()
	return nil
}

// Len returns the number of entries, including expired ones not yet evicted.
func (c *Memory) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.m)
}

var _ Cache = (*Memory)(nil)
