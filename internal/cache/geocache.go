package cache

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/shubhsaxena/property-search/internal/models"
	"github.com/shubhsaxena/property-search/internal/observability"
)

// GeoCache remembers geocoding results by normalized location key. Get
// returns (nil, nil) on a miss or when the stored entry has expired.
type GeoCache interface {
	Get(ctx context.Context, key string) (*models.GeoCacheEntry, error)
	Set(ctx context.Context, key string, entry *models.GeoCacheEntry, ttl time.Duration) error
}

// Clock reports the current time. Tests substitute a fixed or stepped clock.
type Clock func() time.Time

// GeoKey normalizes a free-text location into its cache key.
func GeoKey(location string) string {
	return strings.ToLower(location)
}

// MemoryGeoCache is a process-local GeoCache. Expired entries are never swept;
// they are ignored on read and replaced by the next Set for the same key.
type MemoryGeoCache struct {
	mu      sync.RWMutex
	entries map[string]models.GeoCacheEntry
	now     Clock
}

func NewMemoryGeoCache(now Clock) *MemoryGeoCache {
	if now == nil {
		now = time.Now
	}
	return &MemoryGeoCache{
		entries: make(map[string]models.GeoCacheEntry),
		now:     now,
	}
}

func (c *MemoryGeoCache) Get(_ context.Context, key string) (*models.GeoCacheEntry, error) {
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok || !c.now().Before(entry.ExpiresAt) {
		observability.GeoCacheMisses.WithLabelValues("memory").Inc()
		return nil, nil
	}

	observability.GeoCacheHits.WithLabelValues("memory").Inc()
	return &entry, nil
}

func (c *MemoryGeoCache) Set(_ context.Context, key string, entry *models.GeoCacheEntry, ttl time.Duration) error {
	stored := *entry
	stored.ExpiresAt = c.now().Add(ttl)

	c.mu.Lock()
	c.entries[key] = stored
	c.mu.Unlock()

	entry.ExpiresAt = stored.ExpiresAt
	return nil
}

func (c *MemoryGeoCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
