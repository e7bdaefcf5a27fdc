package cache

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shubhsaxena/property-search/internal/models"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestGeoKey(t *testing.T) {
	if got := GeoKey("Dallas, TX"); got != "dallas, tx" {
		t.Errorf("expected lowercased key, got %q", got)
	}
}

func TestMemoryGeoCache_MissOnEmpty(t *testing.T) {
	c := NewMemoryGeoCache(nil)

	got, err := c.Get(context.Background(), "dallas")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != nil {
		t.Errorf("expected miss, got %+v", got)
	}
}

func TestMemoryGeoCache_HitWithinTTL(t *testing.T) {
	clock := &fakeClock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	c := NewMemoryGeoCache(clock.Now)
	ctx := context.Background()

	entry := &models.GeoCacheEntry{Lat: 32.78, Lng: -96.80, FormattedAddress: "Dallas, TX, USA"}
	if err := c.Set(ctx, "dallas", entry, 7*24*time.Hour); err != nil {
		t.Fatalf("set: %v", err)
	}
	if !entry.ExpiresAt.Equal(clock.Now().Add(7 * 24 * time.Hour)) {
		t.Errorf("expected expiry stamped on entry, got %v", entry.ExpiresAt)
	}

	clock.Advance(6 * 24 * time.Hour)

	got, err := c.Get(ctx, "dallas")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got == nil {
		t.Fatal("expected hit within ttl")
	}
	if got.Lat != 32.78 || got.Lng != -96.80 {
		t.Errorf("unexpected coordinates: %+v", got)
	}
}

func TestMemoryGeoCache_ExpiredIsMiss(t *testing.T) {
	clock := &fakeClock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	c := NewMemoryGeoCache(clock.Now)
	ctx := context.Background()

	c.Set(ctx, "dallas", &models.GeoCacheEntry{Lat: 1, Lng: 2}, time.Hour)
	clock.Advance(time.Hour)

	got, _ := c.Get(ctx, "dallas")
	if got != nil {
		t.Errorf("expected expired entry to miss, got %+v", got)
	}
	if c.Len() != 1 {
		t.Errorf("expected expired entry to remain stored until overwritten, len=%d", c.Len())
	}
}

func TestMemoryGeoCache_OverwriteReplacesWholeEntry(t *testing.T) {
	clock := &fakeClock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	c := NewMemoryGeoCache(clock.Now)
	ctx := context.Background()

	c.Set(ctx, "washington", &models.GeoCacheEntry{Lat: 1, Lng: 1, Locality: "Washington"}, time.Hour)
	clock.Advance(2 * time.Hour)
	c.Set(ctx, "washington", &models.GeoCacheEntry{Lat: 2, Lng: 2, AdminArea: "WA"}, time.Hour)

	got, _ := c.Get(ctx, "washington")
	if got == nil {
		t.Fatal("expected refreshed entry")
	}
	if got.Lat != 2 || got.Locality != "" || got.AdminArea != "WA" {
		t.Errorf("expected wholesale replacement, got %+v", got)
	}
}

func TestMemoryGeoCache_ReturnsCopy(t *testing.T) {
	c := NewMemoryGeoCache(nil)
	ctx := context.Background()

	c.Set(ctx, "austin", &models.GeoCacheEntry{Lat: 30.27}, time.Hour)
	got, _ := c.Get(ctx, "austin")
	got.Lat = 0

	again, _ := c.Get(ctx, "austin")
	if again.Lat != 30.27 {
		t.Errorf("mutating a returned entry changed the cache: %+v", again)
	}
}

func TestMemoryGeoCache_ConcurrentAccess(t *testing.T) {
	c := NewMemoryGeoCache(nil)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			c.Set(ctx, "houston", &models.GeoCacheEntry{Lat: 29.76, Lng: -95.36}, time.Hour)
		}()
		go func() {
			defer wg.Done()
			c.Get(ctx, "houston")
		}()
	}
	wg.Wait()

	got, _ := c.Get(ctx, "houston")
	if got == nil || got.Lat != 29.76 {
		t.Errorf("expected deterministic value after concurrent writes, got %+v", got)
	}
}
