package cache

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/shubhsaxena/property-search/internal/config"
	"github.com/shubhsaxena/property-search/internal/models"
	"github.com/shubhsaxena/property-search/internal/observability"
)

const (
	geoKeyPrefix         = "geo:"
	traditionalKeyPrefix = "tr:"
	staleKeyPrefix       = "tr:stale:"
)

type RedisCache struct {
	client redis.UniversalClient
	ttl    config.CacheTTLConfig
	now    Clock
	logger *zap.Logger
}

func NewRedisCache(cfg config.RedisConfig, logger *zap.Logger) (*RedisCache, error) {
	if len(cfg.Addresses) == 0 {
		return nil, fmt.Errorf("no redis addresses configured")
	}

	var client redis.UniversalClient

	if len(cfg.Addresses) > 1 {
		client = redis.NewClusterClient(&redis.ClusterOptions{
			Addrs:        cfg.Addresses,
			Password:     cfg.Password,
			PoolSize:     cfg.PoolSize,
			MinIdleConns: cfg.MinIdleConns,
			DialTimeout:  cfg.DialTimeout,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
		})
	} else {
		client = redis.NewClient(&redis.Options{
			Addr:         cfg.Addresses[0],
			Password:     cfg.Password,
			DB:           cfg.DB,
			PoolSize:     cfg.PoolSize,
			MinIdleConns: cfg.MinIdleConns,
			DialTimeout:  cfg.DialTimeout,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
		})
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.DialTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	logger.Info("redis cache connected", zap.Strings("addresses", cfg.Addresses))

	return &RedisCache{
		client: client,
		ttl:    cfg.TTL,
		now:    time.Now,
		logger: logger,
	}, nil
}

// GeoCache exposes the geocode entries stored in Redis through the GeoCache
// interface, so every replica shares one set of lookups.
func (rc *RedisCache) GeoCache() GeoCache {
	return &redisGeoCache{rc: rc}
}

type redisGeoCache struct {
	rc *RedisCache
}

func (g *redisGeoCache) Get(ctx context.Context, key string) (*models.GeoCacheEntry, error) {
	var entry models.GeoCacheEntry
	found, err := g.rc.getJSON(ctx, geoKeyPrefix+hashString(key), &entry)
	if err != nil {
		return nil, fmt.Errorf("geocode cache get: %w", err)
	}
	// Redis expiry is authoritative, but the stored deadline still guards
	// against entries written without a TTL.
	if !found || !g.rc.now().Before(entry.ExpiresAt) {
		observability.GeoCacheMisses.WithLabelValues("redis").Inc()
		return nil, nil
	}
	observability.GeoCacheHits.WithLabelValues("redis").Inc()
	return &entry, nil
}

func (g *redisGeoCache) Set(ctx context.Context, key string, entry *models.GeoCacheEntry, ttl time.Duration) error {
	entry.ExpiresAt = g.rc.now().Add(ttl)
	if err := g.rc.setJSON(ctx, geoKeyPrefix+hashString(key), entry, ttl); err != nil {
		return fmt.Errorf("geocode cache set: %w", err)
	}
	return nil
}

func (rc *RedisCache) GetTraditionalResults(ctx context.Context, q *models.TraditionalQuery) (*models.PropertySearchResponse, error) {
	return rc.getResponse(ctx, buildTraditionalKey(q))
}

// SetTraditionalResults stores a fresh copy under the short-lived key and a
// second copy under the stale key used when every backend is failing.
func (rc *RedisCache) SetTraditionalResults(ctx context.Context, q *models.TraditionalQuery, resp *models.PropertySearchResponse) error {
	if err := rc.setJSON(ctx, buildTraditionalKey(q), resp, rc.ttl.TraditionalResults); err != nil {
		return err
	}
	return rc.setJSON(ctx, buildStaleKey(q), resp, rc.ttl.StaleFallback)
}

func (rc *RedisCache) GetStaleResults(ctx context.Context, q *models.TraditionalQuery) (*models.PropertySearchResponse, error) {
	return rc.getResponse(ctx, buildStaleKey(q))
}

// InvalidateTraditional drops every fresh traditional result. Stale copies are
// kept on purpose; they only serve when all backends are down.
func (rc *RedisCache) InvalidateTraditional(ctx context.Context) error {
	return rc.InvalidatePattern(ctx, []string{traditionalKeyPrefix + "[^s]*"})
}

func (rc *RedisCache) InvalidatePattern(ctx context.Context, patterns []string) error {
	var errs []error
	for _, pattern := range patterns {
		iter := rc.client.Scan(ctx, 0, pattern, 100).Iterator()
		var keys []string
		for iter.Next(ctx) {
			keys = append(keys, iter.Val())
		}
		if err := iter.Err(); err != nil {
			rc.logger.Warn("cache scan error", zap.String("pattern", pattern), zap.Error(err))
			errs = append(errs, err)
			continue
		}
		if len(keys) > 0 {
			if err := rc.client.Del(ctx, keys...).Err(); err != nil {
				rc.logger.Warn("cache delete error", zap.Int("keys", len(keys)), zap.Error(err))
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

func (rc *RedisCache) HealthCheck(ctx context.Context) error {
	return rc.client.Ping(ctx).Err()
}

func (rc *RedisCache) Close() error {
	return rc.client.Close()
}

func (rc *RedisCache) getResponse(ctx context.Context, key string) (*models.PropertySearchResponse, error) {
	var resp models.PropertySearchResponse
	found, err := rc.getJSON(ctx, key, &resp)
	if err != nil {
		return nil, err
	}
	if !found {
		observability.CacheMisses.Inc()
		return nil, nil
	}
	observability.CacheHits.Inc()
	return &resp, nil
}

func (rc *RedisCache) getJSON(ctx context.Context, key string, dst any) (bool, error) {
	val, err := rc.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("cache get: %w", err)
	}
	if err := json.Unmarshal([]byte(val), dst); err != nil {
		return false, fmt.Errorf("cache unmarshal: %w", err)
	}
	return true, nil
}

func (rc *RedisCache) setJSON(ctx context.Context, key string, v any, ttl time.Duration) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("cache marshal: %w", err)
	}
	return rc.client.Set(ctx, key, data, ttl).Err()
}

func buildTraditionalKey(q *models.TraditionalQuery) string {
	return traditionalKeyPrefix + hashString(traditionalKeyMaterial(q))
}

func buildStaleKey(q *models.TraditionalQuery) string {
	return staleKeyPrefix + hashString(traditionalKeyMaterial(q))
}

func traditionalKeyMaterial(q *models.TraditionalQuery) string {
	return fmt.Sprintf("%s|%s|%s|%d|%d|%s",
		strings.ToLower(strings.TrimSpace(q.Term)),
		q.SortField, q.SortOrder, q.Offset, q.Limit,
		canonicalFilters(q.Filters),
	)
}

// canonicalFilters renders the set filters as sorted key=value pairs.
func canonicalFilters(f models.ExplicitFilters) string {
	parts := make([]string, 0, 4)
	if f.PropertyType != nil {
		parts = append(parts, "type="+strings.ToLower(*f.PropertyType))
	}
	if f.Status != nil {
		parts = append(parts, "status="+strings.ToLower(*f.Status))
	}
	if f.MinPrice != nil {
		parts = append(parts, fmt.Sprintf("min_price=%g", *f.MinPrice))
	}
	if f.MaxPrice != nil {
		parts = append(parts, fmt.Sprintf("max_price=%g", *f.MaxPrice))
	}
	sort.Strings(parts)
	return strings.Join(parts, ",")
}

func hashString(s string) string {
	h := sha256.Sum256([]byte(s))
	return fmt.Sprintf("%x", h[:8])
}
