// Package cache is a warm-up result cache in front of the warehouse.
//
// A key has to be asked WarmupThreshold times before its result is stored; afterwards the
// stored result is served until it is older than the TTL, at which point the next request
// executes again and refreshes it.
package cache

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/malbeclabs/eventlens/pkg/metrics"
	"github.com/malbeclabs/eventlens/pkg/rowset"
)

// ExecuteFunc runs a query against the warehouse.
type ExecuteFunc func(ctx context.Context, queryText string) (*rowset.Set, error)

// Hit is a servable cached result.
type Hit struct {
	Rows        *rowset.Set
	QueryText   string
	LastUpdated time.Time
}

type Cache struct {
	log *slog.Logger
	cfg *Config
}

func New(cfg *Config) (*Cache, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("failed to validate config: %w", err)
	}
	return &Cache{log: cfg.Logger, cfg: cfg}, nil
}

// Lookup returns the raw entry for key, or nil when absent.
func (c *Cache) Lookup(ctx context.Context, key string) (*Entry, error) {
	if key == "" {
		return nil, nil
	}
	entry, err := c.cfg.Store.Load(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("failed to load cache entry: %w", err)
	}
	return entry, nil
}

// GetValid returns the cached result for key when it is warm, parseable and within the TTL.
// Any failure is treated as a miss.
func (c *Cache) GetValid(ctx context.Context, key string) *Hit {
	entry, err := c.Lookup(ctx, key)
	if err != nil {
		metrics.CacheStoreErrorsTotal.WithLabelValues("load").Inc()
		c.log.Warn("cache: failed to load entry", "key", truncate(key), "error", err)
		return nil
	}
	if entry == nil || entry.UseCount < c.cfg.WarmupThreshold {
		return nil
	}
	if entry.SerializedRows == nil || *entry.SerializedRows == "" || entry.LastUpdated == nil {
		return nil
	}
	if c.cfg.Clock.Now().Sub(*entry.LastUpdated) > c.cfg.TTL {
		return nil
	}
	rows, err := rowset.Unmarshal([]byte(*entry.SerializedRows))
	if err != nil {
		c.log.Warn("cache: failed to parse stored rows", "key", truncate(key), "error", err)
		return nil
	}
	return &Hit{Rows: rows, QueryText: entry.QueryText, LastUpdated: *entry.LastUpdated}
}

// RunOrCache serves key from the cache when possible, otherwise executes the query, bumps the
// key's use count and saves the result once the count has reached the warm-up threshold.
// The boolean result reports whether the rows came from the cache.
//
// Store failures are logged and do not fail the query. An empty key bypasses the cache.
func (c *Cache) RunOrCache(ctx context.Context, key, queryText string, exec ExecuteFunc) (*rowset.Set, bool, error) {
	if key == "" {
		metrics.CacheLookupsTotal.WithLabelValues(metrics.CacheResultSkip).Inc()
		rows, err := exec(ctx, queryText)
		if err != nil {
			return nil, false, err
		}
		if rows == nil {
			rows = rowset.New(nil, nil)
		}
		return rows.Normalize(), false, nil
	}

	if hit := c.GetValid(ctx, key); hit != nil {
		metrics.CacheLookupsTotal.WithLabelValues(metrics.CacheResultHit).Inc()
		c.log.Debug("cache: hit", "key", truncate(key), "rows", hit.Rows.Len())
		return hit.Rows, true, nil
	}
	metrics.CacheLookupsTotal.WithLabelValues(metrics.CacheResultMiss).Inc()

	// Captured before execution so the saved timestamp never postdates the data.
	now := c.cfg.Clock.Now().UTC()

	count, err := c.cfg.Store.IncrementCapped(ctx, key, queryText, c.cfg.WarmupThreshold)
	if err != nil {
		metrics.CacheStoreErrorsTotal.WithLabelValues("increment").Inc()
		c.log.Warn("cache: failed to increment use count", "key", truncate(key), "error", err)
	}
	c.log.Debug("cache: miss", "key", truncate(key), "use_count", count)

	rows, err := exec(ctx, queryText)
	if err != nil {
		return nil, false, err
	}
	if rows == nil {
		rows = rowset.New(nil, nil)
	}
	rows.Normalize()

	if count < c.cfg.WarmupThreshold {
		return rows, false, nil
	}

	blob, err := rowset.Marshal(rows)
	if err != nil {
		c.log.Warn("cache: failed to serialize rows", "key", truncate(key), "error", err)
		return rows, false, nil
	}
	if err := c.cfg.Store.SaveResult(ctx, key, queryText, blob, now, c.cfg.WarmupThreshold); err != nil {
		metrics.CacheStoreErrorsTotal.WithLabelValues("save").Inc()
		c.log.Warn("cache: failed to save result", "key", truncate(key), "error", err)
		return rows, false, nil
	}
	metrics.CacheSavesTotal.Inc()
	c.log.Debug("cache: saved result", "key", truncate(key), "rows", rows.Len())

	return rows, false, nil
}

func truncate(key string) string {
	const limit = 80
	if len(key) <= limit {
		return key
	}
	return key[:limit] + "..."
}
