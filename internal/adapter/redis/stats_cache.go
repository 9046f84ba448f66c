package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"github.com/premiumeclipse/essencefurro/internal/adapter/metrics"
	"github.com/premiumeclipse/essencefurro/internal/domain"
)

const (
	statsCacheKey = "stats_cache:v1"
	statsCacheTTL = 10 * time.Second
)

// StatsCache is a read-through cache in front of a StatsRepository. Redis
// failures are logged and served from the backend; writes go to the backend
// and then drop the cached copy.
//
// Within one process a miss never repopulates the cache with stats read
// before a concurrent Replace. Across instances that race remains and the
// stale copy lives at most statsCacheTTL.
type StatsCache struct {
	rdb     goredis.Cmdable
	backend domain.StatsRepository
	metrics *metrics.CacheMetrics
	group   singleflight.Group

	// mu orders cache fills against invalidations; generation counts Replace calls.
	mu         sync.Mutex
	generation uint64
}

var _ domain.StatsRepository = (*StatsCache)(nil)

func NewStatsCache(rdb goredis.Cmdable, backend domain.StatsRepository, m *metrics.CacheMetrics) *StatsCache {
	return &StatsCache{rdb: rdb, backend: backend, metrics: m}
}

func (c *StatsCache) Get(ctx context.Context) (domain.Stats, error) {
	if stats, ok := c.getCached(ctx); ok {
		c.metrics.Hits.Inc()
		return stats, nil
	}
	c.metrics.Misses.Inc()

	// Concurrent misses share one backend read.
	v, err, _ := c.group.Do(statsCacheKey, func() (any, error) {
		gen := c.currentGeneration()
		stats, err := c.backend.Get(ctx)
		if err != nil {
			return domain.Stats{}, err
		}
		c.fill(ctx, gen, stats)
		return stats, nil
	})
	if err != nil {
		return domain.Stats{}, fmt.Errorf("stats lookup failed: %w", err)
	}
	return v.(domain.Stats), nil
}

func (c *StatsCache) Replace(ctx context.Context, stats domain.Stats) (domain.Stats, error) {
	saved, err := c.backend.Replace(ctx, stats)
	if err != nil {
		return domain.Stats{}, err
	}

	c.mu.Lock()
	c.generation++
	c.Invalidate(ctx)
	c.mu.Unlock()
	return saved, nil
}

func (c *StatsCache) currentGeneration() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generation
}

// fill caches stats read at generation gen unless a Replace has happened since.
func (c *StatsCache) fill(ctx context.Context, gen uint64, stats domain.Stats) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.generation != gen {
		slog.DebugContext(ctx, "Skipping stats cache fill after concurrent replace")
		return
	}
	c.writeCache(ctx, stats)
}

// Invalidate drops the cached stats. Failures only delay freshness until the TTL expires.
func (c *StatsCache) Invalidate(ctx context.Context) {
	c.metrics.Invalidations.Inc()
	if err := c.rdb.Del(ctx, statsCacheKey).Err(); err != nil {
		c.metrics.Errors.Inc()
		slog.WarnContext(ctx, "Failed to invalidate stats cache", "error", err)
	}
}

func (c *StatsCache) getCached(ctx context.Context) (domain.Stats, bool) {
	data, err := c.rdb.Get(ctx, statsCacheKey).Bytes()
	if err != nil {
		if !errors.Is(err, goredis.Nil) {
			c.metrics.Errors.Inc()
			slog.WarnContext(ctx, "Redis stats cache GET failed", "error", err)
		}
		return domain.Stats{}, false
	}

	var stats domain.Stats
	if err := json.Unmarshal(data, &stats); err != nil {
		c.metrics.Errors.Inc()
		slog.WarnContext(ctx, "Failed to unmarshal cached stats", "error", err)
		return domain.Stats{}, false
	}
	return stats, true
}

func (c *StatsCache) writeCache(ctx context.Context, stats domain.Stats) {
	encoded, err := json.Marshal(stats)
	if err != nil {
		slog.WarnContext(ctx, "Failed to marshal stats for cache", "error", err)
		return
	}
	if err := c.rdb.Set(ctx, statsCacheKey, encoded, statsCacheTTL).Err(); err != nil {
		c.metrics.Errors.Inc()
		slog.WarnContext(ctx, "Failed to populate stats cache", "error", err)
	}
}
