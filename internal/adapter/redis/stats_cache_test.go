package redis

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/premiumeclipse/essencefurro/internal/adapter/memory"
	"github.com/premiumeclipse/essencefurro/internal/adapter/metrics"
	"github.com/premiumeclipse/essencefurro/internal/domain"
)

// countingRepo counts backend reads and can slow them down.
type countingRepo struct {
	*memory.StatsRepository
	gets  atomic.Int64
	delay time.Duration
}

func (r *countingRepo) Get(ctx context.Context) (domain.Stats, error) {
	r.gets.Add(1)
	time.Sleep(r.delay)
	return r.StatsRepository.Get(ctx)
}

// gatedRepo reads the backend, signals read, then waits for release before
// returning what it read.
type gatedRepo struct {
	*memory.StatsRepository
	read    chan struct{}
	release chan struct{}
}

func (r *gatedRepo) Get(ctx context.Context) (domain.Stats, error) {
	stats, err := r.StatsRepository.Get(ctx)
	close(r.read)
	<-r.release
	return stats, err
}

func newTestCache(t *testing.T, rdb goredis.Cmdable) (*StatsCache, *countingRepo, *metrics.CacheMetrics) {
	t.Helper()
	backend := &countingRepo{StatsRepository: memory.NewStatsRepository()}
	m := metrics.NewCacheMetrics(prometheus.NewRegistry())
	return NewStatsCache(rdb, backend, m), backend, m
}

func TestStatsCache_FallsBackWhenRedisDown(t *testing.T) {
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	t.Cleanup(func() { _ = rdb.Close() })

	cache, backend, m := newTestCache(t, rdb)
	ctx := context.Background()

	saved, err := cache.Replace(ctx, domain.Stats{Servers: 3})
	require.NoError(t, err)
	assert.Equal(t, int64(3), saved.Servers)

	got, err := cache.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), got.Servers)
	assert.Equal(t, int64(1), backend.gets.Load())
	assert.Positive(t, testutil.ToFloat64(m.Errors))
}

func TestStatsCache_MissThenHit(t *testing.T) {
	rdb := setupTestClient(t)
	cache, backend, m := newTestCache(t, rdb)
	ctx := context.Background()
	_, err := backend.Replace(ctx, domain.Stats{Users: 42})
	require.NoError(t, err)

	for range 3 {
		got, err := cache.Get(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(42), got.Users)
	}

	assert.Equal(t, int64(1), backend.gets.Load())
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Misses))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Hits))

	ttl, err := rdb.TTL(ctx, statsCacheKey).Result()
	require.NoError(t, err)
	assert.Positive(t, ttl)
	assert.LessOrEqual(t, ttl, statsCacheTTL)
}

func TestStatsCache_ReplaceInvalidates(t *testing.T) {
	rdb := setupTestClient(t)
	cache, _, m := newTestCache(t, rdb)
	ctx := context.Background()

	_, err := cache.Get(ctx)
	require.NoError(t, err)

	_, err = cache.Replace(ctx, domain.Stats{CommandsRun: 9})
	require.NoError(t, err)

	got, err := cache.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(9), got.CommandsRun)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Invalidations))
}

func TestStatsCache_FailedReplaceKeepsCache(t *testing.T) {
	rdb := setupTestClient(t)
	cache, _, m := newTestCache(t, rdb)
	ctx := context.Background()

	_, err := cache.Replace(ctx, domain.Stats{Servers: -1})
	require.ErrorIs(t, err, domain.ErrInvalidStats)
	assert.Equal(t, 0.0, testutil.ToFloat64(m.Invalidations))
}

func TestStatsCache_ConcurrentMissesShareBackendRead(t *testing.T) {
	rdb := setupTestClient(t)
	cache, backend, _ := newTestCache(t, rdb)
	backend.delay = 100 * time.Millisecond

	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := cache.Get(context.Background())
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Less(t, backend.gets.Load(), int64(20))
}

func TestStatsCache_CorruptEntryIsReloaded(t *testing.T) {
	rdb := setupTestClient(t)
	cache, backend, m := newTestCache(t, rdb)
	ctx := context.Background()
	require.NoError(t, rdb.Set(ctx, statsCacheKey, "not json", time.Minute).Err())

	_, err := cache.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), backend.gets.Load())
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Errors))
}

func TestStatsCache_ReplaceDuringMissIsNotOverwritten(t *testing.T) {
	rdb := setupTestClient(t)
	ctx := context.Background()

	backend := &gatedRepo{
		StatsRepository: memory.NewStatsRepository(),
		read:            make(chan struct{}),
		release:         make(chan struct{}),
	}
	_, err := backend.Replace(ctx, domain.Stats{Users: 1})
	require.NoError(t, err)
	cache := NewStatsCache(rdb, backend, metrics.NewCacheMetrics(prometheus.NewRegistry()))

	result := make(chan domain.Stats, 1)
	go func() {
		got, err := cache.Get(ctx)
		assert.NoError(t, err)
		result <- got
	}()

	<-backend.read
	_, err = cache.Replace(ctx, domain.Stats{Users: 2})
	require.NoError(t, err)
	close(backend.release)

	assert.Equal(t, int64(1), (<-result).Users)

	exists, err := rdb.Exists(ctx, statsCacheKey).Result()
	require.NoError(t, err)
	assert.Zero(t, exists, "stale read must not be cached")

	backend.read = make(chan struct{})
	got, err := cache.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.Users)
}
