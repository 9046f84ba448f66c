package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"net/url"
	"os"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/premiumeclipse/essencefurro/internal/adapter/metrics"
	"github.com/premiumeclipse/essencefurro/internal/adapter/postgres"
	"github.com/premiumeclipse/essencefurro/internal/adapter/redis"
	"github.com/premiumeclipse/essencefurro/internal/platform/logging"
)

func main() {
	var (
		databaseURL = flag.String("database", os.Getenv("DATABASE_URL"), "Postgres URL (or set DATABASE_URL env)")
		redisURL    = flag.String("redis", os.Getenv("REDIS_URL"), "Redis URL; when set the stats cache is dropped after migrating")
		statusOnly  = flag.Bool("status", false, "Only report the schema version")
		verbose     = flag.Bool("verbose", false, "Verbose logging")
	)
	flag.Parse()

	if *databaseURL == "" {
		log.Fatal("Database URL required (--database or DATABASE_URL env)")
	}

	level := "info"
	if *verbose {
		level = "debug"
	}
	logging.InitLogger(level, "text")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	reg := prometheus.NewRegistry()
	pool, err := postgres.Connect(ctx, *databaseURL, postgres.NewMetricsTracer(metrics.NewDBMetrics(reg), clockwork.NewRealClock()))
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer pool.Close()
	slog.Info("Connected to database", "url", redact(*databaseURL))

	if !*statusOnly {
		if err := postgres.RunMigrationsWithLock(ctx, pool); err != nil {
			log.Fatalf("Migration failed: %v", err)
		}
	}

	current, latest, err := postgres.MigrationStatus(ctx, pool)
	if err != nil {
		log.Fatalf("Failed to read schema version: %v", err)
	}
	slog.Info("Schema version", "current", current, "latest", latest)
	if current != latest {
		slog.Warn("Schema is behind", "pending", latest-current)
	}

	if *redisURL != "" && !*statusOnly {
		dropStatsCache(ctx, *redisURL, reg)
	}
}

// dropStatsCache removes the cached stats row so servers reread it from the
// migrated schema.
func dropStatsCache(ctx context.Context, redisURL string, reg prometheus.Registerer) {
	rdb, err := redis.NewClient(ctx, redisURL, metrics.NewRedisMetrics(reg))
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer func() { _ = rdb.Close() }()

	redis.NewStatsCache(rdb, nil, metrics.NewCacheMetrics(reg)).Invalidate(ctx)
	slog.Info("Stats cache dropped", "url", redact(redisURL))
}

// redact hides the password of a connection URL for logging.
func redact(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "<invalid url>"
	}
	return u.Redacted()
}
