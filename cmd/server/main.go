package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"
	goredis "github.com/redis/go-redis/v9"

	"github.com/premiumeclipse/essencefurro/internal/adapter/httpserver"
	"github.com/premiumeclipse/essencefurro/internal/adapter/memory"
	"github.com/premiumeclipse/essencefurro/internal/adapter/metrics"
	"github.com/premiumeclipse/essencefurro/internal/adapter/postgres"
	"github.com/premiumeclipse/essencefurro/internal/adapter/redis"
	"github.com/premiumeclipse/essencefurro/internal/adapter/websocket"
	"github.com/premiumeclipse/essencefurro/internal/app"
	"github.com/premiumeclipse/essencefurro/internal/domain"
	"github.com/premiumeclipse/essencefurro/internal/platform/adminauth"
	"github.com/premiumeclipse/essencefurro/internal/platform/config"
	"github.com/premiumeclipse/essencefurro/internal/platform/logging"
	"github.com/premiumeclipse/essencefurro/internal/relay"
	"github.com/prometheus/client_golang/prometheus"
)

type repositories struct {
	stats     domain.StatsRepository
	incidents domain.IncidentRepository
}

func setupConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		// slog is not configured yet
		log.Fatalf("Failed to load config: %v", err)
	}
	return cfg
}

func setupDB(cfg *config.Config, reg prometheus.Registerer, clock clockwork.Clock) *pgxpool.Pool {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	tracer := postgres.NewMetricsTracer(metrics.NewDBMetrics(reg), clock)
	pool, err := postgres.Connect(ctx, cfg.DatabaseURL, tracer)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}

	if err := postgres.RunMigrationsWithLock(ctx, pool); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		os.Exit(1)
	}

	return pool
}

func setupRedis(cfg *config.Config, reg prometheus.Registerer) *goredis.Client {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := redis.NewClient(ctx, cfg.RedisURL, metrics.NewRedisMetrics(reg))
	if err != nil {
		slog.Error("Failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	return client
}

// setupRepositories picks Postgres when DATABASE_URL is set and in-memory
// stores otherwise, then fronts stats with the Redis cache when available.
func setupRepositories(pool *pgxpool.Pool, rdb *goredis.Client, reg prometheus.Registerer) repositories {
	var repos repositories
	if pool != nil {
		repos.stats = postgres.NewStatsRepo(pool)
		repos.incidents = postgres.NewIncidentRepo(pool)
	} else {
		slog.Warn("DATABASE_URL not set, using in-memory stores")
		repos.stats = memory.NewStatsRepository()
		repos.incidents = memory.NewIncidentRepository()
	}

	if rdb != nil {
		repos.stats = redis.NewStatsCache(rdb, repos.stats, metrics.NewCacheMetrics(reg))
	}
	return repos
}

func healthChecks(pool *pgxpool.Pool, rdb *goredis.Client) []httpserver.HealthCheck {
	var checks []httpserver.HealthCheck
	if pool != nil {
		checks = append(checks, httpserver.HealthCheck{Name: "postgres", Check: pool.Ping})
	}
	if rdb != nil {
		checks = append(checks, httpserver.HealthCheck{
			Name:  "redis",
			Check: func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
		})
	}
	return checks
}

func runGracefulShutdown(srv *httpserver.Server, r *relay.Relay, stopSync context.CancelFunc) <-chan struct{} {
	done := make(chan struct{})
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		slog.Info("Shutdown signal received, cleaning up...")

		stopSync()
		r.Stop()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("Server shutdown error", "error", err)
		}

		close(done)
	}()

	return done
}

func main() {
	clock := clockwork.NewRealClock()

	cfg := setupConfig()

	logging.InitLogger(cfg.LogLevel, cfg.LogFormat)
	slog.Info("Application starting", "env", cfg.AppEnv, "port", cfg.Port)

	reg := metrics.NewRegistry()

	var pool *pgxpool.Pool
	if cfg.DatabaseURL != "" {
		pool = setupDB(cfg, reg, clock)
		defer pool.Close()
	}

	var rdb *goredis.Client
	if cfg.RedisURL != "" {
		rdb = setupRedis(cfg, reg)
		defer func() { _ = rdb.Close() }()
	}

	repos := setupRepositories(pool, rdb, reg)
	statsSvc := app.NewStatsService(repos.stats, clock)
	incidentSvc := app.NewIncidentService(repos.incidents, clock)

	rel := relay.New(relay.Options{
		BotSecret: cfg.BotSecretToken,
		Clock:     clock,
		Metrics:   metrics.NewRelayMetrics(reg),
	})

	wsHandler := websocket.NewHandler(rel, websocket.HandlerConfig{
		AppURL:         cfg.AppURL,
		IsDevelopment:  cfg.IsDevelopment(),
		MaxConnections: int64(cfg.MaxWebSocketConnections),
		Clock:          clock,
		Metrics:        metrics.NewWebSocketMetrics(reg),
	})

	syncCtx, stopSync := context.WithCancel(context.Background())
	statsSync := app.NewStatsSync(rel, statsSvc, clock, cfg.StatsSyncInterval)
	go statsSync.Run(syncCtx)

	srv := httpserver.NewServer(cfg, httpserver.Dependencies{
		Stats:            statsSvc,
		Incidents:        incidentSvc,
		Relay:            rel,
		Admin:            adminauth.New(cfg.AdminJWTSecret, clock),
		WebSocketHandler: wsHandler,
		Connections:      wsHandler.Limiter(),
		MetricsHandler:   metrics.Handler(reg),
		HTTPMetrics:      metrics.NewHTTPMetrics(reg),
		HealthChecks:     healthChecks(pool, rdb),
		Clock:            clock,
	})

	done := runGracefulShutdown(srv, rel, stopSync)

	if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("Server error", "error", err)
		os.Exit(1)
	}

	<-done
}
