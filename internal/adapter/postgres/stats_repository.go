package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/premiumeclipse/essencefurro/internal/domain"
)

// StatsRepo stores the stats record as the single row of bot_stats.
type StatsRepo struct {
	pool *pgxpool.Pool
}

func NewStatsRepo(pool *pgxpool.Pool) *StatsRepo {
	return &StatsRepo{pool: pool}
}

const selectStats = `
SELECT servers, users, commands_run, uptime, updated_at
FROM bot_stats
WHERE id = 1`

const replaceStats = `
UPDATE bot_stats
SET servers = $1, users = $2, commands_run = $3, uptime = $4, updated_at = $5
WHERE id = 1
RETURNING servers, users, commands_run, uptime, updated_at`

func (r *StatsRepo) Get(ctx context.Context) (domain.Stats, error) {
	stats, err := scanStats(r.pool.QueryRow(ctx, selectStats))
	if err != nil {
		return domain.Stats{}, fmt.Errorf("failed to get stats: %w", err)
	}
	return stats, nil
}

func (r *StatsRepo) Replace(ctx context.Context, stats domain.Stats) (domain.Stats, error) {
	if err := stats.Validate(); err != nil {
		return domain.Stats{}, err
	}

	var updatedAt *time.Time
	if !stats.UpdatedAt.IsZero() {
		updatedAt = &stats.UpdatedAt
	}

	row := r.pool.QueryRow(ctx, replaceStats, stats.Servers, stats.Users, stats.CommandsRun, stats.Uptime, updatedAt)
	saved, err := scanStats(row)
	if err != nil {
		return domain.Stats{}, fmt.Errorf("failed to replace stats: %w", err)
	}
	return saved, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanStats(row rowScanner) (domain.Stats, error) {
	var (
		s         domain.Stats
		updatedAt *time.Time
	)
	if err := row.Scan(&s.Servers, &s.Users, &s.CommandsRun, &s.Uptime, &updatedAt); err != nil {
		return domain.Stats{}, err
	}
	if updatedAt != nil {
		s.UpdatedAt = updatedAt.UTC()
	}
	return s, nil
}
