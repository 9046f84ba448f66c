package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/premiumeclipse/essencefurro/internal/domain"
	"github.com/premiumeclipse/essencefurro/internal/platform/correlation"
)

// BotStatusSource provides the relay's current view of the bot.
type BotStatusSource interface {
	BotStatus(ctx context.Context) (domain.BotStatus, error)
}

type botCounters struct {
	servers, users, commands, uptime int64
}

// StatsSync periodically copies the counters the bot reports over the relay
// into the stats store, so the public stats follow the live bot.
type StatsSync struct {
	source   BotStatusSource
	stats    *StatsService
	clock    clockwork.Clock
	interval time.Duration

	last botCounters
}

func NewStatsSync(source BotStatusSource, stats *StatsService, clock clockwork.Clock, interval time.Duration) *StatsSync {
	return &StatsSync{source: source, stats: stats, clock: clock, interval: interval}
}

// Run blocks until ctx is cancelled.
func (s *StatsSync) Run(ctx context.Context) {
	ticker := s.clock.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			tickCtx := correlation.WithID(ctx, correlation.NewID())
			if _, err := s.SyncOnce(tickCtx); err != nil {
				slog.WarnContext(tickCtx, "Stats sync failed", "error", err)
			}
		}
	}
}

// SyncOnce merges the bot counters into the stats store when they changed
// since the last sync. It reports whether a write happened. Counters that
// were never reported (all zero) are not written.
func (s *StatsSync) SyncOnce(ctx context.Context) (bool, error) {
	status, err := s.source.BotStatus(ctx)
	if err != nil {
		return false, err
	}

	current := botCounters{
		servers:  status.ConnectedServers,
		users:    status.ActiveUsers,
		commands: status.CommandsProcessed,
		uptime:   status.Uptime,
	}
	if current == s.last {
		return false, nil
	}

	_, err = s.stats.Merge(ctx, domain.StatsPatch{
		Servers:     &current.servers,
		Users:       &current.users,
		CommandsRun: &current.commands,
		Uptime:      &current.uptime,
	})
	if err != nil {
		return false, err
	}

	s.last = current
	slog.DebugContext(ctx, "Stats synced from bot", "servers", current.servers, "users", current.users)
	return true, nil
}
