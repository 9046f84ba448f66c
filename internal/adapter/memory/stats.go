package memory

import (
	"context"
	"sync"

	"github.com/premiumeclipse/essencefurro/internal/domain"
)

// StatsRepository keeps the single stats record in memory. It starts with
// every counter at zero.
type StatsRepository struct {
	mu    sync.RWMutex
	stats domain.Stats
}

func NewStatsRepository() *StatsRepository {
	return &StatsRepository{}
}

func (r *StatsRepository) Get(_ context.Context) (domain.Stats, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.stats, nil
}

func (r *StatsRepository) Replace(_ context.Context, stats domain.Stats) (domain.Stats, error) {
	if err := stats.Validate(); err != nil {
		return domain.Stats{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stats = stats
	return r.stats, nil
}
