package app

import (
	"context"
	"fmt"
	"sync"

	"github.com/jonboulle/clockwork"

	"github.com/premiumeclipse/essencefurro/internal/domain"
	apperrors "github.com/premiumeclipse/essencefurro/internal/platform/errors"
)

// StatsService reads and merge-updates the public stats record.
type StatsService struct {
	repo  domain.StatsRepository
	clock clockwork.Clock
	// mu serialises read-merge-replace cycles within this instance.
	mu sync.Mutex
}

func NewStatsService(repo domain.StatsRepository, clock clockwork.Clock) *StatsService {
	return &StatsService{repo: repo, clock: clock}
}

func (s *StatsService) Get(ctx context.Context) (domain.Stats, error) {
	stats, err := s.repo.Get(ctx)
	if err != nil {
		return domain.Stats{}, fmt.Errorf("failed to get stats: %w", err)
	}
	return stats, nil
}

// Merge overwrites the counters present in patch and keeps the rest.
func (s *StatsService) Merge(ctx context.Context, patch domain.StatsPatch) (domain.Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.repo.Get(ctx)
	if err != nil {
		return domain.Stats{}, fmt.Errorf("failed to get stats: %w", err)
	}

	next := patch.Apply(current)
	if err := next.Validate(); err != nil {
		return domain.Stats{}, apperrors.ValidationErrorf(err, "%s", err.Error())
	}
	next.UpdatedAt = s.clock.Now().UTC()

	saved, err := s.repo.Replace(ctx, next)
	if err != nil {
		return domain.Stats{}, fmt.Errorf("failed to save stats: %w", err)
	}
	return saved, nil
}
