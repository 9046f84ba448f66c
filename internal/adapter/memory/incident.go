package memory

import (
	"cmp"
	"context"
	"slices"
	"sync"

	"github.com/premiumeclipse/essencefurro/internal/domain"
)

type IncidentRepository struct {
	mu        sync.RWMutex
	nextID    int64
	incidents map[int64]domain.Incident
}

func NewIncidentRepository() *IncidentRepository {
	return &IncidentRepository{nextID: 1, incidents: make(map[int64]domain.Incident)}
}

func (r *IncidentRepository) Create(_ context.Context, inc domain.Incident) (domain.Incident, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	inc.ID = r.nextID
	r.nextID++
	r.incidents[inc.ID] = inc
	return inc, nil
}

func (r *IncidentRepository) Get(_ context.Context, id int64) (domain.Incident, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	inc, ok := r.incidents[id]
	if !ok {
		return domain.Incident{}, domain.ErrIncidentNotFound
	}
	return inc, nil
}

// List returns incidents newest first.
func (r *IncidentRepository) List(_ context.Context, publicOnly bool) ([]domain.Incident, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.Incident, 0, len(r.incidents))
	for _, inc := range r.incidents {
		if publicOnly && !inc.Public {
			continue
		}
		out = append(out, inc)
	}
	slices.SortFunc(out, func(a, b domain.Incident) int {
		return cmp.Compare(b.ID, a.ID)
	})
	return out, nil
}

func (r *IncidentRepository) Update(_ context.Context, inc domain.Incident) (domain.Incident, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.incidents[inc.ID]; !ok {
		return domain.Incident{}, domain.ErrIncidentNotFound
	}
	r.incidents[inc.ID] = inc
	return inc, nil
}
