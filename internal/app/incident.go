package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jonboulle/clockwork"

	"github.com/premiumeclipse/essencefurro/internal/domain"
	apperrors "github.com/premiumeclipse/essencefurro/internal/platform/errors"
)

// CreateIncidentRequest carries the admin form. Empty Status and Type and a
// nil Public take the defaults.
type CreateIncidentRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Status      string `json:"status"`
	Type        string `json:"type"`
	Public      *bool  `json:"public"`
}

// UpdateIncidentRequest changes only the fields that are set.
type UpdateIncidentRequest struct {
	Status *string `json:"status"`
	Type   *string `json:"type"`
	Public *bool   `json:"public"`
}

type IncidentService struct {
	repo  domain.IncidentRepository
	clock clockwork.Clock
}

func NewIncidentService(repo domain.IncidentRepository, clock clockwork.Clock) *IncidentService {
	return &IncidentService{repo: repo, clock: clock}
}

func (s *IncidentService) Create(ctx context.Context, req CreateIncidentRequest) (domain.Incident, error) {
	title := strings.TrimSpace(req.Title)
	description := strings.TrimSpace(req.Description)
	if title == "" || description == "" {
		return domain.Incident{}, apperrors.ValidationErrorf(domain.ErrInvalidIncident, "Title and description are required")
	}

	inc := domain.Incident{
		Title:       title,
		Description: description,
		Status:      domain.IncidentInvestigating,
		Type:        domain.IncidentYellow,
		Public:      true,
		Timestamp:   s.clock.Now().UTC(),
	}
	if req.Status != "" {
		status, err := parseStatus(req.Status)
		if err != nil {
			return domain.Incident{}, err
		}
		inc.Status = status
	}
	if req.Type != "" {
		typ, err := parseType(req.Type)
		if err != nil {
			return domain.Incident{}, err
		}
		inc.Type = typ
	}
	if req.Public != nil {
		inc.Public = *req.Public
	}

	created, err := s.repo.Create(ctx, inc)
	if err != nil {
		return domain.Incident{}, fmt.Errorf("failed to create incident: %w", err)
	}
	return created, nil
}

func (s *IncidentService) Update(ctx context.Context, id int64, req UpdateIncidentRequest) (domain.Incident, error) {
	// An empty status or type keeps the current value, like an omitted one.
	var patch domain.IncidentPatch
	if req.Status != nil && *req.Status != "" {
		status, err := parseStatus(*req.Status)
		if err != nil {
			return domain.Incident{}, err
		}
		patch.Status = &status
	}
	if req.Type != nil && *req.Type != "" {
		typ, err := parseType(*req.Type)
		if err != nil {
			return domain.Incident{}, err
		}
		patch.Type = &typ
	}
	patch.Public = req.Public

	current, err := s.repo.Get(ctx, id)
	if err != nil {
		return domain.Incident{}, incidentLookupError(id, err)
	}

	updated, err := s.repo.Update(ctx, patch.Apply(current, s.clock.Now().UTC()))
	if err != nil {
		return domain.Incident{}, incidentLookupError(id, err)
	}
	return updated, nil
}

func (s *IncidentService) ListPublic(ctx context.Context) ([]domain.Incident, error) {
	return s.list(ctx, true)
}

func (s *IncidentService) ListAll(ctx context.Context) ([]domain.Incident, error) {
	return s.list(ctx, false)
}

func (s *IncidentService) list(ctx context.Context, publicOnly bool) ([]domain.Incident, error) {
	incidents, err := s.repo.List(ctx, publicOnly)
	if err != nil {
		return nil, fmt.Errorf("failed to list incidents: %w", err)
	}
	return incidents, nil
}

func incidentLookupError(id int64, err error) error {
	if errors.Is(err, domain.ErrIncidentNotFound) {
		return apperrors.NotFoundError("Incident not found").WithField("id", id)
	}
	return fmt.Errorf("incident %d: %w", id, err)
}

func parseStatus(s string) (domain.IncidentStatus, error) {
	status, ok := domain.ParseIncidentStatus(s)
	if !ok {
		return "", apperrors.ValidationErrorf(domain.ErrInvalidIncident, "invalid incident status %q", s)
	}
	return status, nil
}

func parseType(s string) (domain.IncidentType, error) {
	typ, ok := domain.ParseIncidentType(s)
	if !ok {
		return "", apperrors.ValidationErrorf(domain.ErrInvalidIncident, "invalid incident type %q", s)
	}
	return typ, nil
}
