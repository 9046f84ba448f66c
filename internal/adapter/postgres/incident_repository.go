package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/premiumeclipse/essencefurro/internal/domain"
)

type IncidentRepo struct {
	pool *pgxpool.Pool
}

func NewIncidentRepo(pool *pgxpool.Pool) *IncidentRepo {
	return &IncidentRepo{pool: pool}
}

const incidentColumns = `id, title, description, status, incident_type, public, updated_at`

const insertIncident = `
INSERT INTO incidents (title, description, status, incident_type, public, updated_at)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING ` + incidentColumns

const selectIncident = `SELECT ` + incidentColumns + ` FROM incidents WHERE id = $1`

const listIncidents = `
SELECT ` + incidentColumns + `
FROM incidents
WHERE public OR NOT $1
ORDER BY id DESC`

const updateIncident = `
UPDATE incidents
SET status = $2, incident_type = $3, public = $4, updated_at = $5
WHERE id = $1
RETURNING ` + incidentColumns

func (r *IncidentRepo) Create(ctx context.Context, inc domain.Incident) (domain.Incident, error) {
	row := r.pool.QueryRow(ctx, insertIncident,
		inc.Title, inc.Description, string(inc.Status), string(inc.Type), inc.Public, inc.Timestamp)
	created, err := scanIncident(row)
	if err != nil {
		return domain.Incident{}, fmt.Errorf("failed to create incident: %w", err)
	}
	return created, nil
}

func (r *IncidentRepo) Get(ctx context.Context, id int64) (domain.Incident, error) {
	inc, err := scanIncident(r.pool.QueryRow(ctx, selectIncident, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Incident{}, domain.ErrIncidentNotFound
	}
	if err != nil {
		return domain.Incident{}, fmt.Errorf("failed to get incident %d: %w", id, err)
	}
	return inc, nil
}

func (r *IncidentRepo) List(ctx context.Context, publicOnly bool) ([]domain.Incident, error) {
	rows, err := r.pool.Query(ctx, listIncidents, publicOnly)
	if err != nil {
		return nil, fmt.Errorf("failed to list incidents: %w", err)
	}

	incidents, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.Incident, error) {
		return scanIncident(row)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan incidents: %w", err)
	}
	if incidents == nil {
		incidents = []domain.Incident{}
	}
	return incidents, nil
}

func (r *IncidentRepo) Update(ctx context.Context, inc domain.Incident) (domain.Incident, error) {
	row := r.pool.QueryRow(ctx, updateIncident,
		inc.ID, string(inc.Status), string(inc.Type), inc.Public, inc.Timestamp)
	updated, err := scanIncident(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Incident{}, domain.ErrIncidentNotFound
	}
	if err != nil {
		return domain.Incident{}, fmt.Errorf("failed to update incident %d: %w", inc.ID, err)
	}
	return updated, nil
}

func scanIncident(row rowScanner) (domain.Incident, error) {
	var (
		inc          domain.Incident
		status, typ string
	)
	if err := row.Scan(&inc.ID, &inc.Title, &inc.Description, &status, &typ, &inc.Public, &inc.Timestamp); err != nil {
		return domain.Incident{}, err
	}
	inc.Status = domain.IncidentStatus(status)
	inc.Type = domain.IncidentType(typ)
	inc.Timestamp = inc.Timestamp.UTC()
	return inc, nil
}
