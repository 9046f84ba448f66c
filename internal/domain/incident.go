package domain

import (
	"context"
	"time"
)

type IncidentStatus string

const (
	IncidentInvestigating IncidentStatus = "investigating"
	IncidentIdentified    IncidentStatus = "identified"
	IncidentMonitoring    IncidentStatus = "monitoring"
	IncidentResolved      IncidentStatus = "resolved"
)

func ParseIncidentStatus(s string) (IncidentStatus, bool) {
	switch IncidentStatus(s) {
	case IncidentInvestigating, IncidentIdentified, IncidentMonitoring, IncidentResolved:
		return IncidentStatus(s), true
	default:
		return "", false
	}
}

// IncidentType is the severity colour shown on the status page.
type IncidentType string

const (
	IncidentGreen  IncidentType = "green"
	IncidentYellow IncidentType = "yellow"
	IncidentRed    IncidentType = "red"
)

func ParseIncidentType(s string) (IncidentType, bool) {
	switch IncidentType(s) {
	case IncidentGreen, IncidentYellow, IncidentRed:
		return IncidentType(s), true
	default:
		return "", false
	}
}

type Incident struct {
	ID          int64          `json:"id"`
	Title       string         `json:"title"`
	Description string         `json:"description"`
	Status      IncidentStatus `json:"status"`
	Type        IncidentType   `json:"type"`
	Public      bool           `json:"public"`
	Timestamp   time.Time      `json:"timestamp"`
}

// IncidentPatch lists the fields an update may change.
type IncidentPatch struct {
	Status *IncidentStatus
	Type   *IncidentType
	Public *bool
}

// Apply returns a copy of inc with the patch merged in and the timestamp set to now.
func (p IncidentPatch) Apply(inc Incident, now time.Time) Incident {
	if p.Status != nil {
		inc.Status = *p.Status
	}
	if p.Type != nil {
		inc.Type = *p.Type
	}
	if p.Public != nil {
		inc.Public = *p.Public
	}
	inc.Timestamp = now
	return inc
}

type IncidentRepository interface {
	// Create stores inc and returns it with its assigned ID.
	Create(ctx context.Context, inc Incident) (Incident, error)
	Get(ctx context.Context, id int64) (Incident, error)
	// List returns incidents newest first.
	List(ctx context.Context, publicOnly bool) ([]Incident, error)
	Update(ctx context.Context, inc Incident) (Incident, error)
}
