package domain

import "errors"

var (
	ErrIncidentNotFound = errors.New("incident not found")
	ErrInvalidStats     = errors.New("invalid stats")
	ErrInvalidIncident  = errors.New("invalid incident")
)
