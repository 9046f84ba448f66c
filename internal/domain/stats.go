package domain

import (
	"context"
	"fmt"
	"time"
)

// Stats are the public aggregate counters shown on the marketing site.
type Stats struct {
	Servers     int64     `json:"servers"`
	Users       int64     `json:"users"`
	CommandsRun int64     `json:"commandsRun"`
	Uptime      int64     `json:"uptime"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Validate rejects negative counters.
func (s Stats) Validate() error {
	fields := []struct {
		name  string
		value int64
	}{
		{"servers", s.Servers},
		{"users", s.Users},
		{"commandsRun", s.CommandsRun},
		{"uptime", s.Uptime},
	}
	for _, f := range fields {
		if f.value < 0 {
			return fmt.Errorf("%w: %s must not be negative", ErrInvalidStats, f.name)
		}
	}
	return nil
}

// StatsPatch holds the counters to overwrite. Nil fields keep their current value.
type StatsPatch struct {
	Servers     *int64 `json:"servers,omitempty"`
	Users       *int64 `json:"users,omitempty"`
	CommandsRun *int64 `json:"commandsRun,omitempty"`
	Uptime      *int64 `json:"uptime,omitempty"`
}

// Apply returns a copy of s with the patch merged in.
func (p StatsPatch) Apply(s Stats) Stats {
	if p.Servers != nil {
		s.Servers = *p.Servers
	}
	if p.Users != nil {
		s.Users = *p.Users
	}
	if p.CommandsRun != nil {
		s.CommandsRun = *p.CommandsRun
	}
	if p.Uptime != nil {
		s.Uptime = *p.Uptime
	}
	return s
}

type StatsRepository interface {
	Get(ctx context.Context) (Stats, error)
	Replace(ctx context.Context, stats Stats) (Stats, error)
}
