package domain

import "time"

// BotStatus is the relay's view of the single bot process.
type BotStatus struct {
	IsOnline          bool      `json:"isOnline"`
	Uptime            int64     `json:"uptime"`
	LastHeartbeat     time.Time `json:"lastHeartbeat"`
	ConnectedServers  int64     `json:"connectedServers"`
	ActiveUsers       int64     `json:"activeUsers"`
	CommandsProcessed int64     `json:"commandsProcessed"`
}

// BotStatsPatch carries the counters a bot chose to report. Nil fields are left untouched.
type BotStatsPatch struct {
	Uptime            *int64 `json:"uptime,omitempty"`
	ConnectedServers  *int64 `json:"connectedServers,omitempty"`
	ActiveUsers       *int64 `json:"activeUsers,omitempty"`
	CommandsProcessed *int64 `json:"commandsProcessed,omitempty"`
}

// Apply merges the patch into s (shallow field overwrite).
func (p BotStatsPatch) Apply(s *BotStatus) {
	if p.Uptime != nil {
		s.Uptime = *p.Uptime
	}
	if p.ConnectedServers != nil {
		s.ConnectedServers = *p.ConnectedServers
	}
	if p.ActiveUsers != nil {
		s.ActiveUsers = *p.ActiveUsers
	}
	if p.CommandsProcessed != nil {
		s.CommandsProcessed = *p.CommandsProcessed
	}
}

// Empty reports whether the patch carries no fields.
func (p BotStatsPatch) Empty() bool {
	return p.Uptime == nil && p.ConnectedServers == nil && p.ActiveUsers == nil && p.CommandsProcessed == nil
}
