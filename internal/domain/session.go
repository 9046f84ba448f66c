package domain

import (
	"slices"
	"time"
)

type UserStatus string

const (
	UserStatusOnline  UserStatus = "online"
	UserStatusIdle    UserStatus = "idle"
	UserStatusDND     UserStatus = "dnd"
	UserStatusOffline UserStatus = "offline"
)

// ParseUserStatus returns the status and whether s names a known status.
func ParseUserStatus(s string) (UserStatus, bool) {
	switch UserStatus(s) {
	case UserStatusOnline, UserStatusIdle, UserStatusDND, UserStatusOffline:
		return UserStatus(s), true
	default:
		return "", false
	}
}

// UserSession is the presence record of one dashboard user. Sessions are
// never deleted; a disconnect marks them offline.
type UserSession struct {
	UserID     string     `json:"userId"`
	Username   string     `json:"username"`
	LastActive time.Time  `json:"lastActive"`
	Status     UserStatus `json:"status"`
	ServerID   *string    `json:"serverId,omitempty"`
	Activities []string   `json:"activities,omitempty"`
}

// Clone returns a deep copy safe to hand out of the relay.
func (s UserSession) Clone() UserSession {
	out := s
	if s.ServerID != nil {
		id := *s.ServerID
		out.ServerID = &id
	}
	out.Activities = slices.Clone(s.Activities)
	return out
}

// UserSessionPatch is a partial session update sent by a dashboard user.
// UserID and LastActive are owned by the relay and cannot be patched.
type UserSessionPatch struct {
	Username   *string     `json:"username,omitempty"`
	Status     *UserStatus `json:"status,omitempty"`
	ServerID   *string     `json:"serverId,omitempty"`
	Activities []string    `json:"activities,omitempty"`
}

// Apply merges the patch into s.
func (p UserSessionPatch) Apply(s *UserSession) {
	if p.Username != nil && *p.Username != "" {
		s.Username = *p.Username
	}
	if p.Status != nil {
		s.Status = *p.Status
	}
	if p.ServerID != nil {
		id := *p.ServerID
		s.ServerID = &id
	}
	if p.Activities != nil {
		s.Activities = slices.Clone(p.Activities)
	}
}
