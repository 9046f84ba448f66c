package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/premiumeclipse/essencefurro/internal/domain"
)

// Auth identifies a connection either as the bot (Token + IsBot) or as a
// dashboard user (UserID + Username). Which credentials are acceptable is
// decided by the relay, not at decode time.
type Auth struct {
	Envelope
	Token    string `json:"token,omitempty"`
	IsBot    bool   `json:"isBot,omitempty"`
	UserID   string `json:"userId,omitempty"`
	Username string `json:"username,omitempty"`
}

func (m *Auth) validate() error { return nil }

// BotStats reports a partial set of bot counters.
type BotStats struct {
	Envelope
	Stats *domain.BotStatsPatch `json:"stats"`
}

func (m *BotStats) validate() error {
	if m.Stats == nil {
		return errors.New("stats is required")
	}
	return nonNegative(map[string]*int64{
		"stats.uptime":            m.Stats.Uptime,
		"stats.connectedServers":  m.Stats.ConnectedServers,
		"stats.activeUsers":       m.Stats.ActiveUsers,
		"stats.commandsProcessed": m.Stats.CommandsProcessed,
	})
}

type Heartbeat struct {
	Envelope
	Uptime *int64 `json:"uptime"`
}

func (m *Heartbeat) validate() error {
	if m.Uptime == nil {
		return errors.New("uptime is required")
	}
	return nonNegative(map[string]*int64{"uptime": m.Uptime})
}

type UserUpdate struct {
	Envelope
	User *domain.UserSessionPatch `json:"user"`
}

func (m *UserUpdate) validate() error {
	if m.User == nil {
		return errors.New("user is required")
	}
	if m.User.Status != nil {
		if _, ok := domain.ParseUserStatus(string(*m.User.Status)); !ok {
			return fmt.Errorf("invalid user status %q", *m.User.Status)
		}
	}
	return nil
}

type RunCommand struct {
	Envelope
	Command   string `json:"command"`
	Params    string `json:"params"`
	RequestID string `json:"requestId"`
}

func (m *RunCommand) validate() error {
	if m.Command == "" {
		return errors.New("command is required")
	}
	if m.RequestID == "" {
		return errors.New("requestId is required")
	}
	return nil
}

// CommandResponse is the bot's answer to a CommandRequest. Result is passed
// through to the dashboard unchanged, so any JSON value is accepted.
type CommandResponse struct {
	Envelope
	UserID    string          `json:"userId"`
	RequestID string          `json:"requestId"`
	Result    json.RawMessage `json:"result,omitempty"`
	Error     *string         `json:"error,omitempty"`
	Success   *bool           `json:"success,omitempty"`
}

func (m *CommandResponse) validate() error {
	if m.UserID == "" {
		return errors.New("userId is required")
	}
	if m.RequestID == "" {
		return errors.New("requestId is required")
	}
	return nil
}

// Succeeded reports the explicit success flag, or the absence of an error
// when the bot omitted it.
func (m *CommandResponse) Succeeded() bool {
	if m.Success != nil {
		return *m.Success
	}
	return m.ErrorText() == ""
}

func (m *CommandResponse) ErrorText() string {
	if m.Error == nil {
		return ""
	}
	return *m.Error
}

func nonNegative(fields map[string]*int64) error {
	for name, v := range fields {
		if v != nil && *v < 0 {
			return fmt.Errorf("%s must not be negative", name)
		}
	}
	return nil
}

func NewAuthBot(token string) *Auth {
	return &Auth{Envelope: Envelope{TypeAuth}, Token: token, IsBot: true}
}

func NewAuthUser(userID, username string) *Auth {
	return &Auth{Envelope: Envelope{TypeAuth}, UserID: userID, Username: username}
}

func NewBotStats(patch domain.BotStatsPatch) *BotStats {
	return &BotStats{Envelope: Envelope{TypeBotStats}, Stats: &patch}
}

func NewHeartbeat(uptime int64) *Heartbeat {
	return &Heartbeat{Envelope: Envelope{TypeHeartbeat}, Uptime: &uptime}
}

func NewUserUpdate(patch domain.UserSessionPatch) *UserUpdate {
	return &UserUpdate{Envelope: Envelope{TypeUserUpdate}, User: &patch}
}

func NewRunCommand(command, params, requestID string) *RunCommand {
	return &RunCommand{Envelope: Envelope{TypeRunCommand}, Command: command, Params: params, RequestID: requestID}
}

// NewCommandResponse builds a response carrying a string result, or an error
// message when errText is non-empty.
func NewCommandResponse(userID, requestID, result, errText string) *CommandResponse {
	raw, _ := json.Marshal(result)
	success := errText == ""
	resp := &CommandResponse{
		Envelope:  Envelope{TypeCommandResponse},
		UserID:    userID,
		RequestID: requestID,
		Result:    raw,
		Success:   &success,
	}
	if errText != "" {
		resp.Error = &errText
	}
	return resp
}
