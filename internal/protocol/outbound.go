package protocol

import (
	"bytes"
	"encoding/json"

	"github.com/premiumeclipse/essencefurro/internal/domain"
)

// BotState is the payload of a bot_status event.
type BotState string

const (
	BotConnected    BotState = "connected"
	BotDisconnected BotState = "disconnected"
)

type AuthSuccess struct {
	Envelope
	Role Role `json:"role"`
}

type AuthError struct {
	Envelope
	Message string `json:"message"`
}

type BotStatus struct {
	Envelope
	Status BotState `json:"status"`
}

type BotStatsUpdate struct {
	Envelope
	Stats domain.BotStatus `json:"stats"`
}

// HeartbeatAck carries the relay time in Unix milliseconds.
type HeartbeatAck struct {
	Envelope
	Timestamp int64 `json:"timestamp"`
}

type CommandReceived struct {
	Envelope
	RequestID string `json:"requestId"`
}

// CommandRequest is forwarded to the bot on behalf of a dashboard user.
type CommandRequest struct {
	Envelope
	Command   string `json:"command"`
	Params    string `json:"params"`
	UserID    string `json:"userId"`
	Username  string `json:"username"`
	RequestID string `json:"requestId"`
}

type CommandResult struct {
	Envelope
	RequestID string          `json:"requestId"`
	Result    json.RawMessage `json:"result,omitempty"`
	Error     string          `json:"error,omitempty"`
	Success   bool            `json:"success"`
}

// UserUpdated tells the bot that a dashboard user's session changed.
type UserUpdated struct {
	Envelope
	User domain.UserSession `json:"user"`
}

type ErrorMessage struct {
	Envelope
	Message string `json:"message"`
}

func NewAuthSuccess(role Role) *AuthSuccess {
	return &AuthSuccess{Envelope: Envelope{TypeAuthSuccess}, Role: role}
}

func NewAuthError(message string) *AuthError {
	return &AuthError{Envelope: Envelope{TypeAuthError}, Message: message}
}

func NewBotStatus(state BotState) *BotStatus {
	return &BotStatus{Envelope: Envelope{TypeBotStatus}, Status: state}
}

func NewBotStatsUpdate(status domain.BotStatus) *BotStatsUpdate {
	return &BotStatsUpdate{Envelope: Envelope{TypeBotStatsUpdate}, Stats: status}
}

func NewHeartbeatAck(unixMilli int64) *HeartbeatAck {
	return &HeartbeatAck{Envelope: Envelope{TypeHeartbeatAck}, Timestamp: unixMilli}
}

func NewCommandReceived(requestID string) *CommandReceived {
	return &CommandReceived{Envelope: Envelope{TypeCommandReceived}, RequestID: requestID}
}

func NewCommandRequest(cmd *RunCommand, userID, username string) *CommandRequest {
	return &CommandRequest{
		Envelope:  Envelope{TypeCommandRequest},
		Command:   cmd.Command,
		Params:    cmd.Params,
		UserID:    userID,
		Username:  username,
		RequestID: cmd.RequestID,
	}
}

// NewCommandResult converts a bot response into the event sent to dashboards.
// A JSON null result is dropped.
func NewCommandResult(resp *CommandResponse) *CommandResult {
	result := resp.Result
	if bytes.Equal(bytes.TrimSpace(result), []byte("null")) {
		result = nil
	}
	return &CommandResult{
		Envelope:  Envelope{TypeCommandResult},
		RequestID: resp.RequestID,
		Result:    result,
		Error:     resp.ErrorText(),
		Success:   resp.Succeeded(),
	}
}

func NewUserUpdated(session domain.UserSession) *UserUpdated {
	return &UserUpdated{Envelope: Envelope{TypeUserUpdated}, User: session}
}

func NewError(message string) *ErrorMessage {
	return &ErrorMessage{Envelope: Envelope{TypeError}, Message: message}
}
