package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

type MessageType string

// Inbound (client to relay).
const (
	TypeAuth            MessageType = "auth"
	TypeBotStats        MessageType = "bot_stats"
	TypeHeartbeat       MessageType = "heartbeat"
	TypeUserUpdate      MessageType = "user_update"
	TypeRunCommand      MessageType = "run_command"
	TypeCommandResponse MessageType = "command_response"
)

// Outbound (relay to client).
const (
	TypeAuthSuccess     MessageType = "auth_success"
	TypeAuthError       MessageType = "auth_error"
	TypeBotStatus       MessageType = "bot_status"
	TypeBotStatsUpdate  MessageType = "bot_stats_update"
	TypeHeartbeatAck    MessageType = "heartbeat_ack"
	TypeCommandReceived MessageType = "command_received"
	TypeCommandRequest  MessageType = "command_request"
	TypeCommandResult   MessageType = "command_result"
	TypeUserUpdated     MessageType = "user_updated"
	TypeError           MessageType = "error"
)

// Role is what an authenticated connection is allowed to send.
type Role string

const (
	RoleNone      Role = ""
	RoleBot       Role = "bot"
	RoleDashboard Role = "dashboard-user"
)

var (
	// ErrMalformed is returned for frames that are not a JSON object with a known type.
	ErrMalformed = errors.New("malformed message")
	// ErrInvalid is returned for well-formed frames whose fields fail validation.
	ErrInvalid = errors.New("invalid message")
)

// Message is implemented by every protocol message.
type Message interface {
	MessageType() MessageType
}

// Envelope carries the type tag. It is embedded in every message so the tag
// is promoted to the top level of the JSON object.
type Envelope struct {
	Type MessageType `json:"type"`
}

func (e Envelope) MessageType() MessageType { return e.Type }

// RequiredRole returns the role a connection must hold to send t, and false
// if t is not an inbound type.
func RequiredRole(t MessageType) (Role, bool) {
	switch t {
	case TypeAuth:
		return RoleNone, true
	case TypeBotStats, TypeHeartbeat, TypeCommandResponse:
		return RoleBot, true
	case TypeUserUpdate, TypeRunCommand:
		return RoleDashboard, true
	default:
		return RoleNone, false
	}
}

// PeekType reads only the type tag of raw. It fails for invalid JSON, a
// missing tag and any tag that is not a known inbound type.
func PeekType(raw []byte) (MessageType, error) {
	var env struct {
		Type *string `json:"type"`
	}
	if err := json.Unmarshal(raw, &env); err != nil {
		return "", fmt.Errorf("%w: invalid JSON", ErrMalformed)
	}
	if env.Type == nil || *env.Type == "" {
		return "", fmt.Errorf("%w: missing message type", ErrMalformed)
	}

	t := MessageType(*env.Type)
	if _, ok := RequiredRole(t); !ok {
		return "", fmt.Errorf("%w: unknown message type %q", ErrMalformed, t)
	}
	return t, nil
}

// DecodeInbound decodes raw as the inbound message t and validates its fields.
func DecodeInbound(t MessageType, raw []byte) (Message, error) {
	var msg interface {
		Message
		validate() error
	}

	switch t {
	case TypeAuth:
		msg = &Auth{}
	case TypeBotStats:
		msg = &BotStats{}
	case TypeHeartbeat:
		msg = &Heartbeat{}
	case TypeUserUpdate:
		msg = &UserUpdate{}
	case TypeRunCommand:
		msg = &RunCommand{}
	case TypeCommandResponse:
		msg = &CommandResponse{}
	default:
		return nil, fmt.Errorf("%w: unknown message type %q", ErrMalformed, t)
	}

	if err := json.Unmarshal(raw, msg); err != nil {
		return nil, fmt.Errorf("%w: invalid %s payload", ErrInvalid, t)
	}
	if err := msg.validate(); err != nil {
		return nil, fmt.Errorf("%w: %s: %s", ErrInvalid, t, err.Error())
	}
	return msg, nil
}

// Encode marshals m as a single frame.
func Encode(m Message) ([]byte, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s: %w", m.MessageType(), err)
	}
	return data, nil
}

// Decode unmarshals raw into dst after checking that the type tag matches.
// It is used by clients reading relay output.
func Decode(raw []byte, dst Message, want MessageType) error {
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("%w: invalid %s payload", ErrMalformed, want)
	}
	if dst.MessageType() != want {
		return fmt.Errorf("%w: expected %s, got %q", ErrMalformed, want, dst.MessageType())
	}
	return nil
}

// Type reads the type tag of any frame, inbound or outbound.
func Type(raw []byte) (MessageType, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return "", fmt.Errorf("%w: invalid JSON", ErrMalformed)
	}
	if env.Type == "" {
		return "", fmt.Errorf("%w: missing message type", ErrMalformed)
	}
	return env.Type, nil
}
