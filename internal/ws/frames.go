package ws

import (
	"errors"

	"github.com/TheInfexted/livechat-cs-sub000/internal/models"
)

// Inbound event types.
const (
	EventRegister     = "register"
	EventMessage      = "message"
	EventFileMessage  = "file_message"
	EventTyping       = "typing"
	EventAssignAgent  = "assign_agent"
	EventCloseSession = "close_session"
)

// Error codes carried on error frames.
const (
	CodeProtocol    = "protocol_error"
	CodeNotFound    = "not_found"
	CodePersistence = "persistence_error"
)

// Close reasons on session_closed frames.
const (
	CloseReasonTimeout = "timeout"
	CloseReasonClosed  = "closed"
)

// Envelope is the minimal decode of any inbound frame, used to pick the
// concrete payload type. Unknown types are answered with an error frame.
type Envelope struct {
	Type string `json:"type"`
}

// RegisterPayload subscribes the connection to a session.
type RegisterPayload struct {
	Token string `json:"token"`
	Kind  string `json:"kind"`
	ID    *int64 `json:"id,omitempty"`
}

// Validate checks the payload at the boundary before it enters the router.
func (p RegisterPayload) Validate() error {
	if p.Token == "" {
		return errors.New("token is required")
	}
	if p.Kind != KindCustomer && p.Kind != KindAgent {
		return errors.New("kind must be customer or agent")
	}
	return nil
}

// MessagePayload is a chat message to persist and fan out.
type MessagePayload struct {
	Token      string `json:"token"`
	Sender     string `json:"sender"`
	SenderRole string `json:"sender_role,omitempty"`
	SenderID   *int64 `json:"sender_id,omitempty"`
	Body       string `json:"body"`
	Kind       string `json:"kind,omitempty"`
}

func (p MessagePayload) Validate() error {
	if p.Token == "" {
		return errors.New("token is required")
	}
	if p.Body == "" {
		return errors.New("body is required")
	}
	if !models.ValidSender(p.Sender) {
		return errors.New("unknown sender kind")
	}
	return nil
}

// FileMessagePayload fans out a message whose attachment was already
// persisted out-of-band by the upload handler. The router never writes it.
type FileMessagePayload struct {
	Token      string             `json:"token"`
	Sender     string             `json:"sender"`
	SenderRole string             `json:"sender_role,omitempty"`
	SenderName string             `json:"sender_name,omitempty"`
	Body       string             `json:"body,omitempty"`
	MessageID  string             `json:"message_id"`
	Timestamp  int64              `json:"ts,omitempty"`
	Attachment *models.Attachment `json:"attachment"`
}

func (p FileMessagePayload) Validate() error {
	if p.Token == "" {
		return errors.New("token is required")
	}
	if !models.ValidSender(p.Sender) {
		return errors.New("unknown sender kind")
	}
	if p.MessageID == "" || p.Attachment == nil {
		return errors.New("attachment and message_id are required")
	}
	return nil
}

// TypingPayload is an ephemeral typing indicator, never persisted.
type TypingPayload struct {
	Token  string `json:"token"`
	Typing bool   `json:"typing"`
	Sender string `json:"sender"`
}

func (p TypingPayload) Validate() error {
	if p.Token == "" {
		return errors.New("token is required")
	}
	if !models.ValidSender(p.Sender) {
		return errors.New("unknown sender kind")
	}
	return nil
}

// AssignAgentPayload claims a waiting session for an agent.
type AssignAgentPayload struct {
	Token   string `json:"token"`
	AgentID int64  `json:"agent_id"`
}

func (p AssignAgentPayload) Validate() error {
	if p.Token == "" {
		return errors.New("token is required")
	}
	if p.AgentID == 0 {
		return errors.New("agent_id is required")
	}
	return nil
}

// CloseSessionPayload ends a session.
type CloseSessionPayload struct {
	Token string `json:"token"`
}

func (p CloseSessionPayload) Validate() error {
	if p.Token == "" {
		return errors.New("token is required")
	}
	return nil
}

// Outbound frames. Every frame carries its type so clients can dispatch on
// it the same way the server does for inbound traffic.

// ConnectedEvent acknowledges a successful register.
type ConnectedEvent struct {
	Type  string `json:"type"`
	Token string `json:"token"`
}

// Connected builds a register acknowledgement.
func Connected(token string) ConnectedEvent {
	return ConnectedEvent{Type: "connected", Token: token}
}

// ErrorEvent is a typed error frame.
type ErrorEvent struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ErrorFrame builds an error frame.
func ErrorFrame(code, message string) ErrorEvent {
	return ErrorEvent{Type: "error", Code: code, Message: message}
}

// MessageEvent carries a persisted message to subscribers.
type MessageEvent struct {
	Type    string         `json:"type"`
	Message models.Message `json:"message"`
}

// MessageFrame builds a message broadcast frame.
func MessageFrame(msg models.Message) MessageEvent {
	return MessageEvent{Type: "message", Message: msg}
}

// TypingEvent relays a typing indicator to the other side of the session.
type TypingEvent struct {
	Type   string `json:"type"`
	Token  string `json:"token"`
	Typing bool   `json:"typing"`
	Sender string `json:"sender"`
}

// TypingFrame builds a typing broadcast frame.
func TypingFrame(token string, typing bool, sender string) TypingEvent {
	return TypingEvent{Type: "typing", Token: token, Typing: typing, Sender: sender}
}

// SessionClosedEvent tells subscribers their session ended.
type SessionClosedEvent struct {
	Type   string `json:"type"`
	Token  string `json:"token"`
	Reason string `json:"reason"`
}

// SessionClosedFrame builds a session_closed frame.
func SessionClosedFrame(token, reason string) SessionClosedEvent {
	return SessionClosedEvent{Type: "session_closed", Token: token, Reason: reason}
}

// WaitingSessionsEvent ships an agent the current waiting queue.
type WaitingSessionsEvent struct {
	Type     string           `json:"type"`
	Sessions []models.Session `json:"sessions"`
}

// WaitingSessionsFrame builds the waiting queue snapshot frame.
func WaitingSessionsFrame(sessions []models.Session) WaitingSessionsEvent {
	if sessions == nil {
		sessions = []models.Session{}
	}
	return WaitingSessionsEvent{Type: "waiting_sessions", Sessions: sessions}
}

// UpdateSessionsEvent nudges agents to refresh their session lists. Reason
// "new_message" flags fresh traffic on a waiting session; "sessions_changed"
// flags queue membership changes.
type UpdateSessionsEvent struct {
	Type   string `json:"type"`
	Reason string `json:"reason"`
	Token  string `json:"token,omitempty"`
}

// UpdateSessionsFrame builds an agent-side refresh nudge.
func UpdateSessionsFrame(reason, token string) UpdateSessionsEvent {
	return UpdateSessionsEvent{Type: "update_sessions", Reason: reason, Token: token}
}
