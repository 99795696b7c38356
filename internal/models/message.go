package models

// Sender kinds for chat messages.
const (
	SenderCustomer = "customer"
	SenderAgent    = "agent"
	SenderSystem   = "system"
)

// Sender roles distinguish who is behind an agent-kind message: a support
// agent, a client-company user acting as one, or the automated responder.
const (
	SenderRoleAgent = "agent"
	SenderRoleUser  = "user"
	SenderRoleBot   = "bot"
)

// Message kinds.
const (
	MessageText   = "text"
	MessageFile   = "file"
	MessageSystem = "system"
)

// BotName is the display name attached to automated replies.
const BotName = "AutoBot"

// Attachment describes a file persisted out-of-band by the upload handler.
type Attachment struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Size  int64  `json:"size,omitempty"`
	Path  string `json:"path"`
	Thumb string `json:"thumb,omitempty"`
}

// Message is one immutable entry in a session's chat log. ID is a ULID,
// Timestamp is unix microseconds assigned by the message store at append
// time. Only the Read flag ever changes after a message is written.
type Message struct {
	ID         string      `json:"id"`
	Token      string      `json:"token"`
	Sender     string      `json:"sender"`
	SenderRole string      `json:"sender_role,omitempty"`
	SenderName string      `json:"sender_name"`
	Body       string      `json:"body"`
	Kind       string      `json:"kind"`
	Attachment *Attachment `json:"attachment,omitempty"`
	Timestamp  int64       `json:"ts"`
	Read       bool        `json:"read"`
}

// ValidSender reports whether s is a known sender kind.
func ValidSender(s string) bool {
	return s == SenderCustomer || s == SenderAgent || s == SenderSystem
}
