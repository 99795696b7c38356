package models

import "time"

// Session statuses. Transitions are one-way: waiting -> active -> closed,
// or waiting -> closed. A closed session is never reopened.
const (
	SessionWaiting = "waiting"
	SessionActive  = "active"
	SessionClosed  = "closed"
)

// Session roles. Authenticated sessions belong to logged-in users and are
// exempt from inactivity reaping.
const (
	RoleAnonymous     = "anonymous"
	RoleAuthenticated = "authenticated"
)

// Session represents a persistent chat session between a customer and
// support. Token is the opaque external identifier handed to clients; ID is
// the internal numeric key used for joins.
type Session struct {
	ID           int64      `json:"id"`
	Token        string     `json:"token"`
	Status       string     `json:"status"`
	CustomerName string     `json:"customer_name"`
	AgentID      *int64     `json:"agent_id,omitempty"`
	APIKey       string     `json:"-"`
	ExternalID   string     `json:"external_id,omitempty"`
	TenantHandle string     `json:"-"`
	Role         string     `json:"role"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	ClosedAt     *time.Time `json:"closed_at,omitempty"`
}

// ValidStatus reports whether s is a known session status.
func ValidStatus(s string) bool {
	return s == SessionWaiting || s == SessionActive || s == SessionClosed
}
