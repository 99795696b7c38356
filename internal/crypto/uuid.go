package crypto

import (
	"github.com/google/uuid"
)

// NewUUIDv7 generates a time-ordered UUID v7.
func NewUUIDv7() uuid.UUID {
	return uuid.Must(uuid.NewV7())
}

// NewSessionToken mints the opaque external identifier for a chat session.
// Tokens are unguessable and distinct from the session's numeric id.
func NewSessionToken() string {
	return NewUUIDv7().String()
}
