// Package ws holds the realtime surface: the wire frame vocabulary, the
// per-socket connection wrapper and the session connection registry.
package ws

import (
	"encoding/json"
	"io"
	"sync"
)

// Participant kinds for registered connections.
const (
	KindCustomer = "customer"
	KindAgent    = "agent"
)

// Conn wraps one websocket peer. Frames are JSON-encoded under a mutex so
// concurrent broadcasts never interleave partial writes. Kind and identity
// are fixed by the first successful register event.
type Conn struct {
	mu       sync.Mutex
	enc      *json.Encoder
	kind     string
	identity *int64
}

// NewConn wraps a writer (normally the websocket) as a connection.
func NewConn(w io.Writer) *Conn {
	return &Conn{enc: json.NewEncoder(w)}
}

// Send encodes one outbound event to the peer.
func (c *Conn) Send(event any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.enc.Encode(event)
}

// Kind returns the participant kind, or "" before registration.
func (c *Conn) Kind() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.kind
}

// Identity returns the optional numeric identity supplied at registration.
func (c *Conn) Identity() *int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.identity
}

func (c *Conn) setParticipant(kind string, identity *int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.kind == "" {
		c.kind = kind
		c.identity = identity
	}
}
