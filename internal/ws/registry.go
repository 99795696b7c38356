package ws

import (
	"errors"
	"sync"

	"github.com/rs/zerolog"

	"github.com/TheInfexted/livechat-cs-sub000/internal/metrics"
)

// ErrEmptyToken is returned by Register when no session token was supplied.
var ErrEmptyToken = errors.New("session token is required")

// Registry is the in-process map from session token to the set of live
// connections subscribed to it. Connections are ephemeral: nothing here is
// persisted and the map starts empty on every process restart. All mutation
// funnels through this type.
type Registry struct {
	mu         sync.Mutex
	sessions   map[string]map[*Conn]struct{}
	membership map[*Conn]map[string]struct{}
	logger     zerolog.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(logger zerolog.Logger) *Registry {
	return &Registry{
		sessions:   make(map[string]map[*Conn]struct{}),
		membership: make(map[*Conn]map[string]struct{}),
		logger:     logger.With().Str("component", "registry").Logger(),
	}
}

// Register subscribes a connection to a session token and stamps the
// participant kind and identity onto the connection. An empty token is
// rejected without creating any state.
func (r *Registry) Register(conn *Conn, token, kind string, identity *int64) error {
	if token == "" {
		return ErrEmptyToken
	}
	conn.setParticipant(kind, identity)

	r.mu.Lock()
	defer r.mu.Unlock()

	set, ok := r.sessions[token]
	if !ok {
		set = make(map[*Conn]struct{})
		r.sessions[token] = set
	}
	set[conn] = struct{}{}

	if _, known := r.membership[conn]; !known {
		metrics.ConnectionsActive.Inc()
		r.membership[conn] = make(map[string]struct{})
	}
	r.membership[conn][token] = struct{}{}
	return nil
}

// Unregister removes a connection from every session set it belongs to.
// Session sets left empty are dropped from the map; the session rows
// themselves are untouched.
func (r *Registry) Unregister(conn *Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()

	tokens, ok := r.membership[conn]
	if !ok {
		return
	}
	for token := range tokens {
		set := r.sessions[token]
		delete(set, conn)
		if len(set) == 0 {
			delete(r.sessions, token)
		}
	}
	delete(r.membership, conn)
	metrics.ConnectionsActive.Dec()
}

// Broadcast sends an event to every connection registered under the token.
// A token with no live connections is a silent no-op.
func (r *Registry) Broadcast(token string, event any) {
	r.send(r.conns(token), event)
}

// BroadcastExcept sends an event to every connection on the token apart
// from the sender. Used for typing indicators.
func (r *Registry) BroadcastExcept(token string, sender *Conn, event any) {
	conns := r.conns(token)
	filtered := conns[:0]
	for _, conn := range conns {
		if conn != sender {
			filtered = append(filtered, conn)
		}
	}
	r.send(filtered, event)
}

// BroadcastToAgents sends an event to every agent connection across all
// sessions. Used for cross-cutting queue notifications.
func (r *Registry) BroadcastToAgents(event any) {
	r.mu.Lock()
	agents := make([]*Conn, 0, len(r.membership))
	for conn := range r.membership {
		if conn.Kind() == KindAgent {
			agents = append(agents, conn)
		}
	}
	r.mu.Unlock()
	r.send(agents, event)
}

// Drop removes a session's entry outright, after a closure broadcast. The
// connections stay open; later events against the token simply find nobody.
func (r *Registry) Drop(token string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for conn := range r.sessions[token] {
		tokens := r.membership[conn]
		delete(tokens, token)
		if len(tokens) == 0 {
			delete(r.membership, conn)
			metrics.ConnectionsActive.Dec()
		}
	}
	delete(r.sessions, token)
}

// Has reports whether any live connection is registered under the token.
func (r *Registry) Has(token string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions[token]) > 0
}

func (r *Registry) conns(token string) []*Conn {
	r.mu.Lock()
	defer r.mu.Unlock()
	set := r.sessions[token]
	conns := make([]*Conn, 0, len(set))
	for conn := range set {
		conns = append(conns, conn)
	}
	return conns
}

// send is fire-and-forget: a failed write is counted and logged but never
// buffered or retried.
func (r *Registry) send(conns []*Conn, event any) {
	for _, conn := range conns {
		if err := conn.Send(event); err != nil {
			metrics.BroadcastErrors.Inc()
			r.logger.Warn().Err(err).Msg("broadcast write failed")
		}
	}
}
