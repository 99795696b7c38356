// Package router validates inbound chat events, persists them and fans them
// out to the session's live connections.
package router

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/TheInfexted/livechat-cs-sub000/internal/autoreply"
	"github.com/TheInfexted/livechat-cs-sub000/internal/metrics"
	"github.com/TheInfexted/livechat-cs-sub000/internal/models"
	"github.com/TheInfexted/livechat-cs-sub000/internal/store"
	"github.com/TheInfexted/livechat-cs-sub000/internal/tenant"
	"github.com/TheInfexted/livechat-cs-sub000/internal/ws"
)

// Router is the per-event state machine behind the websocket surface. Every
// failure is scoped to the event that caused it: malformed or unknown-session
// events are dropped, persistence errors abort the event with a log line,
// and nothing here ever takes the process down.
type Router struct {
	sessions store.SessionStore
	messages store.MessageLog
	resolver *tenant.Resolver
	registry *ws.Registry
	replies  *autoreply.Engine
	logger   zerolog.Logger
}

// New wires a router.
func New(sessions store.SessionStore, messages store.MessageLog, resolver *tenant.Resolver, registry *ws.Registry, replies *autoreply.Engine, logger zerolog.Logger) *Router {
	return &Router{
		sessions: sessions,
		messages: messages,
		resolver: resolver,
		registry: registry,
		replies:  replies,
		logger:   logger.With().Str("component", "router").Logger(),
	}
}

// HandleMessage persists a chat message and broadcasts it to the session.
// Events against a closed session are dropped without persisting. Customer
// traffic on a waiting session nudges the agent queue, and if no agent is
// assigned yet it may trigger one automated reply.
func (r *Router) HandleMessage(ctx context.Context, p ws.MessagePayload) {
	session, err := r.sessions.GetSession(ctx, p.Token)
	if err != nil {
		r.logger.Error().Err(err).Str("token", p.Token).Msg("session lookup failed")
		return
	}
	if session == nil {
		r.logger.Debug().Str("token", p.Token).Msg("message for unknown session dropped")
		return
	}
	if session.Status == models.SessionClosed {
		r.logger.Debug().Str("token", p.Token).Msg("message for closed session dropped")
		return
	}

	res := r.resolver.Resolve(ctx, session)

	kind := p.Kind
	if kind == "" {
		kind = models.MessageText
	}
	msg := &models.Message{
		Token:      p.Token,
		Sender:     p.Sender,
		SenderRole: senderRole(p.Sender, p.SenderRole),
		SenderName: r.displayName(ctx, session, p.Sender, p.SenderRole, p.SenderID),
		Body:       p.Body,
		Kind:       kind,
	}
	if _, err := r.messages.Append(ctx, res.Partition, msg); err != nil {
		r.logger.Error().Err(err).Str("token", p.Token).Msg("message persist failed")
		return
	}

	r.registry.Broadcast(p.Token, ws.MessageFrame(*msg))
	metrics.MessagesRouted.WithLabelValues(p.Sender).Inc()

	if p.Sender != models.SenderCustomer || session.Status != models.SessionWaiting {
		return
	}
	if session.AgentID == nil {
		if reply, err := r.replies.Reply(ctx, session, res, p.Body); err != nil {
			r.logger.Error().Err(err).Str("token", p.Token).Msg("automated reply failed")
		} else if reply != nil {
			r.registry.Broadcast(p.Token, ws.MessageFrame(*reply))
			metrics.AutoReplies.Inc()
		}
	}
	r.registry.BroadcastToAgents(ws.UpdateSessionsFrame("new_message", p.Token))
}

// HandleFileMessage fans out a message whose attachment was persisted
// out-of-band. It follows the message fan-out path but never writes.
func (r *Router) HandleFileMessage(ctx context.Context, p ws.FileMessagePayload) {
	session, err := r.sessions.GetSession(ctx, p.Token)
	if err != nil {
		r.logger.Error().Err(err).Str("token", p.Token).Msg("session lookup failed")
		return
	}
	if session == nil {
		r.logger.Debug().Str("token", p.Token).Msg("file message for unknown session dropped")
		return
	}
	if session.Status == models.SessionClosed {
		r.logger.Debug().Str("token", p.Token).Msg("file message for closed session dropped")
		return
	}

	name := p.SenderName
	if name == "" {
		name = r.displayName(ctx, session, p.Sender, p.SenderRole, nil)
	}
	msg := models.Message{
		ID:         p.MessageID,
		Token:      p.Token,
		Sender:     p.Sender,
		SenderRole: senderRole(p.Sender, p.SenderRole),
		SenderName: name,
		Body:       p.Body,
		Kind:       models.MessageFile,
		Attachment: p.Attachment,
		Timestamp:  p.Timestamp,
	}

	r.registry.Broadcast(p.Token, ws.MessageFrame(msg))
	metrics.MessagesRouted.WithLabelValues(p.Sender).Inc()

	if p.Sender == models.SenderCustomer && session.Status == models.SessionWaiting {
		r.registry.BroadcastToAgents(ws.UpdateSessionsFrame("new_message", p.Token))
	}
}

// HandleTyping relays a typing indicator to every other connection on the
// session. Typing state is never persisted.
func (r *Router) HandleTyping(_ context.Context, sender *ws.Conn, p ws.TypingPayload) {
	r.registry.BroadcastExcept(p.Token, sender, ws.TypingFrame(p.Token, p.Typing, p.Sender))
}

// HandleAssignAgent claims a session for an agent, announces the join with a
// persisted system message, and nudges every agent's queue view. Closed
// sessions are never claimed; the store refuses the write and the event is
// dropped.
func (r *Router) HandleAssignAgent(ctx context.Context, p ws.AssignAgentPayload) {
	if err := r.sessions.AssignAgent(ctx, p.Token, p.AgentID); err != nil {
		r.logFor(err, p.Token, "agent assignment failed")
		return
	}
	if err := r.sessions.SetSessionStatus(ctx, p.Token, models.SessionActive); err != nil {
		r.logFor(err, p.Token, "session activation failed")
		return
	}

	session, err := r.sessions.GetSession(ctx, p.Token)
	if err != nil || session == nil {
		r.logger.Error().Err(err).Str("token", p.Token).Msg("session reload failed after assignment")
		return
	}

	name := r.resolveAgentName(ctx, models.SenderRoleAgent, &p.AgentID)
	msg := &models.Message{
		Token:      p.Token,
		Sender:     models.SenderSystem,
		SenderName: name,
		Body:       name + " joined the conversation",
		Kind:       models.MessageSystem,
	}
	res := r.resolver.Resolve(ctx, session)
	if _, err := r.messages.Append(ctx, res.Partition, msg); err != nil {
		r.logger.Error().Err(err).Str("token", p.Token).Msg("join message persist failed")
		return
	}

	r.registry.Broadcast(p.Token, ws.MessageFrame(*msg))
	r.registry.BroadcastToAgents(ws.UpdateSessionsFrame("sessions_changed", ""))
}

// HandleCloseSession closes the session, tells its connections, and drops
// the registry entry so later events against the token find nobody.
func (r *Router) HandleCloseSession(ctx context.Context, p ws.CloseSessionPayload) {
	if err := r.sessions.SetSessionStatus(ctx, p.Token, models.SessionClosed); err != nil {
		r.logFor(err, p.Token, "session close failed")
		return
	}
	r.registry.Broadcast(p.Token, ws.SessionClosedFrame(p.Token, ws.CloseReasonClosed))
	r.registry.Drop(p.Token)
	r.registry.BroadcastToAgents(ws.UpdateSessionsFrame("sessions_changed", ""))
}

func (r *Router) logFor(err error, token, msg string) {
	if err == store.ErrSessionNotFound {
		r.logger.Debug().Str("token", token).Msg(msg + ": unknown session")
		return
	}
	r.logger.Error().Err(err).Str("token", token).Msg(msg)
}

func senderRole(sender, role string) string {
	if sender != models.SenderAgent {
		return ""
	}
	if role == "" {
		return models.SenderRoleAgent
	}
	return role
}
