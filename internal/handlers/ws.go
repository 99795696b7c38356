package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"golang.org/x/net/websocket"

	"github.com/TheInfexted/livechat-cs-sub000/internal/metrics"
	"github.com/TheInfexted/livechat-cs-sub000/internal/models"
	"github.com/TheInfexted/livechat-cs-sub000/internal/ws"
)

const (
	maxFramesPerSecond     = 40
	maxDecodeErrorsPerConn = 3
)

// ChatSocket returns the websocket endpoint. Each socket is one Connection:
// frames are decoded and validated here at the boundary, then dispatched to
// the router one at a time, so a single connection never processes two
// events concurrently.
func (h *Handler) ChatSocket() http.Handler {
	return websocket.Handler(h.handleSocket)
}

func (h *Handler) handleSocket(sock *websocket.Conn) {
	defer sock.Close()

	conn := ws.NewConn(sock)
	defer h.registry.Unregister(conn)

	ctx := sock.Request().Context()
	decoder := json.NewDecoder(sock)

	windowStart := time.Now()
	framesInWindow := 0
	decodeErrors := 0

	for {
		var raw json.RawMessage
		if err := decoder.Decode(&raw); err != nil {
			if errors.Is(err, io.EOF) {
				return
			}
			decodeErrors++
			_ = conn.Send(ws.ErrorFrame(ws.CodeProtocol, "invalid frame"))
			if decodeErrors >= maxDecodeErrorsPerConn {
				return
			}
			continue
		}
		decodeErrors = 0

		now := time.Now()
		if now.Sub(windowStart) >= time.Second {
			windowStart = now
			framesInWindow = 0
		}
		framesInWindow++
		if framesInWindow > maxFramesPerSecond {
			_ = conn.Send(ws.ErrorFrame(ws.CodeProtocol, "rate limit exceeded"))
			return
		}

		var env ws.Envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			_ = conn.Send(ws.ErrorFrame(ws.CodeProtocol, "invalid frame"))
			continue
		}
		metrics.EventsTotal.WithLabelValues(env.Type).Inc()

		switch env.Type {
		case ws.EventRegister:
			var p ws.RegisterPayload
			if !h.decode(conn, raw, &p) {
				continue
			}
			if err := h.registry.Register(conn, p.Token, p.Kind, p.ID); err != nil {
				_ = conn.Send(ws.ErrorFrame(ws.CodeProtocol, err.Error()))
				continue
			}
			_ = conn.Send(ws.Connected(p.Token))
			if p.Kind == ws.KindAgent {
				waiting, err := h.sessions.ListSessionsByStatus(ctx, models.SessionWaiting)
				if err != nil {
					h.logger.Error().Err(err).Msg("waiting list fetch failed")
					continue
				}
				_ = conn.Send(ws.WaitingSessionsFrame(waiting))
			}

		case ws.EventMessage:
			var p ws.MessagePayload
			if h.decode(conn, raw, &p) {
				h.router.HandleMessage(ctx, p)
			}

		case ws.EventFileMessage:
			var p ws.FileMessagePayload
			if h.decode(conn, raw, &p) {
				h.router.HandleFileMessage(ctx, p)
			}

		case ws.EventTyping:
			var p ws.TypingPayload
			if h.decode(conn, raw, &p) {
				h.router.HandleTyping(ctx, conn, p)
			}

		case ws.EventAssignAgent:
			var p ws.AssignAgentPayload
			if h.decode(conn, raw, &p) {
				h.router.HandleAssignAgent(ctx, p)
			}

		case ws.EventCloseSession:
			var p ws.CloseSessionPayload
			if h.decode(conn, raw, &p) {
				h.router.HandleCloseSession(ctx, p)
			}

		default:
			_ = conn.Send(ws.ErrorFrame(ws.CodeProtocol, "unsupported event type"))
		}
	}
}

type validator interface {
	Validate() error
}

// decode unmarshals a payload and validates it. Malformed events are
// answered with an error frame and dropped with no side effect.
func (h *Handler) decode(conn *ws.Conn, raw json.RawMessage, p validator) bool {
	if err := json.Unmarshal(raw, p); err != nil {
		_ = conn.Send(ws.ErrorFrame(ws.CodeProtocol, "invalid payload"))
		return false
	}
	if err := p.Validate(); err != nil {
		_ = conn.Send(ws.ErrorFrame(ws.CodeProtocol, err.Error()))
		return false
	}
	return true
}
