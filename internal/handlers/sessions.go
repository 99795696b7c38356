package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/TheInfexted/livechat-cs-sub000/internal/metrics"
	"github.com/TheInfexted/livechat-cs-sub000/internal/models"
	"github.com/TheInfexted/livechat-cs-sub000/internal/store"
	"github.com/TheInfexted/livechat-cs-sub000/internal/ws"
)

// CreateSessionRequest is the chat-start request body.
type CreateSessionRequest struct {
	Name       string `json:"name"`
	APIKey     string `json:"api_key,omitempty"`
	ExternalID string `json:"external_id,omitempty"`
	Role       string `json:"role,omitempty"`
}

// CreateSessionResponse is the chat-start response.
type CreateSessionResponse struct {
	Token  string `json:"token"`
	Status string `json:"status"`
}

// CreateSession handles chat-start: it creates a waiting session and hands
// the widget its token. Connections then register against that token.
func (h *Handler) CreateSession(w http.ResponseWriter, r *http.Request) {
	var req CreateSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	role := req.Role
	if role != "" && role != models.RoleAnonymous && role != models.RoleAuthenticated {
		h.Error(w, http.StatusBadRequest, "invalid role")
		return
	}

	session, err := h.sessions.CreateSession(r.Context(), store.CreateSessionParams{
		CustomerName: sanitizeName(req.Name),
		APIKey:       req.APIKey,
		ExternalID:   req.ExternalID,
		Role:         role,
	})
	if err != nil {
		h.logger.Error().Err(err).Msg("session create failed")
		h.Error(w, http.StatusInternalServerError, "failed to create session")
		return
	}

	metrics.SessionsCreated.Inc()
	h.registry.BroadcastToAgents(ws.UpdateSessionsFrame("sessions_changed", session.Token))

	h.JSON(w, http.StatusCreated, CreateSessionResponse{
		Token:  session.Token,
		Status: session.Status,
	})
}

// GetSession handles session status lookup by token.
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")

	session, err := h.sessions.GetSession(r.Context(), token)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "database error")
		return
	}
	if session == nil {
		h.Error(w, http.StatusNotFound, "session not found")
		return
	}

	h.JSON(w, http.StatusOK, session)
}

// ListSessions handles session listing by status, defaulting to the waiting
// queue. Consumed by the agent dashboard.
func (h *Handler) ListSessions(w http.ResponseWriter, r *http.Request) {
	status := r.URL.Query().Get("status")
	if status == "" {
		status = models.SessionWaiting
	}
	if !models.ValidStatus(status) {
		h.Error(w, http.StatusBadRequest, "invalid status")
		return
	}

	sessions, err := h.sessions.ListSessionsByStatus(r.Context(), status)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "database error")
		return
	}
	if sessions == nil {
		sessions = []models.Session{}
	}

	h.JSON(w, http.StatusOK, sessions)
}

// ListMessages is the HTTP polling fallback for a session's chat log.
// An optional since parameter (unix microseconds) returns only newer
// messages.
func (h *Handler) ListMessages(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")

	session, err := h.sessions.GetSession(r.Context(), token)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "database error")
		return
	}
	if session == nil {
		h.Error(w, http.StatusNotFound, "session not found")
		return
	}

	var since int64
	if raw := r.URL.Query().Get("since"); raw != "" {
		since, err = strconv.ParseInt(raw, 10, 64)
		if err != nil || since < 0 {
			h.Error(w, http.StatusBadRequest, "invalid since")
			return
		}
	}

	partition := h.resolver.Resolve(r.Context(), session).Partition
	messages, err := h.messages.ListBySession(r.Context(), partition, token, since)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to fetch messages")
		return
	}
	if messages == nil {
		messages = []models.Message{}
	}

	h.JSON(w, http.StatusOK, messages)
}

// MarkReadRequest names the sender kind whose messages stay unread.
type MarkReadRequest struct {
	ExcludeSender string `json:"exclude_sender"`
}

// MarkRead flips the read flag on a session's messages, except those from
// the excluded sender kind (the reader's own side).
func (h *Handler) MarkRead(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")

	var req MarkReadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.ExcludeSender != "" && !models.ValidSender(req.ExcludeSender) {
		h.Error(w, http.StatusBadRequest, "unknown sender kind")
		return
	}

	session, err := h.sessions.GetSession(r.Context(), token)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "database error")
		return
	}
	if session == nil {
		h.Error(w, http.StatusNotFound, "session not found")
		return
	}

	partition := h.resolver.Resolve(r.Context(), session).Partition
	count, err := h.messages.MarkRead(r.Context(), partition, token, req.ExcludeSender)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to mark messages read")
		return
	}

	h.JSON(w, http.StatusOK, map[string]int{"marked": count})
}
