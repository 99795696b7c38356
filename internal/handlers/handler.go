package handlers

import (
	"encoding/json"
	"net/http"
	"strings"
	"unicode"

	"github.com/rs/zerolog"

	"github.com/TheInfexted/livechat-cs-sub000/internal/router"
	"github.com/TheInfexted/livechat-cs-sub000/internal/store"
	"github.com/TheInfexted/livechat-cs-sub000/internal/tenant"
	"github.com/TheInfexted/livechat-cs-sub000/internal/ws"
)

// Handler contains shared dependencies for the HTTP and websocket surface.
type Handler struct {
	sessions store.SessionStore
	messages store.MessageLog
	resolver *tenant.Resolver
	registry *ws.Registry
	router   *router.Router
	logger   zerolog.Logger
}

// NewHandler creates a new Handler with the given dependencies.
func NewHandler(sessions store.SessionStore, messages store.MessageLog, resolver *tenant.Resolver, registry *ws.Registry, rt *router.Router, logger zerolog.Logger) *Handler {
	return &Handler{
		sessions: sessions,
		messages: messages,
		resolver: resolver,
		registry: registry,
		router:   rt,
		logger:   logger,
	}
}

// JSON sends a JSON response with the given status code.
func (h *Handler) JSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// Error sends a JSON error response with the given status code.
func (h *Handler) Error(w http.ResponseWriter, status int, message string) {
	h.JSON(w, status, map[string]string{"error": message})
}

// sanitizeName trims and limits name to 100 characters, removing control characters.
func sanitizeName(name string) string {
	name = strings.TrimSpace(name)

	// Remove control characters
	name = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, name)

	// Limit to 100 characters
	if len(name) > 100 {
		name = name[:100]
	}

	return name
}
