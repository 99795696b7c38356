// Package autoreply implements the keyword-matching bot responder.
package autoreply

import (
	"context"
	"strings"

	"github.com/rs/zerolog"

	"github.com/TheInfexted/livechat-cs-sub000/internal/models"
	"github.com/TheInfexted/livechat-cs-sub000/internal/store"
	"github.com/TheInfexted/livechat-cs-sub000/internal/tenant"
)

// Engine matches customer messages against a tenant's keyword rules and
// synthesizes at most one bot reply per message.
type Engine struct {
	sessions store.SessionStore
	messages store.MessageLog
	logger   zerolog.Logger
}

// New creates a reply engine.
func New(sessions store.SessionStore, messages store.MessageLog, logger zerolog.Logger) *Engine {
	return &Engine{
		sessions: sessions,
		messages: messages,
		logger:   logger.With().Str("component", "autoreply").Logger(),
	}
}

// Reply scans the tenant's active rules in storage order and persists a bot
// message for the first keyword found in body. Rules are looked up by the
// canonical handle; the sanitized partition only keys the message log. It
// returns nil when no rule matches. Multiple matching rules still produce a
// single reply.
func (e *Engine) Reply(ctx context.Context, session *models.Session, res tenant.Resolution, body string) (*models.Message, error) {
	handle := res.Handle
	partition := res.Partition

	var rules []models.KeywordRule
	if handle != "" {
		var err error
		rules, err = e.sessions.ActiveKeywordRules(ctx, handle)
		if err != nil {
			return nil, err
		}
	}

	// No tenant-specific rules: the session may simply not be linked to
	// its tenant yet. Re-discover ownership from the credential, persist
	// the linkage for next time, and try that tenant's rules once.
	if len(rules) == 0 && session.APIKey != "" {
		discovered, err := e.sessions.TenantHandleByKey(ctx, session.APIKey)
		if err != nil {
			return nil, err
		}
		if discovered != "" && discovered != handle {
			if err := e.sessions.SetSessionTenant(ctx, session.Token, discovered); err != nil {
				e.logger.Warn().Err(err).Str("token", session.Token).Msg("tenant linkage persist failed")
			}
			handle = discovered
			partition = tenant.Sanitize(discovered)
			rules, err = e.sessions.ActiveKeywordRules(ctx, handle)
			if err != nil {
				return nil, err
			}
		}
	}

	lowered := strings.ToLower(body)
	for _, rule := range rules {
		if rule.Keyword == "" || !strings.Contains(lowered, strings.ToLower(rule.Keyword)) {
			continue
		}
		msg := &models.Message{
			Token:      session.Token,
			Sender:     models.SenderAgent,
			SenderRole: models.SenderRoleBot,
			SenderName: models.BotName,
			Body:       rule.Response,
			Kind:       models.MessageText,
		}
		if _, err := e.messages.Append(ctx, partition, msg); err != nil {
			return nil, err
		}
		return msg, nil
	}

	return nil, nil
}
