package router

import (
	"context"

	"github.com/TheInfexted/livechat-cs-sub000/internal/models"
)

// fallbackAgentName is used when every identity lookup misses.
const fallbackAgentName = "Support"

// fallbackCustomerName is used for sessions created without a name.
const fallbackCustomerName = "Guest"

type nameLookup func(ctx context.Context, id int64) (string, error)

// displayName picks the name attached to an outgoing message. Customers use
// the session's stored name; agent-kind senders go through the ordered
// lookup chain; system messages are labelled as such.
func (r *Router) displayName(ctx context.Context, session *models.Session, sender, role string, id *int64) string {
	switch sender {
	case models.SenderCustomer:
		if session.CustomerName != "" {
			return session.CustomerName
		}
		return fallbackCustomerName
	case models.SenderAgent:
		if role == models.SenderRoleBot {
			return models.BotName
		}
		return r.resolveAgentName(ctx, role, id)
	default:
		return "System"
	}
}

// resolveAgentName tries identity tables in an order decided by the sender's
// role: the table the role implies first, then the remaining ones. The
// policy is the ordering of this list, not branching logic.
func (r *Router) resolveAgentName(ctx context.Context, role string, id *int64) string {
	if id == nil {
		return fallbackAgentName
	}

	var chain []nameLookup
	switch role {
	case models.SenderRoleUser:
		chain = []nameLookup{r.sessions.UserName, r.sessions.AgentName}
	default:
		chain = []nameLookup{r.sessions.AgentName, r.sessions.UserName}
	}

	for _, lookup := range chain {
		name, err := lookup(ctx, *id)
		if err != nil {
			r.logger.Warn().Err(err).Int64("id", *id).Msg("name lookup failed")
			continue
		}
		if name != "" {
			return name
		}
	}
	return fallbackAgentName
}
