package store

import (
	"context"
	"errors"
	"time"

	"github.com/TheInfexted/livechat-cs-sub000/internal/models"
)

// ErrSessionNotFound is returned by session writes targeting a token with no
// backing row.
var ErrSessionNotFound = errors.New("session not found")

// CreateSessionParams are the caller-supplied fields for a new session.
// Token, status and timestamps are assigned by the store.
type CreateSessionParams struct {
	CustomerName string
	APIKey       string
	ExternalID   string
	Role         string
}

// SessionStore defines the relational persistence surface for sessions,
// tenants, keyword rules and the identity tables used for display-name
// lookups. Both PostgresStore and SQLiteStore implement this interface.
type SessionStore interface {
	// Connection management
	Close()
	Ping(ctx context.Context) error

	// Session operations. SetSessionStatus and AssignAgent refuse to touch
	// a closed session; once closed a row only leaves that state by being
	// replaced with a fresh session.
	CreateSession(ctx context.Context, p CreateSessionParams) (*models.Session, error)
	GetSession(ctx context.Context, token string) (*models.Session, error)
	SetSessionStatus(ctx context.Context, token, status string) error
	AssignAgent(ctx context.Context, token string, agentID int64) error
	SetSessionTenant(ctx context.Context, token, handle string) error
	FindIdleAnonymous(ctx context.Context, waitingBefore, activeBefore time.Time) ([]models.Session, error)
	ListSessionsByStatus(ctx context.Context, status string) ([]models.Session, error)

	// Tenant operations. Handle lookups return the canonical handle as
	// stored, or "" on a miss; TenantHandleByName matches case-insensitively.
	TenantHandleByKey(ctx context.Context, apiKey string) (string, error)
	TenantHandleByName(ctx context.Context, name string) (string, error)
	ActiveKeywordRules(ctx context.Context, handle string) ([]models.KeywordRule, error)

	// Identity lookups
	AgentName(ctx context.Context, id int64) (string, error)
	UserName(ctx context.Context, id int64) (string, error)
}

// MessageLog defines the tenant-partitioned append-only chat log. The log is
// partition-agnostic: callers resolve the partition key before invoking it,
// and a partition's backing structure comes into existence on first append.
type MessageLog interface {
	Close() error
	Ping(ctx context.Context) error

	Append(ctx context.Context, partition string, msg *models.Message) (string, error)
	ListBySession(ctx context.Context, partition, token string, since int64) ([]models.Message, error)
	MarkRead(ctx context.Context, partition, token, excludeSender string) (int, error)
	HasPartition(ctx context.Context, partition string) (bool, error)
}
