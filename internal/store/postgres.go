package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/TheInfexted/livechat-cs-sub000/internal/crypto"
	"github.com/TheInfexted/livechat-cs-sub000/internal/metrics"
	"github.com/TheInfexted/livechat-cs-sub000/internal/models"
)

const sessionColumns = `id, token, status, customer_name, agent_id, api_key, external_id, tenant_handle, role, created_at, updated_at, closed_at`

// PostgresStore handles PostgreSQL database operations.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL store with a connection pool.
func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		return nil, err
	}

	return &PostgresStore{pool: pool}, nil
}

// Close closes the database connection pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

// Ping checks the database connection.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Migrate creates the schema if it does not exist yet.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS tenants (
		id BIGSERIAL PRIMARY KEY,
		handle TEXT UNIQUE NOT NULL,
		api_key TEXT UNIQUE NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE TABLE IF NOT EXISTS agents (
		id BIGSERIAL PRIMARY KEY,
		name TEXT NOT NULL,
		email TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE TABLE IF NOT EXISTS users (
		id BIGSERIAL PRIMARY KEY,
		name TEXT NOT NULL,
		email TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE TABLE IF NOT EXISTS sessions (
		id BIGSERIAL PRIMARY KEY,
		token TEXT UNIQUE NOT NULL,
		status TEXT NOT NULL DEFAULT 'waiting',
		customer_name TEXT NOT NULL DEFAULT '',
		agent_id BIGINT REFERENCES agents(id),
		api_key TEXT NOT NULL DEFAULT '',
		external_id TEXT NOT NULL DEFAULT '',
		tenant_handle TEXT NOT NULL DEFAULT '',
		role TEXT NOT NULL DEFAULT 'anonymous',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		closed_at TIMESTAMPTZ
	);

	CREATE TABLE IF NOT EXISTS keyword_rules (
		id BIGSERIAL PRIMARY KEY,
		tenant_handle TEXT NOT NULL,
		keyword TEXT NOT NULL,
		response TEXT NOT NULL,
		active BOOLEAN NOT NULL DEFAULT TRUE
	);

	CREATE INDEX IF NOT EXISTS idx_sessions_status ON sessions(status);
	CREATE INDEX IF NOT EXISTS idx_sessions_role_status ON sessions(role, status);
	CREATE INDEX IF NOT EXISTS idx_keyword_rules_tenant ON keyword_rules(tenant_handle);
	`
	_, err := s.pool.Exec(ctx, schema)
	return err
}

// CreateSession creates a new session row in waiting status with a fresh
// token.
func (s *PostgresStore) CreateSession(ctx context.Context, p CreateSessionParams) (*models.Session, error) {
	role := p.Role
	if role != models.RoleAuthenticated {
		role = models.RoleAnonymous
	}

	defer observePG(time.Now())
	session := &models.Session{}
	err := s.pool.QueryRow(ctx, `
		INSERT INTO sessions (token, customer_name, api_key, external_id, role)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING `+sessionColumns+`
	`, crypto.NewSessionToken(), p.CustomerName, p.APIKey, p.ExternalID, role).Scan(
		&session.ID,
		&session.Token,
		&session.Status,
		&session.CustomerName,
		&session.AgentID,
		&session.APIKey,
		&session.ExternalID,
		&session.TenantHandle,
		&session.Role,
		&session.CreatedAt,
		&session.UpdatedAt,
		&session.ClosedAt,
	)
	if err != nil {
		return nil, err
	}
	return session, nil
}

// GetSession retrieves a session by token. Returns nil when no row matches.
func (s *PostgresStore) GetSession(ctx context.Context, token string) (*models.Session, error) {
	defer observePG(time.Now())
	session := &models.Session{}
	err := s.pool.QueryRow(ctx, `
		SELECT `+sessionColumns+` FROM sessions WHERE token = $1
	`, token).Scan(
		&session.ID,
		&session.Token,
		&session.Status,
		&session.CustomerName,
		&session.AgentID,
		&session.APIKey,
		&session.ExternalID,
		&session.TenantHandle,
		&session.Role,
		&session.CreatedAt,
		&session.UpdatedAt,
		&session.ClosedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return session, nil
}

// SetSessionStatus updates a session's status. Closing also stamps
// closed_at. Closed rows are terminal and never transition again; a write
// against a closed or missing token returns ErrSessionNotFound.
func (s *PostgresStore) SetSessionStatus(ctx context.Context, token, status string) error {
	defer observePG(time.Now())
	tag, err := s.pool.Exec(ctx, `
		UPDATE sessions
		SET status = $2,
		    updated_at = NOW(),
		    closed_at = CASE WHEN $2 = 'closed' THEN NOW() ELSE closed_at END
		WHERE token = $1 AND status != 'closed'
	`, token, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrSessionNotFound
	}
	return nil
}

// AssignAgent sets the session's agent reference. Last writer wins among
// live sessions; closed rows are never claimed.
func (s *PostgresStore) AssignAgent(ctx context.Context, token string, agentID int64) error {
	defer observePG(time.Now())
	tag, err := s.pool.Exec(ctx, `
		UPDATE sessions SET agent_id = $2, updated_at = NOW()
		WHERE token = $1 AND status != 'closed'
	`, token, agentID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrSessionNotFound
	}
	return nil
}

// SetSessionTenant persists a resolved tenant handle on the session so later
// lookups skip the resolution cascade.
func (s *PostgresStore) SetSessionTenant(ctx context.Context, token, handle string) error {
	defer observePG(time.Now())
	tag, err := s.pool.Exec(ctx, `
		UPDATE sessions SET tenant_handle = $2, updated_at = NOW() WHERE token = $1
	`, token, handle)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrSessionNotFound
	}
	return nil
}

// FindIdleAnonymous returns anonymous sessions that have been waiting since
// before waitingBefore, or active without updates since before activeBefore.
// Authenticated sessions are excluded in SQL.
func (s *PostgresStore) FindIdleAnonymous(ctx context.Context, waitingBefore, activeBefore time.Time) ([]models.Session, error) {
	defer observePG(time.Now())
	rows, err := s.pool.Query(ctx, `
		SELECT `+sessionColumns+` FROM sessions
		WHERE role = 'anonymous'
		  AND ((status = 'waiting' AND created_at < $1)
		    OR (status = 'active' AND updated_at < $2))
		ORDER BY created_at ASC
	`, waitingBefore, activeBefore)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanSessions(rows)
}

// ListSessionsByStatus returns all sessions with the given status, oldest
// first. Consumed by the admin web layer and the agent waiting queue.
func (s *PostgresStore) ListSessionsByStatus(ctx context.Context, status string) ([]models.Session, error) {
	defer observePG(time.Now())
	rows, err := s.pool.Query(ctx, `
		SELECT `+sessionColumns+` FROM sessions
		WHERE status = $1
		ORDER BY created_at ASC
	`, status)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanSessions(rows)
}

func scanSessions(rows pgx.Rows) ([]models.Session, error) {
	var sessions []models.Session
	for rows.Next() {
		var session models.Session
		err := rows.Scan(
			&session.ID,
			&session.Token,
			&session.Status,
			&session.CustomerName,
			&session.AgentID,
			&session.APIKey,
			&session.ExternalID,
			&session.TenantHandle,
			&session.Role,
			&session.CreatedAt,
			&session.UpdatedAt,
			&session.ClosedAt,
		)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, session)
	}
	return sessions, rows.Err()
}

// TenantHandleByKey resolves a tenant credential to its canonical handle.
// Returns "" when the credential is unknown.
func (s *PostgresStore) TenantHandleByKey(ctx context.Context, apiKey string) (string, error) {
	defer observePG(time.Now())
	var handle string
	err := s.pool.QueryRow(ctx, `
		SELECT handle FROM tenants WHERE api_key = $1
	`, apiKey).Scan(&handle)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", nil
		}
		return "", err
	}
	return handle, nil
}

// TenantHandleByName matches a name against tenant handles without case
// sensitivity and returns the canonical handle, or "" on a miss.
func (s *PostgresStore) TenantHandleByName(ctx context.Context, name string) (string, error) {
	defer observePG(time.Now())
	var handle string
	err := s.pool.QueryRow(ctx, `
		SELECT handle FROM tenants WHERE LOWER(handle) = LOWER($1)
	`, name).Scan(&handle)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", nil
		}
		return "", err
	}
	return handle, nil
}

// ActiveKeywordRules returns a tenant's active rules in storage order.
func (s *PostgresStore) ActiveKeywordRules(ctx context.Context, handle string) ([]models.KeywordRule, error) {
	defer observePG(time.Now())
	rows, err := s.pool.Query(ctx, `
		SELECT id, tenant_handle, keyword, response, active
		FROM keyword_rules
		WHERE tenant_handle = $1 AND active = TRUE
		ORDER BY id ASC
	`, handle)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rules []models.KeywordRule
	for rows.Next() {
		var rule models.KeywordRule
		if err := rows.Scan(&rule.ID, &rule.Tenant, &rule.Keyword, &rule.Response, &rule.Active); err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}
	return rules, rows.Err()
}

// AgentName resolves a support agent's display name. Returns "" when the id
// is unknown.
func (s *PostgresStore) AgentName(ctx context.Context, id int64) (string, error) {
	return s.lookupName(ctx, `SELECT name FROM agents WHERE id = $1`, id)
}

// UserName resolves a client-portal user's display name. Returns "" when the
// id is unknown.
func (s *PostgresStore) UserName(ctx context.Context, id int64) (string, error) {
	return s.lookupName(ctx, `SELECT name FROM users WHERE id = $1`, id)
}

func (s *PostgresStore) lookupName(ctx context.Context, query string, id int64) (string, error) {
	defer observePG(time.Now())
	var name string
	err := s.pool.QueryRow(ctx, query, id).Scan(&name)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", nil
		}
		return "", err
	}
	return name, nil
}

func observePG(start time.Time) {
	metrics.SessionStoreLatency.Observe(time.Since(start).Seconds())
}
