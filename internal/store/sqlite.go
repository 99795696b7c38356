package store

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/TheInfexted/livechat-cs-sub000/internal/crypto"
	"github.com/TheInfexted/livechat-cs-sub000/internal/models"
)

// SQLiteStore handles SQLite database operations. It is the zero-setup
// backend for local development and tests.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store.
// If dbPath is empty, defaults to "./data/livechat.db"
func NewSQLiteStore(ctx context.Context, dbPath string) (*SQLiteStore, error) {
	if dbPath == "" {
		dbPath = "./data/livechat.db"
	}

	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, err
	}

	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}

	store := &SQLiteStore{db: db}

	// Initialize schema
	if err := store.initSchema(ctx); err != nil {
		return nil, err
	}

	return store, nil
}

// initSchema creates tables if they don't exist.
func (s *SQLiteStore) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS tenants (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		handle TEXT UNIQUE NOT NULL,
		api_key TEXT UNIQUE NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS agents (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		email TEXT DEFAULT '',
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		email TEXT DEFAULT '',
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS sessions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		token TEXT UNIQUE NOT NULL,
		status TEXT NOT NULL DEFAULT 'waiting',
		customer_name TEXT NOT NULL DEFAULT '',
		agent_id INTEGER REFERENCES agents(id),
		api_key TEXT NOT NULL DEFAULT '',
		external_id TEXT NOT NULL DEFAULT '',
		tenant_handle TEXT NOT NULL DEFAULT '',
		role TEXT NOT NULL DEFAULT 'anonymous',
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		closed_at DATETIME
	);

	CREATE TABLE IF NOT EXISTS keyword_rules (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		tenant_handle TEXT NOT NULL,
		keyword TEXT NOT NULL,
		response TEXT NOT NULL,
		active INTEGER NOT NULL DEFAULT 1
	);

	CREATE INDEX IF NOT EXISTS idx_sessions_status ON sessions(status);
	CREATE INDEX IF NOT EXISTS idx_sessions_role_status ON sessions(role, status);
	CREATE INDEX IF NOT EXISTS idx_keyword_rules_tenant ON keyword_rules(tenant_handle);
	`
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() {
	s.db.Close()
}

// Ping checks the database connection.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// CreateSession creates a new session row in waiting status with a fresh
// token.
func (s *SQLiteStore) CreateSession(ctx context.Context, p CreateSessionParams) (*models.Session, error) {
	role := p.Role
	if role != models.RoleAuthenticated {
		role = models.RoleAnonymous
	}

	token := crypto.NewSessionToken()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (token, customer_name, api_key, external_id, role)
		VALUES (?, ?, ?, ?, ?)
	`, token, p.CustomerName, p.APIKey, p.ExternalID, role)
	if err != nil {
		return nil, err
	}
	return s.GetSession(ctx, token)
}

// GetSession retrieves a session by token. Returns nil when no row matches.
func (s *SQLiteStore) GetSession(ctx context.Context, token string) (*models.Session, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+sessionColumns+` FROM sessions WHERE token = ?
	`, token)
	session, err := scanSessionRow(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return session, nil
}

// SetSessionStatus updates a session's status. Closing also stamps
// closed_at. Closed rows are terminal; a write against a closed or missing
// token returns ErrSessionNotFound.
func (s *SQLiteStore) SetSessionStatus(ctx context.Context, token, status string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE sessions
		SET status = ?,
		    updated_at = CURRENT_TIMESTAMP,
		    closed_at = CASE WHEN ? = 'closed' THEN CURRENT_TIMESTAMP ELSE closed_at END
		WHERE token = ? AND status != 'closed'
	`, status, status, token)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// AssignAgent sets the session's agent reference. Last writer wins among
// live sessions; closed rows are never claimed.
func (s *SQLiteStore) AssignAgent(ctx context.Context, token string, agentID int64) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE sessions SET agent_id = ?, updated_at = CURRENT_TIMESTAMP
		WHERE token = ? AND status != 'closed'
	`, agentID, token)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// SetSessionTenant persists a resolved tenant handle on the session.
func (s *SQLiteStore) SetSessionTenant(ctx context.Context, token, handle string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE sessions SET tenant_handle = ?, updated_at = CURRENT_TIMESTAMP WHERE token = ?
	`, handle, token)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// FindIdleAnonymous returns anonymous sessions idle past the given cutoffs.
func (s *SQLiteStore) FindIdleAnonymous(ctx context.Context, waitingBefore, activeBefore time.Time) ([]models.Session, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+sessionColumns+` FROM sessions
		WHERE role = 'anonymous'
		  AND ((status = 'waiting' AND created_at < ?)
		    OR (status = 'active' AND updated_at < ?))
		ORDER BY created_at ASC
	`, waitingBefore.UTC(), activeBefore.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectSessions(rows)
}

// ListSessionsByStatus returns all sessions with the given status, oldest
// first.
func (s *SQLiteStore) ListSessionsByStatus(ctx context.Context, status string) ([]models.Session, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+sessionColumns+` FROM sessions
		WHERE status = ?
		ORDER BY created_at ASC
	`, status)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectSessions(rows)
}

// TenantHandleByKey resolves a tenant credential to its canonical handle.
func (s *SQLiteStore) TenantHandleByKey(ctx context.Context, apiKey string) (string, error) {
	var handle string
	err := s.db.QueryRowContext(ctx, `SELECT handle FROM tenants WHERE api_key = ?`, apiKey).Scan(&handle)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		return "", err
	}
	return handle, nil
}

// TenantHandleByName matches a name against tenant handles without case
// sensitivity and returns the canonical handle, or "" on a miss.
func (s *SQLiteStore) TenantHandleByName(ctx context.Context, name string) (string, error) {
	var handle string
	err := s.db.QueryRowContext(ctx, `SELECT handle FROM tenants WHERE LOWER(handle) = LOWER(?)`, name).Scan(&handle)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		return "", err
	}
	return handle, nil
}

// ActiveKeywordRules returns a tenant's active rules in storage order.
func (s *SQLiteStore) ActiveKeywordRules(ctx context.Context, handle string) ([]models.KeywordRule, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, tenant_handle, keyword, response, active
		FROM keyword_rules
		WHERE tenant_handle = ? AND active = 1
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

// AgentName resolves a support agent's display name.
func (s *SQLiteStore) AgentName(ctx context.Context, id int64) (string, error) {
	return s.lookupName(ctx, `SELECT name FROM agents WHERE id = ?`, id)
}

// UserName resolves a client-portal user's display name.
func (s *SQLiteStore) UserName(ctx context.Context, id int64) (string, error) {
	return s.lookupName(ctx, `SELECT name FROM users WHERE id = ?`, id)
}

func (s *SQLiteStore) lookupName(ctx context.Context, query string, id int64) (string, error) {
	var name string
	err := s.db.QueryRowContext(ctx, query, id).Scan(&name)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		return "", err
	}
	return name, nil
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrSessionNotFound
	}
	return nil
}

func scanSessionRow(scan func(dest ...any) error) (*models.Session, error) {
	session := &models.Session{}
	var agentID sql.NullInt64
	var closedAt sql.NullTime
	err := scan(
		&session.ID,
		&session.Token,
		&session.Status,
		&session.CustomerName,
		&agentID,
		&session.APIKey,
		&session.ExternalID,
		&session.TenantHandle,
		&session.Role,
		&session.CreatedAt,
		&session.UpdatedAt,
		&closedAt,
	)
	if err != nil {
		return nil, err
	}
	if agentID.Valid {
		session.AgentID = &agentID.Int64
	}
	if closedAt.Valid {
		session.ClosedAt = &closedAt.Time
	}
	return session, nil
}

func collectSessions(rows *sql.Rows) ([]models.Session, error) {
	var sessions []models.Session
	for rows.Next() {
		session, err := scanSessionRow(rows.Scan)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, *session)
	}
	return sessions, rows.Err()
}
