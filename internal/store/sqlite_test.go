package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/TheInfexted/livechat-cs-sub000/internal/models"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(context.Background(), filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s
}

func TestSQLiteSessionLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	session, err := s.CreateSession(ctx, CreateSessionParams{
		CustomerName: "Dana",
		APIKey:       "key-1",
		ExternalID:   "acme",
	})
	require.NoError(t, err)
	require.NotEmpty(t, session.Token)
	require.Equal(t, models.SessionWaiting, session.Status)
	require.Equal(t, models.RoleAnonymous, session.Role)
	require.Nil(t, session.AgentID)
	require.Nil(t, session.ClosedAt)

	require.NoError(t, s.AssignAgent(ctx, session.Token, 7))
	require.NoError(t, s.SetSessionStatus(ctx, session.Token, models.SessionActive))

	got, err := s.GetSession(ctx, session.Token)
	require.NoError(t, err)
	require.Equal(t, models.SessionActive, got.Status)
	require.NotNil(t, got.AgentID)
	require.Equal(t, int64(7), *got.AgentID)
	require.Nil(t, got.ClosedAt)

	require.NoError(t, s.SetSessionStatus(ctx, session.Token, models.SessionClosed))
	got, err = s.GetSession(ctx, session.Token)
	require.NoError(t, err)
	require.Equal(t, models.SessionClosed, got.Status)
	require.NotNil(t, got.ClosedAt)
}

func TestSQLiteClosedSessionRefusesWrites(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	session, err := s.CreateSession(ctx, CreateSessionParams{})
	require.NoError(t, err)
	require.NoError(t, s.SetSessionStatus(ctx, session.Token, models.SessionClosed))

	require.ErrorIs(t, s.SetSessionStatus(ctx, session.Token, models.SessionActive), ErrSessionNotFound)
	require.ErrorIs(t, s.AssignAgent(ctx, session.Token, 7), ErrSessionNotFound)

	got, err := s.GetSession(ctx, session.Token)
	require.NoError(t, err)
	require.Equal(t, models.SessionClosed, got.Status)
	require.Nil(t, got.AgentID)
}

func TestSQLiteGetSessionUnknownTokenReturnsNil(t *testing.T) {
	s := newTestStore(t)
	got, err := s.GetSession(context.Background(), "ghost")
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestSQLiteUpdatesOnMissingTokenReturnSentinel(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.ErrorIs(t, s.SetSessionStatus(ctx, "ghost", models.SessionClosed), ErrSessionNotFound)
	require.ErrorIs(t, s.AssignAgent(ctx, "ghost", 1), ErrSessionNotFound)
	require.ErrorIs(t, s.SetSessionTenant(ctx, "ghost", "acme"), ErrSessionNotFound)
}

func TestSQLiteFindIdleAnonymousExcludesAuthenticated(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	stale, err := s.CreateSession(ctx, CreateSessionParams{})
	require.NoError(t, err)
	_, err = s.CreateSession(ctx, CreateSessionParams{})
	require.NoError(t, err)
	authed, err := s.CreateSession(ctx, CreateSessionParams{Role: models.RoleAuthenticated})
	require.NoError(t, err)

	// Backdate the stale and authenticated sessions past any cutoff.
	for _, token := range []string{stale.Token, authed.Token} {
		_, err := s.db.ExecContext(ctx, `
			UPDATE sessions
			SET created_at = datetime('now', '-2 hours'),
			    updated_at = datetime('now', '-2 hours')
			WHERE token = ?
		`, token)
		require.NoError(t, err)
	}

	now := time.Now().UTC()
	idle, err := s.FindIdleAnonymous(ctx, now.Add(-30*time.Minute), now.Add(-60*time.Minute))
	require.NoError(t, err)
	require.Len(t, idle, 1)
	require.Equal(t, stale.Token, idle[0].Token)
}

func TestSQLiteFindIdleAnonymousActiveUsesUpdatedAt(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	session, err := s.CreateSession(ctx, CreateSessionParams{})
	require.NoError(t, err)
	require.NoError(t, s.SetSessionStatus(ctx, session.Token, models.SessionActive))

	// Old session, recent activity: not idle.
	_, err = s.db.ExecContext(ctx, `
		UPDATE sessions SET created_at = datetime('now', '-3 hours') WHERE token = ?
	`, session.Token)
	require.NoError(t, err)

	now := time.Now().UTC()
	idle, err := s.FindIdleAnonymous(ctx, now.Add(-30*time.Minute), now.Add(-60*time.Minute))
	require.NoError(t, err)
	require.Empty(t, idle)

	// Activity goes stale: idle.
	_, err = s.db.ExecContext(ctx, `
		UPDATE sessions SET updated_at = datetime('now', '-90 minutes') WHERE token = ?
	`, session.Token)
	require.NoError(t, err)

	idle, err = s.FindIdleAnonymous(ctx, now.Add(-30*time.Minute), now.Add(-60*time.Minute))
	require.NoError(t, err)
	require.Len(t, idle, 1)
}

func TestSQLiteTenantLookups(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.db.ExecContext(ctx, `INSERT INTO tenants (handle, api_key) VALUES ('Acme', 'key-1')`)
	require.NoError(t, err)

	handle, err := s.TenantHandleByKey(ctx, "key-1")
	require.NoError(t, err)
	require.Equal(t, "Acme", handle)

	handle, err = s.TenantHandleByKey(ctx, "no-such-key")
	require.NoError(t, err)
	require.Empty(t, handle)

	// Name matching ignores case but always reports the stored handle.
	handle, err = s.TenantHandleByName(ctx, "acme")
	require.NoError(t, err)
	require.Equal(t, "Acme", handle)

	handle, err = s.TenantHandleByName(ctx, "globex")
	require.NoError(t, err)
	require.Empty(t, handle)
}

func TestSQLiteActiveKeywordRulesInStorageOrder(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO keyword_rules (tenant_handle, keyword, response, active) VALUES
		('acme', 'price', 'See /pricing', 1),
		('acme', 'refund', 'Refunds take 5 days', 0),
		('acme', 'hours', 'We are open 9-5', 1),
		('globex', 'price', 'Call sales', 1)
	`)
	require.NoError(t, err)

	rules, err := s.ActiveKeywordRules(ctx, "acme")
	require.NoError(t, err)
	require.Len(t, rules, 2)
	require.Equal(t, "price", rules[0].Keyword)
	require.Equal(t, "hours", rules[1].Keyword)
}

func TestSQLiteNameLookupsMissReturnsEmpty(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.db.ExecContext(ctx, `INSERT INTO agents (name) VALUES ('Morgan')`)
	require.NoError(t, err)
	_, err = s.db.ExecContext(ctx, `INSERT INTO users (name) VALUES ('Jamie')`)
	require.NoError(t, err)

	name, err := s.AgentName(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, "Morgan", name)

	name, err = s.UserName(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, "Jamie", name)

	name, err = s.AgentName(ctx, 999)
	require.NoError(t, err)
	require.Empty(t, name)
}
