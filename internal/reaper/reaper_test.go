package reaper

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/TheInfexted/livechat-cs-sub000/internal/models"
	"github.com/TheInfexted/livechat-cs-sub000/internal/store/storetest"
	"github.com/TheInfexted/livechat-cs-sub000/internal/tenant"
	"github.com/TheInfexted/livechat-cs-sub000/internal/ws"
)

type reaperFixture struct {
	sessions *storetest.SessionStore
	messages *storetest.MessageLog
	registry *ws.Registry
	reaper   *Reaper
}

func newReaperFixture(waitingTimeout, activeTimeout time.Duration) *reaperFixture {
	sessions := storetest.NewSessionStore()
	messages := storetest.NewMessageLog()
	registry := ws.NewRegistry(zerolog.Nop())
	resolver := tenant.NewResolver(sessions, messages, "", zerolog.Nop())
	return &reaperFixture{
		sessions: sessions,
		messages: messages,
		registry: registry,
		reaper:   New(sessions, messages, resolver, registry, time.Minute, waitingTimeout, activeTimeout, zerolog.Nop()),
	}
}

func TestSweepClosesIdleWaitingAnonymousSession(t *testing.T) {
	f := newReaperFixture(30*time.Minute, 60*time.Minute)
	session := f.sessions.Seed(models.Session{
		Status:    models.SessionWaiting,
		Role:      models.RoleAnonymous,
		CreatedAt: time.Now().Add(-40 * time.Minute),
	})

	closed, err := f.reaper.Sweep(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, closed)

	updated, err := f.sessions.GetSession(context.Background(), session.Token)
	require.NoError(t, err)
	require.Equal(t, models.SessionClosed, updated.Status)
	require.NotNil(t, updated.ClosedAt)

	stored := f.messages.Messages(tenant.Unknown, session.Token)
	require.Len(t, stored, 1)
	require.Equal(t, models.SenderSystem, stored[0].Sender)
	require.Equal(t, "Chat closed due to inactivity", stored[0].Body)
}

func TestSweepClosesSilentActiveAnonymousSession(t *testing.T) {
	f := newReaperFixture(30*time.Minute, 60*time.Minute)
	session := f.sessions.Seed(models.Session{
		Status:    models.SessionActive,
		Role:      models.RoleAnonymous,
		CreatedAt: time.Now().Add(-3 * time.Hour),
		UpdatedAt: time.Now().Add(-90 * time.Minute),
	})

	closed, err := f.reaper.Sweep(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, closed)

	updated, err := f.sessions.GetSession(context.Background(), session.Token)
	require.NoError(t, err)
	require.Equal(t, models.SessionClosed, updated.Status)
}

func TestSweepSparesRecentSessions(t *testing.T) {
	f := newReaperFixture(30*time.Minute, 60*time.Minute)
	waiting := f.sessions.Seed(models.Session{
		Status:    models.SessionWaiting,
		Role:      models.RoleAnonymous,
		CreatedAt: time.Now().Add(-10 * time.Minute),
	})
	active := f.sessions.Seed(models.Session{
		Status:    models.SessionActive,
		Role:      models.RoleAnonymous,
		CreatedAt: time.Now().Add(-2 * time.Hour),
		UpdatedAt: time.Now().Add(-5 * time.Minute),
	})

	closed, err := f.reaper.Sweep(context.Background())
	require.NoError(t, err)
	require.Zero(t, closed)

	for _, token := range []string{waiting.Token, active.Token} {
		session, err := f.sessions.GetSession(context.Background(), token)
		require.NoError(t, err)
		require.NotEqual(t, models.SessionClosed, session.Status)
	}
}

func TestSweepNeverTouchesAuthenticatedSessions(t *testing.T) {
	// Authenticated sessions stay open no matter how stale they are.
	f := newReaperFixture(time.Nanosecond, time.Nanosecond)
	session := f.sessions.Seed(models.Session{
		Status:    models.SessionWaiting,
		Role:      models.RoleAuthenticated,
		CreatedAt: time.Now().Add(-24 * 365 * time.Hour),
		UpdatedAt: time.Now().Add(-24 * 365 * time.Hour),
	})

	closed, err := f.reaper.Sweep(context.Background())
	require.NoError(t, err)
	require.Zero(t, closed)

	updated, err := f.sessions.GetSession(context.Background(), session.Token)
	require.NoError(t, err)
	require.Equal(t, models.SessionWaiting, updated.Status)
}

func TestSweepNotifiesLiveConnectionsWithTimeoutReason(t *testing.T) {
	f := newReaperFixture(30*time.Minute, 60*time.Minute)
	session := f.sessions.Seed(models.Session{
		Status:    models.SessionWaiting,
		Role:      models.RoleAnonymous,
		CreatedAt: time.Now().Add(-40 * time.Minute),
	})

	var buf bytes.Buffer
	conn := ws.NewConn(&buf)
	require.NoError(t, f.registry.Register(conn, session.Token, ws.KindCustomer, nil))

	closed, err := f.reaper.Sweep(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, closed)

	var frame map[string]any
	require.NoError(t, json.NewDecoder(&buf).Decode(&frame))
	require.Equal(t, "session_closed", frame["type"])
	require.Equal(t, "timeout", frame["reason"])
	require.Equal(t, session.Token, frame["token"])

	require.False(t, f.registry.Has(session.Token))
}

func TestSweepContinuesPastPerSessionFailures(t *testing.T) {
	// A persist failure on the closure message must not stop the sweep or
	// undo the close.
	f := newReaperFixture(30*time.Minute, 60*time.Minute)
	a := f.sessions.Seed(models.Session{
		Status:    models.SessionWaiting,
		Role:      models.RoleAnonymous,
		CreatedAt: time.Now().Add(-40 * time.Minute),
	})
	b := f.sessions.Seed(models.Session{
		Status:    models.SessionWaiting,
		Role:      models.RoleAnonymous,
		CreatedAt: time.Now().Add(-40 * time.Minute),
	})
	f.messages.Err = context.DeadlineExceeded

	closed, err := f.reaper.Sweep(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, closed)

	for _, token := range []string{a.Token, b.Token} {
		session, err := f.sessions.GetSession(context.Background(), token)
		require.NoError(t, err)
		require.Equal(t, models.SessionClosed, session.Status)
	}
}
