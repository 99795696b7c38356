package handlers

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/net/websocket"

	"github.com/TheInfexted/livechat-cs-sub000/internal/models"
	"github.com/TheInfexted/livechat-cs-sub000/internal/tenant"
)

func dialWS(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, err := websocket.Dial(wsURL, "", srv.URL)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = conn.Close()
	})
	return conn
}

func writeFrame(t *testing.T, conn *websocket.Conn, frame map[string]any) {
	t.Helper()
	require.NoError(t, json.NewEncoder(conn).Encode(frame))
}

func readFrame(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	_ = conn.SetDeadline(time.Now().Add(2 * time.Second))
	var got map[string]any
	require.NoError(t, json.NewDecoder(conn).Decode(&got))
	return got
}

func registerConn(t *testing.T, conn *websocket.Conn, token, kind string) {
	t.Helper()
	writeFrame(t, conn, map[string]any{
		"type":  "register",
		"token": token,
		"kind":  kind,
	})
	got := readFrame(t, conn)
	require.Equal(t, "connected", got["type"])
	require.Equal(t, token, got["token"])
}

func TestSocketRegisterAcksConnection(t *testing.T) {
	f := newHandlerFixture(t)
	srv := httptest.NewServer(f.mux)
	t.Cleanup(srv.Close)

	session := f.sessions.Seed(models.Session{})
	conn := dialWS(t, srv)
	registerConn(t, conn, session.Token, "customer")
}

func TestSocketRegisterWithoutTokenReturnsError(t *testing.T) {
	f := newHandlerFixture(t)
	srv := httptest.NewServer(f.mux)
	t.Cleanup(srv.Close)

	conn := dialWS(t, srv)
	writeFrame(t, conn, map[string]any{
		"type": "register",
		"kind": "customer",
	})

	got := readFrame(t, conn)
	require.Equal(t, "error", got["type"])
	require.Equal(t, "protocol_error", got["code"])
}

func TestSocketAgentRegisterReceivesWaitingQueue(t *testing.T) {
	f := newHandlerFixture(t)
	srv := httptest.NewServer(f.mux)
	t.Cleanup(srv.Close)

	waiting := f.sessions.Seed(models.Session{Status: models.SessionWaiting})
	f.sessions.Seed(models.Session{Status: models.SessionActive})

	conn := dialWS(t, srv)
	registerConn(t, conn, "agent-dashboard", "agent")

	got := readFrame(t, conn)
	require.Equal(t, "waiting_sessions", got["type"])
	sessions := got["sessions"].([]any)
	require.Len(t, sessions, 1)
	require.Equal(t, waiting.Token, sessions[0].(map[string]any)["token"])
}

func TestSocketMessageBroadcastToAllSubscribers(t *testing.T) {
	f := newHandlerFixture(t)
	srv := httptest.NewServer(f.mux)
	t.Cleanup(srv.Close)

	session := f.sessions.Seed(models.Session{CustomerName: "Dana", Status: models.SessionActive})
	other := f.sessions.Seed(models.Session{Status: models.SessionActive})

	customer := dialWS(t, srv)
	agent := dialWS(t, srv)
	bystander := dialWS(t, srv)
	registerConn(t, customer, session.Token, "customer")
	registerConn(t, agent, session.Token, "agent")
	registerConn(t, bystander, other.Token, "customer")

	writeFrame(t, customer, map[string]any{
		"type":   "message",
		"token":  session.Token,
		"sender": "customer",
		"body":   "hello support",
	})

	// Sender and peer both receive the identical persisted message.
	forCustomer := readFrame(t, customer)
	forAgent := readFrame(t, agent)
	require.Equal(t, "message", forCustomer["type"])
	require.Equal(t, forCustomer, forAgent)
	msg := forCustomer["message"].(map[string]any)
	require.Equal(t, "hello support", msg["body"])
	require.Equal(t, "Dana", msg["sender_name"])
	require.NotEmpty(t, msg["id"])

	// The other session's subscriber sees nothing. Send it a typing frame
	// and check that is the next thing it reads.
	writeFrame(t, bystander, map[string]any{
		"type":   "typing",
		"token":  other.Token,
		"typing": true,
		"sender": "customer",
	})
	writeFrame(t, agent, map[string]any{
		"type":   "typing",
		"token":  other.Token,
		"typing": true,
		"sender": "agent",
	})
	got := readFrame(t, bystander)
	require.Equal(t, "typing", got["type"])
	require.Equal(t, "agent", got["sender"])
}

func TestSocketMessageMissingBodyReturnsError(t *testing.T) {
	f := newHandlerFixture(t)
	srv := httptest.NewServer(f.mux)
	t.Cleanup(srv.Close)

	session := f.sessions.Seed(models.Session{})
	conn := dialWS(t, srv)
	registerConn(t, conn, session.Token, "customer")

	writeFrame(t, conn, map[string]any{
		"type":   "message",
		"token":  session.Token,
		"sender": "customer",
	})

	got := readFrame(t, conn)
	require.Equal(t, "error", got["type"])
	require.Equal(t, "protocol_error", got["code"])
	require.Empty(t, f.messages.Messages(tenant.Unknown, session.Token))
}

func TestSocketUnknownEventTypeReturnsError(t *testing.T) {
	f := newHandlerFixture(t)
	srv := httptest.NewServer(f.mux)
	t.Cleanup(srv.Close)

	conn := dialWS(t, srv)
	writeFrame(t, conn, map[string]any{"type": "shrug"})

	got := readFrame(t, conn)
	require.Equal(t, "error", got["type"])
	require.Equal(t, "protocol_error", got["code"])
}

func TestSocketAutoReplyFollowsCustomerMessage(t *testing.T) {
	f := newHandlerFixture(t)
	srv := httptest.NewServer(f.mux)
	t.Cleanup(srv.Close)

	f.sessions.Tenants["key-1"] = "Acme"
	f.sessions.Rules["Acme"] = []models.KeywordRule{
		{Keyword: "price", Response: "See /pricing", Active: true},
	}
	session := f.sessions.Seed(models.Session{Status: models.SessionWaiting, APIKey: "key-1"})

	conn := dialWS(t, srv)
	registerConn(t, conn, session.Token, "customer")

	writeFrame(t, conn, map[string]any{
		"type":   "message",
		"token":  session.Token,
		"sender": "customer",
		"body":   "what is the price?",
	})

	first := readFrame(t, conn)
	require.Equal(t, "message", first["type"])
	require.Equal(t, "what is the price?", first["message"].(map[string]any)["body"])

	second := readFrame(t, conn)
	require.Equal(t, "message", second["type"])
	reply := second["message"].(map[string]any)
	require.Equal(t, "See /pricing", reply["body"])
	require.Equal(t, models.BotName, reply["sender_name"])
	require.Equal(t, "bot", reply["sender_role"])
}

func TestSocketCloseSessionNotifiesAndDrops(t *testing.T) {
	f := newHandlerFixture(t)
	srv := httptest.NewServer(f.mux)
	t.Cleanup(srv.Close)

	session := f.sessions.Seed(models.Session{Status: models.SessionActive})

	customer := dialWS(t, srv)
	agent := dialWS(t, srv)
	registerConn(t, customer, session.Token, "customer")
	registerConn(t, agent, session.Token, "agent")

	writeFrame(t, agent, map[string]any{
		"type":  "close_session",
		"token": session.Token,
	})

	for _, conn := range []*websocket.Conn{customer, agent} {
		got := readFrame(t, conn)
		require.Equal(t, "session_closed", got["type"])
		require.Equal(t, "closed", got["reason"])
	}
	require.False(t, f.registry.Has(session.Token))
}

func TestSocketAssignAgentNudgesOtherAgents(t *testing.T) {
	f := newHandlerFixture(t)
	srv := httptest.NewServer(f.mux)
	t.Cleanup(srv.Close)

	f.sessions.Agents[3] = "Morgan"
	session := f.sessions.Seed(models.Session{Status: models.SessionWaiting})

	claiming := dialWS(t, srv)
	watching := dialWS(t, srv)
	registerConn(t, claiming, session.Token, "agent")
	registerConn(t, watching, "agent-dashboard", "agent")
	// Drain the waiting queue snapshots both agents get on register.
	_ = readFrame(t, claiming)
	_ = readFrame(t, watching)

	writeFrame(t, claiming, map[string]any{
		"type":     "assign_agent",
		"token":    session.Token,
		"agent_id": 3,
	})

	join := readFrame(t, claiming)
	require.Equal(t, "message", join["type"])
	require.Equal(t, "Morgan joined the conversation", join["message"].(map[string]any)["body"])

	nudge := readFrame(t, watching)
	require.Equal(t, "update_sessions", nudge["type"])
	require.Equal(t, "sessions_changed", nudge["reason"])
}
