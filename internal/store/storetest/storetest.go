// Package storetest provides in-memory SessionStore and MessageLog
// implementations for tests.
package storetest

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/TheInfexted/livechat-cs-sub000/internal/crypto"
	"github.com/TheInfexted/livechat-cs-sub000/internal/models"
	"github.com/TheInfexted/livechat-cs-sub000/internal/store"
)

// SessionStore is an in-memory store.SessionStore.
type SessionStore struct {
	mu       sync.Mutex
	nextID   int64
	sessions map[string]*models.Session

	Tenants map[string]string // api key -> canonical handle
	Handles map[string]bool   // canonical handles
	Rules   map[string][]models.KeywordRule
	Agents  map[int64]string
	Users   map[int64]string

	// Err, when set, is returned by every operation to simulate an
	// unreachable store.
	Err error
}

// NewSessionStore returns an empty in-memory session store.
func NewSessionStore() *SessionStore {
	return &SessionStore{
		sessions: make(map[string]*models.Session),
		Tenants:  make(map[string]string),
		Handles:  make(map[string]bool),
		Rules:    make(map[string][]models.KeywordRule),
		Agents:   make(map[int64]string),
		Users:    make(map[int64]string),
	}
}

func (s *SessionStore) Close() {}

func (s *SessionStore) Ping(context.Context) error { return s.Err }

// Seed inserts a session as-is, assigning an id and token when missing.
func (s *SessionStore) Seed(session models.Session) *models.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	session.ID = s.nextID
	if session.Token == "" {
		session.Token = crypto.NewSessionToken()
	}
	if session.Status == "" {
		session.Status = models.SessionWaiting
	}
	if session.Role == "" {
		session.Role = models.RoleAnonymous
	}
	if session.CreatedAt.IsZero() {
		session.CreatedAt = time.Now()
	}
	if session.UpdatedAt.IsZero() {
		session.UpdatedAt = session.CreatedAt
	}
	s.sessions[session.Token] = &session
	return &session
}

func (s *SessionStore) CreateSession(_ context.Context, p store.CreateSessionParams) (*models.Session, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	role := p.Role
	if role != models.RoleAuthenticated {
		role = models.RoleAnonymous
	}
	return s.Seed(models.Session{
		CustomerName: p.CustomerName,
		APIKey:       p.APIKey,
		ExternalID:   p.ExternalID,
		Role:         role,
	}), nil
}

func (s *SessionStore) GetSession(_ context.Context, token string) (*models.Session, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[token]
	if !ok {
		return nil, nil
	}
	copied := *session
	return &copied, nil
}

func (s *SessionStore) SetSessionStatus(_ context.Context, token, status string) error {
	return s.updateLive(token, func(session *models.Session) {
		session.Status = status
		if status == models.SessionClosed {
			now := time.Now()
			session.ClosedAt = &now
		}
	})
}

func (s *SessionStore) AssignAgent(_ context.Context, token string, agentID int64) error {
	return s.updateLive(token, func(session *models.Session) {
		session.AgentID = &agentID
	})
}

func (s *SessionStore) SetSessionTenant(_ context.Context, token, handle string) error {
	return s.update(token, func(session *models.Session) {
		session.TenantHandle = handle
	})
}

func (s *SessionStore) update(token string, fn func(*models.Session)) error {
	if s.Err != nil {
		return s.Err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[token]
	if !ok {
		return store.ErrSessionNotFound
	}
	fn(session)
	session.UpdatedAt = time.Now()
	return nil
}

// updateLive mirrors the SQL stores' terminal-closed contract: a write
// against a closed session fails the same as a missing one.
func (s *SessionStore) updateLive(token string, fn func(*models.Session)) error {
	if s.Err != nil {
		return s.Err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[token]
	if !ok || session.Status == models.SessionClosed {
		return store.ErrSessionNotFound
	}
	fn(session)
	session.UpdatedAt = time.Now()
	return nil
}

func (s *SessionStore) FindIdleAnonymous(_ context.Context, waitingBefore, activeBefore time.Time) ([]models.Session, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Session
	for _, session := range s.sessions {
		if session.Role != models.RoleAnonymous {
			continue
		}
		switch session.Status {
		case models.SessionWaiting:
			if session.CreatedAt.Before(waitingBefore) {
				out = append(out, *session)
			}
		case models.SessionActive:
			if session.UpdatedAt.Before(activeBefore) {
				out = append(out, *session)
			}
		}
	}
	return out, nil
}

func (s *SessionStore) ListSessionsByStatus(_ context.Context, status string) ([]models.Session, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Session
	for _, session := range s.sessions {
		if session.Status == status {
			out = append(out, *session)
		}
	}
	return out, nil
}

func (s *SessionStore) TenantHandleByKey(_ context.Context, apiKey string) (string, error) {
	if s.Err != nil {
		return "", s.Err
	}
	return s.Tenants[apiKey], nil
}

func (s *SessionStore) TenantHandleByName(_ context.Context, name string) (string, error) {
	if s.Err != nil {
		return "", s.Err
	}
	for handle := range s.Handles {
		if strings.EqualFold(handle, name) {
			return handle, nil
		}
	}
	return "", nil
}

func (s *SessionStore) ActiveKeywordRules(_ context.Context, handle string) ([]models.KeywordRule, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	var active []models.KeywordRule
	for _, rule := range s.Rules[handle] {
		if rule.Active {
			active = append(active, rule)
		}
	}
	return active, nil
}

func (s *SessionStore) AgentName(_ context.Context, id int64) (string, error) {
	if s.Err != nil {
		return "", s.Err
	}
	return s.Agents[id], nil
}

func (s *SessionStore) UserName(_ context.Context, id int64) (string, error) {
	if s.Err != nil {
		return "", s.Err
	}
	return s.Users[id], nil
}

// MessageLog is an in-memory store.MessageLog. Appends assign strictly
// increasing timestamps so persisted order always equals append order.
type MessageLog struct {
	mu     sync.Mutex
	lastTS int64
	logs   map[string][]models.Message // partition/token -> messages

	Partitions map[string]bool

	// Err, when set, is returned by Append to simulate a write failure.
	Err error
}

// NewMessageLog returns an empty in-memory message log.
func NewMessageLog() *MessageLog {
	return &MessageLog{
		logs:       make(map[string][]models.Message),
		Partitions: make(map[string]bool),
	}
}

func (l *MessageLog) Close() error { return nil }

func (l *MessageLog) Ping(context.Context) error { return nil }

func logKey(partition, token string) string {
	return fmt.Sprintf("%s/%s", partition, token)
}

func (l *MessageLog) Append(_ context.Context, partition string, msg *models.Message) (string, error) {
	if l.Err != nil {
		return "", l.Err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if msg.ID == "" {
		msg.ID = ulid.Make().String()
	}
	ts := time.Now().UnixMicro()
	if ts <= l.lastTS {
		ts = l.lastTS + 1
	}
	l.lastTS = ts
	msg.Timestamp = ts

	key := logKey(partition, msg.Token)
	l.logs[key] = append(l.logs[key], *msg)
	l.Partitions[partition] = true
	return msg.ID, nil
}

func (l *MessageLog) ListBySession(_ context.Context, partition, token string, since int64) ([]models.Message, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []models.Message
	for _, msg := range l.logs[logKey(partition, token)] {
		if msg.Timestamp > since {
			out = append(out, msg)
		}
	}
	return out, nil
}

func (l *MessageLog) MarkRead(_ context.Context, partition, token, excludeSender string) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	key := logKey(partition, token)
	count := 0
	for i := range l.logs[key] {
		msg := &l.logs[key][i]
		if msg.Read || msg.Sender == excludeSender {
			continue
		}
		msg.Read = true
		count++
	}
	return count, nil
}

func (l *MessageLog) HasPartition(_ context.Context, partition string) (bool, error) {
	return l.Partitions[partition], nil
}

// Messages returns a copy of one session's log for assertions.
func (l *MessageLog) Messages(partition, token string) []models.Message {
	l.mu.Lock()
	defer l.mu.Unlock()
	src := l.logs[logKey(partition, token)]
	out := make([]models.Message, len(src))
	copy(out, src)
	return out
}
