package storage

import (
	"context"
	"sort"
	"sync"

	"github.com/martialartscode/pta-portal/backend/internal/model/chat"
)

// Memory is an ephemeral Backend. Data lives as long as the process.
type Memory struct {
	mu       sync.RWMutex
	sessions map[string]chat.Session
	settings *chat.AutoResponse
}

// NewMemory returns an empty in-memory backend.
func NewMemory() *Memory {
	return &Memory{sessions: make(map[string]chat.Session)}
}

func (m *Memory) SaveSession(_ context.Context, session chat.Session) error {
	m.mu.Lock()
	m.sessions[session.ID] = session.Clone()
	m.mu.Unlock()
	return nil
}

func (m *Memory) DeleteSession(_ context.Context, sessionID string) error {
	m.mu.Lock()
	delete(m.sessions, sessionID)
	m.mu.Unlock()
	return nil
}

// LoadSessions returns all sessions ordered by id.
func (m *Memory) LoadSessions(_ context.Context) ([]chat.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]chat.Session, 0, len(m.sessions))
	for _, session := range m.sessions {
		out = append(out, session.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) LoadSettings(_ context.Context) (chat.AutoResponse, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.settings == nil {
		return chat.AutoResponse{}, ErrNotFound
	}
	return *m.settings, nil
}

func (m *Memory) SaveSettings(_ context.Context, settings chat.AutoResponse) error {
	m.mu.Lock()
	m.settings = &settings
	m.mu.Unlock()
	return nil
}

func (m *Memory) Close() error { return nil }
