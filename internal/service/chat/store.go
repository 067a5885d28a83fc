package chat

import (
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/martialartscode/pta-portal/backend/internal/model/chat"
)

var (
	ErrSessionIDRequired = errors.New("session id is required")
	ErrSessionNotFound   = errors.New("session not found")
)

// Persister receives a snapshot after every session mutation. Implementations
// must not block; storage.Writer queues and saves in the background.
type Persister interface {
	Persist(session chat.Session)
	Forget(sessionID string)
}

type noopPersister struct{}

func (noopPersister) Persist(chat.Session) {}
func (noopPersister) Forget(string)        {}

// Store holds visitor sessions in memory. Mutations of one session are
// serialized by that session's lock; different sessions proceed in parallel.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*sessionEntry
	persist  Persister
	now      func() time.Time
}

type sessionEntry struct {
	mu      sync.Mutex
	session chat.Session
	removed bool
}

// NewStore returns an empty store that reports mutations to persist.
func NewStore(persist Persister) *Store {
	if persist == nil {
		persist = noopPersister{}
	}
	return &Store{
		sessions: make(map[string]*sessionEntry),
		persist:  persist,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// GetOrCreate returns the session, creating an empty offline one on first
// contact.
func (s *Store) GetOrCreate(sessionID string) (chat.Session, error) {
	if strings.TrimSpace(sessionID) == "" {
		return chat.Session{}, ErrSessionIDRequired
	}

	if e, ok := s.entry(sessionID); ok {
		e.mu.Lock()
		removed := e.removed
		snapshot := e.session.Clone()
		e.mu.Unlock()
		if !removed {
			return snapshot, nil
		}
	}

	s.mu.Lock()
	e, ok := s.sessions[sessionID]
	if !ok {
		now := s.now()
		e = &sessionEntry{session: chat.Session{
			ID:        sessionID,
			Messages:  make([]chat.Message, 0, 16),
			CreatedAt: now,
			UpdatedAt: now,
		}}
		s.sessions[sessionID] = e
	}
	s.mu.Unlock()

	e.mu.Lock()
	defer e.mu.Unlock()
	snapshot := e.session.Clone()
	if !ok {
		s.persist.Persist(snapshot)
	}
	return snapshot, nil
}

// Get returns a snapshot of a known session.
func (s *Store) Get(sessionID string) (chat.Session, error) {
	e, ok := s.entry(sessionID)
	if !ok {
		return chat.Session{}, ErrSessionNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.removed {
		return chat.Session{}, ErrSessionNotFound
	}
	return e.session.Clone(), nil
}

// Mutate runs fn on the live session under its lock. When fn reports a change
// the session's UpdatedAt is bumped and a snapshot is persisted. then, if not
// nil, runs afterwards with the resulting snapshot while the lock is still
// held, so anything it delivers is ordered with respect to other mutations of
// the same session.
func (s *Store) Mutate(sessionID string, fn func(*chat.Session) bool, then func(chat.Session)) (chat.Session, error) {
	e, ok := s.entry(sessionID)
	if !ok {
		return chat.Session{}, ErrSessionNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.removed {
		return chat.Session{}, ErrSessionNotFound
	}

	changed := fn(&e.session)
	if changed {
		e.session.UpdatedAt = s.now()
	}
	snapshot := e.session.Clone()
	if changed {
		s.persist.Persist(snapshot)
	}
	if then != nil {
		then(snapshot)
	}
	return snapshot, nil
}

// Append adds msg to the session log. A zero timestamp is set to the time of
// receipt. then behaves as in Mutate.
func (s *Store) Append(sessionID string, msg chat.Message, then func(chat.Session)) (chat.Session, error) {
	return s.Mutate(sessionID, func(session *chat.Session) bool {
		if msg.Timestamp.IsZero() {
			msg.Timestamp = s.now()
		}
		session.Messages = append(session.Messages, msg)
		return true
	}, then)
}

// SetOnline flips the online flag. Setting the current value is a no-op.
func (s *Store) SetOnline(sessionID string, online bool) error {
	_, err := s.Mutate(sessionID, func(session *chat.Session) bool {
		if session.Online == online {
			return false
		}
		session.Online = online
		return true
	}, nil)
	return err
}

// All snapshots every session, ordered by id.
func (s *Store) All() []chat.Session {
	s.mu.RLock()
	entries := make([]*sessionEntry, 0, len(s.sessions))
	for _, e := range s.sessions {
		entries = append(entries, e)
	}
	s.mu.RUnlock()

	out := make([]chat.Session, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		if !e.removed {
			out = append(out, e.session.Clone())
		}
		e.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Len is the number of sessions held.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Restore loads previously persisted sessions. Sessions already in memory win,
// and every restored session starts offline.
func (s *Store) Restore(sessions []chat.Session) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	restored := 0
	for _, session := range sessions {
		if session.ID == "" {
			continue
		}
		if _, ok := s.sessions[session.ID]; ok {
			continue
		}
		session = session.Clone()
		session.Online = false
		s.sessions[session.ID] = &sessionEntry{session: session}
		restored++
	}
	return restored
}

// EvictIdle removes offline sessions last updated before cutoff and returns
// their ids.
func (s *Store) EvictIdle(cutoff time.Time) []string {
	s.mu.Lock()
	var evicted []string
	for id, e := range s.sessions {
		e.mu.Lock()
		if !e.session.Online && e.session.UpdatedAt.Before(cutoff) {
			e.removed = true
			delete(s.sessions, id)
			evicted = append(evicted, id)
		}
		e.mu.Unlock()
	}
	s.mu.Unlock()

	for _, id := range evicted {
		s.persist.Forget(id)
	}
	sort.Strings(evicted)
	return evicted
}

func (s *Store) entry(sessionID string) (*sessionEntry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.sessions[sessionID]
	return e, ok
}
