package chat

import (
	"errors"
	"sync"
)

var (
	ErrUnknownConnection = errors.New("unknown connection")
	ErrAlreadyIdentified = errors.New("connection already identified")
)

// Role is what a connection identified as.
type Role int

const (
	RoleNone Role = iota
	RoleVisitor
	RoleAdmin
)

func (r Role) String() string {
	switch r {
	case RoleVisitor:
		return "visitor"
	case RoleAdmin:
		return "admin"
	default:
		return "unidentified"
	}
}

// Binding describes what a live connection belongs to.
type Binding struct {
	ConnID    string
	Role      Role
	SessionID string
	Identity  string
	// Superseded marks a visitor connection whose session was taken over by a
	// newer connection. It stays a visitor connection until it disconnects but
	// no longer speaks for the session.
	Superseded bool
}

// Registry tracks live connections and what they are bound to. A visitor
// session has at most one current connection; a staff identity may hold many.
type Registry struct {
	mu       sync.RWMutex
	conns    map[string]Conn
	bindings map[string]Binding
	sessions map[string]string
	admins   map[string]map[string]struct{}
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		conns:    make(map[string]Conn),
		bindings: make(map[string]Binding),
		sessions: make(map[string]string),
		admins:   make(map[string]map[string]struct{}),
	}
}

// Attach registers a new unidentified connection.
func (r *Registry) Attach(conn Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := conn.ID()
	r.conns[id] = conn
	r.bindings[id] = Binding{ConnID: id}
}

// BindVisitor binds connID to sessionID. A previous connection of the same
// session is superseded and its id returned.
func (r *Registry) BindVisitor(connID, sessionID string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.bindings[connID]
	if !ok {
		return "", ErrUnknownConnection
	}
	if b.Role != RoleNone {
		return "", ErrAlreadyIdentified
	}

	var superseded string
	if prev, ok := r.sessions[sessionID]; ok && prev != connID {
		pb := r.bindings[prev]
		pb.Superseded = true
		r.bindings[prev] = pb
		superseded = prev
	}

	r.sessions[sessionID] = connID
	r.bindings[connID] = Binding{ConnID: connID, Role: RoleVisitor, SessionID: sessionID}
	return superseded, nil
}

// BindAdmin adds connID to the connections of a staff identity. It reports
// whether this is the identity's first live connection.
func (r *Registry) BindAdmin(connID, identity string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.bindings[connID]
	if !ok {
		return false, ErrUnknownConnection
	}
	if b.Role != RoleNone {
		return false, ErrAlreadyIdentified
	}

	conns, ok := r.admins[identity]
	if !ok {
		conns = make(map[string]struct{})
		r.admins[identity] = conns
	}
	conns[connID] = struct{}{}
	r.bindings[connID] = Binding{ConnID: connID, Role: RoleAdmin, Identity: identity}
	return !ok, nil
}

// Unbind forgets connID entirely and returns the binding it had.
func (r *Registry) Unbind(connID string) (Binding, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.bindings[connID]
	if !ok {
		return Binding{}, false
	}
	delete(r.bindings, connID)
	delete(r.conns, connID)

	switch b.Role {
	case RoleVisitor:
		if r.sessions[b.SessionID] == connID {
			delete(r.sessions, b.SessionID)
		}
	case RoleAdmin:
		if conns, ok := r.admins[b.Identity]; ok {
			delete(conns, connID)
			if len(conns) == 0 {
				delete(r.admins, b.Identity)
			}
		}
	}
	return b, true
}

// Binding returns the binding of an attached connection.
func (r *Registry) Binding(connID string) (Binding, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.bindings[connID]
	return b, ok
}

// Conn returns the attached connection with the given id.
func (r *Registry) Conn(connID string) (Conn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conn, ok := r.conns[connID]
	return conn, ok
}

// AdminConnections snapshots every live staff connection.
func (r *Registry) AdminConnections() []Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Conn, 0, len(r.admins))
	for _, conns := range r.admins {
		for id := range conns {
			out = append(out, r.conns[id])
		}
	}
	return out
}

// AdminCount is the number of distinct staff identities online.
func (r *Registry) AdminCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.admins)
}

// VisitorCount is the number of sessions with a current connection.
func (r *Registry) VisitorCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// ConnectionForSession returns the current connection of a visitor session.
func (r *Registry) ConnectionForSession(sessionID string) (Conn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.sessions[sessionID]
	if !ok {
		return nil, false
	}
	return r.conns[id], true
}

// Connections snapshots every attached connection, identified or not.
func (r *Registry) Connections() []Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Conn, 0, len(r.conns))
	for _, conn := range r.conns {
		out = append(out, conn)
	}
	return out
}
