package chat

import (
	"log/slog"
	"sync"

	"github.com/martialartscode/pta-portal/backend/internal/model/chat"
)

// Presence tells staff which visitors are online and tells everyone how many
// staff members are online.
type Presence struct {
	registry *Registry
	logger   *slog.Logger

	mu        sync.Mutex
	lastCount int
}

// NewPresence builds a broadcaster over registry.
func NewPresence(registry *Registry, logger *slog.Logger) *Presence {
	return &Presence{registry: registry, logger: logger}
}

// VisitorOnline notifies staff that a session has a live connection.
func (p *Presence) VisitorOnline(sessionID string) {
	p.toAdmins(chat.Outbound{Event: chat.EventVisitorOnline, Data: chat.PresenceEvent{SessionID: sessionID}})
}

// VisitorOffline notifies staff that a session lost its connection.
func (p *Presence) VisitorOffline(sessionID string) {
	p.toAdmins(chat.Outbound{Event: chat.EventVisitorOffline, Data: chat.PresenceEvent{SessionID: sessionID}})
}

// AdminsChanged broadcasts the staff count to every connection if it differs
// from the last broadcast value, and reports whether it did.
func (p *Presence) AdminsChanged() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	count := p.registry.AdminCount()
	if count == p.lastCount {
		return false
	}
	p.lastCount = count

	event := adminOnline(count)
	for _, conn := range p.registry.Connections() {
		send(p.logger, conn, event)
	}
	return true
}

// SendAdminCount sends the current staff count to a single connection.
func (p *Presence) SendAdminCount(conn Conn) {
	send(p.logger, conn, adminOnline(p.registry.AdminCount()))
}

func (p *Presence) toAdmins(event chat.Outbound) {
	for _, conn := range p.registry.AdminConnections() {
		send(p.logger, conn, event)
	}
}

func adminOnline(count int) chat.Outbound {
	return chat.Outbound{Event: chat.EventAdminOnline, Data: count}
}
