package chat

import (
	"context"
	"errors"
	"log/slog"
	"sort"

	"github.com/martialartscode/pta-portal/backend/internal/auth"
	"github.com/martialartscode/pta-portal/backend/internal/model/chat"
	"github.com/martialartscode/pta-portal/backend/internal/observability"
)

// Conn is one live transport connection. Send must not block: it queues the
// event or fails. Reject refuses the connection and tears it down; reason is
// shown to the client where the transport allows it.
type Conn interface {
	ID() string
	Send(event chat.Outbound) error
	Reject(reason string) error
}

// StaffVerifier checks the credential presented by a staff identify.
type StaffVerifier interface {
	VerifyStaff(token string) (auth.Identity, error)
}

// RouterDeps groups the collaborators of a Router.
type RouterDeps struct {
	Store     *Store
	Registry  *Registry
	Presence  *Presence
	Responder *AutoResponder
	Settings  *Settings
	Verifier  StaffVerifier
	Decoder   *Decoder
	Metrics   *observability.Metrics
	Logger    *slog.Logger
}

// Router is the chat protocol state machine. Each connection starts
// unidentified and becomes a visitor or staff connection on identify; it stays
// that way until it disconnects.
type Router struct {
	store     *Store
	registry  *Registry
	presence  *Presence
	responder *AutoResponder
	settings  *Settings
	verifier  StaffVerifier
	decoder   *Decoder
	metrics   *observability.Metrics
	logger    *slog.Logger
}

// NewRouter wires a router and registers it as the auto-responder's
// delivery target.
func NewRouter(deps RouterDeps) *Router {
	r := &Router{
		store:     deps.Store,
		registry:  deps.Registry,
		presence:  deps.Presence,
		responder: deps.Responder,
		settings:  deps.Settings,
		verifier:  deps.Verifier,
		decoder:   deps.Decoder,
		metrics:   deps.Metrics,
		logger:    deps.Logger,
	}
	if r.decoder == nil {
		r.decoder = NewDecoder(0)
	}
	r.responder.OnDeliver(r.deliverAutoReply)
	return r
}

// Attach registers a freshly opened connection.
func (r *Router) Attach(conn Conn) {
	r.registry.Attach(conn)
	r.logger.Debug("connection attached", "conn_id", conn.ID())
}

// HandleRaw decodes one frame and dispatches it. Undecodable frames are
// logged and dropped; the connection stays open.
func (r *Router) HandleRaw(ctx context.Context, connID string, raw []byte) {
	in, err := r.decoder.Decode(raw)
	if err != nil {
		reason := "malformed"
		if errors.Is(err, ErrUnknownEvent) {
			reason = "unknown-event"
		} else if errors.Is(err, ErrInvalidEvent) {
			reason = "invalid"
		}
		r.drop(connID, reason, "error", err)
		return
	}
	r.Handle(ctx, connID, in)
}

// Handle dispatches a decoded event from connID.
func (r *Router) Handle(ctx context.Context, connID string, in chat.Inbound) {
	b, ok := r.registry.Binding(connID)
	if !ok {
		r.drop(connID, "unknown-connection", "event", in.EventName())
		return
	}

	switch p := in.(type) {
	case chat.IdentifyPayload:
		if b.Role != RoleNone {
			r.drop(connID, "already-identified", "role", b.Role.String())
			return
		}
		if p.Type == chat.IdentifyAdmin {
			r.identifyAdmin(connID, p.Token)
		} else {
			r.identifyVisitor(connID, p.SessionID)
		}
	case chat.VisitorMessagePayload:
		r.visitorMessage(ctx, b, p)
	case chat.AdminResponsePayload:
		r.adminMessage(b, p)
	case chat.TypingPayload:
		r.typing(b, p)
	default:
		r.drop(connID, "unknown-event", "event", in.EventName())
	}
}

func (r *Router) identifyVisitor(connID, sessionID string) {
	conn, ok := r.registry.Conn(connID)
	if !ok {
		return
	}
	if _, err := r.store.GetOrCreate(sessionID); err != nil {
		r.drop(connID, "invalid", "error", err)
		return
	}

	var superseded string
	var bindErr error
	// binding, replay and the presence notice all happen under the session
	// lock so no message can slip between the replayed snapshot and the
	// connection becoming the delivery target
	_, err := r.store.Mutate(sessionID, func(s *chat.Session) bool {
		superseded, bindErr = r.registry.BindVisitor(connID, sessionID)
		if bindErr != nil || s.Online {
			return false
		}
		s.Online = true
		return true
	}, func(s chat.Session) {
		if bindErr != nil {
			return
		}
		send(r.logger, conn, chat.Outbound{Event: chat.EventRestoreChat, Data: s})
		r.presence.VisitorOnline(sessionID)
	})
	if err == nil {
		err = bindErr
	}
	if err != nil {
		r.drop(connID, "identify-failed", "session_id", sessionID, "error", err)
		return
	}

	r.metrics.ConnectionOpened(RoleVisitor.String())
	r.metrics.SetSessions(r.store.Len())
	r.presence.SendAdminCount(conn)
	if superseded != "" {
		r.logger.Info("visitor session taken over by new connection", "session_id", sessionID, "conn_id", connID, "previous_conn_id", superseded)
	}
	r.logger.Info("visitor identified", "session_id", sessionID, "conn_id", connID)
}

func (r *Router) identifyAdmin(connID, token string) {
	conn, ok := r.registry.Conn(connID)
	if !ok {
		return
	}

	identity, err := r.verifyStaff(token)
	if err != nil {
		// fail closed: no staff state is created and the connection goes away
		r.logger.Warn("staff identify rejected", "conn_id", connID, "error", err)
		r.metrics.EventDropped("unauthorized")
		r.registry.Unbind(connID)
		if cerr := conn.Reject("unauthorized"); cerr != nil {
			r.logger.Debug("reject connection failed", "conn_id", connID, "error", cerr)
		}
		return
	}

	first, err := r.registry.BindAdmin(connID, identity.Subject)
	if err != nil {
		r.drop(connID, "identify-failed", "error", err)
		return
	}
	r.metrics.ConnectionOpened(RoleAdmin.String())

	if !r.presence.AdminsChanged() {
		r.presence.SendAdminCount(conn)
	}
	send(r.logger, conn, chat.Outbound{Event: chat.EventActiveSessions, Data: r.Summaries()})

	r.logger.Info("staff identified", "conn_id", connID, "identity", identity.Subject, "first_connection", first)
}

func (r *Router) verifyStaff(token string) (auth.Identity, error) {
	if r.verifier == nil {
		return auth.Identity{}, auth.ErrAuthDisabled
	}
	return r.verifier.VerifyStaff(token)
}

func (r *Router) visitorMessage(ctx context.Context, b Binding, p chat.VisitorMessagePayload) {
	if b.Role != RoleVisitor {
		r.drop(b.ConnID, "not-visitor", "event", chat.EventVisitorMessage)
		return
	}
	if b.Superseded {
		r.drop(b.ConnID, "superseded", "session_id", b.SessionID)
		return
	}

	settings := r.settings.Get(ctx)
	msg := chat.Message{From: chat.SenderVisitor, Text: p.Message}

	_, err := r.store.Append(b.SessionID, msg, func(s chat.Session) {
		stored := s.Messages[len(s.Messages)-1]
		event := chat.Outbound{Event: chat.EventVisitorMessage, Data: chat.VisitorMessageEvent{
			SessionID: s.ID,
			Message:   stored.Text,
			Timestamp: stored.Timestamp,
		}}

		admins := r.registry.AdminConnections()
		for _, conn := range admins {
			send(r.logger, conn, event)
		}
		if r.responder.MaybeSchedule(s, settings, len(admins)) {
			r.logger.Info("auto-reply scheduled", "session_id", s.ID, "delay_seconds", settings.Normalize().DelaySeconds)
		}
	})
	if err != nil {
		r.drop(b.ConnID, "append-failed", "session_id", b.SessionID, "error", err)
		return
	}
	r.metrics.MessageAppended(string(chat.SenderVisitor))
}

func (r *Router) adminMessage(b Binding, p chat.AdminResponsePayload) {
	if b.Role != RoleAdmin {
		r.drop(b.ConnID, "not-admin", "event", chat.EventAdminResponse)
		return
	}
	if _, err := r.store.GetOrCreate(p.SessionID); err != nil {
		r.drop(b.ConnID, "invalid", "error", err)
		return
	}

	msg := chat.Message{From: chat.SenderAdmin, Text: p.Message}
	_, err := r.store.Append(p.SessionID, msg, func(s chat.Session) {
		// a human answer preempts the bot
		if r.responder.Cancel(s.ID) {
			r.logger.Debug("auto-reply cancelled by staff reply", "session_id", s.ID)
		}
		r.deliverToVisitor(s)
	})
	if err != nil {
		r.drop(b.ConnID, "append-failed", "session_id", p.SessionID, "error", err)
		return
	}
	r.metrics.MessageAppended(string(chat.SenderAdmin))
}

func (r *Router) deliverAutoReply(sessionID, text string) {
	var appended bool
	_, err := r.store.Mutate(sessionID, func(s *chat.Session) bool {
		// a staff reply that raced the timer wins
		for _, m := range s.Messages {
			if m.From == chat.SenderAdmin {
				return false
			}
		}
		s.Messages = append(s.Messages, chat.Message{
			From:      chat.SenderAdmin,
			Text:      text,
			Timestamp: r.store.now(),
			Auto:      true,
		})
		appended = true
		return true
	}, func(s chat.Session) {
		if appended {
			r.deliverToVisitor(s)
		}
	})
	if err != nil {
		r.logger.Warn("auto-reply dropped", "session_id", sessionID, "error", err)
		return
	}
	if !appended {
		r.logger.Debug("auto-reply skipped, staff already answered", "session_id", sessionID)
		return
	}
	r.metrics.MessageAppended("auto")
	r.metrics.AutoReplied()
	r.logger.Info("auto-reply delivered", "session_id", sessionID)
}

// deliverToVisitor sends the last message of s to the session's current
// connection. With no connection the message simply waits for the replay.
func (r *Router) deliverToVisitor(s chat.Session) {
	conn, ok := r.registry.ConnectionForSession(s.ID)
	if !ok {
		r.logger.Debug("visitor offline, reply kept for replay", "session_id", s.ID)
		return
	}
	send(r.logger, conn, chat.Outbound{Event: chat.EventAdminResponse, Data: chat.AdminResponseEvent{
		SessionID: s.ID,
		Message:   s.Messages[len(s.Messages)-1],
	}})
}

func (r *Router) typing(b Binding, p chat.TypingPayload) {
	active := p.Typing == nil || *p.Typing

	switch {
	case b.Role == RoleVisitor && !b.Superseded:
		event := chat.Outbound{Event: chat.EventTyping, Data: chat.TypingEvent{
			SessionID: b.SessionID,
			From:      chat.SenderVisitor,
			Typing:    active,
		}}
		for _, conn := range r.registry.AdminConnections() {
			send(r.logger, conn, event)
		}
	case b.Role == RoleAdmin && p.SessionID != "":
		conn, ok := r.registry.ConnectionForSession(p.SessionID)
		if !ok {
			return
		}
		send(r.logger, conn, chat.Outbound{Event: chat.EventTyping, Data: chat.TypingEvent{
			SessionID: p.SessionID,
			From:      chat.SenderAdmin,
			Typing:    active,
		}})
	default:
		r.drop(b.ConnID, "typing-ignored", "role", b.Role.String())
	}
}

// Detach tears down a closed connection. Visitor sessions go offline but keep
// their history.
func (r *Router) Detach(connID string) {
	b, ok := r.registry.Binding(connID)
	if !ok {
		return
	}

	switch b.Role {
	case RoleVisitor:
		r.detachVisitor(connID, b.SessionID)
		r.metrics.ConnectionClosed(RoleVisitor.String())
	case RoleAdmin:
		r.registry.Unbind(connID)
		r.metrics.ConnectionClosed(RoleAdmin.String())
		r.presence.AdminsChanged()
		r.logger.Info("staff disconnected", "conn_id", connID, "identity", b.Identity)
	default:
		r.registry.Unbind(connID)
	}
}

func (r *Router) detachVisitor(connID, sessionID string) {
	var wentOffline bool
	_, err := r.store.Mutate(sessionID, func(s *chat.Session) bool {
		// re-read under the session lock: a newer connection may have taken
		// the session since the binding was looked up
		removed, ok := r.registry.Unbind(connID)
		if !ok || removed.Superseded || !s.Online {
			return false
		}
		s.Online = false
		wentOffline = true
		return true
	}, func(chat.Session) {
		if wentOffline {
			r.presence.VisitorOffline(sessionID)
		}
	})
	if err != nil {
		// session was evicted; the binding still has to go
		r.registry.Unbind(connID)
	}
	if wentOffline {
		r.logger.Info("visitor disconnected", "session_id", sessionID, "conn_id", connID)
	}
}

// Summaries lists every session, most recently updated first.
func (r *Router) Summaries() []chat.Summary {
	sessions := r.store.All()
	sort.SliceStable(sessions, func(i, j int) bool {
		return sessions[i].UpdatedAt.After(sessions[j].UpdatedAt)
	})
	out := make([]chat.Summary, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, s.Summarize())
	}
	return out
}

// Close stops pending auto-replies.
func (r *Router) Close() {
	r.responder.Stop()
}

func (r *Router) drop(connID, reason string, attrs ...any) {
	r.metrics.EventDropped(reason)
	r.logger.Warn("event dropped", append([]any{"conn_id", connID, "reason", reason}, attrs...)...)
}

func send(logger *slog.Logger, conn Conn, event chat.Outbound) {
	if conn == nil {
		return
	}
	if err := conn.Send(event); err != nil {
		logger.Debug("send failed", "conn_id", conn.ID(), "event", event.Event, "error", err)
	}
}
