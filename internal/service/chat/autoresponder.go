package chat

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/martialartscode/pta-portal/backend/internal/model/chat"
)

const defaultComposeTimeout = 10 * time.Second

// ReplyComposer drafts the automatic reply for a session. fallback is the
// configured auto-response message.
type ReplyComposer interface {
	ComposeAutoReply(ctx context.Context, session chat.Session, fallback string) (string, error)
}

// AutoResponder owns one cancellable reply timer per session.
type AutoResponder struct {
	composer       ReplyComposer
	composeTimeout time.Duration
	logger         *slog.Logger

	mu      sync.Mutex
	pending map[string]*scheduledReply
	seq     uint64
	stopped bool
	deliver func(sessionID, text string)
}

type scheduledReply struct {
	id    uint64
	timer *time.Timer
}

// NewAutoResponder returns a responder. composer may be nil.
func NewAutoResponder(composer ReplyComposer, logger *slog.Logger) *AutoResponder {
	return &AutoResponder{
		composer:       composer,
		composeTimeout: defaultComposeTimeout,
		logger:         logger,
		pending:        make(map[string]*scheduledReply),
	}
}

// OnDeliver sets the function that appends and delivers a fired reply.
func (a *AutoResponder) OnDeliver(fn func(sessionID, text string)) {
	a.mu.Lock()
	a.deliver = fn
	a.mu.Unlock()
}

// MaybeSchedule arms the reply timer when auto-response is enabled, no staff
// connection is registered and session holds exactly one message, i.e. the
// visitor message that was just appended.
func (a *AutoResponder) MaybeSchedule(session chat.Session, settings chat.AutoResponse, adminConnections int) bool {
	settings = settings.Normalize()
	if !settings.Enabled || adminConnections > 0 || len(session.Messages) != 1 {
		return false
	}
	if settings.Message == "" && a.composer == nil {
		return false
	}
	return a.schedule(session, settings.Message, settings.Delay())
}

func (a *AutoResponder) schedule(session chat.Session, fallback string, delay time.Duration) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.stopped {
		return false
	}

	if prev, ok := a.pending[session.ID]; ok {
		prev.timer.Stop()
	}
	a.seq++
	id := a.seq
	// the fired callback takes a.mu, so it cannot observe the map before the
	// entry below is stored even with a zero delay
	timer := time.AfterFunc(delay, func() { a.fire(session, id, fallback) })
	a.pending[session.ID] = &scheduledReply{id: id, timer: timer}

	a.logger.Debug("auto-reply scheduled", "session_id", session.ID, "delay", delay)
	return true
}

func (a *AutoResponder) current(sessionID string, id uint64) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	p, ok := a.pending[sessionID]
	return ok && p.id == id && !a.stopped
}

func (a *AutoResponder) fire(session chat.Session, id uint64, fallback string) {
	if !a.current(session.ID, id) {
		return
	}

	text := a.compose(session, fallback)

	a.mu.Lock()
	p, ok := a.pending[session.ID]
	if !ok || p.id != id || a.stopped {
		a.mu.Unlock()
		return
	}
	delete(a.pending, session.ID)
	deliver := a.deliver
	a.mu.Unlock()

	if text == "" || deliver == nil {
		return
	}
	deliver(session.ID, text)
}

func (a *AutoResponder) compose(session chat.Session, fallback string) string {
	if a.composer == nil {
		return fallback
	}

	ctx, cancel := context.WithTimeout(context.Background(), a.composeTimeout)
	defer cancel()

	text, err := a.composer.ComposeAutoReply(ctx, session, fallback)
	if err != nil {
		a.logger.Warn("auto-reply composer failed, using configured message", "session_id", session.ID, "error", err)
		return fallback
	}
	if text = strings.TrimSpace(text); text == "" {
		return fallback
	}
	return text
}

// Cancel drops the pending reply of a session, if any.
func (a *AutoResponder) Cancel(sessionID string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	p, ok := a.pending[sessionID]
	if !ok {
		return false
	}
	p.timer.Stop()
	delete(a.pending, sessionID)
	return true
}

// Pending reports whether a reply is scheduled for the session.
func (a *AutoResponder) Pending(sessionID string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, ok := a.pending[sessionID]
	return ok
}

// Stop cancels every pending reply and refuses new ones.
func (a *AutoResponder) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.stopped = true
	for id, p := range a.pending {
		p.timer.Stop()
		delete(a.pending, id)
	}
}
