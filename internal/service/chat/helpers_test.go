package chat

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/martialartscode/pta-portal/backend/internal/auth"
	"github.com/martialartscode/pta-portal/backend/internal/model/chat"
	"github.com/martialartscode/pta-portal/backend/internal/observability"
)

type fakeConn struct {
	id string

	mu     sync.Mutex
	events   []chat.Outbound
	closed   bool
	rejected string
}

func newFakeConn(id string) *fakeConn {
	return &fakeConn{id: id}
}

func (c *fakeConn) ID() string { return c.id }

func (c *fakeConn) Send(event chat.Outbound) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errors.New("closed")
	}
	c.events = append(c.events, event)
	return nil
}

func (c *fakeConn) Reject(reason string) error {
	c.mu.Lock()
	c.closed = true
	c.rejected = reason
	c.mu.Unlock()
	return nil
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *fakeConn) rejectReason() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rejected
}

func (c *fakeConn) named(event string) []chat.Outbound {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []chat.Outbound
	for _, e := range c.events {
		if e.Event == event {
			out = append(out, e)
		}
	}
	return out
}

func (c *fakeConn) last(event string) (chat.Outbound, bool) {
	got := c.named(event)
	if len(got) == 0 {
		return chat.Outbound{}, false
	}
	return got[len(got)-1], true
}

type staticVerifier map[string]auth.Identity

func (v staticVerifier) VerifyStaff(token string) (auth.Identity, error) {
	id, ok := v[token]
	if !ok {
		return auth.Identity{}, auth.ErrInvalidToken
	}
	return id, nil
}

var testStaff = staticVerifier{
	"token-ana":  {Subject: "ana@academy.test", Email: "ana@academy.test", Role: auth.RoleAdmin},
	"token-ben":  {Subject: "ben@academy.test", Email: "ben@academy.test", Role: auth.RoleInstructor},
	"token-ana2": {Subject: "ana@academy.test", Email: "ana@academy.test", Role: auth.RoleAdmin},
}

type harness struct {
	t   *testing.T
	svc *Service
	ctx context.Context
}

func newHarness(t *testing.T, settings chat.AutoResponse) *harness {
	t.Helper()
	svc, err := NewService(Options{
		Defaults: settings,
		Verifier: testStaff,
		Logger:   observability.Discard(),
	})
	if err != nil {
		t.Fatalf("NewService err: %v", err)
	}
	t.Cleanup(func() { svc.Close(context.Background()) })
	return &harness{t: t, svc: svc, ctx: context.Background()}
}

func disabledAutoResponse() chat.AutoResponse {
	return chat.AutoResponse{Enabled: false}
}

func (h *harness) connect(id string) *fakeConn {
	conn := newFakeConn(id)
	h.svc.Router().Attach(conn)
	return conn
}

func (h *harness) visitor(connID, sessionID string) *fakeConn {
	conn := h.connect(connID)
	h.svc.Router().Handle(h.ctx, connID, chat.IdentifyPayload{Type: chat.IdentifyVisitor, SessionID: sessionID})
	return conn
}

func (h *harness) admin(connID, token string) *fakeConn {
	conn := h.connect(connID)
	h.svc.Router().Handle(h.ctx, connID, chat.IdentifyPayload{Type: chat.IdentifyAdmin, Token: token})
	return conn
}

func (h *harness) say(connID, text string) {
	h.svc.Router().Handle(h.ctx, connID, chat.VisitorMessagePayload{Message: text})
}

func (h *harness) reply(connID, sessionID, text string) {
	h.svc.Router().Handle(h.ctx, connID, chat.AdminResponsePayload{SessionID: sessionID, Message: text})
}

func (h *harness) session(id string) chat.Session {
	h.t.Helper()
	s, err := h.svc.Session(id)
	if err != nil {
		h.t.Fatalf("Session(%q) err: %v", id, err)
	}
	return s
}

func eventually(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met within %s", timeout)
}

func texts(messages []chat.Message) []string {
	out := make([]string, len(messages))
	for i, m := range messages {
		out[i] = m.Text
	}
	return out
}
