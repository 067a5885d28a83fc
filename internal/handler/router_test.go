package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/martialartscode/pta-portal/backend/internal/auth"
	chathandler "github.com/martialartscode/pta-portal/backend/internal/handler/chat"
	middlewarePkg "github.com/martialartscode/pta-portal/backend/internal/middleware"
	"github.com/martialartscode/pta-portal/backend/internal/model/chat"
	"github.com/martialartscode/pta-portal/backend/internal/observability"
	chatService "github.com/martialartscode/pta-portal/backend/internal/service/chat"
)

const (
	staffEmail    = "ana@academy.test"
	staffPassword = "kihap-2026"
)

type testEnv struct {
	srv    *httptest.Server
	svc    *chatService.Service
	tokens *auth.JWTService
}

func setupServer(t *testing.T) *testEnv {
	t.Helper()
	logger := observability.Discard()
	reg := prometheus.NewRegistry()
	metrics := observability.NewMetrics(reg)

	tokens := auth.NewJWTService("test-secret", time.Hour)
	hash, err := auth.HashPassword(staffPassword)
	if err != nil {
		t.Fatalf("HashPassword err: %v", err)
	}
	accounts := auth.NewAccounts(map[string]string{staffEmail: hash}, auth.RoleAdmin)

	svc, err := chatService.NewService(chatService.Options{
		Defaults: chat.AutoResponse{Enabled: true, Message: "Thanks! We'll respond shortly.", DelaySeconds: 0.05},
		Verifier: tokens,
		Metrics:  metrics,
		Logger:   logger,
	})
	if err != nil {
		t.Fatalf("NewService err: %v", err)
	}

	origins := middlewarePkg.NewOrigins([]string{"http://localhost:8000"}, false)
	ws := chathandler.NewWebSocketHandler(svc, origins.CheckOrigin, 16, logger)
	router := NewRouter(Deps{
		Chat:      svc,
		WebSocket: ws,
		Staff:     tokens,
		Accounts:  accounts,
		Tokens:    tokens,
		Origins:   origins,
		Gatherer:  reg,
		Logger:    logger,
	})

	srv := httptest.NewServer(router)
	t.Cleanup(func() {
		ws.CloseAll()
		srv.Close()
		svc.Close(context.Background())
	})
	return &testEnv{srv: srv, svc: svc, tokens: tokens}
}

func (e *testEnv) staffToken(t *testing.T) string {
	t.Helper()
	token, err := e.tokens.Generate(auth.Identity{Email: staffEmail, Role: auth.RoleAdmin})
	if err != nil {
		t.Fatalf("Generate err: %v", err)
	}
	return token
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) *http.Response {
	t.Helper()
	var reader io.Reader
	if body != nil {
		payload, _ := json.Marshal(body)
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequest(method, e.srv.URL+path, reader)
	if err != nil {
		t.Fatalf("NewRequest err: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s err: %v", method, path, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func (e *testEnv) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(e.srv.URL, "http") + "/api/chat/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial err: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func emit(t *testing.T, conn *websocket.Conn, event string, data any) {
	t.Helper()
	if err := conn.WriteJSON(chat.Outbound{Event: event, Data: data}); err != nil {
		t.Fatalf("write %s err: %v", event, err)
	}
}

// await reads frames until one named event arrives.
func await(t *testing.T, conn *websocket.Conn, event string) json.RawMessage {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		var env chat.Envelope
		if err := conn.ReadJSON(&env); err != nil {
			t.Fatalf("waiting for %s: %v", event, err)
		}
		if env.Event == event {
			return env.Data
		}
	}
}

func TestHealth(t *testing.T) {
	env := setupServer(t)
	resp := env.do(t, http.MethodGet, "/api/health", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var body map[string]any
	json.NewDecoder(resp.Body).Decode(&body)
	if body["status"] != "ok" {
		t.Fatalf("unexpected body %v", body)
	}
}

func TestLogin(t *testing.T) {
	env := setupServer(t)

	resp := env.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{"email": staffEmail, "password": "wrong"})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}

	resp = env.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{"email": "ANA@academy.test", "password": staffPassword})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var body struct {
		Token string `json:"token"`
	}
	json.NewDecoder(resp.Body).Decode(&body)
	if _, err := env.tokens.VerifyStaff(body.Token); err != nil {
		t.Fatalf("issued token does not verify: %v", err)
	}
}

func TestAutoResponseSettingsEndpoints(t *testing.T) {
	env := setupServer(t)
	token := env.staffToken(t)

	if resp := env.do(t, http.MethodGet, "/api/auto-response", "", nil); resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", resp.StatusCode)
	}

	resp := env.do(t, http.MethodPut, "/api/auto-response", token, map[string]any{"enabled": true, "message": ""})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for empty message, got %d", resp.StatusCode)
	}

	resp = env.do(t, http.MethodPut, "/api/auto-response", token, map[string]any{"enabled": true, "message": "Back at 5pm", "delaySeconds": 120})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	resp = env.do(t, http.MethodGet, "/api/auto-response", token, nil)
	var got chat.AutoResponse
	json.NewDecoder(resp.Body).Decode(&got)
	if got != (chat.AutoResponse{Enabled: true, Message: "Back at 5pm", DelaySeconds: 60}) {
		t.Fatalf("unexpected settings %+v", got)
	}
}

func TestSessionEndpoints(t *testing.T) {
	env := setupServer(t)
	token := env.staffToken(t)

	visitor := env.dial(t)
	emit(t, visitor, chat.EventIdentify, chat.IdentifyPayload{Type: chat.IdentifyVisitor, SessionID: "s-rest"})
	await(t, visitor, chat.EventRestoreChat)
	emit(t, visitor, chat.EventVisitorMessage, chat.VisitorMessagePayload{Message: "Do you have adult classes?"})
	await(t, visitor, chat.EventAdminResponse)

	if resp := env.do(t, http.MethodGet, "/api/chat/sessions", "", nil); resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}

	resp := env.do(t, http.MethodGet, "/api/chat/sessions/s-rest", token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var session chat.Session
	json.NewDecoder(resp.Body).Decode(&session)
	if len(session.Messages) != 2 || !session.Messages[1].Auto {
		t.Fatalf("unexpected transcript %+v", session.Messages)
	}

	if resp := env.do(t, http.MethodGet, "/api/chat/sessions/nope", token, nil); resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

func TestWebSocketAutoReplyAndReplay(t *testing.T) {
	env := setupServer(t)

	visitor := env.dial(t)
	emit(t, visitor, chat.EventIdentify, chat.IdentifyPayload{Type: chat.IdentifyVisitor, SessionID: "s1"})
	await(t, visitor, chat.EventRestoreChat)

	emit(t, visitor, chat.EventVisitorMessage, chat.VisitorMessagePayload{SessionID: "s1", Message: "Hi"})
	var reply chat.AdminResponseEvent
	json.Unmarshal(await(t, visitor, chat.EventAdminResponse), &reply)
	if reply.SessionID != "s1" || !reply.Message.Auto || reply.Message.Text != "Thanks! We'll respond shortly." {
		t.Fatalf("unexpected auto-reply %+v", reply)
	}
	visitor.Close()

	again := env.dial(t)
	emit(t, again, chat.EventIdentify, chat.IdentifyPayload{Type: chat.IdentifyVisitor, SessionID: "s1"})
	var restored chat.Session
	json.Unmarshal(await(t, again, chat.EventRestoreChat), &restored)
	if len(restored.Messages) != 2 || restored.Messages[0].Text != "Hi" || restored.Messages[1].From != chat.SenderAdmin {
		t.Fatalf("unexpected replay %+v", restored.Messages)
	}
}

func TestWebSocketStaffConversation(t *testing.T) {
	env := setupServer(t)

	staff := env.dial(t)
	emit(t, staff, chat.EventIdentify, chat.IdentifyPayload{Type: chat.IdentifyAdmin, Token: env.staffToken(t)})
	await(t, staff, chat.EventActiveSessions)

	visitor := env.dial(t)
	emit(t, visitor, chat.EventIdentify, chat.IdentifyPayload{Type: chat.IdentifyVisitor, SessionID: "s2"})
	var count int
	json.Unmarshal(await(t, visitor, chat.EventAdminOnline), &count)
	if count != 1 {
		t.Fatalf("expected 1 staff online, got %d", count)
	}

	var online chat.PresenceEvent
	json.Unmarshal(await(t, staff, chat.EventVisitorOnline), &online)
	if online.SessionID != "s2" {
		t.Fatalf("unexpected presence %+v", online)
	}

	emit(t, visitor, chat.EventVisitorMessage, chat.VisitorMessagePayload{Message: "How much is a trial class?"})
	var incoming chat.VisitorMessageEvent
	json.Unmarshal(await(t, staff, chat.EventVisitorMessage), &incoming)
	if incoming.SessionID != "s2" || incoming.Message != "How much is a trial class?" {
		t.Fatalf("unexpected visitor-message %+v", incoming)
	}

	emit(t, staff, chat.EventAdminResponse, chat.AdminResponsePayload{SessionID: "s2", Message: "The first class is free!"})
	var reply chat.AdminResponseEvent
	json.Unmarshal(await(t, visitor, chat.EventAdminResponse), &reply)
	if reply.Message.Text != "The first class is free!" || reply.Message.Auto {
		t.Fatalf("unexpected reply %+v", reply)
	}

	visitor.Close()
	var offline chat.PresenceEvent
	json.Unmarshal(await(t, staff, chat.EventVisitorOffline), &offline)
	if offline.SessionID != "s2" {
		t.Fatalf("unexpected offline presence %+v", offline)
	}
}

func TestWebSocketRejectsBadStaffToken(t *testing.T) {
	env := setupServer(t)

	conn := env.dial(t)
	emit(t, conn, chat.EventIdentify, chat.IdentifyPayload{Type: chat.IdentifyAdmin, Token: "forged"})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		_, _, err := conn.ReadMessage()
		if err == nil {
			continue
		}
		var closeErr *websocket.CloseError
		if !errors.As(err, &closeErr) || closeErr.Code != websocket.ClosePolicyViolation || closeErr.Text != "unauthorized" {
			t.Fatalf("expected unauthorized policy violation close, got %v", err)
		}
		break
	}
	if env.svc.Stats().Admins != 0 {
		t.Fatal("rejected staff must not be counted")
	}
}

func TestWebSocketRejectsForeignOrigin(t *testing.T) {
	env := setupServer(t)
	url := "ws" + strings.TrimPrefix(env.srv.URL, "http") + "/api/chat/ws"

	header := http.Header{"Origin": []string{"https://evil.example"}}
	if _, resp, err := websocket.DefaultDialer.Dial(url, header); err == nil {
		t.Fatal("expected handshake to fail")
	} else if resp == nil || resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %v", resp)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	env := setupServer(t)
	visitor := env.dial(t)
	emit(t, visitor, chat.EventIdentify, chat.IdentifyPayload{Type: chat.IdentifyVisitor, SessionID: "m1"})
	// admin-online follows the connection gauge update
	await(t, visitor, chat.EventAdminOnline)

	resp := env.do(t, http.MethodGet, "/metrics", "", nil)
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), `chat_connections{role="visitor"} 1`) {
		t.Fatalf("expected visitor connection gauge in metrics output:\n%s", body)
	}
}
