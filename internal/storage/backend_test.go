package storage

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/martialartscode/pta-portal/backend/internal/model/chat"
)

func sampleSession(id string, texts ...string) chat.Session {
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	session := chat.Session{ID: id, CreatedAt: now, UpdatedAt: now}
	for i, text := range texts {
		session.Messages = append(session.Messages, chat.Message{
			From:      chat.SenderVisitor,
			Text:      text,
			Timestamp: now.Add(time.Duration(i) * time.Second),
		})
	}
	return session
}

// exerciseBackend runs the behaviour every Backend must share.
func exerciseBackend(t *testing.T, b Backend) {
	t.Helper()
	ctx := context.Background()

	if _, err := b.LoadSettings(ctx); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unsaved settings, got %v", err)
	}

	if err := b.SaveSession(ctx, sampleSession("b", "hello")); err != nil {
		t.Fatalf("SaveSession err: %v", err)
	}
	if err := b.SaveSession(ctx, sampleSession("a", "one", "two")); err != nil {
		t.Fatalf("SaveSession err: %v", err)
	}
	// overwrite keeps a single record
	if err := b.SaveSession(ctx, sampleSession("b", "hello", "again")); err != nil {
		t.Fatalf("SaveSession err: %v", err)
	}

	sessions, err := b.LoadSessions(ctx)
	if err != nil {
		t.Fatalf("LoadSessions err: %v", err)
	}
	if len(sessions) != 2 {
		t.Fatalf("expected 2 sessions, got %d", len(sessions))
	}
	if sessions[0].ID != "a" || sessions[1].ID != "b" {
		t.Fatalf("unexpected order: %s, %s", sessions[0].ID, sessions[1].ID)
	}
	if got := len(sessions[1].Messages); got != 2 {
		t.Fatalf("expected overwritten session to hold 2 messages, got %d", got)
	}
	if sessions[0].Messages[1].Text != "two" {
		t.Fatalf("message order not preserved: %+v", sessions[0].Messages)
	}

	if err := b.DeleteSession(ctx, "a"); err != nil {
		t.Fatalf("DeleteSession err: %v", err)
	}
	sessions, err = b.LoadSessions(ctx)
	if err != nil {
		t.Fatalf("LoadSessions err: %v", err)
	}
	if len(sessions) != 1 || sessions[0].ID != "b" {
		t.Fatalf("expected only session b after delete, got %+v", sessions)
	}

	want := chat.AutoResponse{Enabled: true, Message: "Thanks!", DelaySeconds: 2}
	if err := b.SaveSettings(ctx, want); err != nil {
		t.Fatalf("SaveSettings err: %v", err)
	}
	got, err := b.LoadSettings(ctx)
	if err != nil {
		t.Fatalf("LoadSettings err: %v", err)
	}
	if got != want {
		t.Fatalf("settings mismatch: got %+v want %+v", got, want)
	}
}

func TestMemoryBackend(t *testing.T) {
	exerciseBackend(t, NewMemory())
}

func TestSQLiteBackend(t *testing.T) {
	b, err := NewSQLite(context.Background(), ":memory:")
	if err != nil {
		t.Fatalf("NewSQLite err: %v", err)
	}
	defer b.Close()
	exerciseBackend(t, b)
}

func TestRedisBackend(t *testing.T) {
	url := os.Getenv("REDIS_TEST_URL")
	if url == "" {
		t.Skip("REDIS_TEST_URL not set")
	}
	prefix := "pta:test:" + time.Now().Format("150405.000000") + ":"
	b, err := NewRedis(context.Background(), url, prefix)
	if err != nil {
		t.Fatalf("NewRedis err: %v", err)
	}
	defer b.Close()
	exerciseBackend(t, b)
}

func TestOpenUnknownDriver(t *testing.T) {
	if _, err := Open(context.Background(), Config{Driver: "mongo"}); !errors.Is(err, ErrUnknownDriver) {
		t.Fatalf("expected ErrUnknownDriver, got %v", err)
	}
}

func TestOpenDefaultsToMemory(t *testing.T) {
	b, err := Open(context.Background(), Config{})
	if err != nil {
		t.Fatalf("Open err: %v", err)
	}
	if _, ok := b.(*Memory); !ok {
		t.Fatalf("expected *Memory, got %T", b)
	}
}
