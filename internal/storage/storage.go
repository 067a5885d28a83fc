// Package storage persists chat sessions and auto-response settings.
//
// The chat service keeps the authoritative copy of every session in memory and
// hands snapshots to a Writer, which saves them asynchronously through a
// Backend. Any key-value or document store fits behind Backend.
package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/martialartscode/pta-portal/backend/internal/model/chat"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrUnknownDriver = errors.New("unknown storage driver")
	ErrWriterClosed  = errors.New("storage writer closed")
)

// Backend is the durable store behind the chat service.
type Backend interface {
	SaveSession(ctx context.Context, session chat.Session) error
	DeleteSession(ctx context.Context, sessionID string) error
	LoadSessions(ctx context.Context) ([]chat.Session, error)
	// LoadSettings returns ErrNotFound when nothing was saved yet.
	LoadSettings(ctx context.Context) (chat.AutoResponse, error)
	SaveSettings(ctx context.Context, settings chat.AutoResponse) error
	Close() error
}

// Config selects and configures a Backend.
type Config struct {
	Driver      string
	RedisURL    string
	RedisPrefix string
	SQLitePath  string
}

// Open builds the backend named by cfg.Driver.
func Open(ctx context.Context, cfg Config) (Backend, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case "", "memory":
		return NewMemory(), nil
	case "redis":
		return NewRedis(ctx, cfg.RedisURL, cfg.RedisPrefix)
	case "sqlite":
		return NewSQLite(ctx, cfg.SQLitePath)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, cfg.Driver)
	}
}
