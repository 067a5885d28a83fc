package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/martialartscode/pta-portal/backend/internal/model/chat"
	"github.com/martialartscode/pta-portal/backend/internal/storage"
)

var ErrInvalidSettings = errors.New("invalid auto-response settings")

// SettingsStore loads and saves the auto-response singleton.
type SettingsStore interface {
	LoadSettings(ctx context.Context) (chat.AutoResponse, error)
	SaveSettings(ctx context.Context, settings chat.AutoResponse) error
}

// Settings serves the auto-response configuration with a write-invalidated
// cache in front of the backend.
type Settings struct {
	backend  SettingsStore
	defaults chat.AutoResponse
	validate *validator.Validate
	logger   *slog.Logger

	mu     sync.RWMutex
	cached *chat.AutoResponse
}

// NewSettings falls back to defaults until something is saved.
func NewSettings(backend SettingsStore, defaults chat.AutoResponse, logger *slog.Logger) *Settings {
	return &Settings{
		backend:  backend,
		defaults: defaults.Normalize(),
		validate: validator.New(),
		logger:   logger,
	}
}

// Get returns the current settings. Backend failures yield the defaults and
// are retried on the next call.
func (s *Settings) Get(ctx context.Context) chat.AutoResponse {
	s.mu.RLock()
	cached := s.cached
	s.mu.RUnlock()
	if cached != nil {
		return *cached
	}

	if s.backend == nil {
		return s.defaults
	}

	loaded, err := s.backend.LoadSettings(ctx)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		loaded = s.defaults
	case err != nil:
		s.logger.Warn("load auto-response settings failed, using defaults", "error", err)
		return s.defaults
	default:
		loaded = loaded.Normalize()
	}

	s.mu.Lock()
	s.cached = &loaded
	s.mu.Unlock()
	return loaded
}

// Update validates, normalizes and saves next.
func (s *Settings) Update(ctx context.Context, next chat.AutoResponse) (chat.AutoResponse, error) {
	next = next.Normalize()
	if err := s.validate.Struct(next); err != nil {
		return chat.AutoResponse{}, fmt.Errorf("%w: %v", ErrInvalidSettings, err)
	}

	if s.backend != nil {
		if err := s.backend.SaveSettings(ctx, next); err != nil {
			return chat.AutoResponse{}, fmt.Errorf("save auto-response settings: %w", err)
		}
	}

	s.mu.Lock()
	s.cached = &next
	s.mu.Unlock()
	return next, nil
}

// Invalidate drops the cached value.
func (s *Settings) Invalidate() {
	s.mu.Lock()
	s.cached = nil
	s.mu.Unlock()
}
