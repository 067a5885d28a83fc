package chat

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/martialartscode/pta-portal/backend/internal/model/chat"
	"github.com/martialartscode/pta-portal/backend/internal/observability"
)

// SessionLoader reads back persisted sessions at startup.
type SessionLoader interface {
	LoadSessions(ctx context.Context) ([]chat.Session, error)
}

// Options configures a Service. Only Logger is needed for a working in-memory
// chat; everything else is optional.
type Options struct {
	Persister        Persister
	SettingsStore    SettingsStore
	Defaults         chat.AutoResponse
	Verifier         StaffVerifier
	Composer         ReplyComposer
	Metrics          *observability.Metrics
	Logger           *slog.Logger
	MaxMessageLength int
	SessionIdleTTL   time.Duration
	SweepInterval    time.Duration
}

// Service owns the chat state for the life of the process.
type Service struct {
	store    *Store
	registry *Registry
	settings *Settings
	router   *Router
	sweeper  *Sweeper
	metrics  *observability.Metrics
	logger   *slog.Logger
}

// Stats is a point-in-time view of the chat.
type Stats struct {
	Sessions int `json:"sessions"`
	Visitors int `json:"visitorsOnline"`
	Admins   int `json:"adminsOnline"`
}

// NewService wires the store, registry, router and their helpers.
func NewService(opts Options) (*Service, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	store := NewStore(opts.Persister)
	registry := NewRegistry()
	responder := NewAutoResponder(opts.Composer, logger.With("component", "autoresponder"))
	settings := NewSettings(opts.SettingsStore, opts.Defaults, logger.With("component", "settings"))

	router := NewRouter(RouterDeps{
		Store:     store,
		Registry:  registry,
		Presence:  NewPresence(registry, logger.With("component", "presence")),
		Responder: responder,
		Settings:  settings,
		Verifier:  opts.Verifier,
		Decoder:   NewDecoder(opts.MaxMessageLength),
		Metrics:   opts.Metrics,
		Logger:    logger.With("component", "router"),
	})

	sweeper, err := NewSweeper(store, responder, opts.Metrics, logger.With("component", "sweeper"), opts.SessionIdleTTL, opts.SweepInterval)
	if err != nil {
		return nil, err
	}

	return &Service{
		store:    store,
		registry: registry,
		settings: settings,
		router:   router,
		sweeper:  sweeper,
		metrics:  opts.Metrics,
		logger:   logger,
	}, nil
}

// Router returns the protocol state machine transports feed.
func (s *Service) Router() *Router {
	return s.router
}

// Settings returns the auto-response settings.
func (s *Service) Settings() *Settings {
	return s.settings
}

// Sessions lists session summaries, most recently updated first.
func (s *Service) Sessions() []chat.Summary {
	return s.router.Summaries()
}

// Session returns the full transcript of one session.
func (s *Service) Session(sessionID string) (chat.Session, error) {
	return s.store.Get(sessionID)
}

// Stats counts sessions and live participants.
func (s *Service) Stats() Stats {
	return Stats{
		Sessions: s.store.Len(),
		Visitors: s.registry.VisitorCount(),
		Admins:   s.registry.AdminCount(),
	}
}

// Restore loads persisted sessions into memory. It must run before the
// transport starts accepting connections.
func (s *Service) Restore(ctx context.Context, loader SessionLoader) (int, error) {
	if loader == nil {
		return 0, nil
	}
	sessions, err := loader.LoadSessions(ctx)
	if err != nil {
		return 0, fmt.Errorf("load sessions: %w", err)
	}
	n := s.store.Restore(sessions)
	s.metrics.SetSessions(s.store.Len())
	s.logger.Info("chat sessions restored", "count", n)
	return n, nil
}

// Start begins background work.
func (s *Service) Start() {
	s.sweeper.Start()
}

// Close stops timers and background work.
func (s *Service) Close(ctx context.Context) {
	s.router.Close()
	s.sweeper.Stop(ctx)
}
