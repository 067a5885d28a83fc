package chat

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/martialartscode/pta-portal/backend/internal/observability"
)

// Sweeper periodically evicts offline sessions idle for longer than ttl.
type Sweeper struct {
	store     *Store
	responder *AutoResponder
	metrics   *observability.Metrics
	logger    *slog.Logger
	ttl       time.Duration
	now       func() time.Time

	cron *cron.Cron
}

// NewSweeper schedules a sweep every interval. A non-positive ttl disables
// eviction and the returned sweeper does nothing.
func NewSweeper(store *Store, responder *AutoResponder, metrics *observability.Metrics, logger *slog.Logger, ttl, interval time.Duration) (*Sweeper, error) {
	s := &Sweeper{
		store:     store,
		responder: responder,
		metrics:   metrics,
		logger:    logger,
		ttl:       ttl,
		now:       time.Now,
	}
	if ttl <= 0 {
		return s, nil
	}
	if interval <= 0 {
		interval = 10 * time.Minute
	}

	s.cron = cron.New()
	if _, err := s.cron.AddFunc(fmt.Sprintf("@every %s", interval), func() { s.Sweep() }); err != nil {
		return nil, fmt.Errorf("schedule session sweep: %w", err)
	}
	return s, nil
}

// Start begins the schedule.
func (s *Sweeper) Start() {
	if s.cron == nil {
		return
	}
	s.cron.Start()
	s.logger.Info("session sweeper started", "ttl", s.ttl)
}

// Stop halts the schedule and waits for a running sweep.
func (s *Sweeper) Stop(ctx context.Context) {
	if s.cron == nil {
		return
	}
	select {
	case <-s.cron.Stop().Done():
	case <-ctx.Done():
	}
}

// Sweep evicts idle sessions once and returns their ids.
func (s *Sweeper) Sweep() []string {
	if s.ttl <= 0 {
		return nil
	}
	evicted := s.store.EvictIdle(s.now().Add(-s.ttl))
	for _, id := range evicted {
		s.responder.Cancel(id)
	}
	s.metrics.SetSessions(s.store.Len())
	if len(evicted) > 0 {
		s.logger.Info("idle sessions evicted", "count", len(evicted))
	}
	return evicted
}
