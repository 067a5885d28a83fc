package storage

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/martialartscode/pta-portal/backend/internal/model/chat"
	"github.com/martialartscode/pta-portal/backend/internal/observability"
)

const defaultWriteTimeout = 5 * time.Second

type pendingOp struct {
	session chat.Session
	delete  bool
}

// Writer persists session snapshots in the background. Only the newest
// snapshot of a session is kept while a write is pending, so a slow backend
// costs at most one write per session per drain.
type Writer struct {
	backend Backend
	logger  *slog.Logger
	metrics *observability.Metrics
	timeout time.Duration

	mu      sync.Mutex
	pending map[string]pendingOp
	order   []string
	closed  bool

	wake    chan struct{}
	flushCh chan chan struct{}
	stop    chan struct{}
	done    chan struct{}
	once    sync.Once
}

// NewWriter starts the background worker.
func NewWriter(backend Backend, logger *slog.Logger, metrics *observability.Metrics) *Writer {
	if logger == nil {
		logger = slog.Default()
	}
	w := &Writer{
		backend: backend,
		logger:  logger.With("component", "storage-writer"),
		metrics: metrics,
		timeout: defaultWriteTimeout,
		pending: make(map[string]pendingOp),
		wake:    make(chan struct{}, 1),
		flushCh: make(chan chan struct{}),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	go w.run()
	return w
}

// Persist queues a snapshot for saving. It never blocks on the backend.
func (w *Writer) Persist(session chat.Session) {
	w.enqueue(session.ID, pendingOp{session: session.Clone()})
}

// Forget queues the removal of a session.
func (w *Writer) Forget(sessionID string) {
	w.enqueue(sessionID, pendingOp{delete: true})
}

func (w *Writer) enqueue(id string, op pendingOp) {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		w.logger.Warn("dropping write after close", "session_id", id)
		return
	}
	if _, queued := w.pending[id]; !queued {
		w.order = append(w.order, id)
	}
	w.pending[id] = op
	w.mu.Unlock()

	select {
	case w.wake <- struct{}{}:
	default:
	}
}

// Flush blocks until every write queued before the call has been attempted.
func (w *Writer) Flush(ctx context.Context) error {
	ack := make(chan struct{})
	select {
	case w.flushCh <- ack:
	case <-w.done:
		return ErrWriterClosed
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-ack:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close drains outstanding writes and stops the worker. The backend is not
// closed.
func (w *Writer) Close() error {
	w.once.Do(func() {
		w.mu.Lock()
		w.closed = true
		w.mu.Unlock()
		close(w.stop)
	})
	<-w.done
	return nil
}

func (w *Writer) run() {
	defer close(w.done)
	for {
		select {
		case <-w.wake:
			w.drain()
		case ack := <-w.flushCh:
			w.drain()
			close(ack)
		case <-w.stop:
			w.drain()
			return
		}
	}
}

func (w *Writer) drain() {
	for {
		w.mu.Lock()
		if len(w.order) == 0 {
			w.mu.Unlock()
			return
		}
		id := w.order[0]
		w.order = w.order[1:]
		op := w.pending[id]
		delete(w.pending, id)
		w.mu.Unlock()

		w.apply(id, op)
	}
}

func (w *Writer) apply(id string, op pendingOp) {
	ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
	defer cancel()

	if op.delete {
		if err := w.backend.DeleteSession(ctx, id); err != nil {
			w.metrics.PersistFailed("delete")
			w.logger.Error("delete session failed", "session_id", id, "error", err)
		}
		return
	}
	if err := w.backend.SaveSession(ctx, op.session); err != nil {
		w.metrics.PersistFailed("save")
		w.logger.Error("save session failed", "session_id", id, "error", err)
	}
}
