package chat

import (
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/martialartscode/pta-portal/backend/internal/model/chat"
	chatservice "github.com/martialartscode/pta-portal/backend/internal/service/chat"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = pongWait * 9 / 10
	maxFrameBytes  = 16 << 10
	defaultBacklog = 64
)

var (
	ErrConnClosed     = errors.New("connection closed")
	ErrSendBufferFull = errors.New("send buffer full")
)

// wsConn adapts a gorilla connection to chatservice.Conn. Every write goes
// through the single writer goroutine; Send only enqueues.
type wsConn struct {
	id     string
	ws     *websocket.Conn
	send   chan chat.Outbound
	done   chan struct{}
	logger *slog.Logger

	closeOnce   sync.Once
	closeCode   int
	closeReason string
}

func newWSConn(ws *websocket.Conn, backlog int, logger *slog.Logger) *wsConn {
	if backlog <= 0 {
		backlog = defaultBacklog
	}
	id := uuid.NewString()
	return &wsConn{
		id:     id,
		ws:     ws,
		send:   make(chan chat.Outbound, backlog),
		done:   make(chan struct{}),
		logger: logger.With("conn_id", id),
	}
}

func (c *wsConn) ID() string { return c.id }

// Send queues event for the writer. A connection that cannot keep up is
// closed; the client reconnects and is replayed from the session store.
func (c *wsConn) Send(event chat.Outbound) error {
	select {
	case <-c.done:
		return ErrConnClosed
	default:
	}

	select {
	case c.send <- event:
		return nil
	default:
		c.logger.Warn("send buffer full, closing connection", "event", event.Event)
		c.closeWith(websocket.CloseTryAgainLater, "slow consumer")
		return ErrSendBufferFull
	}
}

// Reject closes the connection with a policy-violation frame carrying reason.
func (c *wsConn) Reject(reason string) error {
	c.closeWith(websocket.ClosePolicyViolation, reason)
	return nil
}

func (c *wsConn) closeWith(code int, reason string) {
	c.closeOnce.Do(func() {
		c.closeCode = code
		c.closeReason = reason
		close(c.done)
	})
}

func (c *wsConn) writeLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.ws.Close()
	}()

	for {
		select {
		case event := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteJSON(event); err != nil {
				c.logger.Debug("write failed", "error", err)
				c.closeWith(websocket.CloseAbnormalClosure, "")
				return
			}
		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.logger.Debug("ping failed", "error", err)
				c.closeWith(websocket.CloseAbnormalClosure, "")
				return
			}
		case <-c.done:
			if c.closeCode != websocket.CloseAbnormalClosure {
				msg := websocket.FormatCloseMessage(c.closeCode, c.closeReason)
				_ = c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
			}
			return
		}
	}
}

// WebSocketHandler serves the chat protocol over websockets.
type WebSocketHandler struct {
	svc      *chatservice.Service
	upgrader websocket.Upgrader
	backlog  int
	logger   *slog.Logger

	mu    sync.Mutex
	conns map[string]*wsConn
}

// NewWebSocketHandler builds the upgrader. checkOrigin may be nil to accept
// every origin.
func NewWebSocketHandler(svc *chatservice.Service, checkOrigin func(*http.Request) bool, backlog int, logger *slog.Logger) *WebSocketHandler {
	if checkOrigin == nil {
		checkOrigin = func(*http.Request) bool { return true }
	}
	return &WebSocketHandler{
		svc: svc,
		upgrader: websocket.Upgrader{
			CheckOrigin:     checkOrigin,
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		backlog: backlog,
		logger:  logger,
		conns:   make(map[string]*wsConn),
	}
}

// ServeHTTP upgrades the request and runs the read loop until the client goes
// away.
func (h *WebSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err, "origin", r.Header.Get("Origin"))
		return
	}

	conn := newWSConn(ws, h.backlog, h.logger)
	h.track(conn)
	defer h.untrack(conn)

	router := h.svc.Router()
	router.Attach(conn)
	go conn.writeLoop()

	ctx := r.Context()

	ws.SetReadLimit(maxFrameBytes)
	ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.ClosePolicyViolation) {
				conn.logger.Debug("websocket read ended", "error", err)
			}
			break
		}
		ws.SetReadDeadline(time.Now().Add(pongWait))
		router.HandleRaw(ctx, conn.id, data)
	}

	router.Detach(conn.id)
	conn.closeWith(websocket.CloseNormalClosure, "")
}

// CloseAll sends a going-away frame to every open connection. Hijacked
// websocket connections are not closed by http.Server.Shutdown.
func (h *WebSocketHandler) CloseAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, conn := range h.conns {
		conn.closeWith(websocket.CloseGoingAway, "server shutting down")
	}
}

// Open is the number of open websocket connections.
func (h *WebSocketHandler) Open() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}

func (h *WebSocketHandler) track(conn *wsConn) {
	h.mu.Lock()
	h.conns[conn.id] = conn
	h.mu.Unlock()
}

func (h *WebSocketHandler) untrack(conn *wsConn) {
	h.mu.Lock()
	delete(h.conns, conn.id)
	h.mu.Unlock()
}
