package chat

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	chatservice "github.com/martialartscode/pta-portal/backend/internal/service/chat"
	"github.com/martialartscode/pta-portal/backend/pkg/utils"
)

// Handler serves the chat websocket and the staff transcript endpoints.
type Handler struct {
	svc *chatservice.Service
	ws  *WebSocketHandler
}

// New creates the chat handler.
func New(svc *chatservice.Service, ws *WebSocketHandler) *Handler {
	return &Handler{svc: svc, ws: ws}
}

// RegisterRoutes mounts the chat routes. requireStaff guards the transcript
// endpoints; the websocket authenticates staff in-band on identify.
func (h *Handler) RegisterRoutes(r chi.Router, requireStaff func(http.Handler) http.Handler) {
	r.Route("/chat", func(r chi.Router) {
		r.Handle("/ws", h.ws)
		r.Group(func(r chi.Router) {
			r.Use(requireStaff)
			r.Get("/sessions", h.handleListSessions)
			r.Get("/sessions/{sessionID}", h.handleGetSession)
		})
	})
}

// handleListSessions lists session summaries, most recent first.
func (h *Handler) handleListSessions(w http.ResponseWriter, r *http.Request) {
	utils.RespondJSON(w, http.StatusOK, map[string]any{
		"sessions": h.svc.Sessions(),
		"stats":    h.svc.Stats(),
	})
}

// handleGetSession returns the full transcript of one session.
func (h *Handler) handleGetSession(w http.ResponseWriter, r *http.Request) {
	session, err := h.svc.Session(chi.URLParam(r, "sessionID"))
	if err != nil {
		if errors.Is(err, chatservice.ErrSessionNotFound) {
			utils.RespondError(w, http.StatusNotFound, "session not found")
			return
		}
		utils.RespondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	utils.RespondJSON(w, http.StatusOK, session)
}
