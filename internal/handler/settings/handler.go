package settings

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/martialartscode/pta-portal/backend/internal/middleware"
	"github.com/martialartscode/pta-portal/backend/internal/model/chat"
	chatservice "github.com/martialartscode/pta-portal/backend/internal/service/chat"
	"github.com/martialartscode/pta-portal/backend/pkg/utils"
)

// Handler exposes the auto-response settings to staff.
type Handler struct {
	settings *chatservice.Settings
	logger   *slog.Logger
}

// New creates the settings handler.
func New(settings *chatservice.Settings, logger *slog.Logger) *Handler {
	return &Handler{settings: settings, logger: logger}
}

// RegisterRoutes mounts GET and PUT /auto-response behind requireStaff.
func (h *Handler) RegisterRoutes(r chi.Router, requireStaff func(http.Handler) http.Handler) {
	r.With(requireStaff).Get("/auto-response", h.handleGet)
	r.With(requireStaff).Put("/auto-response", h.handlePut)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	utils.RespondJSON(w, http.StatusOK, h.settings.Get(r.Context()))
}

func (h *Handler) handlePut(w http.ResponseWriter, r *http.Request) {
	var payload chat.AutoResponse
	if err := utils.DecodeJSON(r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	saved, err := h.settings.Update(r.Context(), payload)
	if err != nil {
		if errors.Is(err, chatservice.ErrInvalidSettings) {
			utils.RespondError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.logger.Error("save auto-response settings failed", "error", err)
		utils.RespondError(w, http.StatusInternalServerError, "failed to save settings")
		return
	}

	identity, _ := middleware.IdentityFromContext(r.Context())
	h.logger.Info("auto-response settings updated", "by", identity.Subject, "enabled", saved.Enabled, "delay_seconds", saved.DelaySeconds)
	utils.RespondJSON(w, http.StatusOK, saved)
}
