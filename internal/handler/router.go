package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	authhandler "github.com/martialartscode/pta-portal/backend/internal/handler/auth"
	chathandler "github.com/martialartscode/pta-portal/backend/internal/handler/chat"
	settingshandler "github.com/martialartscode/pta-portal/backend/internal/handler/settings"
	middlewarePkg "github.com/martialartscode/pta-portal/backend/internal/middleware"
	chatService "github.com/martialartscode/pta-portal/backend/internal/service/chat"
	"github.com/martialartscode/pta-portal/backend/pkg/utils"
)

// Deps are the services the HTTP surface is built on.
type Deps struct {
	Chat      *chatService.Service
	WebSocket *chathandler.WebSocketHandler
	Staff     middlewarePkg.StaffVerifier
	Accounts  authhandler.Authenticator
	Tokens    authhandler.TokenIssuer
	Origins   *middlewarePkg.Origins
	Gatherer  prometheus.Gatherer
	Logger    *slog.Logger
}

// NewRouter wires HTTP routes to core services.
func NewRouter(deps Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS(deps.Origins))

	requireStaff := middlewarePkg.RequireStaff(deps.Staff, deps.Logger)

	loginHandler := authhandler.New(deps.Accounts, deps.Tokens, deps.Logger.With("component", "login"))
	chatHandler := chathandler.New(deps.Chat, deps.WebSocket)
	settingsHandler := settingshandler.New(deps.Chat.Settings(), deps.Logger.With("component", "settings"))

	r.Route("/api", func(api chi.Router) {
		api.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			utils.RespondJSON(w, http.StatusOK, map[string]any{
				"status":    "ok",
				"message":   "Panamerican Taekwondo Academy API",
				"timestamp": time.Now().UTC(),
				"chat":      deps.Chat.Stats(),
			})
		})

		loginHandler.RegisterRoutes(api)
		chatHandler.RegisterRoutes(api, requireStaff)
		settingsHandler.RegisterRoutes(api, requireStaff)
	})

	if deps.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{}))
	}

	return r
}
