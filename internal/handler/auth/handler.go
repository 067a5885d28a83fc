package auth

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/martialartscode/pta-portal/backend/internal/auth"
	"github.com/martialartscode/pta-portal/backend/pkg/utils"
)

// Authenticator checks staff credentials.
type Authenticator interface {
	Authenticate(email, password string) (auth.Identity, error)
}

// TokenIssuer signs tokens for authenticated identities.
type TokenIssuer interface {
	Generate(identity auth.Identity) (string, error)
}

// Handler serves staff login.
type Handler struct {
	accounts Authenticator
	tokens   TokenIssuer
	logger   *slog.Logger
}

// New creates the login handler.
func New(accounts Authenticator, tokens TokenIssuer, logger *slog.Logger) *Handler {
	return &Handler{accounts: accounts, tokens: tokens, logger: logger}
}

// RegisterRoutes mounts POST /auth/login.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/auth/login", h.handleLogin)
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token string        `json:"token"`
	User  auth.Identity `json:"user"`
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var payload loginRequest
	if err := utils.DecodeJSON(r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(payload.Email) == "" || payload.Password == "" {
		utils.RespondError(w, http.StatusBadRequest, "email and password are required")
		return
	}

	identity, err := h.accounts.Authenticate(payload.Email, payload.Password)
	if err != nil {
		h.logger.Warn("staff login failed", "email", payload.Email, "error", err)
		utils.RespondError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	token, err := h.tokens.Generate(identity)
	if err != nil {
		if errors.Is(err, auth.ErrAuthDisabled) {
			utils.RespondError(w, http.StatusServiceUnavailable, "staff login is not configured")
			return
		}
		h.logger.Error("sign staff token failed", "error", err)
		utils.RespondError(w, http.StatusInternalServerError, "failed to issue token")
		return
	}

	h.logger.Info("staff login", "email", identity.Email)
	utils.RespondJSON(w, http.StatusOK, loginResponse{Token: token, User: identity})
}
