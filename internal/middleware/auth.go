package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/martialartscode/pta-portal/backend/internal/auth"
	"github.com/martialartscode/pta-portal/backend/pkg/utils"
)

// StaffVerifier checks a staff bearer token.
type StaffVerifier interface {
	VerifyStaff(token string) (auth.Identity, error)
}

type identityContextKey struct{}

// WithIdentity attaches a verified identity to the context.
func WithIdentity(ctx context.Context, identity auth.Identity) context.Context {
	return context.WithValue(ctx, identityContextKey{}, identity)
}

// IdentityFromContext retrieves the identity set by RequireStaff.
func IdentityFromContext(ctx context.Context) (auth.Identity, bool) {
	identity, ok := ctx.Value(identityContextKey{}).(auth.Identity)
	return identity, ok
}

// RequireStaff rejects requests without a valid staff bearer token.
func RequireStaff(verifier StaffVerifier, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if !strings.HasPrefix(strings.ToLower(header), "bearer ") {
				utils.RespondError(w, http.StatusUnauthorized, "unauthorized")
				return
			}

			identity, err := verifier.VerifyStaff(strings.TrimSpace(header[len("bearer "):]))
			if err != nil {
				logger.Warn("staff token rejected", "path", r.URL.Path, "error", err)
				status := http.StatusUnauthorized
				switch {
				case errors.Is(err, auth.ErrNotStaff):
					status = http.StatusForbidden
				case errors.Is(err, auth.ErrAuthDisabled):
					status = http.StatusServiceUnavailable
				}
				utils.RespondError(w, status, http.StatusText(status))
				return
			}

			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), identity)))
		})
	}
}
