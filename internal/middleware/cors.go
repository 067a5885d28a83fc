package middleware

import (
	"net/http"
	"strings"
)

// Origins is the browser origin allow-list shared by CORS and the websocket
// upgrader.
type Origins struct {
	allowed  map[string]struct{}
	allowAll bool
}

// NewOrigins builds an allow-list. allowAll accepts any origin, which is what
// development mode wants.
func NewOrigins(list []string, allowAll bool) *Origins {
	o := &Origins{allowed: make(map[string]struct{}, len(list)), allowAll: allowAll}
	for _, origin := range list {
		origin = strings.TrimRight(strings.TrimSpace(origin), "/")
		if origin == "*" {
			o.allowAll = true
			continue
		}
		if origin != "" {
			o.allowed[origin] = struct{}{}
		}
	}
	return o
}

// Allowed reports whether a request with this Origin header may proceed.
// Requests without an origin (curl, server to server) are allowed.
func (o *Origins) Allowed(origin string) bool {
	if origin == "" || o.allowAll {
		return true
	}
	_, ok := o.allowed[strings.TrimRight(origin, "/")]
	return ok
}

// CheckOrigin adapts the allow-list to websocket.Upgrader.CheckOrigin.
func (o *Origins) CheckOrigin(r *http.Request) bool {
	return o.Allowed(r.Header.Get("Origin"))
}

// CORS adds CORS headers for allowed origins and answers preflights.
func CORS(origins *Origins) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")

			if origin != "" && origins.Allowed(origin) {
				h := w.Header()
				h.Set("Access-Control-Allow-Origin", origin)
				h.Set("Access-Control-Allow-Methods", "GET, POST, PUT, OPTIONS")
				h.Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
				h.Set("Access-Control-Allow-Credentials", "true")
				h.Add("Vary", "Origin")
			}

			if r.Method == http.MethodOptions {
				if origin != "" && !origins.Allowed(origin) {
					w.WriteHeader(http.StatusForbidden)
					return
				}
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
