package middleware

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/martialartscode/pta-portal/backend/internal/auth"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestOriginsAllowed(t *testing.T) {
	o := NewOrigins([]string{"https://martialartscode.github.io/", " http://localhost:8000 "}, false)

	cases := map[string]bool{
		"":                                  true,
		"https://martialartscode.github.io": true,
		"http://localhost:8000":             true,
		"https://evil.example":              false,
	}
	for origin, want := range cases {
		if got := o.Allowed(origin); got != want {
			t.Fatalf("Allowed(%q) = %v, want %v", origin, got, want)
		}
	}

	if !NewOrigins(nil, true).Allowed("https://anything.example") {
		t.Fatal("allowAll should accept any origin")
	}
	if !NewOrigins([]string{"*"}, false).Allowed("https://anything.example") {
		t.Fatal("wildcard should accept any origin")
	}
}

func TestCORSHeaders(t *testing.T) {
	h := CORS(NewOrigins([]string{"http://localhost:8000"}, false))(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	req.Header.Set("Origin", "http://localhost:8000")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:8000" {
		t.Fatalf("unexpected allow-origin %q", got)
	}

	req = httptest.NewRequest(http.MethodOptions, "/api/auth/login", nil)
	req.Header.Set("Origin", "https://evil.example")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden || rec.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Fatalf("disallowed preflight: status %d headers %v", rec.Code, rec.Header())
	}

	req = httptest.NewRequest(http.MethodOptions, "/api/auth/login", nil)
	req.Header.Set("Origin", "http://localhost:8000")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204 preflight, got %d", rec.Code)
	}
}

func TestRequireStaff(t *testing.T) {
	jwtSvc := auth.NewJWTService("secret", 0)
	staff, _ := jwtSvc.Generate(auth.Identity{Email: "ana@academy.test", Role: auth.RoleAdmin})
	member, _ := jwtSvc.Generate(auth.Identity{Email: "kid@academy.test", Role: auth.RoleMember})

	var seen auth.Identity
	h := RequireStaff(jwtSvc, slog.New(slog.NewTextHandler(io.Discard, nil)))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = IdentityFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	cases := []struct {
		header string
		want   int
	}{
		{"", http.StatusUnauthorized},
		{"Bearer nope", http.StatusUnauthorized},
		{"Bearer " + member, http.StatusForbidden},
		{"Bearer " + staff, http.StatusOK},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, "/api/auto-response", nil)
		if tc.header != "" {
			req.Header.Set("Authorization", tc.header)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != tc.want {
			t.Fatalf("header %q: got %d want %d", tc.header, rec.Code, tc.want)
		}
	}
	if seen.Email != "ana@academy.test" {
		t.Fatalf("identity not propagated: %+v", seen)
	}
}
