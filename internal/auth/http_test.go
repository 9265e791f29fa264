// ABOUTME: Tests for HTTP authentication middleware
// ABOUTME: Covers widget token extraction from header and query, and the admin gate

package auth

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

// httpTestSecret is a 32-byte secret that meets MinSecretLength requirement.
var httpTestSecret = []byte("http-middleware-test-secret-32b!")

func sessionEcho() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(SessionIDFromContext(r.Context())))
	})
}

func TestSessionMiddleware(t *testing.T) {
	verifier, err := NewJWTVerifier(httpTestSecret)
	if err != nil {
		t.Fatalf("NewJWTVerifier() error = %v", err)
	}
	valid, _ := verifier.Generate("sess-1", time.Hour)
	expired, _ := verifier.Generate("sess-1", -time.Minute)

	tests := []struct {
		name       string
		header     string
		query      string
		wantStatus int
		wantBody   string
	}{
		{name: "bearer header", header: "Bearer " + valid, wantStatus: http.StatusOK, wantBody: "sess-1"},
		{name: "query token", query: valid, wantStatus: http.StatusOK, wantBody: "sess-1"},
		{name: "missing token", wantStatus: http.StatusUnauthorized, wantBody: "missing authorization header"},
		{name: "wrong scheme", header: "Basic abc", wantStatus: http.StatusUnauthorized, wantBody: "invalid authorization header format"},
		{name: "empty bearer", header: "Bearer ", wantStatus: http.StatusUnauthorized, wantBody: "empty token"},
		{name: "garbage", header: "Bearer nope", wantStatus: http.StatusUnauthorized, wantBody: "invalid token"},
		{name: "expired", header: "Bearer " + expired, wantStatus: http.StatusUnauthorized, wantBody: "token expired"},
		{name: "header wins over query", header: "Bearer nope", query: valid, wantStatus: http.StatusUnauthorized, wantBody: "invalid token"},
	}

	handler := SessionMiddleware(verifier)(sessionEcho())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			target := "/api/widget/state"
			if tt.query != "" {
				target += "?token=" + tt.query
			}
			req := httptest.NewRequest(http.MethodGet, target, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()

			handler.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if !strings.Contains(rec.Body.String(), tt.wantBody) {
				t.Errorf("body = %q, want it to contain %q", rec.Body.String(), tt.wantBody)
			}
		})
	}
}

func TestAdminTokenMiddleware(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	tests := []struct {
		name       string
		configured string
		header     string
		wantStatus int
	}{
		{name: "disabled", configured: "", header: "Bearer anything", wantStatus: http.StatusForbidden},
		{name: "missing header", configured: "admin-secret", wantStatus: http.StatusUnauthorized},
		{name: "wrong token", configured: "admin-secret", header: "Bearer admin-secreT", wantStatus: http.StatusUnauthorized},
		{name: "correct token", configured: "admin-secret", header: "Bearer admin-secret", wantStatus: http.StatusNoContent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/stats/usage", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()

			AdminTokenMiddleware(tt.configured)(ok).ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
		})
	}
}

func TestAuthErrorIsJSON(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/stats/usage", nil)
	rec := httptest.NewRecorder()

	AdminTokenMiddleware("admin-secret")(http.NotFoundHandler()).ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decoding body: %v", err)
	}
	if body["error"] != "missing authorization header" {
		t.Errorf("error = %q", body["error"])
	}
}

func TestSessionIDFromContext_Empty(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if got := SessionIDFromContext(req.Context()); got != "" {
		t.Errorf("SessionIDFromContext() = %q, want empty", got)
	}
}
