package middleware

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ahmedmhosni/roastify/internal/auth"
	"github.com/ahmedmhosni/roastify/internal/logger"
)

func TestRequireAuth(t *testing.T) {
	issuer, err := auth.NewIssuer("test-secret", time.Hour)
	if err != nil {
		t.Fatalf("NewIssuer returned error: %v", err)
	}
	token, err := issuer.Issue(auth.Principal{UserID: 9, Role: "user"})
	if err != nil {
		t.Fatalf("Issue returned error: %v", err)
	}

	var seen auth.Principal
	protected := RequireAuth(issuer)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = auth.PrincipalFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"valid token", "Bearer " + token.Token, http.StatusNoContent},
		{"missing header", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic abc", http.StatusUnauthorized},
		{"bad token", "Bearer nope", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/time-tracking", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			protected.ServeHTTP(rec, req)
			if rec.Code != tt.want {
				t.Fatalf("expected %d, got %d", tt.want, rec.Code)
			}
		})
	}
	if seen.UserID != 9 {
		t.Fatalf("principal not propagated, got %+v", seen)
	}
}

func TestLoggingMiddleware(t *testing.T) {
	var buf bytes.Buffer
	prev := logger.Default
	logger.Default = logger.New(&buf, false)
	t.Cleanup(func() { logger.Default = prev })

	handler := LoggingMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusTeapot)
	}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/time-tracking/start", nil))

	if !strings.Contains(buf.String(), "[HTTP] POST /time-tracking/start 418") {
		t.Fatalf("unexpected log line %q", buf.String())
	}
}
