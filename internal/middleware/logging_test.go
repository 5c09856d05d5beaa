package middleware_test

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/stretchr/testify/assert"

	"github.com/sakif/autopr/internal/middleware"
)

func newRouter(logs *bytes.Buffer) http.Handler {
	logger := slog.New(slog.NewTextHandler(logs, nil))

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logger(logger))
	r.Post("/api/submit", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"x"}`))
	})
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
	return r
}

func TestLogger(t *testing.T) {
	t.Run("failed submission", func(t *testing.T) {
		var logs bytes.Buffer
		req := httptest.NewRequest(http.MethodPost, "/api/submit?geminiApiKey=leak", strings.NewReader(`{"geminiApiKey":"body-secret"}`))
		req.Header.Set("X-Forwarded-For", "203.0.113.7")

		newRouter(&logs).ServeHTTP(httptest.NewRecorder(), req)

		out := logs.String()
		assert.Contains(t, out, "level=WARN")
		assert.Contains(t, out, "status=500")
		assert.Contains(t, out, "route=/api/submit")
		assert.Contains(t, out, "remote_ip=203.0.113.7")
		assert.Contains(t, out, "bytes=13")
		assert.NotContains(t, out, `request_id=""`)
		assert.NotContains(t, out, "leak")
		assert.NotContains(t, out, "body-secret")
	})

	t.Run("health check", func(t *testing.T) {
		var logs bytes.Buffer
		newRouter(&logs).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/healthz", nil))

		out := logs.String()
		assert.Contains(t, out, "level=INFO")
		assert.Contains(t, out, "status=200")
		assert.Contains(t, out, "route=/healthz")
	})

	t.Run("unmatched route", func(t *testing.T) {
		var logs bytes.Buffer
		newRouter(&logs).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/nope", nil))

		out := logs.String()
		assert.Contains(t, out, "status=404")
		assert.Contains(t, out, "route=unmatched")
	})
}
