package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/autopr/internal/model"
	"github.com/sakif/autopr/internal/server"
)

type stubSubmitter struct {
	calls int
}

func (s *stubSubmitter) Submit(_ context.Context, _ model.SubmissionRequest) (*model.SubmissionResponse, error) {
	s.calls++
	return &model.SubmissionResponse{PRURL: "https://github.com/x/y/pull/1", Status: model.SuccessStatus}, nil
}

func TestRoutes(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	stub := &stubSubmitter{}
	srv := httptest.NewServer(server.New(server.Config{Port: 0}, stub, logger).Handler())
	t.Cleanup(srv.Close)

	t.Run("healthz", func(t *testing.T) {
		resp, err := http.Get(srv.URL + "/healthz")
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.NotEmpty(t, resp.Header.Get("Content-Type"))
	})

	t.Run("submit", func(t *testing.T) {
		resp, err := http.Post(srv.URL+"/api/submit", "application/json", bytes.NewBufferString(`{}`))
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		var body model.SubmissionResponse
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		assert.Equal(t, "https://github.com/x/y/pull/1", body.PRURL)
		assert.Equal(t, 1, stub.calls)
	})

	t.Run("submit is POST only", func(t *testing.T) {
		resp, err := http.Get(srv.URL + "/api/submit")
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
	})

	t.Run("no static serving", func(t *testing.T) {
		resp, err := http.Get(srv.URL + "/")
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})
}
