package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/autopr/internal/apperror"
	"github.com/sakif/autopr/internal/handler"
	"github.com/sakif/autopr/internal/model"
)

// MockSubmitter records the decoded request and returns a canned outcome.
type MockSubmitter struct {
	CapturedReq model.SubmissionRequest
	CtxErr      error
	Calls       int
	ReturnRes   *model.SubmissionResponse
	ReturnErr   error
}

func (m *MockSubmitter) Submit(ctx context.Context, req model.SubmissionRequest) (*model.SubmissionResponse, error) {
	m.Calls++
	m.CapturedReq = req
	m.CtxErr = ctx.Err()
	if m.ReturnErr != nil {
		return nil, m.ReturnErr
	}
	return m.ReturnRes, nil
}

const validJSON = `{"geminiApiKey":"g-key","e2bApiKey":"e-key","githubUrl":"https://github.com/user/repo","githubApiKey":"gh-key","taskDescription":"fix it"}`

func decodeError(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	var body handler.ErrorResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&body))
	return body.Error
}

func TestSubmitHandler_HandleSubmit(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	t.Run("json success", func(t *testing.T) {
		mock := &MockSubmitter{ReturnRes: &model.SubmissionResponse{
			PRURL:  "https://github.com/user/repo/pull/1",
			Status: model.SuccessStatus,
		}}
		h := handler.NewSubmitHandler(mock, logger)

		req := httptest.NewRequest(http.MethodPost, "/api/submit", bytes.NewBufferString(validJSON))
		req.Header.Set("Content-Type", "application/json")
		rr := httptest.NewRecorder()

		h.HandleSubmit(rr, req)

		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))

		var res map[string]string
		require.NoError(t, json.NewDecoder(rr.Body).Decode(&res))
		assert.Equal(t, "https://github.com/user/repo/pull/1", res["prUrl"])
		assert.Equal(t, "Done! PR Created successfully.", res["status"])

		assert.Equal(t, "g-key", mock.CapturedReq.GeminiAPIKey)
		assert.Equal(t, "e-key", mock.CapturedReq.SandboxAPIKey)
		assert.Equal(t, "https://github.com/user/repo", mock.CapturedReq.RepositoryURL)
		assert.Equal(t, "gh-key", mock.CapturedReq.RepositoryAPIKey)
		assert.Equal(t, "fix it", mock.CapturedReq.TaskDescription)
	})

	t.Run("form body", func(t *testing.T) {
		mock := &MockSubmitter{ReturnRes: &model.SubmissionResponse{PRURL: "https://x", Status: model.SuccessStatus}}
		h := handler.NewSubmitHandler(mock, logger)

		form := url.Values{
			"geminiApiKey":    {"g-key"},
			"e2bApiKey":       {"e-key"},
			"githubUrl":       {"https://github.com/user/repo"},
			"githubApiKey":    {"gh-key"},
			"taskDescription": {"fix it"},
		}
		req := httptest.NewRequest(http.MethodPost, "/api/submit", strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		rr := httptest.NewRecorder()

		h.HandleSubmit(rr, req)

		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, "e-key", mock.CapturedReq.SandboxAPIKey)
		assert.Equal(t, "fix it", mock.CapturedReq.TaskDescription)
	})

	t.Run("invalid request body", func(t *testing.T) {
		mock := &MockSubmitter{}
		h := handler.NewSubmitHandler(mock, logger)

		req := httptest.NewRequest(http.MethodPost, "/api/submit", bytes.NewBufferString(`{"invalid_json":`))
		rr := httptest.NewRecorder()

		h.HandleSubmit(rr, req)

		assert.Equal(t, http.StatusBadRequest, rr.Code)
		assert.Equal(t, handler.MsgInvalidBody, decodeError(t, rr))
		assert.Equal(t, 0, mock.Calls)
	})

	t.Run("validation error is 400 without prefix", func(t *testing.T) {
		mock := &MockSubmitter{ReturnErr: apperror.ValidationFailed("githubUrl", "Missing required fields. Please fill out all inputs.")}
		h := handler.NewSubmitHandler(mock, logger)

		req := httptest.NewRequest(http.MethodPost, "/api/submit", bytes.NewBufferString(`{}`))
		rr := httptest.NewRecorder()

		h.HandleSubmit(rr, req)

		assert.Equal(t, http.StatusBadRequest, rr.Code)
		assert.Equal(t, "Missing required fields. Please fill out all inputs.", decodeError(t, rr))
	})

	t.Run("execution error is 500 with prefix", func(t *testing.T) {
		mock := &MockSubmitter{ReturnErr: fmt.Errorf("script exited with code 7: %w", apperror.ExecutionFailed("err1\nerr2"))}
		h := handler.NewSubmitHandler(mock, logger)

		req := httptest.NewRequest(http.MethodPost, "/api/submit", bytes.NewBufferString(validJSON))
		rr := httptest.NewRecorder()

		h.HandleSubmit(rr, req)

		assert.Equal(t, http.StatusInternalServerError, rr.Code)
		assert.Equal(t, "Operation failed: script exited with code 7: err1\nerr2", decodeError(t, rr))
	})

	t.Run("unknown error is generic 500", func(t *testing.T) {
		mock := &MockSubmitter{ReturnErr: errors.New("raw internal detail")}
		h := handler.NewSubmitHandler(mock, logger)

		req := httptest.NewRequest(http.MethodPost, "/api/submit", bytes.NewBufferString(validJSON))
		rr := httptest.NewRecorder()

		h.HandleSubmit(rr, req)

		assert.Equal(t, http.StatusInternalServerError, rr.Code)
		msg := decodeError(t, rr)
		assert.True(t, strings.HasPrefix(msg, handler.OperationFailedPrefix))
		assert.NotContains(t, msg, "raw internal detail")
	})

	t.Run("client disconnect does not cancel the run", func(t *testing.T) {
		mock := &MockSubmitter{ReturnRes: &model.SubmissionResponse{PRURL: "https://x", Status: model.SuccessStatus}}
		h := handler.NewSubmitHandler(mock, logger)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		req := httptest.NewRequest(http.MethodPost, "/api/submit", bytes.NewBufferString(validJSON)).WithContext(ctx)
		rr := httptest.NewRecorder()

		h.HandleSubmit(rr, req)

		assert.Equal(t, 1, mock.Calls)
		assert.NoError(t, mock.CtxErr)
	})
}

func TestSubmitHandler_LogsMaskKeys(t *testing.T) {
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelInfo}))
	mock := &MockSubmitter{ReturnRes: &model.SubmissionResponse{PRURL: "https://x", Status: model.SuccessStatus}}
	h := handler.NewSubmitHandler(mock, logger)

	body := `{"geminiApiKey":"gemini-plaintext","e2bApiKey":"e2b-plaintext","githubUrl":"https://github.com/user/repo","githubApiKey":"github-plaintext","taskDescription":"fix it"}`
	req := httptest.NewRequest(http.MethodPost, "/api/submit", bytes.NewBufferString(body))
	h.HandleSubmit(httptest.NewRecorder(), req)

	out := logs.String()
	assert.Contains(t, out, model.MaskedGeminiAPIKey)
	assert.NotContains(t, out, "gemini-plaintext")
	assert.NotContains(t, out, "e2b-plaintext")
	assert.NotContains(t, out, "github-plaintext")
}

func TestHandleHealth(t *testing.T) {
	rr := httptest.NewRecorder()
	handler.HandleHealth(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rr.Body.String())
}
