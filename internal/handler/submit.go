// Package handler translates HTTP requests into service calls and service
// results into HTTP responses. Handlers never talk to a sandbox directly.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"mime"
	"net/http"

	"github.com/sakif/autopr/internal/apperror"
	"github.com/sakif/autopr/internal/model"
)

// MsgInvalidBody is returned when the body is neither valid JSON nor a form.
const MsgInvalidBody = "Invalid request body."

// maxBodyBytes caps the submit body. Five short text fields never come close.
const maxBodyBytes = 1 << 20

// Submitter runs one submission. *service.Orchestrator implements it.
type Submitter interface {
	Submit(ctx context.Context, req model.SubmissionRequest) (*model.SubmissionResponse, error)
}

// SubmitHandler handles POST /api/submit.
type SubmitHandler struct {
	submitter Submitter
	logger    *slog.Logger
}

// NewSubmitHandler creates a new SubmitHandler.
func NewSubmitHandler(submitter Submitter, logger *slog.Logger) *SubmitHandler {
	return &SubmitHandler{
		submitter: submitter,
		logger:    logger,
	}
}

// HandleSubmit decodes the form, runs the submission, and writes the outcome.
//
// The body may be JSON or a urlencoded/multipart form; field names are the
// same either way.
//
// DETACHED CONTEXT:
// The orchestration runs on context.WithoutCancel(r.Context()). If the
// browser goes away mid-run, the remote script still finishes and the
// session is still closed. Request-scoped values (request ID) are kept.
func (h *SubmitHandler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	req, err := decodeSubmission(r)
	if err != nil {
		h.logger.Warn("invalid submission body", slog.String("error", err.Error()))
		writeError(w, apperror.ValidationFailed("", MsgInvalidBody))
		return
	}

	h.logger.Info("submission received", slog.Any("request", req))

	resp, err := h.submitter.Submit(context.WithoutCancel(r.Context()), req)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

func decodeSubmission(r *http.Request) (model.SubmissionRequest, error) {
	var req model.SubmissionRequest

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch mediaType {
	case "application/x-www-form-urlencoded", "multipart/form-data":
		if err := r.ParseMultipartForm(maxBodyBytes); err != nil && !errors.Is(err, http.ErrNotMultipart) {
			return req, err
		}
		req = model.SubmissionRequest{
			GeminiAPIKey:     r.PostFormValue("geminiApiKey"),
			SandboxAPIKey:    r.PostFormValue("e2bApiKey"),
			RepositoryURL:    r.PostFormValue("githubUrl"),
			RepositoryAPIKey: r.PostFormValue("githubApiKey"),
			TaskDescription:  r.PostFormValue("taskDescription"),
		}
		return req, nil
	default:
		// JSON is the default, matching the browser form's fetch call.
		err := json.NewDecoder(r.Body).Decode(&req)
		return req, err
	}
}
