package service

import (
	"net/url"
	"strings"

	"github.com/sakif/autopr/internal/apperror"
	"github.com/sakif/autopr/internal/model"
)

// Validation messages. They are shown to the user verbatim.
const (
	MsgMissingFields = "Missing required fields. Please fill out all inputs."
	MsgInvalidRepo   = "Invalid GitHub Repository URL format. Example: https://github.com/user/repo"
)

// repositoryHost is the only host a submission may target.
const repositoryHost = "github.com"

// Validate checks a submission before anything remote happens.
//
// ORDER MATTERS:
// Presence is checked first, so a form with an empty URL reports the missing
// field and not a URL format problem. Validation is pure: it never touches
// the sandbox provider, which is what guarantees a bad form costs nothing.
func Validate(req model.SubmissionRequest) error {
	fields := []struct {
		name  string
		value string
	}{
		{"geminiApiKey", req.GeminiAPIKey},
		{"e2bApiKey", req.SandboxAPIKey},
		{"githubUrl", req.RepositoryURL},
		{"githubApiKey", req.RepositoryAPIKey},
		{"taskDescription", req.TaskDescription},
	}
	for _, f := range fields {
		if f.value == "" {
			return apperror.ValidationFailed(f.name, MsgMissingFields)
		}
	}

	if !isRepositoryURL(req.RepositoryURL) {
		return apperror.ValidationFailed("githubUrl", MsgInvalidRepo)
	}
	return nil
}

// isRepositoryURL reports whether raw is an absolute URL on github.com.
// Any parse failure is treated the same as a wrong host.
func isRepositoryURL(raw string) bool {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || !u.IsAbs() || u.Host == "" {
		return false
	}
	return strings.EqualFold(u.Hostname(), repositoryHost)
}
