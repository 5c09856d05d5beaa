// Package model defines the data structures used throughout the application.
// In Go, we use structs to represent our data, similar to classes in other languages,
// but without inheritance. Go favours composition over inheritance.
//
// Everything here lives for exactly one request. Nothing is written to disk.
package model

import "log/slog"

// SubmissionRequest is the body of POST /api/submit.
//
// The `json:"..."` names double as the form field names. They are the wire
// contract with the browser form and must not change. The Go field names describe what the
// values are for; the wire names are historical.
type SubmissionRequest struct {
	GeminiAPIKey     string `json:"geminiApiKey"`
	SandboxAPIKey    string `json:"e2bApiKey"`
	RepositoryURL    string `json:"githubUrl"`
	RepositoryAPIKey string `json:"githubApiKey"`
	TaskDescription  string `json:"taskDescription"`
}

// Masks shown in place of credentials whenever a request is logged.
const (
	MaskedGeminiAPIKey     = "***GEMINI_API_KEY***"
	MaskedSandboxAPIKey    = "***E2B_API_KEY***"
	MaskedRepositoryAPIKey = "***GITHUB_API_KEY***"
)

// LogValue implements slog.LogValuer.
//
// WHY A LogValuer?
// Passing the request to a logger (slog.Any("request", req)) would otherwise
// print every field, credentials included. With LogValue, slog calls this
// method instead of reflecting over the struct, so there is no code path that
// can emit the raw keys. Empty keys stay empty so logs still show what was
// missing.
func (r SubmissionRequest) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("geminiApiKey", mask(r.GeminiAPIKey, MaskedGeminiAPIKey)),
		slog.String("e2bApiKey", mask(r.SandboxAPIKey, MaskedSandboxAPIKey)),
		slog.String("githubUrl", r.RepositoryURL),
		slog.String("githubApiKey", mask(r.RepositoryAPIKey, MaskedRepositoryAPIKey)),
		slog.String("taskDescription", r.TaskDescription),
	)
}

// Secrets returns the credential values carried by the request, for scrubbing
// free-form text (error messages, remote output) before it is logged or returned.
func (r SubmissionRequest) Secrets() []string {
	return []string{r.GeminiAPIKey, r.SandboxAPIKey, r.RepositoryAPIKey}
}

func mask(value, placeholder string) string {
	if value == "" {
		return ""
	}
	return placeholder
}

// SuccessStatus is the status text sent with every successful submission.
const SuccessStatus = "Done! PR Created successfully."

// SubmissionResponse is returned on success.
type SubmissionResponse struct {
	PRURL  string `json:"prUrl"`
	Status string `json:"status"`
}
