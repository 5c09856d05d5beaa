// Package apperror defines the error taxonomy shared by every layer.
//
// Each failure kind is a sentinel error. Constructors return an *AppError that
// wraps the sentinel, so callers can branch with errors.Is() while the
// human-readable Message travels with it. The HTTP layer turns sentinels into
// status codes; the service layer never sees a status code.
package apperror

import (
	"errors"
	"fmt"
)

var (
	ErrValidation   = errors.New("validation error")
	ErrScriptRead   = errors.New("script read error")
	ErrProvisioning = errors.New("sandbox provisioning error")
	ErrRemoteIO     = errors.New("sandbox io error")
	ErrExecution    = errors.New("sandbox execution error")
	ErrResultParse  = errors.New("result parse error")
	ErrSessionClose = errors.New("sandbox close error")
)

// NoStderrOutput is the message used for a failed run that wrote nothing to stderr.
const NoStderrOutput = "No stderr output."

type AppError struct {
	Err     error  // sentinel kind
	Message string // Human-readable error message
	Field   string // Optional: field causing the error
}

func (e *AppError) Error() string {
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func ValidationFailed(field, message string) *AppError {
	return &AppError{
		Err:     ErrValidation,
		Message: message,
		Field:   field,
	}
}

// ScriptUnreadable reports that the local script resource could not be loaded.
func ScriptUnreadable(path string, cause error) *AppError {
	return &AppError{
		Err:     ErrScriptRead,
		Message: fmt.Sprintf("reading script %s: %v", path, cause),
	}
}

// ProvisioningFailed reports that the provider refused to create a session
// (bad key, quota, missing template) or could not start the remote process.
func ProvisioningFailed(message string) *AppError {
	return &AppError{
		Err:     ErrProvisioning,
		Message: message,
	}
}

// RemoteIOFailed reports a rejected write into the session filesystem.
func RemoteIOFailed(path, message string) *AppError {
	return &AppError{
		Err:     ErrRemoteIO,
		Message: fmt.Sprintf("writing %s: %s", path, message),
		Field:   path,
	}
}

// ExecutionFailed carries the remote stderr of a non-zero exit. The message is
// exactly the detail text; callers add the exit code when wrapping.
func ExecutionFailed(details string) *AppError {
	if details == "" {
		details = NoStderrOutput
	}
	return &AppError{
		Err:     ErrExecution,
		Message: details,
	}
}

func ResultParseFailed() *AppError {
	return &AppError{
		Err:     ErrResultParse,
		Message: "script finished successfully, but the result URL could not be parsed from output",
	}
}

// SessionCloseFailed is only ever logged. It never becomes a response.
func SessionCloseFailed(sessionID string, cause error) *AppError {
	return &AppError{
		Err:     ErrSessionClose,
		Message: fmt.Sprintf("closing session %s: %v", sessionID, cause),
	}
}
