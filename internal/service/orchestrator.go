// Package service contains the business logic of a submission.
//
// THE TWO PIECES:
//
//	Validate     → pure checks on the form, no side effects
//	Orchestrator → drives one remote sandbox run from open to close
//
// The HTTP handler and the CLI both call these. Neither knows how a sandbox
// is provisioned: the Orchestrator only sees the sandbox.Provider interface,
// so tests inject a fake and production injects the E2B or Docker backend.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"strings"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/autopr/internal/apperror"
	"github.com/sakif/autopr/internal/model"
	"github.com/sakif/autopr/internal/redact"
	"github.com/sakif/autopr/internal/sandbox"
)

// Environment variable names the script reads.
const (
	EnvGeminiAPIKey    = "GEMINI_API_KEY"
	EnvTaskDescription = "TASK_DESCRIPTION"
	EnvRepositoryURL   = "GITHUB_REPO_URL"
	EnvRepositoryKey   = "GITHUB_API_KEY"
)

// Defaults used when Config leaves a field empty.
const (
	DefaultTemplate     = "Nodejs"
	DefaultScriptPath   = "e2b_script_content.sh"
	DefaultRemoteDir    = "/home/user"
	DefaultCloseTimeout = 30 * time.Second
)

// Config controls where the script comes from and where it runs.
type Config struct {
	// ScriptPath is the local script uploaded for every submission.
	ScriptPath string
	// Template names the sandbox image or template to create.
	Template string
	// RemotePath is where the script is written inside the session.
	RemotePath string
	// CloseTimeout bounds session release.
	CloseTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.ScriptPath == "" {
		c.ScriptPath = DefaultScriptPath
	}
	if c.Template == "" {
		c.Template = DefaultTemplate
	}
	if c.RemotePath == "" {
		c.RemotePath = path.Join(DefaultRemoteDir, path.Base(c.ScriptPath))
	}
	if c.CloseTimeout <= 0 {
		c.CloseTimeout = DefaultCloseTimeout
	}
	return c
}

// Orchestrator runs one submission against one sandbox session.
//
// It holds no per-request state, so a single Orchestrator serves every
// request concurrently.
type Orchestrator struct {
	provider sandbox.Provider
	config   Config
	logger   *slog.Logger
}

// NewOrchestrator creates an Orchestrator.
func NewOrchestrator(provider sandbox.Provider, cfg Config, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{
		provider: provider,
		config:   cfg.withDefaults(),
		logger:   logger,
	}
}

// Submit validates req and, if it is valid, runs the script and returns the
// pull request URL the script printed.
//
// LIFECYCLE:
//
//	read script → create session → upload → start → wait → classify
//
// Whatever happens after the session exists, it is closed exactly once before
// Submit returns. A close failure is logged and never replaces the result.
//
// Every error message returned has the request's credentials scrubbed out.
func (o *Orchestrator) Submit(ctx context.Context, req model.SubmissionRequest) (resp *model.SubmissionResponse, err error) {
	if err := Validate(req); err != nil {
		return nil, err
	}

	// Every record this submission logs has its keys scrubbed, wherever
	// they appear.
	secrets := req.Secrets()
	logger := slog.New(redact.WithSecrets(o.logger.Handler(), secrets...)).
		With(slog.String("submission", xid.New().String()))
	defer func() {
		if err != nil {
			err = scrubError(err, secrets)
			logger.Error("submission failed", slog.String("error", err.Error()))
		}
	}()

	// === 1. SCRIPT ===
	script, err := os.ReadFile(o.config.ScriptPath)
	if err != nil {
		return nil, apperror.ScriptUnreadable(o.config.ScriptPath, err)
	}

	// === 2. SESSION ===
	logger.Info("creating sandbox session", slog.String("template", o.config.Template))
	session, err := o.provider.Create(ctx, o.config.Template, req.SandboxAPIKey)
	if err != nil {
		return nil, apperror.ProvisioningFailed(err.Error())
	}
	logger = logger.With(slog.String("session", session.ID()))
	defer o.closeSession(logger, session)

	// === 3. ENVIRONMENT ===
	env := map[string]string{
		EnvGeminiAPIKey:    req.GeminiAPIKey,
		EnvTaskDescription: req.TaskDescription,
		EnvRepositoryURL:   req.RepositoryURL,
		EnvRepositoryKey:   req.RepositoryAPIKey,
	}
	logger.Info("sandbox environment prepared",
		slog.String(EnvGeminiAPIKey, model.MaskedGeminiAPIKey),
		slog.String(EnvTaskDescription, req.TaskDescription),
		slog.String(EnvRepositoryURL, req.RepositoryURL),
		slog.String(EnvRepositoryKey, model.MaskedRepositoryAPIKey),
	)

	// === 4. UPLOAD ===
	if err := session.WriteFile(ctx, o.config.RemotePath, script); err != nil {
		return nil, apperror.RemoteIOFailed(o.config.RemotePath, err.Error())
	}

	// === 5. EXECUTE ===
	proc, err := session.Start(ctx, sandbox.ProcessConfig{
		Cmd: "bash " + o.config.RemotePath,
		Env: env,
		OnStdout: func(line string) {
			logger.Info("[sandbox stdout]", slog.String("line", line))
		},
		OnStderr: func(line string) {
			logger.Warn("[sandbox stderr]", slog.String("line", line))
		},
	})
	if err != nil {
		return nil, apperror.ProvisioningFailed(err.Error())
	}

	// === 6. AWAIT ===
	// No deadline is added here. The provider's own limits are the only bound.
	result, err := proc.Wait(ctx)
	if err != nil {
		return nil, fmt.Errorf("waiting for script: %w", apperror.ExecutionFailed(err.Error()))
	}
	logger.Info("script finished", slog.Int("exit_code", result.ExitCode))

	// stderr becomes the error message of a failed run, so it is scrubbed
	// before it is classified. stdout is left alone: the result URL is read
	// from it verbatim.
	result.Stderr = redact.ScrubLines(result.Stderr, secrets...)

	// === 7. CLASSIFY ===
	prURL, err := Classify(result)
	if err != nil {
		return nil, err
	}

	logger.Info("pull request created", slog.String("pr_url", prURL))
	return &model.SubmissionResponse{PRURL: prURL, Status: model.SuccessStatus}, nil
}

// Classify turns a finished run into either the result URL or an error.
//
// A non-zero exit is an ExecutionError carrying stderr. A zero exit needs a
// stdout line starting with "http"; when several match, the last one wins,
// since a script may print intermediate links before the final PR.
func Classify(result *sandbox.ExecutionResult) (string, error) {
	if result.ExitCode != 0 {
		details := strings.Join(result.Stderr, "\n")
		return "", fmt.Errorf("script exited with code %d: %w", result.ExitCode, apperror.ExecutionFailed(details))
	}

	var found string
	for _, line := range result.Stdout {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "http") {
			found = trimmed
		}
	}
	if found == "" {
		return "", apperror.ResultParseFailed()
	}
	return found, nil
}

// closeSession releases the session on a fresh context so a cancelled
// request still frees the sandbox.
func (o *Orchestrator) closeSession(logger *slog.Logger, session sandbox.Session) {
	ctx, cancel := context.WithTimeout(context.Background(), o.config.CloseTimeout)
	defer cancel()

	if err := session.Close(ctx); err != nil {
		closeErr := apperror.SessionCloseFailed(session.ID(), err)
		logger.Warn("sandbox session close failed", slog.String("error", closeErr.Error()))
		return
	}
	logger.Info("sandbox session closed")
}

// scrubError removes secrets from err's message while keeping the error kind,
// so errors.Is still works on the result.
func scrubError(err error, secrets []string) error {
	msg := err.Error()
	clean := redact.Scrub(msg, secrets...)
	if clean == msg {
		return err
	}

	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		return &apperror.AppError{Err: appErr.Err, Message: clean, Field: appErr.Field}
	}
	return errors.New(clean)
}
