// Package sandbox describes the capability surface the orchestrator needs from
// a remote execution provider: open a session, write a file into it, run a
// process, wait for the process, close the session.
//
// Backends live in sub-packages (e2b, docker). The orchestrator only ever sees
// these interfaces, which is what lets the service tests run against a fake.
package sandbox

import (
	"context"
	"strings"
)

// Provider creates sessions. It holds no per-request state, so one Provider is
// shared by every request.
type Provider interface {
	// Create provisions a new session from the named template, authenticated
	// with apiKey. The caller owns the returned Session and must Close it.
	Create(ctx context.Context, template, apiKey string) (Session, error)
}

// Session is a live remote environment owned by a single orchestration.
type Session interface {
	// ID identifies the session in logs.
	ID() string
	// WriteFile stores content at path inside the session filesystem.
	WriteFile(ctx context.Context, path string, content []byte) error
	// Start launches a process. Output is delivered line by line to the
	// callbacks in cfg while it runs, and in full by Process.Wait.
	Start(ctx context.Context, cfg ProcessConfig) (Process, error)
	// Close releases the session. Callers invoke it exactly once.
	Close(ctx context.Context) error
}

// Process is a running remote command.
type Process interface {
	// Wait blocks until the process exits and returns its complete output.
	Wait(ctx context.Context) (*ExecutionResult, error)
}

// ProcessConfig describes a command to run inside a session.
type ProcessConfig struct {
	// Cmd is a shell command line, run with bash -c (or the backend's equivalent).
	Cmd string
	// Env is the complete set of extra environment variables for the process.
	Env map[string]string
	// Cwd is the working directory; empty means the backend default.
	Cwd string
	// OnStdout and OnStderr observe each complete line as it arrives. They are
	// for logging only; nil is allowed.
	OnStdout func(line string)
	OnStderr func(line string)
}

// ExecutionResult represents the output and status of a finished process.
// Stdout and Stderr keep line order as emitted.
type ExecutionResult struct {
	ExitCode int      `json:"exitCode"`
	Stdout   []string `json:"stdout"`
	Stderr   []string `json:"stderr"`
}

// EnvList renders env as KEY=VALUE pairs, the form os/exec and Docker expect.
func EnvList(env map[string]string) []string {
	out := make([]string, 0, len(env))
	for k, v := range env {
		out = append(out, k+"="+v)
	}
	return out
}

// BashCommand wraps a command line for backends that take an argv.
func BashCommand(cmd string) []string {
	return []string{"/bin/bash", "-l", "-c", strings.TrimSpace(cmd)}
}
