// Package main is the entry point for autopr.
//
// autopr runs a shell script inside a throwaway sandbox to turn a task
// description into a GitHub pull request. It has two commands:
//
//	autopr serve    → HTTP API used by the web form
//	autopr submit   → one submission from the terminal
//
// All actual logic lives in internal/. This package only reads config, builds
// the dependencies, and hands them over.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sakif/autopr/internal/config"
	"github.com/sakif/autopr/internal/redact"
	"github.com/sakif/autopr/internal/sandbox"
	"github.com/sakif/autopr/internal/sandbox/docker"
	"github.com/sakif/autopr/internal/sandbox/e2b"
	"github.com/sakif/autopr/internal/service"
)

var (
	configFlag  string
	envFileFlag string
	backendFlag string
)

var rootCmd = &cobra.Command{
	Use:   "autopr",
	Short: "autopr - turn a task description into a pull request",
	Long: `autopr uploads a script to a fresh sandbox, runs it against a GitHub
repository with the caller's keys, and reports the pull request URL the script
prints.

Sandboxes come from E2B by default, or from a local Docker daemon with
--backend docker.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFlag, "config", "", "Config file (default ./autopr.yaml if present)")
	rootCmd.PersistentFlags().StringVar(&envFileFlag, "env-file", "", "Env file to load (default .env)")
	rootCmd.PersistentFlags().StringVar(&backendFlag, "backend", "", "Sandbox backend: e2b or docker (overrides config)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig applies the persistent flags on top of config.Load.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(config.Options{ConfigFile: configFlag, EnvFile: envFileFlag})
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if backendFlag != "" {
		cfg.Sandbox.Backend = backendFlag
	}
	return cfg, nil
}

// newLogger builds the process logger.
//
// Every record passes through redact.NewHandler, so an attribute that looks
// like a credential is masked whatever code logged it.
func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.ToUpper(level))); err != nil {
		lvl = slog.LevelInfo
	}
	return slog.New(redact.NewHandler(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: lvl,
	})))
}

// newProvider builds the configured sandbox backend. The returned cleanup
// releases backend resources and is never nil.
func newProvider(cfg *config.Config, logger *slog.Logger) (sandbox.Provider, func(), error) {
	switch cfg.Sandbox.Backend {
	case config.BackendDocker:
		dcfg := docker.DefaultConfig()
		dcfg.DefaultImage = cfg.Docker.Image
		dcfg.MemoryLimit = cfg.Docker.MemoryLimit
		dcfg.CPULimit = cfg.Docker.CPULimit
		dcfg.NetworkMode = cfg.Docker.NetworkMode

		p, err := docker.New(dcfg, logger)
		if err != nil {
			return nil, func() {}, fmt.Errorf("starting docker backend: %w", err)
		}
		return p, func() { _ = p.Close() }, nil

	case config.BackendE2B:
		ecfg := e2b.DefaultConfig()
		ecfg.Domain = cfg.E2B.Domain
		ecfg.Lifetime = cfg.E2B.Lifetime
		ecfg.RequestTimeout = cfg.E2B.RequestTimeout
		return e2b.New(ecfg, logger), func() {}, nil

	default:
		return nil, func() {}, fmt.Errorf("unknown sandbox backend %q", cfg.Sandbox.Backend)
	}
}

// newOrchestrator wires config, logger, and provider into a service.Orchestrator.
func newOrchestrator(cfg *config.Config, logger *slog.Logger) (*service.Orchestrator, func(), error) {
	provider, cleanup, err := newProvider(cfg, logger)
	if err != nil {
		return nil, cleanup, err
	}

	logger.Info("sandbox backend ready",
		slog.String("backend", cfg.Sandbox.Backend),
		slog.String("template", cfg.Template()),
		slog.String("script", cfg.Script.Path),
	)

	orch := service.NewOrchestrator(provider, service.Config{
		ScriptPath:   cfg.Script.Path,
		Template:     cfg.Template(),
		RemotePath:   cfg.Script.RemotePath,
		CloseTimeout: cfg.Sandbox.CloseTimeout,
	}, logger)
	return orch, cleanup, nil
}
