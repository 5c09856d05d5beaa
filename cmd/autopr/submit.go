package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sakif/autopr/internal/config"
	"github.com/sakif/autopr/internal/model"
)

var (
	repoFlag      string
	taskFlag      string
	geminiKeyFlag string
	e2bKeyFlag    string
	githubKeyFlag string
)

var submitCmd = &cobra.Command{
	Use:   "submit",
	Short: "Run one submission and print the pull request URL",
	Long: `Run one submission from the terminal, exactly as POST /api/submit would.

Keys default to GEMINI_API_KEY, E2B_API_KEY and GITHUB_API_KEY from the
environment (or .env), so they need not appear in shell history.

Examples:
  autopr submit --repo https://github.com/user/repo --task "Add a CONTRIBUTING.md"`,
	RunE: runSubmit,
}

func init() {
	submitCmd.Flags().StringVar(&repoFlag, "repo", "", "GitHub repository URL")
	submitCmd.Flags().StringVar(&taskFlag, "task", "", "Task description for the script")
	submitCmd.Flags().StringVar(&geminiKeyFlag, "gemini-key", "", "Gemini API key (default $GEMINI_API_KEY)")
	submitCmd.Flags().StringVar(&e2bKeyFlag, "e2b-key", "", "E2B API key (default $E2B_API_KEY)")
	submitCmd.Flags().StringVar(&githubKeyFlag, "github-key", "", "GitHub API key (default $GITHUB_API_KEY)")
	rootCmd.AddCommand(submitCmd)
}

func runSubmit(cmd *cobra.Command, args []string) error {
	// loadConfig reads .env first, so the key fallbacks below see it too.
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg.Log.Level)

	orch, cleanup, err := newOrchestrator(cfg, logger)
	defer cleanup()
	if err != nil {
		return err
	}

	req := model.SubmissionRequest{
		GeminiAPIKey:     flagOrEnv(geminiKeyFlag, "GEMINI_API_KEY"),
		SandboxAPIKey:    flagOrEnv(e2bKeyFlag, "E2B_API_KEY"),
		RepositoryURL:    repoFlag,
		RepositoryAPIKey: flagOrEnv(githubKeyFlag, "GITHUB_API_KEY"),
		TaskDescription:  taskFlag,
	}
	// The docker backend ignores the sandbox key, but validation still wants one.
	if req.SandboxAPIKey == "" && cfg.Sandbox.Backend == config.BackendDocker {
		req.SandboxAPIKey = "docker-backend-needs-no-key"
	}

	// Ctrl+C stops waiting; the orchestrator still closes the session.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	resp, err := orch.Submit(ctx, req)
	if err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), resp.PRURL)
	return nil
}

func flagOrEnv(flag, env string) string {
	if flag != "" {
		return flag
	}
	return os.Getenv(env)
}
