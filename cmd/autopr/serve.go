package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sakif/autopr/internal/server"
)

var portFlag int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the autopr HTTP server",
	Long: `Start the HTTP server.

Endpoints:
  POST /api/submit   run one submission (JSON or form body)
  GET  /healthz      liveness

Examples:
  autopr serve
  autopr serve --port 9090
  PORT=3000 autopr serve --backend docker`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntVar(&portFlag, "port", 0, "Port to listen on (overrides config and PORT)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
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

	port := cfg.Server.Port
	if portFlag > 0 {
		port = portFlag
	}

	srv := server.New(server.Config{
		Port:            port,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	}, orch, logger)

	// Start blocks until the server is shut down (via Ctrl+C or SIGTERM)
	if err := srv.Start(); err != nil {
		return fmt.Errorf("serving: %w", err)
	}
	return nil
}
