package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/m1kah/livegrid"
	"github.com/m1kah/livegrid/config"
)

const (
	shutdownTimeout = 10 * time.Second
)

// newLogger creates a JSON logger for CLI use.
func newLogger(level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the grid server",
	Long: `Start the livegrid server.

The server will:
  - Load configuration from the specified YAML file
  - Seed the record store and refresh it on a fixed schedule
  - Serve the grid UI and change streams on the configured port

The server runs until interrupted (Ctrl+C) or receives SIGTERM.

Example:
  livegrid serve -c livegrid.yaml
  livegrid serve --config /etc/livegrid/livegrid.yaml`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringP("config", "c", "", "path to config file (required)")
	_ = serveCmd.MarkFlagRequired("config")
}

func runServe(cmd *cobra.Command, args []string) error {
	configFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger := newLogger(cfg.Level())
	logger.Info("config loaded",
		"records", len(cfg.Records),
		"samples", len(cfg.Samples),
		"relay", cfg.Relay.RedisAddr != "",
	)

	lg, err := livegrid.New(config.BuildOptions(cfg, logger)...)
	if err != nil {
		return fmt.Errorf("failed to create livegrid: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errChan := make(chan error, 1)
	go func() {
		errChan <- lg.Start(ctx)
	}()

	select {
	case err := <-errChan:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		logger.Info("shutdown complete")
		return nil

	case <-ctx.Done():
		select {
		case err := <-errChan:
			if err != nil {
				return fmt.Errorf("server error: %w", err)
			}
			logger.Info("shutdown complete")
			return nil
		case <-time.After(shutdownTimeout):
			logger.Warn("shutdown timed out",
				"timeout", shutdownTimeout.String(),
				"action", "forcing exit",
			)
			return nil
		}
	}
}
