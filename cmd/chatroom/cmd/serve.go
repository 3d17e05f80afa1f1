package cmd

import (
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/nfrund/chatroom/internal/app"
	"github.com/nfrund/chatroom/internal/config"
	"github.com/nfrund/chatroom/internal/logging"
	"github.com/nfrund/chatroom/internal/server"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the chat server",
	Long: `Opens the configured store and session backend, then serves HTTP and
websocket traffic until SIGINT or SIGTERM. On shutdown every open socket is
closed and its user marked offline before the store is released.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	logging.New()
	cfg := config.New()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg)
	if err != nil {
		slog.Error("Failed to initialize application", "error", err)
		return fmt.Errorf("initialize: %w", err)
	}

	slog.Info("Starting chatroom", "version", version, "storage", cfg.StorageBackend, "sessions", cfg.SessionBackend)
	return server.New(a).Run(ctx)
}
