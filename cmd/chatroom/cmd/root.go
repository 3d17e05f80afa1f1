package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "chatroom",
	Short: "Real-time chat server",
	Long: `chatroom serves the chat HTTP API and the /ws live channel.

Available commands:
  serve      Start the server (default)
  version    Print the version

Configuration is read from the environment and an optional .env file.`,
	RunE: runServe,
}

// Execute executes the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
