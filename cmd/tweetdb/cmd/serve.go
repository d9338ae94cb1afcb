/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/ssargent/tweetdb/pkg/api"
	"github.com/ssargent/tweetdb/pkg/config"
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the tweetdb REST API server",
	Long: `Start the tweetdb REST API server over the configured storage backend.

The server exposes transactions and record queries under /api/v1,
Prometheus metrics at /metrics and API docs at /swagger/.

Examples:
  tweetdb serve
  tweetdb serve --port 9000 --bind 0.0.0.0`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := container.Config()
		if cmd.Flags().Changed("port") {
			cfg.Port, _ = cmd.Flags().GetInt("port")
		}
		if cmd.Flags().Changed("bind") {
			cfg.Bind, _ = cmd.Flags().GetString("bind")
		}
		if cfg.Security.ClientAPIKey == "auto" {
			key, err := config.GenerateSecureKey(32)
			if err != nil {
				return err
			}
			cfg.Security.ClientAPIKey = key
			cmd.Printf("No client API key configured; generated one for this run: %s\n", key)
		}

		l, err := container.OpenLedger(true)
		if err != nil {
			return err
		}
		defer l.Close()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		cmd.Printf("Starting tweetdb server on %s\n", cfg.Addr())
		cmd.Printf("Data directory: %s (%s backend)\n", cfg.DataDir, cfg.Storage.Backend)

		starter := container.GetServerFactory().CreateServerStarter()
		return starter.StartServer(ctx, l, container.ServerConfig(),
			api.WithLogger(container.Logger()),
			api.WithMetrics(container.Metrics()))
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().IntP("port", "p", 8899, "Port to listen on")
	serveCmd.Flags().StringP("bind", "b", "127.0.0.1", "Address to bind to")
}
