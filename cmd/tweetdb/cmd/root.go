/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/ssargent/tweetdb/pkg/api"
	"github.com/ssargent/tweetdb/pkg/config"
	"github.com/ssargent/tweetdb/pkg/di"
	"github.com/ssargent/tweetdb/pkg/identity"
	"github.com/ssargent/tweetdb/pkg/logging"
	"github.com/ssargent/tweetdb/pkg/workspace"
)

var (
	container     *di.Container
	serverFactory api.ServerFactory
)

// SetServerFactory overrides how serve starts the API server (for testing)
func SetServerFactory(f api.ServerFactory) {
	serverFactory = f
}

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "tweetdb",
	Short: "tweetdb - signed tweet record store",
	Long: `tweetdb stores short signed posts as fixed-layout records keyed by
their own public key. Record commands run against a local store in the data
directory, or against a tweetdb server when --endpoint is set.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		logger := logging.New(cfg.Logging, cmd.ErrOrStderr())
		container = di.NewContainer(cfg, logger)
		if serverFactory != nil {
			container.SetServerFactory(serverFactory)
		}
		return nil
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "Config file (default ~/.config/tweetdb/config.yaml)")
	rootCmd.PersistentFlags().StringP("data-dir", "d", "", "Data directory for the store")
	rootCmd.PersistentFlags().StringP("endpoint", "e", "", "tweetdb server URL; record commands run locally when empty")
	rootCmd.PersistentFlags().StringP("keypair", "k", "", "Signing keypair file")
}

func configPath(cmd *cobra.Command) string {
	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		path = config.GetDefaultConfigPath()
	}
	return path
}

// loadConfig reads the config file when present, falls back to defaults,
// and applies flag overrides.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path := configPath(cmd)

	cfg := config.DefaultConfig()
	if config.ConfigExists(path) {
		loaded, err := config.LoadConfig(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if cmd.Flags().Changed("data-dir") {
		cfg.DataDir, _ = cmd.Flags().GetString("data-dir")
	}
	if cmd.Flags().Changed("keypair") {
		cfg.Wallet.KeypairPath, _ = cmd.Flags().GetString("keypair")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration in %s: %w", path, err)
	}
	return cfg, nil
}

// openConnection connects to the remote endpoint when one is set and to the
// local store otherwise. The returned func releases the connection.
func openConnection(cmd *cobra.Command) (workspace.Connection, func(), error) {
	endpoint, _ := cmd.Flags().GetString("endpoint")
	conn, closer, err := container.OpenConnection(endpoint)
	if err != nil {
		return nil, nil, err
	}
	return conn, func() {
		if err := closer.Close(); err != nil {
			container.Logger().Warn("close connection", "error", err)
		}
	}, nil
}

// openWorkspace loads the signing wallet and pairs it with a connection
func openWorkspace(cmd *cobra.Command) (*workspace.Workspace, func(), error) {
	wallet, err := identity.LoadKeypair(container.Config().Wallet.KeypairPath)
	if err != nil {
		return nil, nil, fmt.Errorf("%w (run 'tweetdb keygen' to create one)", err)
	}

	conn, release, err := openConnection(cmd)
	if err != nil {
		return nil, nil, err
	}

	ws, err := workspace.New(wallet, conn)
	if err != nil {
		release()
		return nil, nil, err
	}
	return ws, release, nil
}
