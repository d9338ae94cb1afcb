/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/ssargent/tweetdb/pkg/config"
	"github.com/ssargent/tweetdb/pkg/identity"
)

// initCmd represents the init command
var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a configuration file and signing keypair",
	Long: `Create a tweetdb configuration file with a generated client API key,
and a signing keypair if none exists yet.

Examples:
  tweetdb init
  tweetdb init --data-dir /var/lib/tweetdb --print-keys
  tweetdb init --config ./tweetdb.yaml --keypair ./id.json --force`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		force, _ := cmd.Flags().GetBool("force")
		printKeys, _ := cmd.Flags().GetBool("print-keys")
		path := configPath(cmd)

		if config.ConfigExists(path) && !force {
			return fmt.Errorf("config already exists at %s (use --force to overwrite)", path)
		}

		dataDir := ""
		if cmd.Flags().Changed("data-dir") {
			dataDir, _ = cmd.Flags().GetString("data-dir")
		}
		cfg, err := config.BootstrapConfig(path, dataDir)
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("keypair") {
			cfg.Wallet.KeypairPath, _ = cmd.Flags().GetString("keypair")
			if err := config.SaveConfig(cfg, path); err != nil {
				return err
			}
		}
		cmd.Printf("Configuration created at %s\n", path)
		cmd.Printf("Data directory: %s\n", cfg.DataDir)

		owner, created, err := ensureKeypair(cfg.Wallet.KeypairPath)
		if err != nil {
			return err
		}
		if created {
			cmd.Printf("Keypair created at %s\n", cfg.Wallet.KeypairPath)
		} else {
			cmd.Printf("Using existing keypair at %s\n", cfg.Wallet.KeypairPath)
		}
		cmd.Printf("Owner: %s\n", owner)

		if printKeys {
			cmd.Printf("\nClient API Key: %s\n", cfg.Security.ClientAPIKey)
			cmd.Printf("Store this key securely! It is also saved in %s\n", path)
		}
		return nil
	},
}

// ensureKeypair loads the keypair at path, creating it when missing
func ensureKeypair(path string) (identity.PublicKey, bool, error) {
	if _, err := os.Stat(path); err == nil {
		kp, err := identity.LoadKeypair(path)
		if err != nil {
			return identity.PublicKey{}, false, err
		}
		return kp.PublicKey(), false, nil
	}

	kp, err := identity.GenerateKeypair()
	if err != nil {
		return identity.PublicKey{}, false, err
	}
	if err := identity.SaveKeypair(path, kp); err != nil {
		return identity.PublicKey{}, false, err
	}
	return kp.PublicKey(), true, nil
}

func init() {
	rootCmd.AddCommand(initCmd)

	initCmd.Flags().Bool("force", false, "Overwrite an existing config file")
	initCmd.Flags().Bool("print-keys", false, "Print the generated client API key")
}
