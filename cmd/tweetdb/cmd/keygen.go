/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/ssargent/tweetdb/pkg/identity"
)

// keygenCmd represents the keygen command
var keygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Generate a signing keypair",
	Long: `Generate an ed25519 keypair and write it to the wallet path
(--keypair or wallet.keypair_path). The public key becomes the owner of
every record you create.

Example:
  tweetdb keygen --keypair ./id.json`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		force, _ := cmd.Flags().GetBool("force")
		path := container.Config().Wallet.KeypairPath

		if _, err := os.Stat(path); err == nil && !force {
			return fmt.Errorf("keypair already exists at %s (use --force to overwrite)", path)
		}

		kp, err := identity.GenerateKeypair()
		if err != nil {
			return err
		}
		if err := identity.SaveKeypair(path, kp); err != nil {
			return err
		}

		cmd.Printf("Wrote keypair to %s\n", path)
		cmd.Printf("Public key: %s\n", kp.PublicKey())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(keygenCmd)

	keygenCmd.Flags().Bool("force", false, "Overwrite an existing keypair")
}
