/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"encoding/json"

	"github.com/spf13/cobra"
	"github.com/ssargent/tweetdb/pkg/identity"
	"github.com/ssargent/tweetdb/pkg/ledger"
)

// createCmd represents the create command
var createCmd = &cobra.Command{
	Use:   "create <topic> <content>",
	Short: "Create a record owned by your keypair",
	Long: `Create a record under a freshly generated record key. The record key
and your keypair both sign the transaction.

Example:
  tweetdb create solana "gm"`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ws, release, err := openWorkspace(cmd)
		if err != nil {
			return err
		}
		defer release()

		receipt, err := ws.SendRecord(cmd.Context(), args[0], args[1])
		if err != nil {
			return err
		}
		printReceipt(cmd, receipt)
		return nil
	},
}

// updateCmd represents the update command
var updateCmd = &cobra.Command{
	Use:   "update <id> <topic> <content>",
	Short: "Replace the topic and content of a record you own",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := identity.ParsePublicKey(args[0])
		if err != nil {
			return err
		}

		ws, release, err := openWorkspace(cmd)
		if err != nil {
			return err
		}
		defer release()

		receipt, err := ws.UpdateRecord(cmd.Context(), id, args[1], args[2])
		if err != nil {
			return err
		}
		printReceipt(cmd, receipt)
		return nil
	},
}

// deleteCmd represents the delete command
var deleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a record you own",
	Long: `Delete a record you own. Its id is retired and cannot be reused.

Example:
  tweetdb delete 7xKXtg2CW87d97TXJSDpbD5jBkheTqA83TZRuJosgAsU`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := identity.ParsePublicKey(args[0])
		if err != nil {
			return err
		}

		ws, release, err := openWorkspace(cmd)
		if err != nil {
			return err
		}
		defer release()

		receipt, err := ws.DeleteRecord(cmd.Context(), id)
		if err != nil {
			return err
		}
		printReceipt(cmd, receipt)
		return nil
	},
}

// getCmd represents the get command
var getCmd = &cobra.Command{
	Use:   "get <id>",
	Short: "Print a record",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := identity.ParsePublicKey(args[0])
		if err != nil {
			return err
		}

		conn, release, err := openConnection(cmd)
		if err != nil {
			return err
		}
		defer release()

		record, err := conn.Fetch(cmd.Context(), id)
		if err != nil {
			return err
		}
		return writeJSON(cmd, record)
	},
}

func printReceipt(cmd *cobra.Command, r *ledger.Receipt) {
	cmd.Printf("%s %s\n", r.Kind, r.ID)
	if r.Record != nil {
		cmd.Printf("Record: %s\n", r.Record.ID)
	}
	cmd.Printf("Signature: %s\n", r.Signature)
	cmd.Printf("Slot: %d (%s)\n", r.Slot, r.Commitment)
}

func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func init() {
	rootCmd.AddCommand(createCmd)
	rootCmd.AddCommand(updateCmd)
	rootCmd.AddCommand(deleteCmd)
	rootCmd.AddCommand(getCmd)
}
