/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"time"

	"github.com/spf13/cobra"
	"github.com/ssargent/tweetdb/pkg/snapshot"
)

// exportCmd represents the export command
var exportCmd = &cobra.Command{
	Use:   "export <path>",
	Short: "Write every record in the local store to a snapshot file",
	Long: `Write every record in the local store to a compressed, checksummed
snapshot file. Export always reads the data directory; --endpoint is ignored.

Example:
  tweetdb export ./backup.tws`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := container.OpenStore()
		if err != nil {
			return err
		}
		defer s.Close()

		info, err := snapshot.ExportFile(args[0], s, time.Now())
		if err != nil {
			return err
		}
		cmd.Printf("Exported %d records to %s\n", info.Records, args[0])
		return nil
	},
}

// importCmd represents the import command
var importCmd = &cobra.Command{
	Use:   "import <path>",
	Short: "Restore records from a snapshot file into the local store",
	Long: `Restore records from a snapshot file into the local store. The whole
snapshot is verified first; an id that is already used, live or deleted,
stops the import before anything is written.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := container.OpenStore()
		if err != nil {
			return err
		}
		defer s.Close()

		info, err := snapshot.ImportFile(args[0], s)
		if err != nil {
			return err
		}
		cmd.Printf("Imported %d records from %s (snapshot taken %s)\n",
			info.Records, args[0], info.CreatedAt.Format(time.RFC3339))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(importCmd)
}
