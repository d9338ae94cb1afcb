/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"github.com/spf13/cobra"
	"github.com/ssargent/tweetdb/pkg/identity"
	"github.com/ssargent/tweetdb/pkg/query"
)

// scanCmd represents the scan command
var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "List records matching every given filter",
	Long: `List records matching every given filter. With no filters every
record is listed.

Examples:
  tweetdb scan --owner 7xKXtg2CW87d97TXJSDpbD5jBkheTqA83TZRuJosgAsU
  tweetdb scan --topic-prefix sol
  tweetdb scan --memcmp 8:7xKXtg2CW87d97TXJSDpbD5jBkheTqA83TZRuJosgAsU`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		filters, err := scanFilters(cmd)
		if err != nil {
			return err
		}

		conn, release, err := openConnection(cmd)
		if err != nil {
			return err
		}
		defer release()

		records, err := conn.Scan(cmd.Context(), filters...)
		if err != nil {
			return err
		}
		return writeJSON(cmd, records)
	},
}

func scanFilters(cmd *cobra.Command) ([]query.Filter, error) {
	var filters []query.Filter

	if owner, _ := cmd.Flags().GetString("owner"); owner != "" {
		pk, err := identity.ParsePublicKey(owner)
		if err != nil {
			return nil, err
		}
		filters = append(filters, query.OwnerIs(pk))
	}

	fields := []struct {
		flag  string
		build func(string) query.FieldMatch
	}{
		{"topic", query.TopicEquals},
		{"topic-prefix", query.TopicPrefix},
		{"content", query.ContentEquals},
		{"content-prefix", query.ContentPrefix},
	}
	for _, f := range fields {
		if cmd.Flags().Changed(f.flag) {
			v, _ := cmd.Flags().GetString(f.flag)
			filters = append(filters, f.build(v))
		}
	}

	memcmps, _ := cmd.Flags().GetStringArray("memcmp")
	for _, s := range memcmps {
		m, err := query.ParseMemcmp(s)
		if err != nil {
			return nil, err
		}
		filters = append(filters, m)
	}

	return filters, query.ValidateAll(filters)
}

func init() {
	rootCmd.AddCommand(scanCmd)

	scanCmd.Flags().String("owner", "", "Only records owned by this public key")
	scanCmd.Flags().String("topic", "", "Only records with exactly this topic")
	scanCmd.Flags().String("topic-prefix", "", "Only records whose topic starts with this")
	scanCmd.Flags().String("content", "", "Only records with exactly this content")
	scanCmd.Flags().String("content-prefix", "", "Only records whose content starts with this")
	scanCmd.Flags().StringArray("memcmp", nil, "Raw filter offset:base58bytes (repeatable)")
}
