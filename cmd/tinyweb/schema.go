package main

import (
	"fmt"
	"os"

	"github.com/marmos91/tinyweb/pkg/config"
	"github.com/spf13/cobra"
)

var schemaCmd = &cobra.Command{
	Use:   "schema [file]",
	Short: "Print or write the JSON schema of the configuration",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := config.GenerateSchema()
		if err != nil {
			return err
		}

		if len(args) == 0 {
			_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return err
		}

		if err := os.WriteFile(args[0], data, 0o644); err != nil {
			return fmt.Errorf("failed to write schema: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Schema written to %s\n", args[0])
		return nil
	},
}

func init() {
	rootCmd.AddCommand(schemaCmd)
}
