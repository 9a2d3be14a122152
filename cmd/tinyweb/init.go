package main

import (
	"fmt"

	"github.com/marmos91/tinyweb/pkg/config"
	"github.com/spf13/cobra"
)

var initForce bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default configuration file",
	Long: `Write a default configuration file to --config, or to
$XDG_CONFIG_HOME/tinyweb/config.yaml when no path is given.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		path := configFile
		if path == "" {
			var err error
			if path, err = config.InitConfig(initForce); err != nil {
				return err
			}
		} else if err := config.InitConfigToPath(path, initForce); err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Configuration written to %s\n", path)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
	initCmd.Flags().BoolVarP(&initForce, "force", "f", false, "Overwrite an existing file")
}
