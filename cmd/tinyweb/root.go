package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// configFile is shared by every command that loads configuration.
var configFile string

var rootCmd = &cobra.Command{
	Use:   "tinyweb",
	Short: "A small epoll-based HTTP server",
	Long: `TinyWeb serves static files over HTTP/1.1 with keep-alive, and
handles the login and registration forms against a credential store.

Configuration is read from $XDG_CONFIG_HOME/tinyweb/config.yaml (or
--config), then TINYWEB_* environment variables, then command flags.`,
	Version:       fmt.Sprintf("%s (commit %s, built %s)", Version, Commit, BuildDate),
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Path to config file (default: $XDG_CONFIG_HOME/tinyweb/config.yaml)")
}
