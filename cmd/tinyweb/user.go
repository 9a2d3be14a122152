package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/marmos91/tinyweb/pkg/config"
	"github.com/marmos91/tinyweb/pkg/store/credential"
	"github.com/spf13/cobra"
)

var userPassword string

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage accounts in the credential store",
}

var userAddCmd = &cobra.Command{
	Use:   "add <name>",
	Short: "Create an account",
	Long: `Create an account in the configured credential store. The password is
taken from --password or, when omitted, read as one line from stdin.

Only persistent stores (badger) keep the account after this command exits.`,
	Args: cobra.ExactArgs(1),
	RunE: runUserAdd,
}

func init() {
	rootCmd.AddCommand(userCmd)
	userCmd.AddCommand(userAddCmd)
	userAddCmd.Flags().StringVar(&userPassword, "password", "", "Account password (default: read from stdin)")
}

func runUserAdd(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return err
	}

	password := userPassword
	if password == "" {
		line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
		if err != nil && line == "" {
			return fmt.Errorf("failed to read password: %w", err)
		}
		password = strings.TrimRight(line, "\r\n")
	}

	ctx := context.Background()
	store, err := config.CreateCredentialStore(ctx, &cfg.Credentials)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	user, err := credential.NewAuthenticator(store, cfg.Credentials.BcryptCost).Register(ctx, args[0], password)
	if err != nil {
		var storeErr *credential.StoreError
		if errors.As(err, &storeErr) && storeErr.Code == credential.ErrAlreadyExists {
			return fmt.Errorf("user %q already exists", args[0])
		}
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Created user %s (%s)\n", user.Name, user.ID)
	if cfg.Credentials.Type == "memory" {
		fmt.Fprintln(cmd.ErrOrStderr(), "Warning: the memory credential store does not persist accounts")
	}
	return nil
}
