// file: cmd/login.go
// version: 1.0.0
// guid: 19c0a585-0d27-4bad-8f74-1a49ee8b3755

package cmd

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/jdfalk/filesync/internal/account"
	"github.com/jdfalk/filesync/internal/config"
)

// loginCmd represents the login command
var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Save the account to the config file",
	Long: `Check the account given with --server, --user and --token and write it,
together with the rest of the current configuration, to the config file.
A running daemon picks the change up on SIGHUP.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runLogin(cmd.OutOrStdout())
	},
}

func runLogin(out io.Writer) error {
	cfg := config.AppConfig
	if cfg.ServerURL == "" {
		return errors.New("--server is required")
	}
	if cfg.Username == "" {
		return errors.New("--user is required")
	}

	acct := cfg.Account()
	if !acct.IsValid() {
		return fmt.Errorf("--token is required: %w", account.ErrInvalid)
	}
	if _, err := acct.AbsoluteURL("/api2/"); err != nil {
		return fmt.Errorf("invalid --server: %w", err)
	}

	if err := config.SaveConfigToFile(); err != nil {
		return err
	}
	fmt.Fprintf(out, "Saved %s to %s\n", acct, config.ConfigFilePath())
	return nil
}
