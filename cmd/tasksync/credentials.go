package main

import (
	"fmt"
	"os"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"tasksync/internal/credentials"
	"tasksync/internal/utils"
)

func newCredentialsCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "credentials",
		Short: "Manage the remote token",
		Long: `Securely manage the bearer token sent to the remote authority.

The token is looked up in this order:
  1. System keyring (most secure) - recommended
  2. TASKSYNC_TOKEN environment variable (good for CI)
  3. remote.token in the config file (least secure)

Examples:
  tasksync credentials set --prompt
  tasksync credentials get
  tasksync credentials delete`,
	}

	cmd.AddCommand(newCredentialsSetCmd(app))
	cmd.AddCommand(newCredentialsGetCmd(app))
	cmd.AddCommand(newCredentialsDeleteCmd(app))
	return cmd
}

func configuredUser(app *App) (string, error) {
	if strings.TrimSpace(app.config.UserID) == "" {
		return "", utils.ErrMissingUserID()
	}
	return app.config.UserID, nil
}

func newCredentialsSetCmd(app *App) *cobra.Command {
	var prompt bool

	cmd := &cobra.Command{
		Use:   "set [token]",
		Short: "Store the token in the system keyring",
		Long: `Store the remote token for the configured user in the system keyring.
Use --prompt to type it without leaving it in your shell history.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := configuredUser(app)
			if err != nil {
				return err
			}

			var token string
			switch {
			case prompt:
				fmt.Printf("Enter token for %s: ", userID)
				tokenBytes, err := term.ReadPassword(int(syscall.Stdin))
				fmt.Println()
				if err != nil {
					return fmt.Errorf("failed to read token: %w", err)
				}
				token = string(tokenBytes)
			case len(args) == 1:
				token = args[0]
			default:
				return fmt.Errorf("token is required (use --prompt for interactive input)")
			}

			if err := credentials.Set(userID, token); err != nil {
				if !credentials.IsAvailable() {
					return utils.WrapWithSuggestion(err,
						fmt.Sprintf("The system keyring is not available. Export %s instead", credentials.TokenEnvVar))
				}
				return err
			}
			fmt.Printf("Token for %s stored in the system keyring\n", userID)
			return nil
		},
	}

	cmd.Flags().BoolVar(&prompt, "prompt", false, "read the token interactively")
	return cmd
}

func newCredentialsGetCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "get",
		Short: "Show where the token comes from",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := configuredUser(app)
			if err != nil {
				return err
			}
			creds, err := credentials.NewResolver().Resolve(userID, app.config.Remote.Token)
			if err != nil {
				return err
			}

			if creds.Source == credentials.SourceNone {
				fmt.Fprintf(os.Stderr, "No token found for %s; requests will be sent without one\n", userID)
				return nil
			}
			fmt.Printf("User:   %s\n", creds.UserID)
			fmt.Printf("Source: %s\n", creds.Source)
			fmt.Printf("Token:  %s\n", maskToken(creds.Token))
			return nil
		},
	}
}

func newCredentialsDeleteCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "delete",
		Short: "Remove the token from the system keyring",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := configuredUser(app)
			if err != nil {
				return err
			}
			if err := credentials.Delete(userID); err != nil {
				return err
			}
			fmt.Printf("Token for %s removed from the system keyring\n", userID)
			return nil
		},
	}
}

func maskToken(token string) string {
	if len(token) <= 4 {
		return strings.Repeat("*", len(token))
	}
	return strings.Repeat("*", len(token)-4) + token[len(token)-4:]
}
