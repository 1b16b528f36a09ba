package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"tasksync/internal/config"
	"tasksync/internal/utils"
)

func newConfigCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect or create the configuration file",
	}
	cmd.AddCommand(newConfigInitCmd(app))
	cmd.AddCommand(newConfigShowCmd(app))
	return cmd
}

func newConfigInitCmd(app *App) *cobra.Command {
	var (
		userID string
		force  bool
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a sample configuration file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := config.GetConfigPath()
			if err != nil {
				return err
			}
			if userID == "" {
				userID = app.config.UserID
			}
			if err := config.WriteSample(path, userID, force); err != nil {
				return utils.WrapWithSuggestion(err, "Use --force to overwrite it")
			}
			fmt.Printf("Configuration written to %s\n", path)
			return nil
		},
	}

	cmd.Flags().StringVar(&userID, "user", "", "user identifier to put in the file")
	cmd.Flags().BoolVarP(&force, "force", "f", false, "overwrite an existing file")
	return cmd
}

func newConfigShowCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		Long:  "Print the configuration after defaults and TASKSYNC_* environment overrides. Tokens are masked.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			effective := *app.config
			effective.Remote.Token = maskToken(effective.Remote.Token)
			effective.Server.Token = maskToken(effective.Server.Token)

			format := app.output
			if format == utils.FormatText {
				format = utils.FormatYAML
			}
			return utils.Write(os.Stdout, format, effective)
		},
	}
}
