package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"tasksync/backend"
	"tasksync/internal/utils"
)

func newDBCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "db",
		Short: "Maintain the local database",
	}
	cmd.AddCommand(newDBStatsCmd(app))
	cmd.AddCommand(newDBCompactCmd(app))
	return cmd
}

func newDBStatsCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show database statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := app.openStore()
			if err != nil {
				return err
			}
			stats, err := store.DB().GetStats()
			if err != nil {
				return err
			}
			if app.output != utils.FormatText {
				return utils.Write(os.Stdout, app.output, stats)
			}
			fmt.Printf("Database: %s\n", store.DB().Path())
			fmt.Println(stats)
			return nil
		},
	}
}

func newDBCompactCmd(app *App) *cobra.Command {
	var (
		olderThan time.Duration
		force     bool
	)

	cmd := &cobra.Command{
		Use:   "compact",
		Short: "Purge old tombstones and vacuum",
		Long: `Remove deletion tombstones older than --older-than, then VACUUM the file.

Only tombstones that were already pushed are purged: anything deleted after the
last sync checkpoint is kept so the deletion still reaches the remote.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := app.openStore()
			if err != nil {
				return err
			}
			status, err := store.LoadStatus()
			if err != nil {
				return err
			}
			if status.LastSyncAt == nil {
				return utils.WrapWithSuggestion(
					fmt.Errorf("this device has never synced, its tombstones are still pending"),
					"Run 'tasksync sync' first")
			}

			before := time.Now().Add(-olderThan)
			if status.LastSyncAt.Before(before) {
				before = *status.LastSyncAt
			}

			if !force && !utils.PromptYesNo(fmt.Sprintf("Purge tombstones deleted before %s?", before.Local().Format(time.RFC822))) {
				fmt.Println("Cancelled")
				return nil
			}

			var purged int64
			for _, kind := range backend.Kinds {
				n, err := store.PurgeTombstones(kind, before)
				if err != nil {
					return err
				}
				purged += n
			}
			if err := store.DB().Vacuum(); err != nil {
				return fmt.Errorf("vacuum failed: %w", err)
			}

			stats, err := store.DB().GetStats()
			if err != nil {
				return err
			}
			fmt.Printf("Purged %d tombstones\n%s\n", purged, stats)
			return nil
		},
	}

	cmd.Flags().DurationVar(&olderThan, "older-than", 30*24*time.Hour, "minimum age of purged tombstones")
	cmd.Flags().BoolVarP(&force, "force", "f", false, "do not ask for confirmation")
	return cmd
}
