package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"tasksync/backend"
	backendsync "tasksync/backend/sync"
	"tasksync/internal/cli"
	tsync "tasksync/internal/sync"
	"tasksync/internal/utils"
)

// syncReport is the structured output of `tasksync sync`
type syncReport struct {
	Push   *backendsync.PushResult `json:"push,omitempty" yaml:"push,omitempty"`
	Pull   *backendsync.PullResult `json:"pull,omitempty" yaml:"pull,omitempty"`
	Status backend.SyncStatus      `json:"status" yaml:"status"`
	Error  string                  `json:"error,omitempty" yaml:"error,omitempty"`
}

func newSyncCmd(app *App) *cobra.Command {
	var pushOnly, pullOnly bool

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Push local changes and pull remote ones",
		Long: `Run one sync round: push every local change made since the last checkpoint,
then pull every remote change. Conflicts are resolved by last-write-wins on updatedAt.

Examples:
  tasksync sync                # push then pull
  tasksync sync --push-only
  tasksync sync status         # last sync, pending changes, last error
  tasksync sync watch          # live status with auto-sync running`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if pushOnly && pullOnly {
				return fmt.Errorf("--push-only and --pull-only are mutually exclusive")
			}

			engine, creds, err := app.newEngine()
			if err != nil {
				return err
			}

			// Running next to a daemon would give the database two engines
			lock, err := tsync.AcquireDaemonLock(app.store.DB().Path())
			if err != nil {
				if errors.Is(err, tsync.ErrDaemonRunning) {
					return utils.WrapWithSuggestion(err, "The sync daemon already syncs this database; check 'tasksync sync status'")
				}
				return err
			}
			defer lock.Release()

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}

			report := syncReport{}
			var pushErr, pullErr error
			if !pullOnly {
				report.Push, pushErr = engine.Push(ctx, creds.UserID)
			}
			if !pushOnly {
				report.Pull, pullErr = engine.Pull(ctx, creds.UserID)
			}
			syncErr := errors.Join(pushErr, pullErr)
			report.Status = engine.Status()
			if syncErr != nil {
				report.Error = syncErr.Error()
			}

			if app.output != utils.FormatText {
				if err := utils.Write(os.Stdout, app.output, report); err != nil {
					return err
				}
				return explainSyncError(app, syncErr)
			}

			fmt.Println(cli.FormatRound(tsync.Round{At: time.Now(), Trigger: tsync.TriggerManual, Push: report.Push, Pull: report.Pull, Err: syncErr}))
			cli.ShowStatus(os.Stdout, report.Status)
			return explainSyncError(app, syncErr)
		},
	}

	cmd.Flags().BoolVar(&pushOnly, "push-only", false, "only push local changes")
	cmd.Flags().BoolVar(&pullOnly, "pull-only", false, "only pull remote changes")

	cmd.AddCommand(newSyncStatusCmd(app))
	cmd.AddCommand(newSyncWatchCmd(app))
	return cmd
}

// explainSyncError attaches a suggestion to the usual failures
func explainSyncError(app *App, err error) error {
	if err == nil {
		return nil
	}
	var backendErr *backend.BackendError
	if errors.As(err, &backendErr) {
		switch {
		case backendErr.IsUnauthorized():
			return utils.ErrAuthenticationFailed()
		case backendErr.IsTransport():
			reason := backendErr.Message
			if backendErr.Err != nil {
				reason = backendErr.Err.Error()
			}
			return utils.ErrRemoteOffline(app.config.Remote.URL, reason)
		}
	}
	return err
}

func newSyncStatusCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the sync status",
		Long: `Show when this device last synced, how many local changes are waiting
to be pushed, and the last error. Works offline.`,
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

			// The persisted count may be stale if edits happened while no engine was running
			pending := 0
			for _, kind := range backend.Kinds {
				n, err := store.CountChangedSince(kind, status.Local())
				if err != nil {
					return err
				}
				pending += n
			}
			status.PendingChanges = pending

			if lock, err := tsync.AcquireDaemonLock(store.DB().Path()); err == nil {
				lock.Release()
			} else if errors.Is(err, tsync.ErrDaemonRunning) {
				utils.Debugf("A sync daemon holds %s", tsync.LockPath(store.DB().Path()))
				if app.output == utils.FormatText {
					fmt.Println("Daemon: running")
				}
			}

			if app.output != utils.FormatText {
				return utils.Write(os.Stdout, app.output, status)
			}
			cli.ShowStatus(os.Stdout, status)
			if err := app.config.CanSync(); err != nil {
				fmt.Println()
				fmt.Println(err)
			}
			return nil
		},
	}
}

func newSyncWatchCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Run auto-sync with a live status view",
		Long: `Start auto-sync in this terminal and show the status chip and recent rounds.
Press "s" to sync now and "q" to quit. Quitting lets a round in flight finish.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := startSession(app)
			if err != nil {
				return err
			}
			defer s.stop()

			// Round logs on stderr would draw over the view
			if utils.GetLogger().Writer() == os.Stderr {
				s.scheduler.SetLogOutput(io.Discard)
			}

			rounds := make(chan tsync.Round, 16)
			s.scheduler.OnRound(func(r tsync.Round) {
				select {
				case rounds <- r:
				default:
				}
			})

			userID := s.creds.UserID
			model := cli.NewWatchModel(s.scheduler.Status, rounds, func() error {
				_, err := s.scheduler.SyncNow(context.Background(), userID)
				return err
			})

			s.scheduler.Start(userID)
			_, err = tea.NewProgram(model, tea.WithAltScreen()).Run()
			return err
		},
	}
}
