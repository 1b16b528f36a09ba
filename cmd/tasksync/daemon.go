package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	gfshutdown "github.com/gelmium/graceful-shutdown"
	"github.com/spf13/cobra"

	"tasksync/backend"
	"tasksync/internal/credentials"
	tsync "tasksync/internal/sync"
	"tasksync/internal/utils"
)

const shutdownTimeout = 15 * time.Second

// session is one running auto-sync: the per-database lock, the scheduler and the optional file watcher
type session struct {
	lock      *tsync.DaemonLock
	scheduler *tsync.Scheduler
	watcher   *tsync.DBWatcher
	creds     *credentials.Credentials
}

// startSession wires everything auto-sync needs. The scheduler is created stopped.
func startSession(app *App) (*session, error) {
	engine, creds, err := app.newEngine()
	if err != nil {
		return nil, err
	}
	dbPath := app.store.DB().Path()

	lock, err := tsync.AcquireDaemonLock(dbPath)
	if err != nil {
		if errors.Is(err, tsync.ErrDaemonRunning) {
			return nil, utils.ErrSyncAlreadyRunning(dbPath)
		}
		return nil, err
	}

	scheduler, err := tsync.NewScheduler(engine, tsync.Options{
		Interval:   app.config.Sync.Interval,
		MaxBackoff: app.config.Sync.MaxBackoff,
		Debounce:   app.config.Sync.Debounce,
	})
	if err != nil {
		lock.Release()
		return nil, err
	}
	scheduler.SetLogOutput(utils.GetLogger().Writer())

	s := &session{lock: lock, scheduler: scheduler, creds: creds}

	// Edits made through this process
	app.store.OnLocalChange(func(kind backend.Kind, id string) {
		if _, err := engine.RefreshPending(); err != nil {
			utils.Debugf("Failed to refresh pending count after %s %s: %v", kind, id, err)
		}
		scheduler.Notify()
	})

	// Edits made by other processes sharing the database
	if app.config.Sync.WatchDB {
		watcher, err := tsync.NewDBWatcher(dbPath, scheduler.Notify)
		if err != nil {
			lock.Release()
			return nil, err
		}
		if err := watcher.Start(); err != nil {
			utils.Warnf("Database watcher disabled: %v", err)
			watcher.Stop()
		} else {
			s.watcher = watcher
		}
	}
	return s, nil
}

func (s *session) stop() {
	if s.watcher != nil {
		if err := s.watcher.Stop(); err != nil {
			utils.Warnf("Failed to stop database watcher: %v", err)
		}
	}
	s.scheduler.Shutdown(shutdownTimeout)
	if err := s.lock.Release(); err != nil {
		utils.Warnf("Failed to release sync lock: %v", err)
	}
}

func newDaemonCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "daemon",
		Short: "Run auto-sync in the foreground until interrupted",
		Long: `Run push/pull rounds on a timer, and shortly after every local change, until
SIGINT or SIGTERM. Only one daemon may run per database.

Failed rounds back off exponentially up to sync.max_backoff and never stop the daemon.
A round in flight when the signal arrives is allowed to finish.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := startSession(app)
			if err != nil {
				return err
			}

			s.scheduler.OnRound(func(r tsync.Round) {
				if r.Err == nil {
					utils.Debugf("Round (%s) completed, %d pending", r.Trigger, s.scheduler.Status().PendingChanges)
				}
			})
			s.scheduler.Start(s.creds.UserID)
			utils.Infof("Sync daemon running for %s against %s (database %s)",
				s.creds.UserID, app.config.Remote.URL, s.lock.Path())
			fmt.Fprintln(os.Stderr, "Sync daemon running. Press Ctrl+C to stop.")

			wait := gfshutdown.GracefulShutdown(
				context.Background(),
				shutdownTimeout+time.Second,
				map[string]gfshutdown.Operation{
					"sync-daemon": func(ctx context.Context) error {
						utils.Infof("Stopping sync daemon")
						s.stop()
						return nil
					},
				},
			)

			exitCode := <-wait
			app.close()
			os.Exit(exitCode)
			return nil
		},
	}
}
