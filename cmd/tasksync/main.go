package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"tasksync/backend"
	"tasksync/backend/sqlite"
	backendsync "tasksync/backend/sync"
	"tasksync/internal/config"
	"tasksync/internal/credentials"
	"tasksync/internal/operations"
	"tasksync/internal/utils"
)

// App holds what every command shares: the loaded config and a lazily opened store
type App struct {
	config *config.Config
	store  *sqlite.Store
	output utils.OutputFormat
}

func (a *App) openStore() (*sqlite.Store, error) {
	if a.store != nil {
		return a.store, nil
	}
	store, err := sqlite.Open(a.config.Database.Path)
	if err != nil {
		return nil, err
	}
	a.store = store
	return store, nil
}

func (a *App) service() (*operations.Service, error) {
	store, err := a.openStore()
	if err != nil {
		return nil, err
	}
	return operations.NewService(store), nil
}

// newEngine checks the sync gate, resolves the token and wires an engine to the HTTP remote
func (a *App) newEngine() (*backendsync.Engine, *credentials.Credentials, error) {
	if err := a.config.CanSync(); err != nil {
		return nil, nil, err
	}

	creds, err := credentials.NewResolver().Resolve(a.config.UserID, a.config.Remote.Token)
	if err != nil {
		return nil, nil, err
	}
	utils.Debugf("Using token from %s for %s", creds.Source, creds.UserID)

	store, err := a.openStore()
	if err != nil {
		return nil, nil, err
	}

	remote := backend.NewHTTPRemote(a.config.Remote.URL, creds.Token, a.config.Remote.Timeout)
	engine, err := backendsync.NewEngine(store, store, remote)
	if err != nil {
		return nil, nil, err
	}
	return engine, creds, nil
}

func (a *App) close() {
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			utils.Warnf("Failed to close database: %v", err)
		}
		a.store = nil
	}
	_ = utils.GetLogger().Close()
}

func newRootCmd(app *App) *cobra.Command {
	var (
		configPath string
		verbose    bool
		output     string
	)

	rootCmd := &cobra.Command{
		Use:           "tasksync",
		Short:         "Local-first tasks with background sync",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if configPath != "" {
				config.SetCustomConfigPath(configPath)
			}
			path, err := config.GetConfigPath()
			if err != nil {
				return err
			}
			cfg, err := config.Load(path)
			if err != nil {
				return err
			}
			app.config = cfg

			if app.output, err = utils.ParseOutputFormat(output); err != nil {
				return err
			}

			utils.SetVerboseMode(verbose || cfg.Log.Verbose)
			if cfg.Log.File != "" {
				if err := utils.ConfigureLogFile(cfg.Log.File, cfg.Log.MaxSizeMB, cfg.Log.MaxBackups); err != nil {
					return fmt.Errorf("failed to open log file: %w", err)
				}
			}
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			app.close()
		},
	}

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default is $XDG_CONFIG_HOME/tasksync/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVarP(&output, "output", "o", "text", "output format: text, json, yaml")

	rootCmd.AddCommand(newTaskCmd(app))
	rootCmd.AddCommand(newDomainCmd(app))
	rootCmd.AddCommand(newSyncCmd(app))
	rootCmd.AddCommand(newDaemonCmd(app))
	rootCmd.AddCommand(newServeCmd(app))
	rootCmd.AddCommand(newCredentialsCmd(app))
	rootCmd.AddCommand(newConfigCmd(app))
	rootCmd.AddCommand(newDBCmd(app))

	return rootCmd
}

func main() {
	app := &App{}
	rootCmd := newRootCmd(app)
	if err := rootCmd.Execute(); err != nil {
		app.close()
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
