package main

import (
	"context"
	"fmt"
	"os"

	gfshutdown "github.com/gelmium/graceful-shutdown"
	"github.com/spf13/cobra"

	"tasksync/internal/remote"
	"tasksync/internal/utils"
)

func newServeCmd(app *App) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run an in-memory remote authority",
		Long: `Serve the push/pull contract over HTTP from memory, for development and tests.
Data is lost when the server stops.

Endpoints:
  GET  /health
  POST /sync/push
  POST /sync/pull

Requests must carry the X-User-ID header, and "Authorization: Bearer <token>"
when server.token is set.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if addr == "" {
				addr = app.config.Server.Addr
			}
			if app.config.Server.Token == "" {
				utils.Warnf("server.token is empty: the sync endpoints accept any client")
			}

			srv := remote.NewServer(addr, app.config.Server.Token, remote.NewAuthority())
			srv.Start()
			fmt.Fprintf(os.Stderr, "Remote authority listening on %s. Press Ctrl+C to stop.\n", addr)

			wait := gfshutdown.GracefulShutdown(
				context.Background(),
				shutdownTimeout,
				map[string]gfshutdown.Operation{
					"http-server": func(ctx context.Context) error {
						return srv.Stop(ctx)
					},
				},
			)

			exitCode := <-wait
			app.close()
			os.Exit(exitCode)
			return nil
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default server.addr)")
	return cmd
}
