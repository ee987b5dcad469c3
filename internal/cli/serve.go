package cli

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/coreeng/check-dispatch/internal/server"
)

func newServeCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Receive GitHub webhooks and dispatch matching jobs",
		Long: `Receive GitHub webhooks on POST /webhook and dispatch matching jobs.

GitHub's pull_request deliveries do not list the changed files, so the
sender must add a "modified_files" array of repository paths to the JSON
body; pull request deliveries without it are rejected with 400. Push
deliveries take their files from the commit lists. Other event kinds are
skipped.

Completions are reported on POST /dispatches/{id}/complete with a body of
{"outcome": "success" | "failure" | "cancelled"}. With a ledger
configured, dispatches left open by a previous run are restored at startup.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := loadDocument()
			if err != nil {
				return err
			}
			d, l, closeFn, err := newDispatcher(cmd.Context(), doc)
			if err != nil {
				return err
			}
			defer closeFn()

			opts := []server.Option{
				server.WithLogger(logger),
				server.WithWebhookSecret(settings.Server.WebhookSecret),
			}
			if l != nil {
				opts = append(opts, server.WithHistory(l))
			}

			if addr == "" {
				addr = settings.Server.Addr
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return server.New(d, opts...).ListenAndServe(ctx, addr)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides server.addr)")
	return cmd
}
