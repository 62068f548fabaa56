package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"

	"mergedesk/internal/logging"
	"mergedesk/internal/notify"
	"mergedesk/internal/preflight"
	"mergedesk/internal/server"
)

func newServeCommand(ctx *commandContext) *cobra.Command {
	var bind string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve review sessions over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if bind != "" {
				cfg.Paths.APIBind = bind
			}
			logger := ctx.loggerValue()

			lock := flock.New(cfg.LockPath())
			locked, err := lock.TryLock()
			if err != nil {
				return fmt.Errorf("acquire server lock: %w", err)
			}
			if !locked {
				return fmt.Errorf("another mergedesk server is already using %s", cfg.Paths.StateDir)
			}
			defer func() { _ = lock.Unlock() }()

			backend, err := ctx.backend()
			if err != nil {
				return err
			}
			for _, r := range preflight.Failed(preflight.RunAll(cmd.Context(), cfg, backend)) {
				logging.WarnWithContext(logger, "preflight check failed", "preflight_failed",
					logging.String("check", r.Name),
					logging.String(logging.FieldErrorHint, r.Detail),
				)
			}
			store, err := ctx.openJournal()
			if err != nil {
				return err
			}

			runCtx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			srv := server.New(server.Options{
				Config:  cfg,
				Backend: backend,
				Journal: store,
				Sink:    notify.NewNtfy(cfg, logger),
				Logger:  logger,
			})
			if err := srv.Start(runCtx); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Listening on http://%s\n", srv.Addr())

			<-runCtx.Done()
			srv.Stop()
			logger.Info("server stopped", logging.String("address", cfg.Paths.APIBind))
			return nil
		},
	}

	cmd.Flags().StringVar(&bind, "bind", "", "Override paths.api_bind")
	return cmd
}
