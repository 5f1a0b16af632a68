package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/rs-labo46/ec-fulfillment/internal/app"
)

func serveCmd() *cobra.Command {
	var noSweep bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the pending payment sweeper",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			if noSweep {
				cfg.SweepInterval = 0
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := app.Build(ctx, cfg, logger)
			if err != nil {
				return err
			}
			serveErr := a.Serve(ctx)

			closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := a.Close(closeCtx); err != nil {
				logger.Error("shutdown: " + err.Error())
			}
			return serveErr
		},
	}

	cmd.Flags().BoolVar(&noSweep, "no-sweep", false, "disable the periodic gateway status sweep")
	return cmd
}
