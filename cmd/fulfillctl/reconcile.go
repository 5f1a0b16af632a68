package main

import (
	"context"
	"encoding/json"
	"time"

	"github.com/spf13/cobra"

	"github.com/rs-labo46/ec-fulfillment/internal/app"
)

func reconcileCmd() *cobra.Command {
	var (
		orderCode string
		minAge    time.Duration
		batch     int
	)

	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Poll the gateway and settle pending gateway orders",
		Long: `Poll the payment gateway for pending orders and apply the result.

Without --code, runs one sweep over pending gateway orders older than --min-age.
With --code, polls and reconciles that single order.

Examples:
  fulfillctl reconcile
  fulfillctl reconcile --code ORD-20261018-AB12CD`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			a, err := app.Build(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer func() {
				closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				_ = a.Close(closeCtx)
			}()

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")

			if orderCode != "" {
				res, err := a.Reconciler.PollAndReconcile(cmd.Context(), orderCode)
				if err != nil {
					return err
				}
				return enc.Encode(res)
			}

			sc := a.SweepConfig()
			if minAge > 0 {
				sc.MinAge = minAge
			}
			if batch > 0 {
				sc.BatchSize = batch
			}
			report, err := a.Reconciler.SweepPending(cmd.Context(), a.Locker, sc)
			if err != nil {
				return err
			}
			return enc.Encode(report)
		},
	}

	cmd.Flags().StringVar(&orderCode, "code", "", "reconcile a single order by its code")
	cmd.Flags().DurationVar(&minAge, "min-age", 0, "only poll orders older than this (default from RECONCILE_SWEEP_MIN_AGE)")
	cmd.Flags().IntVar(&batch, "batch", 0, "maximum orders per sweep (default from RECONCILE_SWEEP_BATCH)")
	return cmd
}
