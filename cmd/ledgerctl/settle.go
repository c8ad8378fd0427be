package main

import (
	"fmt"

	"github.com/ayo6706/paynxt/internal/app"
	"github.com/ayo6706/paynxt/internal/config"
	"github.com/ayo6706/paynxt/internal/service"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func sweepCmd() *cobra.Command {
	var batch int32
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Run a single settlement pass over the oldest pending transactions",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withLedger(cmd.Context(), func(cfg *config.Config, ledger app.Ledger, logger *zap.Logger) error {
				w := app.NewSettlementWorker(ledger, cfg, logger)
				if batch > 0 {
					w.WithBatchSize(batch)
				}
				summary, err := w.ProcessOnce(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "fetched=%d completed=%d failed=%d skipped=%d errors=%d\n",
					summary.Fetched, summary.Completed, summary.Failed, summary.Skipped, summary.Errors)
				if summary.Errors > 0 {
					return fmt.Errorf("%d transactions could not be settled and stay pending", summary.Errors)
				}
				return nil
			})
		},
	}
	cmd.Flags().Int32VarP(&batch, "batch", "n", 0, "override BATCH_SIZE for this pass")
	return cmd
}

func settleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "settle [transaction-id]",
		Short: "Settle one pending transaction now",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid transaction id %q: %w", args[0], err)
			}
			return withLedger(cmd.Context(), func(_ *config.Config, ledger app.Ledger, _ *zap.Logger) error {
				result, err := service.NewSettlementService(ledger).Settle(cmd.Context(), id)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s status=%s", result.TransactionID, result.Outcome, result.Status)
				if result.FailureReason != nil {
					fmt.Fprintf(cmd.OutOrStdout(), " reason=%q", *result.FailureReason)
				}
				fmt.Fprintln(cmd.OutOrStdout())
				return nil
			})
		},
	}
}
