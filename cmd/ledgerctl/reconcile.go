package main

import (
	"encoding/json"
	"errors"

	"github.com/ayo6706/paynxt/internal/app"
	"github.com/ayo6706/paynxt/internal/config"
	"github.com/ayo6706/paynxt/internal/service"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func reconcileCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile",
		Short: "Check ledger invariants and print the report",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withLedger(cmd.Context(), func(_ *config.Config, ledger app.Ledger, _ *zap.Logger) error {
				report, err := service.NewReconciliationService(ledger).Run(cmd.Context())
				if err != nil {
					return err
				}
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				if err := enc.Encode(report); err != nil {
					return err
				}
				if !report.Healthy() {
					return errors.New("ledger invariants violated")
				}
				return nil
			})
		},
	}
}
