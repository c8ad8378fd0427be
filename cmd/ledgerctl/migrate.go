package main

import (
	"fmt"

	"github.com/ayo6706/paynxt/internal/app"
	"github.com/ayo6706/paynxt/internal/config"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations",
		Long: `Apply pending schema migrations to the configured store.

With STORE_DRIVER=postgres the embedded SQL migrations are applied in order.
With STORE_DRIVER=bolt the buckets are created if missing.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withLedger(cmd.Context(), func(cfg *config.Config, _ app.Ledger, _ *zap.Logger) error {
				fmt.Fprintf(cmd.OutOrStdout(), "schema up to date (%s)\n", cfg.StoreDriver)
				return nil
			})
		},
	}
}
