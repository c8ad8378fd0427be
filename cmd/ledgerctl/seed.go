package main

import (
	"fmt"

	"github.com/ayo6706/paynxt/internal/app"
	"github.com/ayo6706/paynxt/internal/config"
	"github.com/ayo6706/paynxt/internal/seed"
	"github.com/ayo6706/paynxt/internal/service"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func seedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed [fixture.yaml]",
		Short: "Open accounts with opening balances from a YAML fixture",
		Long: `Open accounts with opening balances from a YAML fixture.

Accounts whose email is already registered are skipped.

Example fixture:
  accounts:
    - email: alice@example.com
      password: correct-horse
      role: CONSUMER
      balance: 10000`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fixture, err := seed.LoadFile(args[0])
			if err != nil {
				return err
			}
			return withLedger(cmd.Context(), func(_ *config.Config, ledger app.Ledger, _ *zap.Logger) error {
				res, err := seed.Apply(cmd.Context(), service.NewAccountService(ledger), fixture)
				if res != nil {
					for _, email := range res.Created {
						fmt.Fprintf(cmd.OutOrStdout(), "created  %s\n", email)
					}
					for _, email := range res.Skipped {
						fmt.Fprintf(cmd.OutOrStdout(), "skipped  %s (already registered)\n", email)
					}
				}
				return err
			})
		},
	}
}
