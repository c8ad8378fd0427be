package main

import (
	"context"
	"fmt"
	"os"

	"github.com/ayo6706/paynxt/internal/app"
	"github.com/ayo6706/paynxt/internal/config"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var Version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:           "ledgerctl",
		Short:         "Operator tool for the paynxt settlement ledger",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(seedCmd())
	rootCmd.AddCommand(sweepCmd())
	rootCmd.AddCommand(settleCmd())
	rootCmd.AddCommand(reconcileCmd())
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(workerCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// withLedger loads config, installs the logger and opens the configured store
// for the duration of fn.
func withLedger(ctx context.Context, fn func(cfg *config.Config, ledger app.Ledger, logger *zap.Logger) error) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger, err := app.NewLogger(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Sync()
	zap.ReplaceGlobals(logger)

	ledger, err := app.OpenLedger(ctx, cfg, "ledgerctl")
	if err != nil {
		return err
	}
	defer ledger.Close()
	return fn(cfg, ledger, logger)
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and reconciliation worker",
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.Run()
		},
	}
}

func workerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Run the settlement worker until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.RunWorker()
		},
	}
}
