package service

import (
	"context"
	"fmt"
	"time"

	"github.com/ayo6706/paynxt/internal/observability"
	"go.uber.org/zap"
)

// ReconciliationReport is the outcome of one ledger health check.
type ReconciliationReport struct {
	Accounts                 int64         `json:"accounts"`
	TotalBalance             int64         `json:"total_balance"`
	NegativeBalances         int64         `json:"negative_balances"`
	InconsistentTransactions int64         `json:"inconsistent_transactions"`
	PendingCount             int64         `json:"pending_count"`
	OldestPendingAge         time.Duration `json:"oldest_pending_age"`
}

// Healthy reports whether every ledger invariant held.
func (r ReconciliationReport) Healthy() bool {
	return r.NegativeBalances == 0 && r.InconsistentTransactions == 0
}

// ReconciliationService verifies ledger integrity invariants.
type ReconciliationService struct {
	store QueryStore
	now   func() time.Time
}

// NewReconciliationService creates a reconciliation service.
func NewReconciliationService(store QueryStore) *ReconciliationService {
	return &ReconciliationService{store: store, now: time.Now}
}

// Run checks that no balance is negative, that terminal fields match each
// transaction's status, and exports the settlement backlog. Violations are
// logged and counted; they do not produce an error.
func (s *ReconciliationService) Run(ctx context.Context) (*ReconciliationReport, error) {
	queries := s.store.Queries()
	health, err := queries.GetLedgerHealth(ctx)
	if err != nil {
		return nil, fmt.Errorf("run ledger health query: %w", err)
	}
	backlog, err := queries.GetPendingBacklog(ctx)
	if err != nil {
		return nil, fmt.Errorf("run pending backlog query: %w", err)
	}

	report := &ReconciliationReport{
		Accounts:                 health.Accounts,
		TotalBalance:             health.TotalBalance,
		NegativeBalances:         health.NegativeBalances,
		InconsistentTransactions: health.InconsistentTransactions,
		PendingCount:             backlog.Count,
	}
	if backlog.OldestCreatedAt != nil {
		report.OldestPendingAge = s.now().Sub(*backlog.OldestCreatedAt)
	}

	observability.SetLedgerTotalBalance(report.TotalBalance)
	observability.SetPendingBacklog(report.PendingCount, report.OldestPendingAge)

	if report.NegativeBalances > 0 {
		observability.IncrementLedgerViolation("negative_balance")
		zap.L().Error("CRITICAL: negative account balances detected", zap.Int64("accounts", report.NegativeBalances))
	}
	if report.InconsistentTransactions > 0 {
		observability.IncrementLedgerViolation("inconsistent_transaction")
		zap.L().Error("CRITICAL: transactions with inconsistent terminal fields", zap.Int64("transactions", report.InconsistentTransactions))
	}
	if report.Healthy() {
		zap.L().Info("Ledger consistent",
			zap.Int64("total_balance", report.TotalBalance),
			zap.Int64("pending", report.PendingCount),
			zap.Duration("oldest_pending_age", report.OldestPendingAge),
		)
	}
	return report, nil
}
