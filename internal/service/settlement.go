package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/ayo6706/paynxt/internal/domain"
	"github.com/ayo6706/paynxt/internal/models"
	"github.com/ayo6706/paynxt/internal/observability"
	"github.com/ayo6706/paynxt/internal/repository"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// SettlementOutcome describes what a single Settle call did.
type SettlementOutcome string

const (
	OutcomeCompleted SettlementOutcome = "completed"
	OutcomeFailed    SettlementOutcome = "failed"
	// OutcomeSkipped means the transaction was missing or already resolved;
	// nothing was written.
	OutcomeSkipped SettlementOutcome = "skipped"
)

// SettlementResult is the business result of settling one transaction.
type SettlementResult struct {
	TransactionID uuid.UUID         `json:"transaction_id"`
	Outcome       SettlementOutcome `json:"outcome"`
	Status        string            `json:"status,omitempty"`
	FailureReason *string           `json:"failure_reason,omitempty"`
}

// SettlementService applies pending transactions to account balances. Each
// call to Settle is one unit of work and is the only place balances change
// after account creation.
type SettlementService struct {
	store QueryStore
	audit *AuditService
	now   func() time.Time
}

func NewSettlementService(store QueryStore) *SettlementService {
	return &SettlementService{
		store: store,
		audit: NewAuditService(store),
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the clock used for completion timestamps.
func (s *SettlementService) WithClock(now func() time.Time) *SettlementService {
	s.now = now
	return s
}

// PendingTransactions returns up to limit pending transactions, oldest first.
func (s *SettlementService) PendingTransactions(ctx context.Context, limit int32) ([]models.Transaction, error) {
	txs, err := s.store.Queries().ListPendingTransactions(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("list pending transactions: %w", err)
	}
	return txs, nil
}

// Settle resolves one pending transaction.
//
// A sender without enough funds is a business outcome: the transaction is
// marked FAILED and no error is returned. A missing account or any store
// error aborts the unit, leaving the transaction PENDING for a later pass.
func (s *SettlementService) Settle(ctx context.Context, transactionID uuid.UUID) (*SettlementResult, error) {
	start := time.Now()
	var result SettlementResult

	err := s.store.RunInTx(ctx, func(q repository.Querier) error {
		result = SettlementResult{TransactionID: transactionID, Outcome: OutcomeSkipped}

		tx, err := q.GetPendingTransactionForUpdate(ctx, transactionID)
		if errors.Is(err, repository.ErrNoRows) {
			existing, getErr := q.GetTransaction(ctx, transactionID)
			switch {
			case getErr == nil:
				result.Status = existing.Status
				result.FailureReason = existing.FailureReason
			case !errors.Is(getErr, repository.ErrNoRows):
				return fmt.Errorf("load transaction %s: %w", transactionID, getErr)
			}
			return nil
		}
		if err != nil {
			return fmt.Errorf("lock transaction %s: %w", transactionID, err)
		}

		accounts, err := q.LockAccountsForUpdate(ctx, accountLockOrder(tx.FromAccountID, tx.ToAccountID))
		if errors.Is(err, repository.ErrNoRows) {
			return fmt.Errorf("settle transaction %s: %w", transactionID, models.ErrAccountNotFound)
		}
		if err != nil {
			return fmt.Errorf("lock accounts: %w", err)
		}

		var sender *models.Account
		for i := range accounts {
			if accounts[i].ID == tx.FromAccountID {
				sender = &accounts[i]
			}
		}
		if sender == nil {
			return fmt.Errorf("settle transaction %s: sender: %w", transactionID, models.ErrAccountNotFound)
		}

		completedAt := s.now()
		if sender.Balance < tx.Amount {
			reason := domain.FailureReasonInsufficientBalance
			metadata, err := json.Marshal(map[string]any{
				"balance": sender.Balance,
				"amount":  tx.Amount,
			})
			if err != nil {
				return fmt.Errorf("encode settlement metadata: %w", err)
			}
			if err := transitionTransactionState(ctx, q, s.audit, tx, domain.TxStatusFailed, &reason, completedAt, "settlement_failed", metadata); err != nil {
				return err
			}
			result.Outcome = OutcomeFailed
			result.Status = domain.TxStatusFailed
			result.FailureReason = &reason
			return nil
		}

		rows, err := q.AdjustBalance(ctx, repository.AdjustBalanceParams{ID: tx.FromAccountID, Delta: -tx.Amount})
		if err != nil {
			return fmt.Errorf("debit sender: %w", err)
		}
		if err := requireExactlyOne(rows, "debit sender"); err != nil {
			return err
		}

		rows, err = q.AdjustBalance(ctx, repository.AdjustBalanceParams{ID: tx.ToAccountID, Delta: tx.Amount})
		if err != nil {
			return fmt.Errorf("credit recipient: %w", err)
		}
		if err := requireExactlyOne(rows, "credit recipient"); err != nil {
			return err
		}

		if err := transitionTransactionState(ctx, q, s.audit, tx, domain.TxStatusCompleted, nil, completedAt, "settlement_completed", nil); err != nil {
			return err
		}
		result.Outcome = OutcomeCompleted
		result.Status = domain.TxStatusCompleted
		return nil
	})
	if err != nil {
		observability.ObserveSettlement("error", time.Since(start))
		return nil, err
	}

	observability.ObserveSettlement(string(result.Outcome), time.Since(start))
	if result.Outcome == OutcomeFailed {
		zap.L().Info("transaction failed at settlement",
			zap.String("transaction_id", transactionID.String()),
			zap.String("reason", *result.FailureReason),
		)
	}
	return &result, nil
}

// accountLockOrder returns the distinct account ids in ascending byte order.
// Every unit that locks more than one account must use this order.
func accountLockOrder(ids ...uuid.UUID) []uuid.UUID {
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		seen := false
		for _, existing := range out {
			if existing == id {
				seen = true
				break
			}
		}
		if !seen {
			out = append(out, id)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return bytes.Compare(out[i][:], out[j][:]) < 0
	})
	return out
}
