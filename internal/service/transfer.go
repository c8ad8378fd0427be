package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/ayo6706/paynxt/internal/domain"
	"github.com/ayo6706/paynxt/internal/models"
	"github.com/ayo6706/paynxt/internal/observability"
	"github.com/ayo6706/paynxt/internal/repository"
	"github.com/google/uuid"
)

// TransferService accepts transfers for asynchronous settlement and serves
// transaction history.
type TransferService struct {
	store          QueryStore
	audit          *AuditService
	strictAdvisory bool
}

func NewTransferService(store QueryStore) *TransferService {
	return &TransferService{
		store: store,
		audit: NewAuditService(store),
	}
}

// WithStrictAdvisory makes intake reject transfers whose sender currently
// lacks the funds.
func (s *TransferService) WithStrictAdvisory(strict bool) *TransferService {
	s.strictAdvisory = strict
	return s
}

type CreateTransferInput struct {
	FromAccountID uuid.UUID
	ToEmail       string
	Amount        int64
}

type TransferReceipt struct {
	Transaction models.Transaction `json:"transaction"`
	Advisory    BalanceAdvisory    `json:"advisory"`
	Message     string             `json:"message"`
}

// CreateTransfer records a PENDING transfer. It never touches balances.
func (s *TransferService) CreateTransfer(ctx context.Context, in CreateTransferInput) (*TransferReceipt, error) {
	if err := domain.ValidateAmount(in.Amount); err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrInvalidAmount, err)
	}

	var receipt TransferReceipt
	err := s.store.RunInTx(ctx, func(q repository.Querier) error {
		recipient, err := q.GetAccountByEmail(ctx, normalizeEmail(in.ToEmail))
		if errors.Is(err, repository.ErrNoRows) {
			return models.ErrRecipientNotFound
		}
		if err != nil {
			return fmt.Errorf("resolve recipient: %w", err)
		}
		if recipient.ID == in.FromAccountID {
			return models.ErrSelfTransfer
		}

		sender, err := q.GetAccount(ctx, in.FromAccountID)
		if errors.Is(err, repository.ErrNoRows) {
			return models.ErrAccountNotFound
		}
		if err != nil {
			return fmt.Errorf("load sender: %w", err)
		}

		advisory := adviseBalance(sender, in.Amount)
		if err := advisory.enforce(s.strictAdvisory); err != nil {
			return err
		}

		tx, err := q.CreateTransaction(ctx, repository.CreateTransactionParams{
			ID:            uuid.New(),
			FromAccountID: sender.ID,
			ToAccountID:   recipient.ID,
			Amount:        in.Amount,
			Status:        domain.TxStatusPending,
			Kind:          domain.TxKindTransfer,
		})
		if err != nil {
			return fmt.Errorf("create transaction: %w", err)
		}
		if err := s.audit.Write(ctx, q, domain.EntityTransaction, tx.ID, &sender.ID, "created", "", domain.TxStatusPending, nil); err != nil {
			return err
		}

		receipt = TransferReceipt{
			Transaction: tx,
			Advisory:    advisory,
			Message:     "Transfer accepted and queued for settlement",
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	observability.IncrementIntake(domain.TxKindTransfer, receipt.Advisory.Sufficient)
	return &receipt, nil
}

type HistoryQuery struct {
	AccountID uuid.UUID
	Status    string
	Limit     int
	Offset    int
}

type HistoryPage struct {
	Transactions []models.Transaction `json:"transactions"`
	Total        int64                `json:"total"`
	Limit        int32                `json:"limit"`
	Offset       int32                `json:"offset"`
}

// History lists transactions where the account is sender or recipient,
// newest first.
func (s *TransferService) History(ctx context.Context, in HistoryQuery) (*HistoryPage, error) {
	var status *string
	if in.Status != "" {
		normalized := normalizeState(in.Status)
		if !domain.IsTransactionStatus(normalized) {
			return nil, fmt.Errorf("%w: unknown transaction status %q", models.ErrInvalidInput, in.Status)
		}
		status = &normalized
	}
	limit, offset := pageWindow(in.Limit, in.Offset)

	queries := s.store.Queries()
	txs, err := queries.ListAccountTransactions(ctx, repository.ListAccountTransactionsParams{
		AccountID: in.AccountID,
		Status:    status,
		Limit:     limit,
		Offset:    offset,
	})
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	total, err := queries.CountAccountTransactions(ctx, repository.CountAccountTransactionsParams{
		AccountID: in.AccountID,
		Status:    status,
	})
	if err != nil {
		return nil, fmt.Errorf("count transactions: %w", err)
	}

	if txs == nil {
		txs = []models.Transaction{}
	}
	return &HistoryPage{Transactions: txs, Total: total, Limit: limit, Offset: offset}, nil
}

// GetTransaction returns a transaction visible to actorID.
func (s *TransferService) GetTransaction(ctx context.Context, id, actorID uuid.UUID) (*models.Transaction, error) {
	tx, err := s.store.Queries().GetTransaction(ctx, id)
	if errors.Is(err, repository.ErrNoRows) {
		return nil, models.ErrTransactionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get transaction: %w", err)
	}
	if tx.FromAccountID != actorID && tx.ToAccountID != actorID {
		return nil, models.ErrForbidden
	}
	return &tx, nil
}
