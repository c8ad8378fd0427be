package repository

import (
	"context"
	"time"

	"github.com/ayo6706/paynxt/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// ErrNoRows is returned by every Querier implementation when a lookup or a
// locking read matches nothing.
var ErrNoRows = pgx.ErrNoRows

// Querier is the data access contract shared by the Postgres and the embedded
// store. Every method can run inside a unit of work (see Store.RunInTx).
type Querier interface {
	CreateAccount(ctx context.Context, arg CreateAccountParams) (models.Account, error)
	GetAccount(ctx context.Context, id uuid.UUID) (models.Account, error)
	GetAccountByEmail(ctx context.Context, email string) (models.Account, error)
	// LockAccountsForUpdate takes an exclusive lock on each account row in the
	// order given and returns the rows in that order.
	LockAccountsForUpdate(ctx context.Context, ids []uuid.UUID) ([]models.Account, error)
	// AdjustBalance adds Delta to the balance. It affects zero rows when the
	// result would be negative.
	AdjustBalance(ctx context.Context, arg AdjustBalanceParams) (int64, error)

	CreateTransaction(ctx context.Context, arg CreateTransactionParams) (models.Transaction, error)
	GetTransaction(ctx context.Context, id uuid.UUID) (models.Transaction, error)
	// GetPendingTransactionForUpdate locks and returns the transaction only
	// while it is still PENDING.
	GetPendingTransactionForUpdate(ctx context.Context, id uuid.UUID) (models.Transaction, error)
	// SetTransactionTerminal moves a PENDING transaction to a terminal status.
	// Already resolved rows are left untouched (zero rows affected).
	SetTransactionTerminal(ctx context.Context, arg SetTransactionTerminalParams) (int64, error)
	ListPendingTransactions(ctx context.Context, limit int32) ([]models.Transaction, error)
	ListAccountTransactions(ctx context.Context, arg ListAccountTransactionsParams) ([]models.Transaction, error)
	CountAccountTransactions(ctx context.Context, arg CountAccountTransactionsParams) (int64, error)
	GetPendingBacklog(ctx context.Context) (PendingBacklog, error)
	GetLedgerHealth(ctx context.Context) (LedgerHealth, error)

	CreatePayRequest(ctx context.Context, arg CreatePayRequestParams) (models.PayRequest, error)
	GetPayRequest(ctx context.Context, id uuid.UUID) (models.PayRequest, error)
	GetPayRequestForUpdate(ctx context.Context, id uuid.UUID) (models.PayRequest, error)
	// SetPayRequestStatus resolves a PENDING pay request. Already resolved rows
	// are left untouched (zero rows affected).
	SetPayRequestStatus(ctx context.Context, arg SetPayRequestStatusParams) (int64, error)
	ListPayRequestsByMerchant(ctx context.Context, arg ListPayRequestsParams) ([]models.PayRequest, error)
	ListPayRequestsByConsumer(ctx context.Context, arg ListPayRequestsParams) ([]models.PayRequest, error)

	InsertAuditLog(ctx context.Context, arg InsertAuditLogParams) (int64, error)
	ListAuditLog(ctx context.Context, entityType string, entityID uuid.UUID) ([]models.AuditLog, error)

	GetIdempotencyKey(ctx context.Context, key string) (IdempotencyKey, error)
	ReserveIdempotencyKey(ctx context.Context, arg ReserveIdempotencyKeyParams) (IdempotencyKey, error)
	FinalizeIdempotencyKey(ctx context.Context, arg FinalizeIdempotencyKeyParams) (IdempotencyKey, error)
}

type CreateAccountParams struct {
	ID           uuid.UUID
	Email        string
	PasswordHash string
	Role         string
	Balance      int64
}

type AdjustBalanceParams struct {
	ID    uuid.UUID
	Delta int64
}

type CreateTransactionParams struct {
	ID            uuid.UUID
	FromAccountID uuid.UUID
	ToAccountID   uuid.UUID
	Amount        int64
	Status        string
	Kind          string
}

type SetTransactionTerminalParams struct {
	ID            uuid.UUID
	Status        string
	CompletedAt   time.Time
	FailureReason *string
}

type ListAccountTransactionsParams struct {
	AccountID uuid.UUID
	Status    *string
	Limit     int32
	Offset    int32
}

type CountAccountTransactionsParams struct {
	AccountID uuid.UUID
	Status    *string
}

type PendingBacklog struct {
	Count           int64
	OldestCreatedAt *time.Time
}

type LedgerHealth struct {
	Accounts                 int64
	TotalBalance             int64
	NegativeBalances         int64
	InconsistentTransactions int64
}

type CreatePayRequestParams struct {
	ID         uuid.UUID
	MerchantID uuid.UUID
	ConsumerID uuid.UUID
	Amount     int64
	Message    *string
}

type SetPayRequestStatusParams struct {
	ID            uuid.UUID
	Status        string
	TransactionID *uuid.UUID
}

type ListPayRequestsParams struct {
	AccountID uuid.UUID
	Limit     int32
	Offset    int32
}

type InsertAuditLogParams struct {
	EntityType string
	EntityID   uuid.UUID
	ActorID    *uuid.UUID
	Action     string
	PrevState  *string
	NextState  *string
	Metadata   []byte
}

type IdempotencyKey struct {
	IdempotencyKey string
	RequestHash    string
	Method         string
	Path           string
	ResponseStatus int32
	ResponseBody   []byte
	ContentType    string
	InProgress     bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// ReserveIdempotencyKeyParams claims a key. An in-progress reservation for
// the same request hash last touched before StaleBefore is taken over; the
// zero time never takes over.
type ReserveIdempotencyKeyParams struct {
	IdempotencyKey string
	RequestHash    string
	Method         string
	Path           string
	StaleBefore    time.Time
}

type FinalizeIdempotencyKeyParams struct {
	ResponseStatus int32
	ResponseBody   []byte
	ContentType    string
	IdempotencyKey string
	RequestHash    string
}
