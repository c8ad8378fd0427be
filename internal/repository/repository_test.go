package repository

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/ayo6706/paynxt/internal/db"
	"github.com/ayo6706/paynxt/internal/testutil/dblock"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/stretchr/testify/require"
)

func init() {
	_ = godotenv.Load("../../.env")
}

func setupStore(t *testing.T) *Store {
	t.Helper()
	if os.Getenv("DATABASE_URL") == "" {
		t.Skip("Skipping integration test: DATABASE_URL not set")
	}

	release := dblock.Acquire()
	t.Cleanup(release)

	ctx := context.Background()
	pool, err := db.Connect(ctx, os.Getenv("DATABASE_URL"))
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	require.NoError(t, db.Migrate(ctx, pool))
	_, err = pool.Exec(ctx, `TRUNCATE TABLE audit_log, pay_requests, transactions, accounts, idempotency_keys CASCADE`)
	require.NoError(t, err)
	return NewStore(pool)
}

func createAccount(t *testing.T, q Querier, balance int64) uuid.UUID {
	t.Helper()
	id := uuid.New()
	_, err := q.CreateAccount(context.Background(), CreateAccountParams{
		ID:           id,
		Email:        "acct_" + id.String()[:8] + "@example.com",
		PasswordHash: "x",
		Role:         "CONSUMER",
		Balance:      balance,
	})
	require.NoError(t, err)
	return id
}

func TestAccountBalanceGuard(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()
	q := store.Queries()

	id := createAccount(t, q, 100)

	rows, err := q.AdjustBalance(ctx, AdjustBalanceParams{ID: id, Delta: -150})
	require.NoError(t, err)
	require.Zero(t, rows)

	rows, err = q.AdjustBalance(ctx, AdjustBalanceParams{ID: id, Delta: -100})
	require.NoError(t, err)
	require.EqualValues(t, 1, rows)

	account, err := q.GetAccount(ctx, id)
	require.NoError(t, err)
	require.Zero(t, account.Balance)
}

func TestTransactionTerminalOnlyOnce(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()
	q := store.Queries()

	from := createAccount(t, q, 500)
	to := createAccount(t, q, 0)

	tx, err := q.CreateTransaction(ctx, CreateTransactionParams{
		ID: uuid.New(), FromAccountID: from, ToAccountID: to, Amount: 100, Status: "PENDING", Kind: "TRANSFER",
	})
	require.NoError(t, err)
	require.Nil(t, tx.CompletedAt)

	pending, err := q.ListPendingTransactions(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)

	now := time.Now().UTC()
	rows, err := q.SetTransactionTerminal(ctx, SetTransactionTerminalParams{ID: tx.ID, Status: "COMPLETED", CompletedAt: now})
	require.NoError(t, err)
	require.EqualValues(t, 1, rows)

	reason := "Insufficient balance"
	rows, err = q.SetTransactionTerminal(ctx, SetTransactionTerminalParams{ID: tx.ID, Status: "FAILED", CompletedAt: now, FailureReason: &reason})
	require.NoError(t, err)
	require.Zero(t, rows)

	_, err = q.GetPendingTransactionForUpdate(ctx, tx.ID)
	require.True(t, errors.Is(err, ErrNoRows))

	got, err := q.GetTransaction(ctx, tx.ID)
	require.NoError(t, err)
	require.Equal(t, "COMPLETED", got.Status)
	require.NotNil(t, got.CompletedAt)
	require.Nil(t, got.FailureReason)
}

func TestRunInTxRollsBack(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	id := createAccount(t, store.Queries(), 100)
	boom := errors.New("boom")

	err := store.RunInTx(ctx, func(q Querier) error {
		if _, err := q.AdjustBalance(ctx, AdjustBalanceParams{ID: id, Delta: -40}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	account, err := store.Queries().GetAccount(ctx, id)
	require.NoError(t, err)
	require.EqualValues(t, 100, account.Balance)
}

func TestLockAccountsMissingRow(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	id := createAccount(t, store.Queries(), 100)
	err := store.RunInTx(ctx, func(q Querier) error {
		_, err := q.LockAccountsForUpdate(ctx, []uuid.UUID{id, uuid.New()})
		return err
	})
	require.True(t, errors.Is(err, ErrNoRows))
}

func TestPayRequestStatusOnce(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()
	q := store.Queries()

	merchant := createAccount(t, q, 0)
	consumer := createAccount(t, q, 0)

	pr, err := q.CreatePayRequest(ctx, CreatePayRequestParams{ID: uuid.New(), MerchantID: merchant, ConsumerID: consumer, Amount: 250})
	require.NoError(t, err)
	require.Equal(t, "PENDING", pr.Status)

	rows, err := q.SetPayRequestStatus(ctx, SetPayRequestStatusParams{ID: pr.ID, Status: "REJECTED"})
	require.NoError(t, err)
	require.EqualValues(t, 1, rows)

	rows, err = q.SetPayRequestStatus(ctx, SetPayRequestStatusParams{ID: pr.ID, Status: "APPROVED"})
	require.NoError(t, err)
	require.Zero(t, rows)

	received, err := q.ListPayRequestsByConsumer(ctx, ListPayRequestsParams{AccountID: consumer, Limit: 10})
	require.NoError(t, err)
	require.Len(t, received, 1)
	require.Equal(t, "REJECTED", received[0].Status)
	require.Nil(t, received[0].TransactionID)
}

func TestLedgerHealth(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()
	q := store.Queries()

	createAccount(t, q, 300)
	createAccount(t, q, 200)

	health, err := q.GetLedgerHealth(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 2, health.Accounts)
	require.EqualValues(t, 500, health.TotalBalance)
	require.Zero(t, health.NegativeBalances)
	require.Zero(t, health.InconsistentTransactions)

	backlog, err := q.GetPendingBacklog(ctx)
	require.NoError(t, err)
	require.Zero(t, backlog.Count)
	require.Nil(t, backlog.OldestCreatedAt)
}

func TestTransactionSchemaChecks(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()
	q := store.Queries()

	from := createAccount(t, q, 500)
	to := createAccount(t, q, 0)

	_, err := q.CreateTransaction(ctx, CreateTransactionParams{
		ID: uuid.New(), FromAccountID: from, ToAccountID: from, Amount: 100, Status: "PENDING", Kind: "TRANSFER",
	})
	require.True(t, IsCheckViolation(err), "self transfer: %v", err)

	tx, err := q.CreateTransaction(ctx, CreateTransactionParams{
		ID: uuid.New(), FromAccountID: from, ToAccountID: to, Amount: 100, Status: "PENDING", Kind: "TRANSFER",
	})
	require.NoError(t, err)

	_, err = q.SetTransactionTerminal(ctx, SetTransactionTerminalParams{ID: tx.ID, Status: "FAILED", CompletedAt: time.Now().UTC()})
	require.True(t, IsCheckViolation(err), "failed without reason: %v", err)

	reason := "Insufficient balance"
	_, err = q.SetTransactionTerminal(ctx, SetTransactionTerminalParams{ID: tx.ID, Status: "COMPLETED", CompletedAt: time.Now().UTC(), FailureReason: &reason})
	require.True(t, IsCheckViolation(err), "completed with reason: %v", err)

	rows, err := q.SetTransactionTerminal(ctx, SetTransactionTerminalParams{ID: tx.ID, Status: "FAILED", CompletedAt: time.Now().UTC(), FailureReason: &reason})
	require.NoError(t, err)
	require.EqualValues(t, 1, rows)

	health, err := q.GetLedgerHealth(ctx)
	require.NoError(t, err)
	require.Zero(t, health.InconsistentTransactions)
}

func TestReserveIdempotencyKeyTakesOverOnlyStaleReservations(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()
	q := store.Queries()

	reserve := func(hash string, staleBefore time.Time) error {
		_, err := q.ReserveIdempotencyKey(ctx, ReserveIdempotencyKeyParams{
			IdempotencyKey: "k1", RequestHash: hash, Method: "POST", Path: "/v1/transactions/transfer", StaleBefore: staleBefore,
		})
		return err
	}

	require.NoError(t, reserve("h1", time.Time{}))
	require.ErrorIs(t, reserve("h1", time.Time{}), ErrNoRows)
	require.ErrorIs(t, reserve("h2", time.Now().Add(time.Hour)), ErrNoRows)
	require.NoError(t, reserve("h1", time.Now().Add(time.Hour)))

	_, err := q.FinalizeIdempotencyKey(ctx, FinalizeIdempotencyKeyParams{
		ResponseStatus: 202, ResponseBody: []byte(`{}`), ContentType: "application/json", IdempotencyKey: "k1", RequestHash: "h1",
	})
	require.NoError(t, err)
	require.ErrorIs(t, reserve("h1", time.Now().Add(time.Hour)), ErrNoRows)
}
